package module

import (
	"context"
	"time"
)

// Mode selects how an input module delivers events
type Mode string

const (
	// ModeTrigger delivers discrete events
	ModeTrigger Mode = "trigger"
	// ModeStreaming delivers continuous values
	ModeStreaming Mode = "streaming"
)

// Valid reports whether the mode is a known delivery mode
func (m Mode) Valid() bool {
	return m == ModeTrigger || m == ModeStreaming
}

// Config is the instance-specific configuration of a module. Keys map to
// the fields declared in the module's manifest; values are JSON-compatible.
// A Config is owned exclusively by the instance it configures.
type Config map[string]any

// Clone returns a shallow copy of the config. Values are shared; callers
// replace configs wholesale rather than mutating nested values in place.
func (c Config) Clone() Config {
	if c == nil {
		return nil
	}
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Event is the unit routed from an input instance to its connected
// output instances. The Mode field is stamped by the router at delivery
// time with the emitting input's current mode.
type Event struct {
	Mode Mode           `json:"mode,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// WithMode returns a copy of the event tagged with the given mode.
// The data map is copied so outputs never share mutable state with the
// emitting input.
func (e Event) WithMode(mode Mode) Event {
	out := Event{Mode: mode}
	if e.Data != nil {
		out.Data = make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			out.Data[k] = v
		}
	}
	return out
}

// Instance is the uniform contract every running module satisfies,
// regardless of capability.
type Instance interface {
	// ID returns the stable instance identifier assigned at creation
	ID() string

	// ModuleName returns the manifest-declared display name. This is the
	// legacy cross-reference key for routing; it is not unique across
	// config variants of the same type.
	ModuleName() string

	// Manifest returns the type-level metadata this instance was built from
	Manifest() Manifest

	// Config returns a copy of the instance configuration
	Config() Config

	// SetConfig replaces the instance configuration wholesale and
	// applies it to the module's live behavior
	SetConfig(cfg Config)

	// Lock marks the instance as mid-mutation for external observers
	Lock()
	// Unlock clears the mid-mutation flag
	Unlock()
	// IsLocked reports the advisory lock flag
	IsLocked() bool

	// Mode returns the current delivery mode
	Mode() Mode
	// SetMode switches the delivery mode. Outputs accept it for symmetry;
	// routing only consults the mode of inputs.
	SetMode(mode Mode)

	// State returns the current lifecycle state
	State() State

	// Start transitions the instance to Started. Hook failures are logged
	// and swallowed; the returned error is reserved for contract-level
	// misuse and is nil for hook failures.
	Start(ctx context.Context) error

	// Stop transitions the instance to Stopped with the same best-effort
	// policy as Start.
	Stop(timeout time.Duration) error

	// HandleEvent delivers an event to the instance's event hook with the
	// catch-log-and-continue failure policy.
	HandleEvent(ev Event)
}

// InputInstance is the producer refinement of Instance
type InputInstance interface {
	Instance

	// EmitEvent hands the event to the attached sink together with this
	// instance and its current mode. Without a sink the event is dropped.
	EmitEvent(ev Event)

	// AttachSink wires the instance to an event sink, normally the router
	AttachSink(sink EventSink)

	// TriggerParameters returns a type-specific snapshot of the parameters
	// relevant to triggering, or nil when the hook fails.
	TriggerParameters() map[string]any
}

// OutputInstance is the consumer refinement of Instance
type OutputInstance interface {
	Instance
}

// EventSink receives emitted events for routing. The router implements
// this; tests substitute recorders.
type EventSink interface {
	RouteEvent(input InputInstance, ev Event, mode Mode)
}
