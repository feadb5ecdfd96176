package module

import (
	"fmt"
	"sync"
)

// InputHooks holds the producer-side behavior of a concrete input module.
// OnTrigger handles discrete events, OnStream handles continuous values,
// and OnTriggerParameters snapshots the parameters relevant to triggering.
// All hooks run under the catch-log-and-continue policy.
type InputHooks struct {
	OnTrigger           func(ev Event) error
	OnStream            func(value any) error
	OnTriggerParameters func() (map[string]any, error)
}

// Input implements the producer refinement of the module contract.
// HandleEvent dispatches to OnTrigger or OnStream based on the current
// delivery mode; EmitEvent hands events to the attached sink.
type Input struct {
	*Base
	hooks InputHooks

	sinkMu sync.RWMutex
	sink   EventSink
}

var _ InputInstance = (*Input)(nil)

// NewInput creates an input module instance from base and input hooks
func NewInput(manifest Manifest, cfg Config, logger *Logger, base Hooks, hooks InputHooks) *Input {
	in := &Input{hooks: hooks}

	// The base event hook routes to the mode-specific input hooks so the
	// shared catch-log wrapper covers them too.
	if base.OnHandleEvent == nil {
		base.OnHandleEvent = in.dispatch
	}
	in.Base = NewBase(manifest, cfg, logger, base)
	return in
}

// AttachSink wires the instance to an event sink, normally the router
func (in *Input) AttachSink(sink EventSink) {
	in.sinkMu.Lock()
	in.sink = sink
	in.sinkMu.Unlock()
}

// EmitEvent hands the event to the attached sink together with this
// instance and its current mode. An input with no sink is valid (for
// example during editing); the event is dropped silently.
func (in *Input) EmitEvent(ev Event) {
	in.sinkMu.RLock()
	sink := in.sink
	in.sinkMu.RUnlock()

	if sink == nil {
		return
	}
	sink.RouteEvent(in, ev, in.Mode())
}

// TriggerParameters returns a type-specific snapshot of the parameters
// relevant to triggering. Hook failures are logged and yield nil.
func (in *Input) TriggerParameters() (params map[string]any) {
	if in.hooks.OnTriggerParameters == nil {
		return nil
	}
	in.runHook("OnTriggerParameters", func() error {
		p, err := in.hooks.OnTriggerParameters()
		if err != nil {
			return err
		}
		params = p
		return nil
	})
	return params
}

// dispatch invokes the mode-specific hook for an incoming event
func (in *Input) dispatch(ev Event) error {
	switch in.Mode() {
	case ModeStreaming:
		if in.hooks.OnStream == nil {
			return nil
		}
		var value any
		if ev.Data != nil {
			value = ev.Data["value"]
		}
		return in.hooks.OnStream(value)
	case ModeTrigger:
		if in.hooks.OnTrigger == nil {
			return nil
		}
		return in.hooks.OnTrigger(ev)
	default:
		return fmt.Errorf("unknown mode %q", in.Mode())
	}
}
