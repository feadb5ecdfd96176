// Package interaction defines the persisted wiring unit of the control
// panel (one input module configuration connected to one output module
// configuration), the loader that materializes module instances from a
// persisted interaction list, and the store that owns the list.
package interaction

import (
	"encoding/json"
	"reflect"

	"github.com/c360/stagelink/module"
)

// Side is one end of an interaction: a module type name, the config the
// instance on that side owns, and the stable identifier of the
// materialized instance. InstanceID is the primary join key for the
// router; name plus structural config equality is the fallback for legacy
// persisted data that predates instance identifiers.
type Side struct {
	Module     string        `json:"module"`
	InstanceID string        `json:"instance_id,omitempty"`
	Config     module.Config `json:"config,omitempty"`
}

// Valid reports whether the side names a module type
func (s Side) Valid() bool {
	return s.Module != ""
}

// Matches reports whether this side references the same logical instance
// as other. Instance IDs win when both sides carry one; otherwise the
// comparison falls back to type name plus structural config equality.
func (s Side) Matches(other Side) bool {
	if s.InstanceID != "" && other.InstanceID != "" {
		return s.InstanceID == other.InstanceID
	}
	return s.Module == other.Module && ConfigEqual(s.Config, other.Config)
}

// Interaction is the declarative, persisted unit wiring one input module
// configuration to one output module configuration. One interaction yields
// exactly one connection once both referenced instances exist.
type Interaction struct {
	Input  Side `json:"input"`
	Output Side `json:"output"`
}

// Valid reports whether both sides name a module type
func (ia Interaction) Valid() bool {
	return ia.Input.Valid() && ia.Output.Valid()
}

// Equal reports whether two interactions reference the same logical
// input/output instance pair.
func (ia Interaction) Equal(other Interaction) bool {
	return ia.Input.Matches(other.Input) && ia.Output.Matches(other.Output)
}

// File is the persisted shape of the interaction list
type File struct {
	Interactions []Interaction `json:"interactions"`
}

// ConfigEqual compares two module configs structurally. Both configs are
// normalized through JSON so that values which persist identically compare
// equal regardless of in-memory numeric type (int vs float64 after a
// round-trip).
func ConfigEqual(a, b module.Config) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	na, ok := normalize(a)
	if !ok {
		return false
	}
	nb, ok := normalize(b)
	if !ok {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

func normalize(c module.Config) (any, bool) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, false
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false
	}
	return out, true
}
