package interaction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/stagelink/module"
)

func TestConfigEqual(t *testing.T) {
	tests := []struct {
		name  string
		a, b  module.Config
		equal bool
	}{
		{"both nil", nil, nil, true},
		{"nil vs empty", nil, module.Config{}, true},
		{"same values", module.Config{"id": 1}, module.Config{"id": 1}, true},
		{"int vs float after round-trip", module.Config{"id": 1}, module.Config{"id": 1.0}, true},
		{"different values", module.Config{"id": 1}, module.Config{"id": 2}, false},
		{"different keys", module.Config{"id": 1}, module.Config{"port": 1}, false},
		{"nested equal", module.Config{"net": map[string]any{"port": 7000}}, module.Config{"net": map[string]any{"port": 7000}}, true},
		{"nested different", module.Config{"net": map[string]any{"port": 7000}}, module.Config{"net": map[string]any{"port": 7001}}, false},
		{"subset is not equal", module.Config{"id": 1}, module.Config{"id": 1, "extra": true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, ConfigEqual(tt.a, tt.b))
			assert.Equal(t, tt.equal, ConfigEqual(tt.b, tt.a), "equality must be symmetric")
		})
	}
}

func TestSideMatches(t *testing.T) {
	byName := Side{Module: "clock", Config: module.Config{"interval": 100}}

	assert.True(t, byName.Matches(Side{Module: "clock", Config: module.Config{"interval": 100}}))
	assert.False(t, byName.Matches(Side{Module: "clock", Config: module.Config{"interval": 200}}))
	assert.False(t, byName.Matches(Side{Module: "osc", Config: module.Config{"interval": 100}}))

	// Instance IDs outrank name+config when both carry one
	a := Side{Module: "clock", InstanceID: "id-a", Config: module.Config{"interval": 100}}
	b := Side{Module: "clock", InstanceID: "id-b", Config: module.Config{"interval": 100}}
	assert.False(t, a.Matches(b))
	assert.True(t, a.Matches(Side{Module: "renamed", InstanceID: "id-a"}))

	// One-sided IDs fall back to name+config (legacy persisted data)
	assert.True(t, a.Matches(Side{Module: "clock", Config: module.Config{"interval": 100}}))
}

func TestInteractionValid(t *testing.T) {
	assert.True(t, Interaction{
		Input:  Side{Module: "clock"},
		Output: Side{Module: "file"},
	}.Valid())

	assert.False(t, Interaction{}.Valid())
	assert.False(t, Interaction{Input: Side{Module: "clock"}}.Valid())
	assert.False(t, Interaction{Output: Side{Module: "file"}}.Valid())
}

func TestInteractionEqual(t *testing.T) {
	a := Interaction{
		Input:  Side{Module: "clock", Config: module.Config{"id": 1}},
		Output: Side{Module: "file", Config: module.Config{"id": 1}},
	}
	same := Interaction{
		Input:  Side{Module: "clock", Config: module.Config{"id": 1.0}},
		Output: Side{Module: "file", Config: module.Config{"id": 1.0}},
	}
	other := Interaction{
		Input:  Side{Module: "clock", Config: module.Config{"id": 2}},
		Output: Side{Module: "file", Config: module.Config{"id": 1}},
	}

	assert.True(t, a.Equal(same))
	assert.False(t, a.Equal(other))
}
