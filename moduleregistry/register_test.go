package moduleregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/stagelink/errors"
	"github.com/c360/stagelink/module"
)

func TestRegisterAllBuiltins(t *testing.T) {
	registry := module.NewRegistry()
	require.NoError(t, Register(registry))

	available := registry.Available()
	names := make([]string, 0, len(available))
	kinds := make(map[string]module.Kind, len(available))
	for _, info := range available {
		names = append(names, info.Name)
		kinds[info.Name] = info.Manifest.Kind
	}

	assert.Equal(t, []string{"clock", "udp-frame", "file", "udp-send", "ws-broadcast"}, names)
	assert.Equal(t, module.KindInput, kinds["clock"])
	assert.Equal(t, module.KindInput, kinds["udp-frame"])
	assert.Equal(t, module.KindOutput, kinds["file"])
	assert.Equal(t, module.KindOutput, kinds["udp-send"])
	assert.Equal(t, module.KindOutput, kinds["ws-broadcast"])
}

func TestRegisterNilRegistry(t *testing.T) {
	err := Register(nil)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestRegisterTwiceFails(t *testing.T) {
	registry := module.NewRegistry()
	require.NoError(t, Register(registry))

	err := Register(registry)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
