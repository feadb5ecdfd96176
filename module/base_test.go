package module

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseConfigAccess(t *testing.T) {
	logger, recorder := newTestLogger("clock")
	base := NewBase(testManifest("clock", KindInput), Config{"interval": 500}, logger, Hooks{})

	got := base.Config()
	assert.Equal(t, Config{"interval": 500}, got)

	// Mutating the returned copy must not touch the instance's config
	got["interval"] = 1
	assert.Equal(t, Config{"interval": 500}, base.Config())

	base.SetConfig(Config{"interval": 250, "label": "fast"})
	assert.Equal(t, Config{"interval": 250, "label": "fast"}, base.Config())

	var found bool
	for _, rec := range recorder.entries() {
		if rec.Message == "Config replaced" {
			found = true
		}
	}
	assert.True(t, found, "SetConfig should log an informational event")
}

func TestBaseLockFlag(t *testing.T) {
	logger, _ := newTestLogger("clock")
	base := NewBase(testManifest("clock", KindInput), nil, logger, Hooks{})

	assert.False(t, base.IsLocked())
	base.Lock()
	assert.True(t, base.IsLocked())
	base.Lock() // repeat lock is harmless
	assert.True(t, base.IsLocked())
	base.Unlock()
	assert.False(t, base.IsLocked())
	base.Unlock()
	assert.False(t, base.IsLocked())
}

func TestBaseStartStopStateMachine(t *testing.T) {
	logger, _ := newTestLogger("clock")

	var starts, stops int
	base := NewBase(testManifest("clock", KindInput), nil, logger, Hooks{
		OnStart: func(context.Context) error { starts++; return nil },
		OnStop:  func(time.Duration) error { stops++; return nil },
	})

	assert.Equal(t, StateUnstarted, base.State())

	require.NoError(t, base.Start(context.Background()))
	assert.Equal(t, StateStarted, base.State())
	require.NoError(t, base.Start(context.Background()))
	assert.Equal(t, 1, starts, "repeat Start must not reach the hook")

	require.NoError(t, base.Stop(time.Second))
	assert.Equal(t, StateStopped, base.State())
	require.NoError(t, base.Stop(time.Second))
	assert.Equal(t, 1, stops, "repeat Stop must not reach the hook")
}

func TestStartSwallowsHookError(t *testing.T) {
	logger, recorder := newTestLogger("serial")

	base := NewBase(testManifest("serial", KindInput), nil, logger, Hooks{
		OnStart: func(context.Context) error { return errors.New("port open failed") },
	})

	require.NoError(t, base.Start(context.Background()), "Start must resolve despite hook failure")
	assert.Equal(t, StateUnstarted, base.State(), "failed start leaves state unchanged")

	errs := recorder.errorEntries()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "OnStart")
	assert.Equal(t, "serial", errs[0].Attrs["module"])
}

func TestStartSwallowsHookPanic(t *testing.T) {
	logger, recorder := newTestLogger("serial")

	base := NewBase(testManifest("serial", KindInput), nil, logger, Hooks{
		OnStart: func(context.Context) error { panic("boom") },
	})

	require.NotPanics(t, func() {
		require.NoError(t, base.Start(context.Background()))
	})

	errs := recorder.errorEntries()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "panicked")
}

func TestHandleEventSwallowsHookError(t *testing.T) {
	logger, recorder := newTestLogger("dmx")

	base := NewBase(testManifest("dmx", KindOutput), nil, logger, Hooks{
		OnHandleEvent: func(Event) error { return errors.New("frame write failed") },
	})

	assert.NotPanics(t, func() {
		base.HandleEvent(Event{Mode: ModeTrigger})
	})

	errs := recorder.errorEntries()
	require.NotEmpty(t, errs)
	assert.Equal(t, "OnHandleEvent", errs[0].Attrs["hook"])
}

func TestSetModeValidation(t *testing.T) {
	logger, recorder := newTestLogger("clock")
	base := NewBase(testManifest("clock", KindInput), nil, logger, Hooks{})

	assert.Equal(t, ModeTrigger, base.Mode())

	base.SetMode(ModeStreaming)
	assert.Equal(t, ModeStreaming, base.Mode())

	base.SetMode(Mode("pulse"))
	assert.Equal(t, ModeStreaming, base.Mode(), "invalid mode is rejected")

	var warned bool
	for _, rec := range recorder.entries() {
		if rec.Message == "Ignoring invalid mode" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestInstanceIDsAreUnique(t *testing.T) {
	logger, _ := newTestLogger("clock")
	a := NewBase(testManifest("clock", KindInput), nil, logger, Hooks{})
	b := NewBase(testManifest("clock", KindInput), nil, logger, Hooks{})

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestEventWithModeCopiesData(t *testing.T) {
	ev := Event{Data: map[string]any{"foo": "bar"}}
	tagged := ev.WithMode(ModeTrigger)

	assert.Equal(t, ModeTrigger, tagged.Mode)
	assert.Equal(t, "bar", tagged.Data["foo"])

	tagged.Data["foo"] = "mutated"
	assert.Equal(t, "bar", ev.Data["foo"], "delivery copy must not alias the source event")
}

func TestSetConfigRunsConfigureHook(t *testing.T) {
	logger, _ := newTestLogger("clock")

	var applied Config
	base := NewBase(testManifest("clock", KindInput), nil, logger, Hooks{
		OnConfigure: func(cfg Config) error { applied = cfg; return nil },
	})

	next := Config{"interval": 250}
	base.SetConfig(next)
	assert.Equal(t, next, applied)

	// The hook receives a copy; mutating it must not touch the instance
	applied["interval"] = 1
	assert.Equal(t, Config{"interval": 250}, base.Config())
}

func TestSetConfigSwallowsConfigureHookError(t *testing.T) {
	logger, recorder := newTestLogger("clock")
	base := NewBase(testManifest("clock", KindInput), nil, logger, Hooks{
		OnConfigure: func(Config) error { return errors.New("socket rebind failed") },
	})

	base.SetConfig(Config{"addr": ":0"})

	// The stored config is replaced even when the hook fails
	assert.Equal(t, Config{"addr": ":0"}, base.Config())

	errs := recorder.errorEntries()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "OnConfigure")
}
