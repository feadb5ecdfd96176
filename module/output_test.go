package module

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOutput(hooks OutputHooks) (*Output, *logRecorder) {
	logger, recorder := newTestLogger("file")
	return NewOutput(testManifest("file", KindOutput), nil, logger, Hooks{}, hooks), recorder
}

func TestOutputDispatchesOnEventMode(t *testing.T) {
	var triggered, streamed []Event
	out, _ := newTestOutput(OutputHooks{
		OnTriggerEvent:   func(ev Event) error { triggered = append(triggered, ev); return nil },
		OnStreamingEvent: func(ev Event) error { streamed = append(streamed, ev); return nil },
	})

	out.HandleEvent(Event{Mode: ModeTrigger, Data: map[string]any{"cue": 1}})
	out.HandleEvent(Event{Mode: ModeStreaming, Data: map[string]any{"value": 0.5}})

	require.Len(t, triggered, 1)
	require.Len(t, streamed, 1)
	assert.Equal(t, 1, triggered[0].Data["cue"])
	assert.Equal(t, 0.5, streamed[0].Data["value"])
}

func TestOutputOwnModeDoesNotAffectDispatch(t *testing.T) {
	var triggered int
	out, _ := newTestOutput(OutputHooks{
		OnTriggerEvent: func(Event) error { triggered++; return nil },
	})

	// Outputs accept SetMode for symmetry, but only the event tag matters
	out.SetMode(ModeStreaming)
	out.HandleEvent(Event{Mode: ModeTrigger})

	assert.Equal(t, 1, triggered)
}

func TestOutputDropsUnknownMode(t *testing.T) {
	var triggered, streamed int
	out, recorder := newTestOutput(OutputHooks{
		OnTriggerEvent:   func(Event) error { triggered++; return nil },
		OnStreamingEvent: func(Event) error { streamed++; return nil },
	})

	out.HandleEvent(Event{Mode: Mode("pulse")})

	assert.Zero(t, triggered)
	assert.Zero(t, streamed)

	var warned bool
	for _, rec := range recorder.entries() {
		if rec.Message == "Dropping event with unknown mode" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestOutputHookErrorIsIsolated(t *testing.T) {
	out, recorder := newTestOutput(OutputHooks{
		OnTriggerEvent: func(Event) error { return errors.New("disk full") },
	})

	assert.NotPanics(t, func() {
		out.HandleEvent(Event{Mode: ModeTrigger})
	})
	require.NotEmpty(t, recorder.errorEntries())
}
