package file

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/stagelink/module"
)

func startWriter(t *testing.T, cfg module.Config) (*Writer, string) {
	t.Helper()
	if cfg == nil {
		cfg = module.Config{}
	}
	path, _ := cfg["path"].(string)
	if path == "" {
		path = filepath.Join(t.TempDir(), "events.jsonl")
		cfg["path"] = path
	}

	inst, err := New(cfg, module.Deps{PanelID: "test"})
	require.NoError(t, err)
	w, ok := inst.(*Writer)
	require.True(t, ok)

	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop(time.Second) })
	return w, path
}

func readLines(t *testing.T, path string) []line {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var lines []line
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var l line
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &l))
		lines = append(lines, l)
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestRegister(t *testing.T) {
	reg := module.NewRegistry()
	require.NoError(t, Register(reg))

	registration, ok := reg.Lookup(TypeName)
	require.True(t, ok)
	assert.Equal(t, module.KindOutput, registration.Manifest.Kind)
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "events.jsonl", cfg.Path)

	_, err = parseConfig(module.Config{"path": ""})
	assert.Error(t, err)

	_, err = parseConfig(module.Config{"path": "x.jsonl", "stream_sample": -1})
	assert.Error(t, err)
}

func TestAppendsTriggerEvents(t *testing.T) {
	w, path := startWriter(t, nil)

	w.HandleEvent(module.Event{Mode: module.ModeTrigger, Data: map[string]any{"tick": float64(1)}})
	w.HandleEvent(module.Event{Mode: module.ModeTrigger, Data: map[string]any{"tick": float64(2)}})
	require.NoError(t, w.Stop(time.Second))

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, module.ModeTrigger, lines[0].Mode)
	assert.Equal(t, float64(1), lines[0].Data["tick"])
	assert.Equal(t, float64(2), lines[1].Data["tick"])
	assert.False(t, lines[0].Time.IsZero())
}

func TestStreamSampling(t *testing.T) {
	w, path := startWriter(t, module.Config{"stream_sample": 5})

	for i := 0; i < 10; i++ {
		w.HandleEvent(module.Event{Mode: module.ModeStreaming, Data: map[string]any{"value": float64(i)}})
	}
	require.NoError(t, w.Stop(time.Second))

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, float64(0), lines[0].Data["value"])
	assert.Equal(t, float64(5), lines[1].Data["value"])
}

func TestCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "events.jsonl")
	w, _ := startWriter(t, module.Config{"path": path})

	w.HandleEvent(module.Event{Mode: module.ModeTrigger, Data: map[string]any{"x": float64(1)}})
	require.NoError(t, w.Stop(time.Second))

	require.Len(t, readLines(t, path), 1)
}

func TestAppendsAcrossRestart(t *testing.T) {
	w, path := startWriter(t, nil)

	w.HandleEvent(module.Event{Mode: module.ModeTrigger, Data: map[string]any{"run": float64(1)}})
	require.NoError(t, w.Stop(time.Second))

	inst, err := New(module.Config{"path": path}, module.Deps{PanelID: "test"})
	require.NoError(t, err)
	require.NoError(t, inst.Start(context.Background()))
	inst.HandleEvent(module.Event{Mode: module.ModeTrigger, Data: map[string]any{"run": float64(2)}})
	require.NoError(t, inst.Stop(time.Second))

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, float64(1), lines[0].Data["run"])
	assert.Equal(t, float64(2), lines[1].Data["run"])
}

func TestEventBeforeStartIsSwallowed(t *testing.T) {
	inst, err := New(module.Config{"path": filepath.Join(t.TempDir(), "x.jsonl")}, module.Deps{PanelID: "test"})
	require.NoError(t, err)

	// The append hook fails without an open file; the lifecycle swallows it
	inst.HandleEvent(module.Event{Mode: module.ModeTrigger, Data: map[string]any{"x": 1}})
}

func TestReconfigureMovesFile(t *testing.T) {
	w, oldPath := startWriter(t, nil)

	w.HandleEvent(module.Event{Mode: module.ModeTrigger, Data: map[string]any{"seq": float64(1)}})

	newPath := filepath.Join(t.TempDir(), "moved.jsonl")
	w.SetConfig(module.Config{"path": newPath})

	w.HandleEvent(module.Event{Mode: module.ModeTrigger, Data: map[string]any{"seq": float64(2)}})

	require.Len(t, readLines(t, oldPath), 1)
	moved := readLines(t, newPath)
	require.Len(t, moved, 1)
	assert.Equal(t, float64(2), moved[0].Data["seq"])
}
