// Package file provides an output module that appends routed events to
// a JSON lines file. Each line carries the delivery timestamp, the mode
// stamped by the router, and the event payload.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/c360/stagelink/errors"
	"github.com/c360/stagelink/module"
)

// TypeName is the registry key for this module type.
const TypeName = "file"

// Config holds the writer settings.
type Config struct {
	// Path of the JSON lines file. Parent directories are created.
	Path string `json:"path"`
	// StreamSample keeps every Nth streaming event; 0 keeps all.
	// Trigger events are always written.
	StreamSample int `json:"stream_sample,omitempty"`
}

// DefaultConfig returns the default writer configuration.
func DefaultConfig() Config {
	return Config{
		Path:         "events.jsonl",
		StreamSample: 0,
	}
}

// Manifest describes the file module for the registry and panel UI.
func Manifest() module.Manifest {
	return module.Manifest{
		Name:        TypeName,
		Kind:        module.KindOutput,
		Description: "Appends routed events to a JSON lines file",
		Version:     "1.0.0",
		Fields: []module.Field{
			{Name: "path", Type: module.FieldFilepath, Description: "Destination file", Default: "events.jsonl"},
			{Name: "stream_sample", Type: module.FieldNumber, Description: "Keep every Nth streaming event (0 keeps all)", Default: 0.0},
		},
	}
}

// line is the persisted form of one delivered event.
type line struct {
	Time time.Time      `json:"time"`
	Mode module.Mode    `json:"mode"`
	Data map[string]any `json:"data,omitempty"`
}

// Writer appends events behind a module.Output.
type Writer struct {
	*module.Output

	cfg Config

	mu         sync.Mutex
	f          *os.File
	streamSeen int
}

// New builds a writer instance from its per-interaction config.
func New(raw module.Config, deps module.Deps) (module.Instance, error) {
	cfg, err := parseConfig(raw)
	if err != nil {
		return nil, err
	}

	w := &Writer{cfg: cfg}
	w.Output = module.NewOutput(Manifest(), raw, deps.ModuleLogger(TypeName),
		module.Hooks{
			OnStart:     w.start,
			OnStop:      w.stop,
			OnConfigure: w.reconfigure,
		},
		module.OutputHooks{
			OnTriggerEvent:   w.writeTrigger,
			OnStreamingEvent: w.writeStreaming,
		},
	)
	return w, nil
}

// Register adds the file type to a module registry.
func Register(reg *module.Registry) error {
	return reg.Register(module.Registration{
		Name:     TypeName,
		Manifest: Manifest(),
		Factory:  New,
	})
}

func parseConfig(raw module.Config) (Config, error) {
	cfg := DefaultConfig()
	if len(raw) > 0 {
		data, err := json.Marshal(raw)
		if err != nil {
			return cfg, errors.WrapInvalid(err, "Writer", "parseConfig", "config encoding")
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.WrapInvalid(err, "Writer", "parseConfig", "config parsing")
		}
	}

	if cfg.Path == "" {
		return cfg, errors.WrapInvalid(
			fmt.Errorf("path is required"), "Writer", "parseConfig", "path validation")
	}
	if cfg.StreamSample < 0 {
		return cfg, errors.WrapInvalid(
			fmt.Errorf("stream_sample cannot be negative"), "Writer", "parseConfig", "sample validation")
	}
	return cfg, nil
}

func (w *Writer) start(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if dir := filepath.Dir(w.cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return errors.WrapTransient(err, "Writer", "start", "directory creation")
		}
	}

	f, err := os.OpenFile(w.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return errors.WrapTransient(err, "Writer", "start", "file open")
	}
	w.f = f
	return nil
}

// reconfigure applies a replacement config. An open file moves to the
// new path; the sampling counter restarts.
func (w *Writer) reconfigure(raw module.Config) error {
	cfg, err := parseConfig(raw)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	pathChanged := cfg.Path != w.cfg.Path
	w.cfg = cfg
	w.streamSeen = 0
	if w.f == nil || !pathChanged {
		return nil
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return errors.WrapTransient(err, "Writer", "reconfigure", "directory creation")
		}
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return errors.WrapTransient(err, "Writer", "reconfigure", "file open")
	}
	_ = w.f.Close()
	w.f = f
	return nil
}

func (w *Writer) stop(time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func (w *Writer) writeTrigger(ev module.Event) error {
	return w.append(ev)
}

// writeStreaming applies the sampling divisor before appending.
func (w *Writer) writeStreaming(ev module.Event) error {
	w.mu.Lock()
	keep := true
	if sample := w.cfg.StreamSample; sample > 1 {
		w.streamSeen++
		keep = w.streamSeen%sample == 1
	}
	w.mu.Unlock()
	if !keep {
		return nil
	}
	return w.append(ev)
}

func (w *Writer) append(ev module.Event) error {
	data, err := json.Marshal(line{
		Time: time.Now().UTC(),
		Mode: ev.Mode,
		Data: ev.Data,
	})
	if err != nil {
		return errors.WrapInvalid(err, "Writer", "append", "event encoding")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return errors.WrapTransient(
			fmt.Errorf("writer is not started"), "Writer", "append", "file check")
	}
	if _, err := w.f.Write(append(data, '\n')); err != nil {
		return errors.WrapTransient(err, "Writer", "append", "file write")
	}
	return nil
}
