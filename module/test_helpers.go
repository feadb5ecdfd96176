package module

import (
	"context"
	"log/slog"
	"sync"
)

// recordedLog is a captured slog record, flattened for assertions
type recordedLog struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// logRecorder is a slog.Handler that captures records for tests
type logRecorder struct {
	mu      sync.Mutex
	records []recordedLog
}

func newLogRecorder() *logRecorder {
	return &logRecorder{}
}

func (r *logRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *logRecorder) Handle(_ context.Context, rec slog.Record) error {
	entry := recordedLog{
		Level:   rec.Level,
		Message: rec.Message,
		Attrs:   make(map[string]any),
	}
	rec.Attrs(func(a slog.Attr) bool {
		entry.Attrs[a.Key] = a.Value.Any()
		return true
	})

	r.mu.Lock()
	r.records = append(r.records, entry)
	r.mu.Unlock()
	return nil
}

func (r *logRecorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *logRecorder) WithGroup(string) slog.Handler      { return r }

func (r *logRecorder) entries() []recordedLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedLog, len(r.records))
	copy(out, r.records)
	return out
}

func (r *logRecorder) errorEntries() []recordedLog {
	var out []recordedLog
	for _, rec := range r.entries() {
		if rec.Level == slog.LevelError {
			out = append(out, rec)
		}
	}
	return out
}

// newTestLogger builds a module logger backed by a recorder, no NATS
func newTestLogger(moduleName string) (*Logger, *logRecorder) {
	recorder := newLogRecorder()
	return NewLogger(moduleName, "test-panel", nil, slog.New(recorder)), recorder
}

// testManifest builds a minimal valid manifest for tests
func testManifest(name string, kind Kind) Manifest {
	return Manifest{
		Name:    name,
		Kind:    kind,
		Version: "1.0.0",
		Fields: []Field{
			{Name: "id", Type: FieldNumber},
		},
	}
}
