package interaction

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/c360/stagelink/errors"
	"github.com/c360/stagelink/natsclient"
)

// kvKey is the single key the interaction list lives under in the KV bucket
const kvKey = "interactions"

// Store owns the persisted interaction list. The in-memory list is
// encapsulated: callers mutate it through Add/Remove/Replace/SetAll and
// read it through List, never through a shared slice. Persistence is a
// JSON file, mirrored to a JetStream KV bucket when NATS is available so
// other panel observers can watch for changes.
type Store struct {
	mu           sync.RWMutex
	interactions []Interaction

	path   string
	kv     *natsclient.KVStore // Optional; nil means file-only persistence
	logger *slog.Logger
}

// NewStore creates a store persisting to the given file path. kv may be
// nil for file-only operation.
func NewStore(path string, kv *natsclient.KVStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		kv:     kv,
		logger: logger,
	}
}

// Load reads the persisted interaction list, preferring the KV bucket and
// falling back to the file. A missing file yields an empty list; a
// malformed file fails the load and leaves the previous in-memory list
// untouched.
func (s *Store) Load(ctx context.Context) ([]Interaction, error) {
	if s.kv != nil {
		if entry, err := s.kv.Get(ctx, kvKey); err == nil {
			return s.loadBytes(entry.Value, "kv")
		}
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.interactions = nil
			s.mu.Unlock()
			return nil, nil
		}
		return nil, errors.WrapTransient(err, "Store", "Load", "file read")
	}

	return s.loadBytes(data, "file")
}

func (s *Store) loadBytes(data []byte, source string) ([]Interaction, error) {
	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.WrapInvalid(err, "Store", "Load", "JSON parse from "+source)
	}

	s.mu.Lock()
	s.interactions = append([]Interaction(nil), file.Interactions...)
	out := append([]Interaction(nil), s.interactions...)
	s.mu.Unlock()

	return out, nil
}

// Save persists the current in-memory list to the file and, best-effort,
// to the KV bucket. A KV failure is logged but does not fail the save.
func (s *Store) Save(ctx context.Context) error {
	s.mu.RLock()
	file := File{Interactions: append([]Interaction(nil), s.interactions...)}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errors.WrapInvalid(err, "Store", "Save", "JSON encode")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.WrapTransient(err, "Store", "Save", "directory creation")
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.WrapTransient(err, "Store", "Save", "file write")
	}

	if s.kv != nil {
		if err := s.kv.Put(ctx, kvKey, data); err != nil {
			s.logger.Warn("Failed to mirror interactions to KV", "error", err)
		}
	}

	return nil
}

// List returns a copy of the current interaction list
func (s *Store) List() []Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Interaction(nil), s.interactions...)
}

// Len returns the number of interactions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.interactions)
}

// SetAll replaces the whole list
func (s *Store) SetAll(interactions []Interaction) {
	s.mu.Lock()
	s.interactions = append([]Interaction(nil), interactions...)
	s.mu.Unlock()
}

// Add appends an interaction to the list
func (s *Store) Add(ia Interaction) {
	s.mu.Lock()
	s.interactions = append(s.interactions, ia)
	s.mu.Unlock()
}

// Remove deletes the first interaction matching ia and reports whether
// anything was removed. Removing a non-existent interaction is a no-op.
func (s *Store) Remove(ia Interaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.interactions {
		if existing.Equal(ia) {
			s.interactions = append(s.interactions[:i], s.interactions[i+1:]...)
			return true
		}
	}
	return false
}

// Replace swaps the first interaction matching old for new, preserving
// position, and reports whether a replacement happened.
func (s *Store) Replace(old, new Interaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.interactions {
		if existing.Equal(old) {
			s.interactions[i] = new
			return true
		}
	}
	return false
}
