package module

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/c360/stagelink/errors"
	"github.com/c360/stagelink/metric"
)

// Deps holds the runtime dependencies handed to module factories.
// Factories do no I/O; all I/O belongs in the module's Start hook.
type Deps struct {
	PanelID string
	NATS    *nats.Conn              // May be nil; module logs then stay local
	Metrics *metric.MetricsRegistry // May be nil; modules skip metric registration
	Logger  *slog.Logger
}

// ModuleLogger builds the log sink for an instance of the named module type
func (d Deps) ModuleLogger(moduleName string) *Logger {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return NewLogger(moduleName, d.PanelID, d.NATS, logger)
}

// Factory creates a module instance from its per-interaction configuration
// and the shared runtime dependencies.
type Factory func(cfg Config, deps Deps) (Instance, error)

// Registration binds a module type name to its manifest and factory
type Registration struct {
	Name     string  // Type name used in persisted interactions
	Manifest Manifest
	Factory  Factory
}

// Info pairs a type name with its manifest for UI consumption
type Info struct {
	Name     string   `json:"name"`
	Manifest Manifest `json:"manifest"`
}

// Registry maps module type names to constructible factories and their
// manifests. Registration is explicit (a static table at startup), not
// discovered by convention.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]*Registration
	order     []string // Registration order, preserved for enumeration
}

// NewRegistry creates a new empty module registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]*Registration),
	}
}

// Register adds a module type to the registry.
// Returns an error for duplicate or structurally invalid registrations.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "type name validation")
	}
	if reg.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "factory validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[reg.Name]; exists {
		msg := fmt.Errorf("module type '%s' is already registered", reg.Name)
		return errors.WrapInvalid(msg, "Registry", "Register", "duplicate type check")
	}

	stored := reg
	r.factories[reg.Name] = &stored
	r.order = append(r.order, reg.Name)
	return nil
}

// Lookup returns the registration for a type name. An unknown type yields
// (nil, false), never an error; unknown types are an editing-time state,
// not a failure.
func (r *Registry) Lookup(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.factories[name]
	return reg, ok
}

// Available lists every registered module type with its manifest, in
// registration order. A registration with a malformed manifest is listed
// with an empty manifest; enumeration never fails because one type is
// misdeclared.
func (r *Registry) Available() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		reg := r.factories[name]
		manifest := reg.Manifest
		if !manifest.Valid() {
			manifest = Manifest{}
		}
		infos = append(infos, Info{Name: name, Manifest: manifest})
	}
	return infos
}

// Create materializes an instance of the named module type with the given
// per-interaction config.
func (r *Registry) Create(typeName string, cfg Config, deps Deps) (Instance, error) {
	reg, ok := r.Lookup(typeName)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrUnknownModule, typeName),
			"Registry", "Create", "factory lookup")
	}

	inst, err := reg.Factory(cfg, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "Create", "factory execution")
	}
	return inst, nil
}
