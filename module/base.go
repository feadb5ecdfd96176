package module

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/stagelink/metric"
)

// Hooks holds the concrete behavior a module type plugs into the base
// contract. Any hook may be nil, in which case the corresponding operation
// is a no-op. Hook errors and panics are caught at the contract boundary,
// logged at error level with the hook name, and never propagated.
type Hooks struct {
	OnStart       func(ctx context.Context) error
	OnStop        func(timeout time.Duration) error
	OnHandleEvent func(ev Event) error
	// OnConfigure is invoked after SetConfig replaces the stored config,
	// so the concrete module can apply the new settings to its live
	// resources (timers, sockets, open files).
	OnConfigure func(cfg Config) error
}

// Base implements the shared half of the Instance contract. Concrete
// modules embed it (via Input or Output) and supply Hooks.
type Base struct {
	id       string
	manifest Manifest
	logger   *Logger
	hooks    Hooks
	metrics  *metric.MetricsRegistry // Optional; nil disables instrumentation

	mu     sync.RWMutex
	config Config

	locked atomic.Bool
	state  atomic.Int32 // State
	mode   atomic.Value // Mode
}

// NewBase creates the base half of a module instance. A fresh instance
// identifier is assigned; it is the primary join key interactions use to
// reference this instance.
func NewBase(manifest Manifest, cfg Config, logger *Logger, hooks Hooks) *Base {
	b := &Base{
		id:       uuid.NewString(),
		manifest: manifest,
		logger:   logger,
		hooks:    hooks,
		config:   cfg.Clone(),
	}
	b.state.Store(int32(StateUnstarted))
	b.mode.Store(ModeTrigger)
	return b
}

// ID returns the stable instance identifier
func (b *Base) ID() string {
	return b.id
}

// ModuleName returns the manifest-declared display name
func (b *Base) ModuleName() string {
	return b.manifest.Name
}

// Manifest returns the type-level metadata for this instance
func (b *Base) Manifest() Manifest {
	return b.manifest
}

// Config returns a copy of the instance configuration
func (b *Base) Config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config.Clone()
}

// SetConfig replaces the instance configuration wholesale and gives the
// concrete module a chance to apply it through the OnConfigure hook. A
// hook failure leaves the stored config replaced and is logged, not
// returned.
func (b *Base) SetConfig(cfg Config) {
	b.mu.Lock()
	b.config = cfg.Clone()
	b.mu.Unlock()
	b.runHook("OnConfigure", func() error {
		if b.hooks.OnConfigure == nil {
			return nil
		}
		return b.hooks.OnConfigure(cfg.Clone())
	})
	b.logger.Info("Config replaced")
}

// Lock marks the instance as mid-mutation. This is an observable status
// flag for API consumers, not a memory guard.
func (b *Base) Lock() {
	if !b.locked.Swap(true) {
		b.logger.Info("Module locked")
	}
}

// Unlock clears the mid-mutation flag
func (b *Base) Unlock() {
	if b.locked.Swap(false) {
		b.logger.Info("Module unlocked")
	}
}

// IsLocked reports the advisory lock flag
func (b *Base) IsLocked() bool {
	return b.locked.Load()
}

// Mode returns the current delivery mode
func (b *Base) Mode() Mode {
	mode, _ := b.mode.Load().(Mode)
	return mode
}

// SetMode switches the delivery mode. Invalid modes are rejected with a
// warning; routing keeps the previous mode.
func (b *Base) SetMode(mode Mode) {
	if !mode.Valid() {
		b.logger.Warn("Ignoring invalid mode", "mode", string(mode))
		return
	}
	b.mode.Store(mode)
	b.logger.Info("Mode changed", "mode", string(mode))
}

// State returns the current lifecycle state
func (b *Base) State() State {
	return State(b.state.Load())
}

// Logger returns the instance's log sink
func (b *Base) Logger() *Logger {
	return b.logger
}

// AttachMetrics enables lifecycle instrumentation for this instance
func (b *Base) AttachMetrics(m *metric.MetricsRegistry) {
	b.metrics = m
}

// Start transitions the instance to Started. Calling Start on an already
// started instance is a no-op; the hook never sees the repeat call. A hook
// failure leaves the state unchanged and is logged, not returned.
func (b *Base) Start(ctx context.Context) error {
	if b.State() == StateStarted {
		return nil
	}
	if b.runHook("OnStart", func() error {
		if b.hooks.OnStart == nil {
			return nil
		}
		return b.hooks.OnStart(ctx)
	}) {
		b.state.Store(int32(StateStarted))
		if b.metrics != nil {
			b.metrics.CoreMetrics().ModuleStarts.WithLabelValues(b.manifest.Name).Inc()
		}
	}
	return nil
}

// Stop transitions the instance to Stopped with the same best-effort
// policy as Start. The timeout is advisory for the concrete hook.
func (b *Base) Stop(timeout time.Duration) error {
	if b.State() == StateStopped {
		return nil
	}
	if b.runHook("OnStop", func() error {
		if b.hooks.OnStop == nil {
			return nil
		}
		return b.hooks.OnStop(timeout)
	}) {
		b.state.Store(int32(StateStopped))
		if b.metrics != nil {
			b.metrics.CoreMetrics().ModuleStops.WithLabelValues(b.manifest.Name).Inc()
		}
	}
	return nil
}

// HandleEvent delivers an event to the OnHandleEvent hook
func (b *Base) HandleEvent(ev Event) {
	b.runHook("OnHandleEvent", func() error {
		if b.hooks.OnHandleEvent == nil {
			return nil
		}
		return b.hooks.OnHandleEvent(ev)
	})
}

// runHook executes a hook under the catch-log-and-continue policy and
// reports whether it completed cleanly. Panics are treated as hook errors.
func (b *Base) runHook(name string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			b.logger.Error(fmt.Sprintf("Hook %s panicked", name),
				fmt.Errorf("panic: %v", r), "hook", name)
			b.countHookError(name)
		}
	}()

	if err := fn(); err != nil {
		b.logger.Error(fmt.Sprintf("Hook %s failed", name), err, "hook", name)
		b.countHookError(name)
		return false
	}
	return true
}

func (b *Base) countHookError(hook string) {
	if b.metrics != nil {
		b.metrics.CoreMetrics().HookErrors.WithLabelValues(b.manifest.Name, hook).Inc()
	}
}
