// Package panel is the orchestrating service of the control panel
// runtime. It owns the module registry, the persisted interaction store,
// the live instance list, and the router, and exposes them over an HTTP
// API with WebSocket change notifications.
package panel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/stagelink/config"
	"github.com/c360/stagelink/errors"
	"github.com/c360/stagelink/interaction"
	"github.com/c360/stagelink/metric"
	"github.com/c360/stagelink/module"
	"github.com/c360/stagelink/router"
)

const defaultStopTimeout = 5 * time.Second

// Service wires the registry, store, loader, router, and live instances
// together and serializes all mutations of that shared state.
type Service struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metric.MetricsRegistry

	registry *module.Registry
	deps     module.Deps
	store    *interaction.Store
	loader   *interaction.Loader
	router   *router.Router
	hub      *Hub

	// mu serializes every mutation of instances and the store. Reads of
	// router state go through the router's own lock.
	mu        sync.Mutex
	instances []module.Instance

	server      *http.Server
	stopTimeout time.Duration
}

// New assembles a service from its collaborators. store may carry
// previously loaded interactions; Start materializes them.
func New(cfg *config.Config, reg *module.Registry, deps module.Deps, store *interaction.Store, metrics *metric.MetricsRegistry) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stopTimeout := defaultStopTimeout
	if cfg != nil && cfg.Panel.ShutdownTimeout > 0 {
		stopTimeout = cfg.Panel.ShutdownTimeout
	}

	s := &Service{
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		registry:    reg,
		deps:        deps,
		store:       store,
		loader:      interaction.NewLoader(reg, deps),
		router:      router.New(logger, metrics),
		hub:         NewHub(logger),
		stopTimeout: stopTimeout,
	}
	return s
}

// Router exposes the routing sink for tests and embedding callers.
func (s *Service) Router() *router.Router {
	return s.router
}

// Hub exposes the notification hub.
func (s *Service) Hub() *Hub {
	return s.hub
}

// Start loads persisted interactions, materializes and starts module
// instances, builds the routing table, and begins serving HTTP. It
// returns once the listener is installed; Run blocks until shutdown.
func (s *Service) Start(ctx context.Context) error {
	interactions, err := s.store.Load(ctx)
	if err != nil {
		// A malformed file must not take the panel down; start empty and
		// surface the failure through the API and logs.
		s.logger.Error("Failed to load interactions, starting empty", "error", err)
		interactions = nil
	}

	resolved, instances := s.loader.Materialize(interactions)
	s.store.SetAll(resolved)

	s.mu.Lock()
	s.instances = instances
	for _, inst := range instances {
		if in, ok := inst.(module.InputInstance); ok {
			in.AttachSink(s.router)
		}
		if err := inst.Start(ctx); err != nil {
			s.logger.Error("Instance refused to start", "module", inst.ModuleName(), "id", inst.ID(), "error", err)
		}
	}
	s.router.Rebuild(s.store.List(), s.instances)
	s.mu.Unlock()

	s.logger.Info("Panel service started",
		"panel", s.deps.PanelID,
		"interactions", s.store.Len(),
		"instances", len(instances),
	)
	return nil
}

// Run serves HTTP and pumps WebSocket notifications until the context is
// canceled, then shuts both down.
func (s *Service) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	addr := ":8080"
	if s.cfg != nil && s.cfg.Panel.HTTPAddr != "" {
		addr = s.cfg.Panel.HTTPAddr
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		s.logger.Info("HTTP server listening", "addr", addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
		defer cancel()
		s.hub.Close()
		return s.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	s.stopInstances()
	return err
}

// stopInstances stops every live instance with the configured timeout.
func (s *Service) stopInstances() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.instances {
		if err := inst.Stop(s.stopTimeout); err != nil {
			s.logger.Error("Instance refused to stop", "module", inst.ModuleName(), "id", inst.ID(), "error", err)
		}
	}
}

// findInstance returns the live instance with the given ID. Caller holds mu.
func (s *Service) findInstance(id string) module.Instance {
	for _, inst := range s.instances {
		if inst.ID() == id {
			return inst
		}
	}
	return nil
}

// AddInteraction materializes, starts, and wires a new interaction. The
// returned interaction carries the instance IDs assigned during
// materialization.
func (s *Service) AddInteraction(ctx context.Context, ia interaction.Interaction) (interaction.Interaction, error) {
	if !ia.Valid() {
		return interaction.Interaction{}, errors.WrapInvalid(
			fmt.Errorf("interaction must name both an input and an output module"),
			"Service", "AddInteraction", "validation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resolved, instances := s.loader.Materialize([]interaction.Interaction{ia})
	if len(resolved) == 0 {
		return interaction.Interaction{}, errors.WrapInvalid(
			fmt.Errorf("interaction could not be materialized"),
			"Service", "AddInteraction", "materialization")
	}
	added := resolved[0]

	for _, inst := range instances {
		if in, ok := inst.(module.InputInstance); ok {
			in.AttachSink(s.router)
		}
		if err := inst.Start(ctx); err != nil {
			s.logger.Error("Instance refused to start", "module", inst.ModuleName(), "id", inst.ID(), "error", err)
		}
		s.instances = append(s.instances, inst)
	}

	s.store.Add(added)
	s.router.AddInteraction(added, s.instances)
	s.notifyInteractionsChanged()

	if err := s.store.Save(ctx); err != nil {
		// The mutation stands in memory; persistence failure is reported
		return added, errors.Wrap(err, "Service", "AddInteraction", "persistence")
	}
	return added, nil
}

// RemoveInteraction removes a stored interaction, stops the instances it
// owned, and drops the matching connection. Removing an absent
// interaction is a no-op.
func (s *Service) RemoveInteraction(ctx context.Context, ia interaction.Interaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored interaction.Interaction
	found := false
	for _, candidate := range s.store.List() {
		if candidate.Equal(ia) {
			stored = candidate
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}

	s.store.Remove(stored)
	s.router.RemoveInteraction(stored)
	s.dropInstances(stored.Input.InstanceID, stored.Output.InstanceID)
	s.notifyInteractionsChanged()

	if err := s.store.Save(ctx); err != nil {
		return true, errors.Wrap(err, "Service", "RemoveInteraction", "persistence")
	}
	return true, nil
}

// UpdateInteraction replaces one stored interaction with another as a
// remove followed by an add. When the replacement cannot be materialized
// the removal stands; there is no rollback.
func (s *Service) UpdateInteraction(ctx context.Context, old, updated interaction.Interaction) (interaction.Interaction, error) {
	if !updated.Valid() {
		return interaction.Interaction{}, errors.WrapInvalid(
			fmt.Errorf("replacement must name both an input and an output module"),
			"Service", "UpdateInteraction", "validation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var stored interaction.Interaction
	found := false
	for _, candidate := range s.store.List() {
		if candidate.Equal(old) {
			stored = candidate
			found = true
			break
		}
	}
	if !found {
		return interaction.Interaction{}, errors.WrapInvalid(errors.ErrNoSuchInstance,
			"Service", "UpdateInteraction", "lookup")
	}

	s.router.RemoveInteraction(stored)
	s.dropInstances(stored.Input.InstanceID, stored.Output.InstanceID)

	resolved, instances := s.loader.Materialize([]interaction.Interaction{updated})
	replacement := updated
	if len(resolved) > 0 {
		replacement = resolved[0]
	}

	for _, inst := range instances {
		if in, ok := inst.(module.InputInstance); ok {
			in.AttachSink(s.router)
		}
		if err := inst.Start(ctx); err != nil {
			s.logger.Error("Instance refused to start", "module", inst.ModuleName(), "id", inst.ID(), "error", err)
		}
		s.instances = append(s.instances, inst)
	}

	s.store.Replace(stored, replacement)
	s.router.AddInteraction(replacement, s.instances)
	s.notifyInteractionsChanged()

	if err := s.store.Save(ctx); err != nil {
		return replacement, errors.Wrap(err, "Service", "UpdateInteraction", "persistence")
	}
	return replacement, nil
}

// dropInstances stops and removes the live instances with the given IDs.
// Caller holds mu.
func (s *Service) dropInstances(ids ...string) {
	keep := s.instances[:0]
	for _, inst := range s.instances {
		dropped := false
		for _, id := range ids {
			if id != "" && inst.ID() == id {
				dropped = true
				break
			}
		}
		if dropped {
			if err := inst.Stop(s.stopTimeout); err != nil {
				s.logger.Error("Instance refused to stop", "module", inst.ModuleName(), "id", inst.ID(), "error", err)
			}
			continue
		}
		keep = append(keep, inst)
	}
	s.instances = keep
}

// SetModuleConfig replaces the configuration of a live instance and of
// every stored interaction side that references it, then rebuilds the
// routing table. The instance is flagged locked for the duration so
// panel clients can grey it out.
func (s *Service) SetModuleConfig(ctx context.Context, id string, cfg module.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst := s.findInstance(id)
	if inst == nil {
		return errors.WrapInvalid(errors.ErrNoSuchInstance, "Service", "SetModuleConfig", "lookup")
	}

	inst.Lock()
	s.hub.Broadcast(Notification{Type: NotifyModuleLocked, Payload: map[string]any{"id": id}})
	defer func() {
		inst.Unlock()
		s.hub.Broadcast(Notification{Type: NotifyModuleUnlocked, Payload: map[string]any{"id": id}})
	}()

	inst.SetConfig(cfg)

	for _, stored := range s.store.List() {
		changed := stored
		touch := false
		if changed.Input.InstanceID == id {
			changed.Input.Config = cfg.Clone()
			touch = true
		}
		if changed.Output.InstanceID == id {
			changed.Output.Config = cfg.Clone()
			touch = true
		}
		if touch {
			s.store.Replace(stored, changed)
		}
	}

	s.router.Rebuild(s.store.List(), s.instances)
	s.hub.Broadcast(Notification{
		Type:    NotifyModuleConfig,
		Payload: map[string]any{"id": id, "config": cfg},
	})

	if err := s.store.Save(ctx); err != nil {
		return errors.Wrap(err, "Service", "SetModuleConfig", "persistence")
	}
	return nil
}

// SetModuleMode switches a live instance between trigger and streaming
// delivery.
func (s *Service) SetModuleMode(id string, mode module.Mode) error {
	if !mode.Valid() {
		return errors.WrapInvalid(
			fmt.Errorf("mode '%s' is not a known delivery mode", mode),
			"Service", "SetModuleMode", "validation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inst := s.findInstance(id)
	if inst == nil {
		return errors.WrapInvalid(errors.ErrNoSuchInstance, "Service", "SetModuleMode", "lookup")
	}

	inst.Lock()
	s.hub.Broadcast(Notification{Type: NotifyModuleLocked, Payload: map[string]any{"id": id}})
	inst.SetMode(mode)
	inst.Unlock()
	s.hub.Broadcast(Notification{Type: NotifyModuleUnlocked, Payload: map[string]any{"id": id}})

	s.hub.Broadcast(Notification{
		Type:    NotifyModuleMode,
		Payload: map[string]any{"id": id, "mode": mode},
	})
	return nil
}

func (s *Service) notifyInteractionsChanged() {
	s.hub.Broadcast(Notification{
		Type:    NotifyInteractionsChanged,
		Payload: map[string]any{"count": s.store.Len()},
	})
}

// ModuleStatus is the API projection of one live instance.
type ModuleStatus struct {
	ID     string         `json:"id"`
	Module string         `json:"module"`
	Kind   module.Kind    `json:"kind"`
	State  string         `json:"state"`
	Mode   module.Mode    `json:"mode"`
	Locked bool           `json:"locked"`
	Config module.Config  `json:"config,omitempty"`
	Fields []module.Field `json:"fields,omitempty"`
}

// ConnectionInfo is the API projection of one resolved connection.
type ConnectionInfo struct {
	InputID    string `json:"input_id"`
	InputName  string `json:"input_name"`
	OutputID   string `json:"output_id"`
	OutputName string `json:"output_name"`
}

// Snapshot is the full panel state pushed to newly connected clients and
// returned by the status endpoint.
type Snapshot struct {
	PanelID      string                    `json:"panel_id"`
	Available    []module.Info             `json:"available"`
	Modules      []ModuleStatus            `json:"modules"`
	Interactions []interaction.Interaction `json:"interactions"`
	Connections  []ConnectionInfo          `json:"connections"`
}

// ModuleStatuses projects the live instance list for the API.
func (s *Service) ModuleStatuses() []ModuleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moduleStatusesLocked()
}

func (s *Service) moduleStatusesLocked() []ModuleStatus {
	statuses := make([]ModuleStatus, 0, len(s.instances))
	for _, inst := range s.instances {
		m := inst.Manifest()
		statuses = append(statuses, ModuleStatus{
			ID:     inst.ID(),
			Module: inst.ModuleName(),
			Kind:   m.Kind,
			State:  inst.State().String(),
			Mode:   inst.Mode(),
			Locked: inst.IsLocked(),
			Config: inst.Config(),
			Fields: m.Fields,
		})
	}
	return statuses
}

// ConnectionInfos projects the live routing table for the API.
func (s *Service) ConnectionInfos() []ConnectionInfo {
	conns := s.router.Connections()
	infos := make([]ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		infos = append(infos, ConnectionInfo{
			InputID:    c.Input.ID(),
			InputName:  c.Input.ModuleName(),
			OutputID:   c.Output.ID(),
			OutputName: c.Output.ModuleName(),
		})
	}
	return infos
}

// CurrentSnapshot assembles the full panel state.
func (s *Service) CurrentSnapshot() Snapshot {
	s.mu.Lock()
	modules := s.moduleStatusesLocked()
	s.mu.Unlock()

	return Snapshot{
		PanelID:      s.deps.PanelID,
		Available:    s.registry.Available(),
		Modules:      modules,
		Interactions: s.store.List(),
		Connections:  s.ConnectionInfos(),
	}
}
