// Package router maintains the live adjacency from input module instances
// to output module instances and dispatches emitted events along it.
//
// Connections are derived state: they are rebuilt from the persisted
// interaction list plus the live instance set whenever either changes,
// and the rebuilt list replaces the previous one atomically. The router
// never raises for malformed or unresolvable input; every such condition
// degrades to "no connection", which keeps the panel usable while
// interactions are being edited live.
package router

import (
	"log/slog"
	"sync"

	"github.com/c360/stagelink/interaction"
	"github.com/c360/stagelink/metric"
	"github.com/c360/stagelink/module"
)

// Connection is a resolved pairing of live input/output instances derived
// from one interaction. Connections are never persisted.
type Connection struct {
	Input       module.InputInstance
	Output      module.OutputInstance
	Interaction interaction.Interaction
}

// Router holds the live connection list and routes emitted events.
// It implements module.EventSink.
type Router struct {
	mu     sync.RWMutex
	conns  []Connection
	logger *slog.Logger

	metrics *metric.MetricsRegistry
}

var _ module.EventSink = (*Router)(nil)

// New creates an empty router. metrics may be nil.
func New(logger *slog.Logger, metrics *metric.MetricsRegistry) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:  logger,
		metrics: metrics,
	}
}

// Rebuild recomputes the connection list from scratch. Each interaction
// resolves against the live instance set; entries that are malformed or
// fail to resolve are skipped silently. The new list replaces the old one
// atomically, so observers never see a partially rebuilt state.
func (r *Router) Rebuild(interactions []interaction.Interaction, live []module.Instance) {
	conns := make([]Connection, 0, len(interactions))
	for _, ia := range interactions {
		if conn, ok := resolve(ia, live); ok {
			conns = append(conns, conn)
		}
	}

	r.mu.Lock()
	r.conns = conns
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.CoreMetrics().RouterRebuilds.Inc()
		r.metrics.CoreMetrics().ConnectionsLive.Set(float64(len(conns)))
	}
	r.logger.Debug("Router rebuilt", "connections", len(conns), "interactions", len(interactions))
}

// AddInteraction resolves and appends exactly one connection. A malformed
// or unresolvable interaction is a no-op. Reports whether a connection was
// added.
func (r *Router) AddInteraction(ia interaction.Interaction, live []module.Instance) bool {
	conn, ok := resolve(ia, live)
	if !ok {
		return false
	}

	r.mu.Lock()
	r.conns = append(r.conns, conn)
	count := len(r.conns)
	r.mu.Unlock()

	r.updateLiveGauge(count)
	return true
}

// RemoveInteraction drops the connection(s) whose logical interaction
// matches. Removing a non-existent connection is a no-op, never an error.
func (r *Router) RemoveInteraction(ia interaction.Interaction) {
	r.mu.Lock()
	kept := r.conns[:0]
	for _, conn := range r.conns {
		if !conn.Interaction.Equal(ia) {
			kept = append(kept, conn)
		}
	}
	r.conns = kept
	count := len(r.conns)
	r.mu.Unlock()

	r.updateLiveGauge(count)
}

// UpdateInteraction is RemoveInteraction(old) followed by
// AddInteraction(new). When the new interaction fails to resolve the old
// connection stays removed and nothing is added; the caller owns keeping
// the interaction list and live instance set consistent, and a later full
// Rebuild reconciles.
func (r *Router) UpdateInteraction(old, new interaction.Interaction, live []module.Instance) bool {
	r.RemoveInteraction(old)
	return r.AddInteraction(new, live)
}

// RouteEvent delivers the event to every connection whose input is
// reference-identical to the emitting instance, in connection-list order.
// The delivered event is a copy tagged with the given mode. An input with
// no wired output is valid; the event is dropped silently.
func (r *Router) RouteEvent(input module.InputInstance, ev module.Event, mode module.Mode) {
	r.mu.RLock()
	conns := r.conns
	r.mu.RUnlock()

	if r.metrics != nil {
		r.metrics.CoreMetrics().EventsEmitted.WithLabelValues(input.ModuleName()).Inc()
	}

	delivered := 0
	for _, conn := range conns {
		if conn.Input != input {
			continue
		}
		conn.Output.HandleEvent(ev.WithMode(mode))
		delivered++
		if r.metrics != nil {
			r.metrics.CoreMetrics().EventsRouted.
				WithLabelValues(input.ModuleName(), conn.Output.ModuleName()).Inc()
		}
	}

	if delivered == 0 && r.metrics != nil {
		r.metrics.CoreMetrics().EventsDropped.Inc()
	}
}

// Connections returns a copy of the connection list for introspection
func (r *Router) Connections() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Connection(nil), r.conns...)
}

func (r *Router) updateLiveGauge(count int) {
	if r.metrics != nil {
		r.metrics.CoreMetrics().ConnectionsLive.Set(float64(count))
	}
}

// resolve maps one interaction onto live instances. Resolution succeeds
// only when both sides resolve; a half-resolved interaction yields no
// connection at all.
func resolve(ia interaction.Interaction, live []module.Instance) (Connection, bool) {
	if !ia.Valid() {
		return Connection{}, false
	}

	inputInst := resolveSide(ia.Input, live, module.KindInput)
	if inputInst == nil {
		return Connection{}, false
	}
	outputInst := resolveSide(ia.Output, live, module.KindOutput)
	if outputInst == nil {
		return Connection{}, false
	}

	input, ok := inputInst.(module.InputInstance)
	if !ok {
		return Connection{}, false
	}
	output, ok := outputInst.(module.OutputInstance)
	if !ok {
		return Connection{}, false
	}

	return Connection{Input: input, Output: output, Interaction: ia}, true
}

// resolveSide finds the live instance one interaction side references.
// The instance ID is the primary join key. Without one, candidates are
// matched by module name; a single name match wins outright, while
// multiple instances sharing a type name are disambiguated by structural
// config equality so events for one configured instance never reach its
// namesake.
func resolveSide(side interaction.Side, live []module.Instance, kind module.Kind) module.Instance {
	if side.InstanceID != "" {
		for _, inst := range live {
			if inst != nil && inst.ID() == side.InstanceID {
				return inst
			}
		}
		return nil
	}

	var candidates []module.Instance
	for _, inst := range live {
		if inst == nil {
			continue
		}
		if inst.ModuleName() != side.Module {
			continue
		}
		if inst.Manifest().Kind != kind {
			continue
		}
		candidates = append(candidates, inst)
	}

	switch len(candidates) {
	case 0:
		return nil
	case 1:
		return candidates[0]
	default:
		for _, inst := range candidates {
			if interaction.ConfigEqual(inst.Config(), side.Config) {
				return inst
			}
		}
		return nil
	}
}
