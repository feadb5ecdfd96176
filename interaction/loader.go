package interaction

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/c360/stagelink/errors"
	"github.com/c360/stagelink/metric"
	"github.com/c360/stagelink/module"
)

// Loader materializes module instances from a persisted interaction list
// using the module registry.
type Loader struct {
	registry *module.Registry
	deps     module.Deps
	logger   *slog.Logger
}

// NewLoader creates a loader over the given registry and factory deps
func NewLoader(registry *module.Registry, deps module.Deps) *Loader {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		registry: registry,
		deps:     deps,
		logger:   logger,
	}
}

// LoadFile reads a persisted interaction file and materializes module
// instances for every resolvable side. A file that cannot be read or
// parsed fails the whole load; nothing is partially materialized in that
// case. Individually malformed interaction entries are skipped with a
// warning.
func (l *Loader) LoadFile(path string) ([]Interaction, []module.Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.WrapTransient(err, "Loader", "LoadFile", "file read")
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, nil, errors.WrapInvalid(err, "Loader", "LoadFile", "JSON parse")
	}

	interactions, instances := l.Materialize(file.Interactions)
	return interactions, instances, nil
}

// Materialize instantiates module objects for each interaction side.
// Sides resolve independently: an unknown input type does not prevent the
// output side from materializing, and a bad entry never aborts the rest
// of the list. Instances are returned flat, in declaration order, input
// before output within each interaction. The returned interaction list
// carries the instance IDs assigned during materialization so the router
// can join on them.
func (l *Loader) Materialize(interactions []Interaction) ([]Interaction, []module.Instance) {
	resolved := make([]Interaction, 0, len(interactions))
	instances := make([]module.Instance, 0, len(interactions)*2)

	for _, ia := range interactions {
		if inst := l.materializeSide(&ia.Input, "input"); inst != nil {
			instances = append(instances, inst)
		}
		if inst := l.materializeSide(&ia.Output, "output"); inst != nil {
			instances = append(instances, inst)
		}
		resolved = append(resolved, ia)
	}

	return resolved, instances
}

// materializeSide creates the instance for one side, assigning its ID back
// into the side. Returns nil when the side cannot be resolved.
func (l *Loader) materializeSide(side *Side, role string) module.Instance {
	if !side.Valid() {
		l.logger.Warn("Interaction entry missing "+role+" module, skipping side")
		return nil
	}

	inst, err := l.registry.Create(side.Module, side.Config, l.deps)
	if err != nil {
		l.logger.Warn("Unknown "+role+" module: "+side.Module, "error", err)
		return nil
	}

	side.InstanceID = inst.ID()

	if l.deps.Metrics != nil {
		if im, ok := inst.(interface {
			AttachMetrics(*metric.MetricsRegistry)
		}); ok {
			im.AttachMetrics(l.deps.Metrics)
		}
	}

	return inst
}
