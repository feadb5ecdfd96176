package module

// OutputHooks holds the consumer-side behavior of a concrete output
// module. HandleEvent dispatches on the event's mode tag, not on the
// output's own mode; outputs are mode-agnostic consumers.
type OutputHooks struct {
	OnTriggerEvent   func(ev Event) error
	OnStreamingEvent func(ev Event) error
}

// Output implements the consumer refinement of the module contract
type Output struct {
	*Base
	hooks OutputHooks
}

var _ OutputInstance = (*Output)(nil)

// NewOutput creates an output module instance from base and output hooks
func NewOutput(manifest Manifest, cfg Config, logger *Logger, base Hooks, hooks OutputHooks) *Output {
	out := &Output{hooks: hooks}

	if base.OnHandleEvent == nil {
		base.OnHandleEvent = out.dispatch
	}
	out.Base = NewBase(manifest, cfg, logger, base)
	return out
}

// dispatch invokes the hook matching the event's mode tag. Events with an
// unknown mode are dropped with a warning; a misrouted event must never
// take the output down.
func (out *Output) dispatch(ev Event) error {
	switch ev.Mode {
	case ModeTrigger:
		if out.hooks.OnTriggerEvent == nil {
			return nil
		}
		return out.hooks.OnTriggerEvent(ev)
	case ModeStreaming:
		if out.hooks.OnStreamingEvent == nil {
			return nil
		}
		return out.hooks.OnStreamingEvent(ev)
	default:
		out.Logger().Warn("Dropping event with unknown mode", "mode", string(ev.Mode))
		return nil
	}
}
