// Package clock provides a time-driven input module. In trigger mode it
// emits a discrete event per interval or at a configured time of day; in
// streaming mode it emits a continuous countdown value toward the next
// firing, throttled to a configurable rate.
package clock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/stagelink/errors"
	"github.com/c360/stagelink/module"
)

// TypeName is the registry key for this module type.
const TypeName = "clock"

// stopGrace bounds how long a reconfigure waits for the running loop.
const stopGrace = 2 * time.Second

// Config holds the clock settings.
type Config struct {
	// Interval between trigger events, e.g. "5s". Ignored when TimeOfDay
	// is set.
	Interval string `json:"interval,omitempty"`
	// TimeOfDay fires once daily at the given wall clock time ("15:04" or
	// "15:04:05").
	TimeOfDay string `json:"time_of_day,omitempty"`
	// StreamRate caps streaming emissions per second.
	StreamRate float64 `json:"stream_rate,omitempty"`
}

// DefaultConfig returns the default clock configuration.
func DefaultConfig() Config {
	return Config{
		Interval:   "1s",
		StreamRate: 10,
	}
}

// Manifest describes the clock module for the registry and the panel UI.
func Manifest() module.Manifest {
	return module.Manifest{
		Name:        TypeName,
		Kind:        module.KindInput,
		Description: "Emits events on an interval or at a time of day",
		Version:     "1.0.0",
		Fields: []module.Field{
			{Name: "interval", Type: module.FieldText, Description: "Interval between events (e.g. 5s)", Default: "1s"},
			{Name: "time_of_day", Type: module.FieldTime, Description: "Daily firing time (overrides interval)"},
			{Name: "stream_rate", Type: module.FieldNumber, Description: "Streaming emissions per second", Default: 10.0},
		},
	}
}

// Clock runs the emission loop behind a module.Input.
type Clock struct {
	*module.Input

	cfg     Config
	limiter *rate.Limiter

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	ticks  uint64
}

// New builds a clock instance from its per-interaction config.
func New(raw module.Config, deps module.Deps) (module.Instance, error) {
	cfg, err := parseConfig(raw)
	if err != nil {
		return nil, err
	}

	c := &Clock{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.StreamRate), 1),
	}

	c.Input = module.NewInput(Manifest(), raw, deps.ModuleLogger(TypeName),
		module.Hooks{
			OnStart:     c.start,
			OnStop:      c.stop,
			OnConfigure: c.reconfigure,
		},
		module.InputHooks{
			OnTriggerParameters: c.triggerParameters,
		},
	)
	return c, nil
}

// Register adds the clock type to a module registry.
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
			return cfg, errors.WrapInvalid(err, "Clock", "parseConfig", "config encoding")
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.WrapInvalid(err, "Clock", "parseConfig", "config parsing")
		}
	}

	if cfg.TimeOfDay != "" {
		if _, err := parseTimeOfDay(cfg.TimeOfDay); err != nil {
			return cfg, errors.WrapInvalid(err, "Clock", "parseConfig", "time_of_day validation")
		}
	} else {
		if _, err := time.ParseDuration(cfg.Interval); err != nil {
			return cfg, errors.WrapInvalid(err, "Clock", "parseConfig", "interval validation")
		}
	}
	if cfg.StreamRate <= 0 {
		cfg.StreamRate = DefaultConfig().StreamRate
	}
	return cfg, nil
}

func parseTimeOfDay(s string) (time.Time, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("time of day '%s' must be HH:MM or HH:MM:SS", s)
}

func (c *Clock) start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The loop outlives the Start call; it runs until Stop
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	done := make(chan struct{})
	c.done = done
	go c.run(runCtx, done)
	return nil
}

// reconfigure applies a replacement config. A running emission loop is
// restarted so the new schedule and rate take effect immediately.
func (c *Clock) reconfigure(raw module.Config) error {
	cfg, err := parseConfig(raw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	running := c.cancel != nil
	c.mu.Unlock()

	if running {
		if err := c.stop(stopGrace); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.cfg = cfg
	c.limiter = rate.NewLimiter(rate.Limit(cfg.StreamRate), 1)
	c.mu.Unlock()

	if running {
		return c.start(context.Background())
	}
	return nil
}

func (c *Clock) stop(timeout time.Duration) error {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("clock loop did not stop within %s", timeout)
	}
}

// run drives the emission loop. Trigger firings follow the configured
// schedule; streaming emissions are paced by the limiter, which the loop
// polls faster than the configured rate.
func (c *Clock) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	c.mu.Lock()
	cfg := c.cfg
	limiter := c.limiter
	c.mu.Unlock()

	streamTick := time.NewTicker(streamPollInterval(cfg.StreamRate))
	defer streamTick.Stop()

	fireAt := nextFiring(cfg, time.Now())
	trigger := time.NewTimer(time.Until(fireAt))
	defer trigger.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case now := <-trigger.C:
			if c.Mode() == module.ModeTrigger {
				c.mu.Lock()
				c.ticks++
				n := c.ticks
				c.mu.Unlock()
				c.EmitEvent(module.Event{Data: map[string]any{
					"time": now.Format(time.RFC3339Nano),
					"tick": n,
				}})
			}
			fireAt = nextFiring(cfg, now)
			trigger.Reset(time.Until(fireAt))

		case <-streamTick.C:
			if c.Mode() != module.ModeStreaming {
				continue
			}
			if !limiter.Allow() {
				continue
			}
			remaining := time.Until(fireAt)
			if remaining < 0 {
				remaining = 0
			}
			c.EmitEvent(module.Event{Data: map[string]any{
				"value":        remaining.Seconds(),
				"remaining_ms": remaining.Milliseconds(),
			}})
		}
	}
}

// streamPollInterval returns the cadence at which the streaming branch
// polls the limiter. The loop polls faster than the configured rate so
// the limiter, not the ticker, paces emissions; fractional rates below
// one emission per second are safe here.
func streamPollInterval(streamRate float64) time.Duration {
	d := time.Duration(float64(time.Second) / (streamRate * 4))
	if d < time.Millisecond {
		d = time.Millisecond
	}
	if d > 250*time.Millisecond {
		d = 250 * time.Millisecond
	}
	return d
}

// nextFiring computes the next scheduled trigger time after now.
func nextFiring(cfg Config, now time.Time) time.Time {
	if cfg.TimeOfDay != "" {
		tod, err := parseTimeOfDay(cfg.TimeOfDay)
		if err == nil {
			next := time.Date(now.Year(), now.Month(), now.Day(),
				tod.Hour(), tod.Minute(), tod.Second(), 0, now.Location())
			if !next.After(now) {
				next = next.Add(24 * time.Hour)
			}
			return next
		}
	}

	interval, err := time.ParseDuration(cfg.Interval)
	if err != nil || interval <= 0 {
		interval = time.Second
	}
	return now.Add(interval)
}

func (c *Clock) triggerParameters() (map[string]any, error) {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	fireAt := nextFiring(cfg, time.Now())
	return map[string]any{
		"interval":    cfg.Interval,
		"time_of_day": cfg.TimeOfDay,
		"next_firing": fireAt.Format(time.RFC3339),
	}, nil
}
