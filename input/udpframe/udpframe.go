// Package udpframe provides an input module that listens for UDP
// datagrams and emits each one as an opaque frame event. Payload bytes
// are never interpreted; installations define their own frame formats.
package udpframe

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/c360/stagelink/errors"
	"github.com/c360/stagelink/module"
)

// TypeName is the registry key for this module type.
const TypeName = "udp-frame"

const maxDatagramSize = 65507

// stopGrace bounds how long a reconfigure waits for the receive loop.
const stopGrace = 2 * time.Second

// Config holds the listener settings.
type Config struct {
	// Addr is the UDP listen address, e.g. ":5005" or "0.0.0.0:5005".
	Addr string `json:"addr"`
	// Encoding selects the payload representation in emitted events:
	// "text" (UTF-8 string) or "bytes" (integer slice).
	Encoding string `json:"encoding,omitempty"`
}

// DefaultConfig returns the default listener configuration.
func DefaultConfig() Config {
	return Config{
		Addr:     ":5005",
		Encoding: "text",
	}
}

// Manifest describes the udp-frame module for the registry and panel UI.
func Manifest() module.Manifest {
	return module.Manifest{
		Name:        TypeName,
		Kind:        module.KindInput,
		Description: "Emits an event per received UDP datagram",
		Version:     "1.0.0",
		Fields: []module.Field{
			{Name: "addr", Type: module.FieldText, Description: "UDP listen address", Default: ":5005"},
			{Name: "encoding", Type: module.FieldSelect, Description: "Payload representation", Default: "text", Options: []string{"text", "bytes"}},
		},
	}
}

// Listener runs the receive loop behind a module.Input.
type Listener struct {
	*module.Input

	cfg Config

	mu   sync.Mutex
	conn net.PacketConn
	done chan struct{}
}

// New builds a listener instance from its per-interaction config.
func New(raw module.Config, deps module.Deps) (module.Instance, error) {
	cfg, err := parseConfig(raw)
	if err != nil {
		return nil, err
	}

	l := &Listener{cfg: cfg}
	l.Input = module.NewInput(Manifest(), raw, deps.ModuleLogger(TypeName),
		module.Hooks{
			OnStart:     l.start,
			OnStop:      l.stop,
			OnConfigure: l.reconfigure,
		},
		module.InputHooks{
			OnTriggerParameters: l.triggerParameters,
		},
	)
	return l, nil
}

// Register adds the udp-frame type to a module registry.
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
			return cfg, errors.WrapInvalid(err, "Listener", "parseConfig", "config encoding")
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.WrapInvalid(err, "Listener", "parseConfig", "config parsing")
		}
	}

	if cfg.Addr == "" {
		return cfg, errors.WrapInvalid(
			fmt.Errorf("addr is required"), "Listener", "parseConfig", "addr validation")
	}
	if _, err := net.ResolveUDPAddr("udp", cfg.Addr); err != nil {
		return cfg, errors.WrapInvalid(err, "Listener", "parseConfig", "addr validation")
	}
	switch cfg.Encoding {
	case "", "text":
		cfg.Encoding = "text"
	case "bytes":
	default:
		return cfg, errors.WrapInvalid(
			fmt.Errorf("encoding '%s' must be text or bytes", cfg.Encoding),
			"Listener", "parseConfig", "encoding validation")
	}
	return cfg, nil
}

func (l *Listener) start(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	conn, err := net.ListenPacket("udp", l.cfg.Addr)
	if err != nil {
		return errors.WrapTransient(err, "Listener", "start", "socket bind")
	}
	l.conn = conn

	done := make(chan struct{})
	l.done = done
	go l.receive(conn, done)
	return nil
}

// reconfigure applies a replacement config. A bound socket is closed and
// reopened so the new address and encoding take effect.
func (l *Listener) reconfigure(raw module.Config) error {
	cfg, err := parseConfig(raw)
	if err != nil {
		return err
	}

	l.mu.Lock()
	listening := l.conn != nil
	l.mu.Unlock()

	if listening {
		if err := l.stop(stopGrace); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()

	if listening {
		return l.start(context.Background())
	}
	return nil
}

func (l *Listener) stop(timeout time.Duration) error {
	l.mu.Lock()
	conn := l.conn
	done := l.done
	l.conn = nil
	l.done = nil
	l.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.Close()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("receive loop did not stop within %s", timeout)
	}
}

// receive reads datagrams until the socket closes.
func (l *Listener) receive(conn net.PacketConn, done chan struct{}) {
	defer close(done)

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			// Closed socket ends the loop; anything else is logged
			if !stderrors.Is(err, net.ErrClosed) {
				l.Logger().Error("UDP read failed", err)
			}
			return
		}
		if n == 0 {
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		l.EmitEvent(l.frameEvent(payload, addr))
	}
}

// frameEvent wraps one datagram as an event. Streaming consumers read
// the value key; trigger consumers get the full frame.
func (l *Listener) frameEvent(payload []byte, addr net.Addr) module.Event {
	data := map[string]any{
		"source": addr.String(),
		"size":   len(payload),
	}
	switch l.cfg.Encoding {
	case "bytes":
		frame := make([]int, len(payload))
		for i, b := range payload {
			frame[i] = int(b)
		}
		data["frame"] = frame
		data["value"] = frame
	default:
		data["frame"] = string(payload)
		data["value"] = string(payload)
	}
	return module.Event{Data: data}
}

// LocalAddr reports the bound address while the listener runs. Useful
// when the configured port is 0.
func (l *Listener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

func (l *Listener) triggerParameters() (map[string]any, error) {
	l.mu.Lock()
	cfg := l.cfg
	l.mu.Unlock()

	params := map[string]any{
		"addr":     cfg.Addr,
		"encoding": cfg.Encoding,
	}
	if addr := l.LocalAddr(); addr != nil {
		params["bound"] = addr.String()
	}
	return params, nil
}
