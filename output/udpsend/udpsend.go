// Package udpsend provides an output module that forwards routed events
// as UDP datagrams. Trigger events are sent as full JSON envelopes;
// streaming events send only the value payload, which suits fixture
// controllers that expect a raw stream.
package udpsend

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/c360/stagelink/errors"
	"github.com/c360/stagelink/module"
)

// TypeName is the registry key for this module type.
const TypeName = "udp-send"

// Config holds the sender settings.
type Config struct {
	// Addr is the destination address, e.g. "192.168.1.50:7000".
	Addr string `json:"addr"`
}

// DefaultConfig returns the default sender configuration.
func DefaultConfig() Config {
	return Config{Addr: "127.0.0.1:7000"}
}

// Manifest describes the udp-send module for the registry and panel UI.
func Manifest() module.Manifest {
	return module.Manifest{
		Name:        TypeName,
		Kind:        module.KindOutput,
		Description: "Forwards routed events as UDP datagrams",
		Version:     "1.0.0",
		Fields: []module.Field{
			{Name: "addr", Type: module.FieldText, Description: "Destination host:port", Default: "127.0.0.1:7000"},
		},
	}
}

// Sender owns the outbound socket behind a module.Output.
type Sender struct {
	*module.Output

	cfg Config

	mu   sync.Mutex
	conn net.Conn
}

// New builds a sender instance from its per-interaction config.
func New(raw module.Config, deps module.Deps) (module.Instance, error) {
	cfg, err := parseConfig(raw)
	if err != nil {
		return nil, err
	}

	s := &Sender{cfg: cfg}
	s.Output = module.NewOutput(Manifest(), raw, deps.ModuleLogger(TypeName),
		module.Hooks{
			OnStart:     s.start,
			OnStop:      s.stop,
			OnConfigure: s.reconfigure,
		},
		module.OutputHooks{
			OnTriggerEvent:   s.sendTrigger,
			OnStreamingEvent: s.sendStreaming,
		},
	)
	return s, nil
}

// Register adds the udp-send type to a module registry.
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
			return cfg, errors.WrapInvalid(err, "Sender", "parseConfig", "config encoding")
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.WrapInvalid(err, "Sender", "parseConfig", "config parsing")
		}
	}

	if cfg.Addr == "" {
		return cfg, errors.WrapInvalid(
			fmt.Errorf("addr is required"), "Sender", "parseConfig", "addr validation")
	}
	if _, err := net.ResolveUDPAddr("udp", cfg.Addr); err != nil {
		return cfg, errors.WrapInvalid(err, "Sender", "parseConfig", "addr validation")
	}
	return cfg, nil
}

func (s *Sender) start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := net.Dial("udp", s.cfg.Addr)
	if err != nil {
		return errors.WrapTransient(err, "Sender", "start", "socket dial")
	}
	s.conn = conn
	return nil
}

// reconfigure applies a replacement config. When the sender is started,
// the socket is redialed so datagrams follow the new destination.
func (s *Sender) reconfigure(raw module.Config) error {
	cfg, err := parseConfig(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	if s.conn == nil {
		return nil
	}
	conn, err := net.Dial("udp", cfg.Addr)
	if err != nil {
		return errors.WrapTransient(err, "Sender", "reconfigure", "socket dial")
	}
	_ = s.conn.Close()
	s.conn = conn
	return nil
}

func (s *Sender) stop(time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// sendTrigger forwards the full event envelope as JSON.
func (s *Sender) sendTrigger(ev module.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.WrapInvalid(err, "Sender", "sendTrigger", "event encoding")
	}
	return s.write(data)
}

// sendStreaming forwards only the value payload.
func (s *Sender) sendStreaming(ev module.Event) error {
	data, err := json.Marshal(ev.Data["value"])
	if err != nil {
		return errors.WrapInvalid(err, "Sender", "sendStreaming", "value encoding")
	}
	return s.write(data)
}

func (s *Sender) write(data []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return errors.WrapTransient(
			fmt.Errorf("sender is not started"), "Sender", "write", "socket check")
	}
	if _, err := conn.Write(data); err != nil {
		return errors.WrapTransient(err, "Sender", "write", "datagram send")
	}
	return nil
}
