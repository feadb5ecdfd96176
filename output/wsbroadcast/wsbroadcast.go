// Package wsbroadcast provides an output module that serves a WebSocket
// endpoint and pushes routed events to every connected client. It is
// the integration point for projection surfaces and browser-based
// visuals that subscribe to an interaction's events directly.
package wsbroadcast

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/stagelink/errors"
	"github.com/c360/stagelink/module"
)

// TypeName is the registry key for this module type.
const TypeName = "ws-broadcast"

// stopGrace bounds how long a reconfigure waits for the server shutdown.
const stopGrace = 2 * time.Second

// Config holds the broadcast server settings.
type Config struct {
	// Addr is the listen address, e.g. ":8091".
	Addr string `json:"addr"`
	// Path is the WebSocket endpoint path.
	Path string `json:"path,omitempty"`
}

// DefaultConfig returns the default broadcast configuration.
func DefaultConfig() Config {
	return Config{
		Addr: ":8091",
		Path: "/events",
	}
}

// Manifest describes the ws-broadcast module for the registry and panel UI.
func Manifest() module.Manifest {
	return module.Manifest{
		Name:        TypeName,
		Kind:        module.KindOutput,
		Description: "Pushes routed events to WebSocket subscribers",
		Version:     "1.0.0",
		Fields: []module.Field{
			{Name: "addr", Type: module.FieldText, Description: "WebSocket listen address", Default: ":8091"},
			{Name: "path", Type: module.FieldText, Description: "Endpoint path", Default: "/events"},
		},
	}
}

// Broadcaster serves the endpoint behind a module.Output.
type Broadcaster struct {
	*module.Output

	cfg      Config
	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	clients  map[*websocket.Conn]struct{}
}

// New builds a broadcaster instance from its per-interaction config.
func New(raw module.Config, deps module.Deps) (module.Instance, error) {
	cfg, err := parseConfig(raw)
	if err != nil {
		return nil, err
	}

	b := &Broadcaster{
		cfg:     cfg,
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	b.Output = module.NewOutput(Manifest(), raw, deps.ModuleLogger(TypeName),
		module.Hooks{
			OnStart:     b.start,
			OnStop:      b.stop,
			OnConfigure: b.reconfigure,
		},
		module.OutputHooks{
			OnTriggerEvent:   b.broadcast,
			OnStreamingEvent: b.broadcast,
		},
	)
	return b, nil
}

// Register adds the ws-broadcast type to a module registry.
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
			return cfg, errors.WrapInvalid(err, "Broadcaster", "parseConfig", "config encoding")
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.WrapInvalid(err, "Broadcaster", "parseConfig", "config parsing")
		}
	}

	if cfg.Addr == "" {
		return cfg, errors.WrapInvalid(
			fmt.Errorf("addr is required"), "Broadcaster", "parseConfig", "addr validation")
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	return cfg, nil
}

func (b *Broadcaster) start(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ln, err := net.Listen("tcp", b.cfg.Addr)
	if err != nil {
		return errors.WrapTransient(err, "Broadcaster", "start", "listener bind")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(b.cfg.Path, b.handleWS)
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	b.listener = ln
	b.server = server

	go func() {
		if err := server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			b.Logger().Error("Broadcast server failed", err)
		}
	}()
	return nil
}

// reconfigure applies a replacement config. A serving endpoint is shut
// down and restarted on the new address and path; connected subscribers
// are dropped and must redial.
func (b *Broadcaster) reconfigure(raw module.Config) error {
	cfg, err := parseConfig(raw)
	if err != nil {
		return err
	}

	b.mu.Lock()
	serving := b.server != nil
	b.mu.Unlock()

	if serving {
		if err := b.stop(stopGrace); err != nil {
			return err
		}
	}

	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()

	if serving {
		return b.start(context.Background())
	}
	return nil
}

func (b *Broadcaster) stop(timeout time.Duration) error {
	b.mu.Lock()
	server := b.server
	b.server = nil
	b.listener = nil
	for conn := range b.clients {
		_ = conn.Close()
	}
	b.clients = make(map[*websocket.Conn]struct{})
	b.mu.Unlock()

	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return server.Shutdown(ctx)
}

// handleWS upgrades subscribers. Inbound frames are discarded; the
// endpoint is push-only.
func (b *Broadcaster) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.Logger().Warn("WebSocket upgrade failed", "error", err)
		return
	}

	b.mu.Lock()
	b.clients[conn] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.clients, conn)
			b.mu.Unlock()
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// broadcast pushes one event to every subscriber. A failed write drops
// that subscriber; the rest still receive the event.
func (b *Broadcaster) broadcast(ev module.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.WrapInvalid(err, "Broadcaster", "broadcast", "event encoding")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for conn := range b.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(b.clients, conn)
			_ = conn.Close()
		}
	}
	return nil
}

// Addr reports the bound address while the server runs.
func (b *Broadcaster) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

// ClientCount returns the number of connected subscribers.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}
