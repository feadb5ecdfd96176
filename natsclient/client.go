// Package natsclient provides a thin client for managing the NATS
// connection and JetStream KV buckets used for interaction persistence
// and module log streaming.
package natsclient

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/stagelink/errors"
	"github.com/c360/stagelink/metric"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Client manages the NATS connection and exposes JetStream helpers
type Client struct {
	url    string
	status atomic.Value // ConnectionStatus
	logger *slog.Logger

	conn *nats.Conn
	js   jetstream.JetStream

	// Connection options
	clientName    string
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration

	metrics *metric.MetricsRegistry

	mu     sync.RWMutex
	closed atomic.Bool
}

// New creates an unconnected client for the given URL
func New(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:           url,
		logger:        slog.Default(),
		clientName:    "stagelink",
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
	}
	c.status.Store(StatusDisconnected)

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "New", "option application")
		}
	}
	return c, nil
}

// Connect establishes the NATS connection and JetStream context
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}

	c.status.Store(StatusConnecting)

	opts := []nats.Option{
		nats.Name(c.clientName),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.status.Store(StatusReconnecting)
			c.setConnectedMetric(false)
			c.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.status.Store(StatusConnected)
			c.setConnectedMetric(true)
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			c.status.Store(StatusDisconnected)
			c.setConnectedMetric(false)
		}),
	}

	conn, err := nats.Connect(c.url, opts...)
	if err != nil {
		c.status.Store(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "NATS connect")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		c.status.Store(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "JetStream context")
	}

	c.conn = conn
	c.js = js
	c.status.Store(StatusConnected)
	c.setConnectedMetric(true)

	// ctx reserved for future handshake timeouts; nats.Connect manages its own
	_ = ctx
	return nil
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	status, _ := c.status.Load().(ConnectionStatus)
	return status
}

// GetConnection returns the underlying NATS connection, or nil when
// disconnected. Callers must tolerate nil.
func (c *Client) GetConnection() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// JetStream returns the JetStream context, or nil when disconnected
func (c *Client) JetStream() jetstream.JetStream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.js
}

// EnsureKeyValue returns the named KV bucket, creating it if needed
func (c *Client) EnsureKeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Client", "EnsureKeyValue", "JetStream availability")
	}

	kv, err := js.KeyValue(ctx, bucket)
	if err == nil {
		return kv, nil
	}

	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: 5,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "EnsureKeyValue", "bucket creation")
	}
	return kv, nil
}

// Close drains and closes the connection. Safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.conn.Drain() }()

	select {
	case err := <-done:
		if err != nil {
			c.conn.Close()
		}
	case <-ctx.Done():
		c.conn.Close()
	}

	c.conn = nil
	c.js = nil
	c.status.Store(StatusDisconnected)
	c.setConnectedMetric(false)
	return nil
}

func (c *Client) setConnectedMetric(connected bool) {
	if c.metrics == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1.0
	}
	c.metrics.CoreMetrics().NATSConnected.Set(v)
}
