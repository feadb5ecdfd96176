package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Config represents the complete panel runtime configuration.
type Config struct {
	Version      string             `json:"version"` // Semantic version (e.g., "1.0.0")
	Panel        PanelConfig        `json:"panel"`
	NATS         NATSConfig         `json:"nats"`
	Interactions InteractionsConfig `json:"interactions"`
	Logging      LoggingConfig      `json:"logging"`
}

// PanelConfig defines panel identity and the HTTP listen surface.
type PanelConfig struct {
	ID              string        `json:"id"` // Panel identifier (e.g., "lobby-wall")
	HTTPAddr        string        `json:"http_addr"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout,omitempty"`
	StaticDir       string        `json:"static_dir,omitempty"` // Optional directory of panel UI assets
}

// NATSConfig defines NATS connection settings. When Enabled is false
// the runtime operates standalone with file-only persistence.
type NATSConfig struct {
	Enabled       bool          `json:"enabled"`
	URLs          []string      `json:"urls,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
}

// InteractionsConfig defines where wiring definitions live.
type InteractionsConfig struct {
	File     string `json:"file"`                // Authoritative JSON file
	KVBucket string `json:"kv_bucket,omitempty"` // NATS KV mirror bucket
}

// LoggingConfig controls slog output and NATS log streaming.
type LoggingConfig struct {
	Level         string `json:"level"` // debug, info, warn, error
	StreamEnabled bool   `json:"stream_enabled"`
}

// SafeConfig provides thread-safe access to configuration.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// Validate checks if the config is valid and normalizes the panel ID.
func (c *Config) Validate() error {
	if c.Panel.ID == "" {
		return errors.New("panel.id is required")
	}
	c.Panel.ID = strings.ToLower(c.Panel.ID)
	if !isValidNATSSubjectPart(c.Panel.ID) {
		return fmt.Errorf(
			"panel.id '%s' is not valid for NATS subjects (must be alphanumeric with dots, dashes, underscores)",
			c.Panel.ID,
		)
	}

	if c.Panel.HTTPAddr == "" {
		return errors.New("panel.http_addr is required")
	}

	if c.NATS.Enabled && len(c.NATS.URLs) == 0 {
		return errors.New("nats.urls is required when nats is enabled")
	}

	if c.Interactions.File == "" {
		return errors.New("interactions.file is required")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level '%s' is not valid (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// isValidNATSSubjectPart checks if a string is valid for use in NATS subjects.
// Valid characters are alphanumeric, dots, dashes, and underscores.
func isValidNATSSubjectPart(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' && r != '.' {
			return false
		}
	}
	return true
}

// Loader handles configuration loading with defaults and env overrides.
type Loader struct {
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		validation: false,
		envPrefix:  "STAGELINK",
	}
}

// EnableValidation enables or disables configuration validation.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a JSON file, layered over defaults,
// with environment overrides applied last.
func (l *Loader) LoadFile(path string) (*Config, error) {
	cfg := l.getDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// getDefaults returns the default configuration.
func (l *Loader) getDefaults() *Config {
	return &Config{
		Version: "1.0.0",
		Panel: PanelConfig{
			ID:              "panel",
			HTTPAddr:        ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Interactions: InteractionsConfig{
			File:     "interactions.json",
			KVBucket: "stagelink_interactions",
		},
		Logging: LoggingConfig{
			Level:         "info",
			StreamEnabled: true,
		},
	}
}

// applyEnvOverrides applies environment variable overrides.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(l.envPrefix + "_PANEL_ID"); val != "" {
		cfg.Panel.ID = val
	}
	if val := os.Getenv(l.envPrefix + "_HTTP_ADDR"); val != "" {
		cfg.Panel.HTTPAddr = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.NATS.Enabled = b
		}
	}
	if val := os.Getenv(l.envPrefix + "_NATS_URLS"); val != "" {
		cfg.NATS.URLs = strings.Split(val, ",")
	}
	if val := os.Getenv(l.envPrefix + "_NATS_USERNAME"); val != "" {
		cfg.NATS.Username = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_PASSWORD"); val != "" {
		cfg.NATS.Password = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_TOKEN"); val != "" {
		cfg.NATS.Token = val
	}
	if val := os.Getenv(l.envPrefix + "_INTERACTIONS_FILE"); val != "" {
		cfg.Interactions.File = val
	}
	if val := os.Getenv(l.envPrefix + "_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
}

// SaveToFile saves the configuration to a JSON file.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// String returns a JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// UnmarshalJSON accepts duration fields either as nanosecond numbers
// or as strings like "2s".
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		Panel struct {
			ID              string `json:"id"`
			HTTPAddr        string `json:"http_addr"`
			ShutdownTimeout any    `json:"shutdown_timeout,omitempty"`
			StaticDir       string `json:"static_dir,omitempty"`
		} `json:"panel"`
		NATS struct {
			Enabled       bool     `json:"enabled"`
			URLs          []string `json:"urls,omitempty"`
			MaxReconnects int      `json:"max_reconnects,omitempty"`
			ReconnectWait any      `json:"reconnect_wait,omitempty"`
			Username      string   `json:"username,omitempty"`
			Password      string   `json:"password,omitempty"`
			Token         string   `json:"token,omitempty"`
		} `json:"nats"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.Panel.ID != "" {
		c.Panel.ID = aux.Panel.ID
	}
	if aux.Panel.HTTPAddr != "" {
		c.Panel.HTTPAddr = aux.Panel.HTTPAddr
	}
	if aux.Panel.StaticDir != "" {
		c.Panel.StaticDir = aux.Panel.StaticDir
	}
	d, err := parseDurationField(aux.Panel.ShutdownTimeout)
	if err != nil {
		return fmt.Errorf("panel.shutdown_timeout: %w", err)
	}
	if d != 0 {
		c.Panel.ShutdownTimeout = d
	}

	c.NATS.Enabled = aux.NATS.Enabled
	if aux.NATS.URLs != nil {
		c.NATS.URLs = aux.NATS.URLs
	}
	if aux.NATS.MaxReconnects != 0 {
		c.NATS.MaxReconnects = aux.NATS.MaxReconnects
	}
	c.NATS.Username = aux.NATS.Username
	c.NATS.Password = aux.NATS.Password
	c.NATS.Token = aux.NATS.Token
	d, err = parseDurationField(aux.NATS.ReconnectWait)
	if err != nil {
		return fmt.Errorf("nats.reconnect_wait: %w", err)
	}
	if d != 0 {
		c.NATS.ReconnectWait = d
	}

	return nil
}

func parseDurationField(v any) (time.Duration, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case string:
		return time.ParseDuration(val)
	case float64:
		return time.Duration(val), nil
	default:
		return 0, fmt.Errorf("unsupported duration value %v", v)
	}
}
