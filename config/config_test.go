package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderDefaults(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "panel", cfg.Panel.ID)
	assert.Equal(t, ":8080", cfg.Panel.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.Panel.ShutdownTimeout)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, "interactions.json", cfg.Interactions.File)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoaderFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"panel": {"id": "lobby-wall", "http_addr": ":9090", "shutdown_timeout": "5s"},
		"nats": {"enabled": true, "urls": ["nats://nats1:4222"], "reconnect_wait": "500ms"},
		"interactions": {"file": "/data/interactions.json"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	loader := NewLoader()
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "lobby-wall", cfg.Panel.ID)
	assert.Equal(t, ":9090", cfg.Panel.HTTPAddr)
	assert.Equal(t, 5*time.Second, cfg.Panel.ShutdownTimeout)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, []string{"nats://nats1:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 500*time.Millisecond, cfg.NATS.ReconnectWait)
	assert.Equal(t, "/data/interactions.json", cfg.Interactions.File)
}

func TestLoaderMissingFile(t *testing.T) {
	loader := NewLoader()
	_, err := loader.LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoaderMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	loader := NewLoader()
	_, err := loader.LoadFile(path)
	assert.Error(t, err)
}

func TestLoaderEnvOverrides(t *testing.T) {
	t.Setenv("STAGELINK_PANEL_ID", "env-panel")
	t.Setenv("STAGELINK_HTTP_ADDR", ":7070")
	t.Setenv("STAGELINK_NATS_ENABLED", "true")
	t.Setenv("STAGELINK_NATS_URLS", "nats://a:4222,nats://b:4222")
	t.Setenv("STAGELINK_LOG_LEVEL", "debug")

	loader := NewLoader()
	cfg, err := loader.LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "env-panel", cfg.Panel.ID)
	assert.Equal(t, ":7070", cfg.Panel.HTTPAddr)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	valid := NewLoader().getDefaults()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty panel id", func(c *Config) { c.Panel.ID = "" }},
		{"panel id with spaces", func(c *Config) { c.Panel.ID = "my panel" }},
		{"empty http addr", func(c *Config) { c.Panel.HTTPAddr = "" }},
		{"nats enabled without urls", func(c *Config) { c.NATS.Enabled = true; c.NATS.URLs = nil }},
		{"empty interactions file", func(c *Config) { c.Interactions.File = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewLoader().getDefaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateNormalizesPanelID(t *testing.T) {
	cfg := NewLoader().getDefaults()
	cfg.Panel.ID = "Lobby-Wall"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "lobby-wall", cfg.Panel.ID)
}

func TestSafeConfig(t *testing.T) {
	base := NewLoader().getDefaults()
	sc := NewSafeConfig(base)

	got := sc.Get()
	got.Panel.ID = "mutated"
	assert.Equal(t, "panel", sc.Get().Panel.ID, "Get must return a copy")

	next := NewLoader().getDefaults()
	next.Panel.ID = "updated"
	require.NoError(t, sc.Update(next))
	assert.Equal(t, "updated", sc.Get().Panel.ID)

	bad := NewLoader().getDefaults()
	bad.Panel.HTTPAddr = ""
	assert.Error(t, sc.Update(bad))
	assert.Equal(t, "updated", sc.Get().Panel.ID, "failed update must not replace config")

	assert.Error(t, sc.Update(nil))
}

func TestSaveToFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.json")
	cfg := NewLoader().getDefaults()
	cfg.Panel.ID = "saved-panel"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "saved-panel", loaded.Panel.ID)
	assert.Equal(t, cfg.NATS.ReconnectWait, loaded.NATS.ReconnectWait)
}
