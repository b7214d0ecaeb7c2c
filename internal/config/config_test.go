package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100, cfg.Finder.QueueSize)
	assert.Equal(t, 100, cfg.Finder.ArtCacheSize)
	assert.Equal(t, 10*time.Second, cfg.Finder.Timeout())
	assert.Equal(t, 1500*time.Millisecond, cfg.Network.AnnounceEvery())
}

func TestLoadFromAppliesDefaultsAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	err := os.WriteFile(path, []byte(`
[finder]
passive = true

[[archive.attach]]
player = 2
slot = "usb"
path = "/tmp/stick.dlma"
`), 0644)
	require.NoError(t, err)

	t.Setenv("DECKLINK_LOG_LEVEL", "debug")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.True(t, cfg.Finder.Passive)
	assert.Equal(t, 100, cfg.Finder.QueueSize)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Archive.Attach, 1)
	assert.Equal(t, 2, cfg.Archive.Attach[0].Player)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"device number", func(c *Config) { c.Network.DeviceNumber = 40 }},
		{"queue size", func(c *Config) { c.Finder.QueueSize = -1 }},
		{"attach slot", func(c *Config) {
			c.Archive.Attach = []AttachConfig{{Player: 1, Slot: "tape", Path: "x"}}
		}},
		{"theme", func(c *Config) { c.TUI.Theme = "neon" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Network.DeviceName = "booth"
	require.NoError(t, Save(path, cfg))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "booth", loaded.Network.DeviceName)
}
