package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Load reads configuration from standard locations with environment overrides.
// Search order: ~/.decklinkrc, $XDG_CONFIG_HOME/decklink/config.toml, ~/.config/decklink/config.toml
func Load() (*Config, error) {
	cfg := &Config{}

	// Try loading from file
	path := findConfigFile()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	// Apply defaults, then environment variable overrides
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadFrom reads configuration from a specific file path.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes the configuration to path with a short header.
func Save(path string, cfg any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	_, _ = fmt.Fprintln(f, "# decklink configuration")
	_, _ = fmt.Fprintln(f, "")

	encoder := toml.NewEncoder(f)
	encoder.Indent = "  "
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Path returns the file Load would read, or the default location for a new file.
func Path() string {
	if p := findConfigFile(); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".decklinkrc"
	}
	return filepath.Join(home, ".decklinkrc")
}

// findConfigFile returns the first existing config file path.
func findConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	paths := []string{
		filepath.Join(home, ".decklinkrc"),
	}

	// XDG_CONFIG_HOME or default
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	paths = append(paths, filepath.Join(xdgConfig, "decklink", "config.toml"))

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Network
	if v := os.Getenv("DECKLINK_NETWORK_INTERFACE"); v != "" {
		cfg.Network.Interface = v
	}
	if v := os.Getenv("DECKLINK_NETWORK_DEVICE_NUMBER"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Network.DeviceNumber = i
		}
	}
	if v := os.Getenv("DECKLINK_NETWORK_DEVICE_NAME"); v != "" {
		cfg.Network.DeviceName = v
	}

	// Finder
	if v := os.Getenv("DECKLINK_FINDER_PASSIVE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Finder.Passive = b
		}
	}
	if v := os.Getenv("DECKLINK_FINDER_FETCH_TIMEOUT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Finder.FetchTimeout = i
		}
	}

	// Archive
	if v := os.Getenv("DECKLINK_ARCHIVE_AUTO_ATTACH_DIR"); v != "" {
		cfg.Archive.AutoAttachDir = v
	}

	// TUI
	if v := os.Getenv("DECKLINK_TUI_THEME"); v != "" {
		cfg.TUI.Theme = v
	}
	if v := os.Getenv("DECKLINK_TUI_REFRESH_INTERVAL"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.TUI.RefreshInterval = i
		}
	}

	// Log
	if v := os.Getenv("DECKLINK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DECKLINK_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("DECKLINK_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
