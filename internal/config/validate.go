package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/tessro/decklink/internal/core"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Network.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("network: %w", err))
	}
	if err := c.Finder.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("finder: %w", err))
	}
	if err := c.Archive.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("archive: %w", err))
	}
	if err := c.TUI.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tui: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	return errors.Join(errs...)
}

// Validate checks NetworkConfig for errors.
func (c *NetworkConfig) Validate() error {
	if c.Interface != "" {
		if _, err := net.InterfaceByName(c.Interface); err != nil {
			return fmt.Errorf("interface %q: %w", c.Interface, err)
		}
	}
	if c.AnnounceInterval < 0 || c.DeviceTimeout < 0 {
		return errors.New("announce_interval and device_timeout must be non-negative")
	}
	if c.DeviceNumber < 1 || c.DeviceNumber > 0x0f {
		return fmt.Errorf("device_number %d out of range (must be 1-15)", c.DeviceNumber)
	}
	if len(c.DeviceName) > 20 {
		return errors.New("device_name must be at most 20 characters")
	}
	return nil
}

// Validate checks FinderConfig for errors.
func (c *FinderConfig) Validate() error {
	if c.QueueSize < 0 {
		return errors.New("queue_size must be non-negative")
	}
	if c.ArtCacheSize < 0 {
		return errors.New("art_cache_size must be non-negative")
	}
	if c.FetchTimeout < 0 {
		return errors.New("fetch_timeout must be non-negative")
	}
	return nil
}

// Validate checks ArchiveConfig for errors.
func (c *ArchiveConfig) Validate() error {
	for i, a := range c.Attach {
		if a.Player < 1 {
			return fmt.Errorf("attach[%d]: player must be positive", i)
		}
		if _, err := core.ParseSlot(a.Slot); err != nil {
			return fmt.Errorf("attach[%d]: %w", i, err)
		}
		if a.Path == "" {
			return fmt.Errorf("attach[%d]: path is required", i)
		}
	}
	return nil
}

// Validate checks TUIConfig for errors.
func (c *TUIConfig) Validate() error {
	switch c.Theme {
	case "", "auto", "dark", "light":
		// valid
	default:
		return fmt.Errorf("invalid theme: %s (must be auto, dark, or light)", c.Theme)
	}
	if c.RefreshInterval < 0 {
		return errors.New("refresh_interval must be non-negative")
	}
	return nil
}

// Validate checks LogConfig for errors.
func (c *LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Level)
	}
	switch c.Format {
	case "", "text", "json":
		// valid
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Format)
	}
	return nil
}
