package config

import "time"

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			AnnounceInterval: 1500,
			DeviceTimeout:    10000,
			DeviceNumber:     5,
			DeviceName:       "decklink",
		},
		Finder: FinderConfig{
			QueueSize:    100,
			ArtCacheSize: 100,
			FetchTimeout: 10,
		},
		TUI: TUIConfig{
			Theme:           "auto",
			RefreshInterval: 50,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	d := Default()

	// Network
	if c.Network.AnnounceInterval == 0 {
		c.Network.AnnounceInterval = d.Network.AnnounceInterval
	}
	if c.Network.DeviceTimeout == 0 {
		c.Network.DeviceTimeout = d.Network.DeviceTimeout
	}
	if c.Network.DeviceNumber == 0 {
		c.Network.DeviceNumber = d.Network.DeviceNumber
	}
	if c.Network.DeviceName == "" {
		c.Network.DeviceName = d.Network.DeviceName
	}

	// Finder
	if c.Finder.QueueSize == 0 {
		c.Finder.QueueSize = d.Finder.QueueSize
	}
	if c.Finder.ArtCacheSize == 0 {
		c.Finder.ArtCacheSize = d.Finder.ArtCacheSize
	}
	if c.Finder.FetchTimeout == 0 {
		c.Finder.FetchTimeout = d.Finder.FetchTimeout
	}

	// TUI
	if c.TUI.Theme == "" {
		c.TUI.Theme = d.TUI.Theme
	}
	if c.TUI.RefreshInterval == 0 {
		c.TUI.RefreshInterval = d.TUI.RefreshInterval
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// AnnounceEvery returns the keep-alive interval.
func (c *NetworkConfig) AnnounceEvery() time.Duration {
	return time.Duration(c.AnnounceInterval) * time.Millisecond
}

// Timeout returns how long a silent device is kept before it is reported lost.
func (c *NetworkConfig) Timeout() time.Duration {
	return time.Duration(c.DeviceTimeout) * time.Millisecond
}

// Timeout returns the per-fetch deadline for database queries.
func (c *FinderConfig) Timeout() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

// Refresh returns the UI refresh period.
func (c *TUIConfig) Refresh() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Millisecond
}
