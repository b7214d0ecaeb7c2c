package config

// Config is the root configuration structure.
type Config struct {
	Network NetworkConfig `toml:"network" json:"network" yaml:"network"`
	Finder  FinderConfig  `toml:"finder" json:"finder" yaml:"finder"`
	Archive ArchiveConfig `toml:"archive" json:"archive" yaml:"archive"`
	TUI     TUIConfig     `toml:"tui" json:"tui" yaml:"tui"`
	Log     LogConfig     `toml:"log" json:"log" yaml:"log"`
}

// NetworkConfig holds settings for joining the player network.
type NetworkConfig struct {
	Interface        string `toml:"interface" json:"interface,omitempty" yaml:"interface,omitempty"`
	AnnounceInterval int    `toml:"announce_interval" json:"announce_interval" yaml:"announce_interval"` // ms
	DeviceTimeout    int    `toml:"device_timeout" json:"device_timeout" yaml:"device_timeout"`          // ms
	DeviceNumber     int    `toml:"device_number" json:"device_number" yaml:"device_number"`
	DeviceName       string `toml:"device_name" json:"device_name" yaml:"device_name"`
}

// FinderConfig holds attribute finder settings.
type FinderConfig struct {
	Passive      bool `toml:"passive" json:"passive" yaml:"passive"`
	QueueSize    int  `toml:"queue_size" json:"queue_size" yaml:"queue_size"`
	ArtCacheSize int  `toml:"art_cache_size" json:"art_cache_size" yaml:"art_cache_size"`
	FetchTimeout int  `toml:"fetch_timeout" json:"fetch_timeout" yaml:"fetch_timeout"` // seconds
}

// ArchiveConfig holds metadata archive settings.
type ArchiveConfig struct {
	Attach        []AttachConfig `toml:"attach" json:"attach,omitempty" yaml:"attach,omitempty"`
	AutoAttachDir string         `toml:"auto_attach_dir" json:"auto_attach_dir,omitempty" yaml:"auto_attach_dir,omitempty"`
}

// AttachConfig attaches an archive to a player slot at startup.
type AttachConfig struct {
	Player int    `toml:"player" json:"player" yaml:"player"`
	Slot   string `toml:"slot" json:"slot" yaml:"slot"`
	Path   string `toml:"path" json:"path" yaml:"path"`
}

// TUIConfig holds terminal UI settings.
type TUIConfig struct {
	Theme           string `toml:"theme" json:"theme" yaml:"theme"`
	RefreshInterval int    `toml:"refresh_interval" json:"refresh_interval" yaml:"refresh_interval"` // ms
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level" json:"level" yaml:"level"`
	File   string `toml:"file" json:"file,omitempty" yaml:"file,omitempty"`
	Format string `toml:"format" json:"format" yaml:"format"`
}
