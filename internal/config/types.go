package config

import "time"

// Config represents the complete embedder configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	API      APIConfig      `yaml:"api,omitempty"`
	Journal  JournalConfig  `yaml:"journal"`
	Channels ChannelsConfig `yaml:"channels"`
	Include  []string       `yaml:"include,omitempty"`

	// SourceFiles lists every file that contributed to this config, root first.
	SourceFiles []string `yaml:"-"`
	// Digest is the BLAKE3 hash over SourceFiles, empty for Defaults().
	Digest string `yaml:"-"`
}

// ServiceConfig defines host loop settings.
type ServiceConfig struct {
	Name            string        `yaml:"name"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
	MaxTicks        int           `yaml:"max_ticks"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
}

// DispatchConfig sizes the handler worker pool.
type DispatchConfig struct {
	Workers int `yaml:"workers"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Listen       string        `yaml:"listen"`
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
	Auth         APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token. Empty disables auth.
	APIKey string `yaml:"api_key"`
}

// JournalConfig controls the SQLite traffic journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ChannelsConfig toggles the built-in channels.
type ChannelsConfig struct {
	Echo      EchoConfig      `yaml:"echo"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	TextInput ToggleConfig    `yaml:"textinput"`
	KeyEvent  ToggleConfig    `yaml:"keyevent"`
}

// ToggleConfig is a channel with nothing to tune but its presence.
type ToggleConfig struct {
	Enabled bool `yaml:"enabled"`
}

// EchoConfig configures app/echo.
type EchoConfig struct {
	Enabled bool   `yaml:"enabled"`
	Codec   string `yaml:"codec"`
}

// HeartbeatConfig configures app/heartbeat.
type HeartbeatConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Defaults returns a Config usable without any file on disk.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:            "embedder",
			TickInterval:    16 * time.Millisecond,
			DispatchTimeout: 16 * time.Millisecond,
			LogLevel:        "info",
			LogFormat:       "json",
		},
		Dispatch: DispatchConfig{
			Workers: 8,
		},
		API: APIConfig{
			Enabled:      false,
			Listen:       "127.0.0.1:8765",
			ReplyTimeout: 5 * time.Second,
		},
		Journal: JournalConfig{
			Enabled: false,
			Path:    "./data/journal.db",
		},
		Channels: ChannelsConfig{
			Echo:      EchoConfig{Enabled: true, Codec: "standard"},
			Heartbeat: HeartbeatConfig{Enabled: true, Interval: time.Second},
			TextInput: ToggleConfig{Enabled: true},
			KeyEvent:  ToggleConfig{Enabled: true},
		},
	}
}
