// Package config loads and saves the tool's own settings. Policy content
// never lives here; this is only where to find it and how the tool runs.
package config

import "time"

// Config is the main application configuration.
type Config struct {
	Policy  PolicyConfig  `yaml:"policy"`
	Admin   AdminConfig   `yaml:"admin"`
	Logging LoggingConfig `yaml:"logging"`
	Watcher WatcherConfig `yaml:"watcher"`
	UI      UIConfig      `yaml:"ui"`

	// Runtime version information
	Version string `yaml:"-"`
}

// PolicyConfig locates the system policy directory.
type PolicyConfig struct {
	Dir string `yaml:"dir"`
}

// AdminConfig holds admin API connection settings.
type AdminConfig struct {
	Socket string `yaml:"socket"`
}

// LoggingConfig controls file logging.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
}

// WatcherConfig controls the policy directory watcher.
type WatcherConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMS int  `yaml:"debounce_ms"`
}

// Debounce returns the watcher debounce window.
func (c WatcherConfig) Debounce() time.Duration {
	if c.DebounceMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// UIConfig holds presentation settings.
type UIConfig struct {
	Theme string `yaml:"theme"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Policy: PolicyConfig{
			Dir: "/etc/qubes/policy.d",
		},
		Admin: AdminConfig{
			Socket: "/var/run/qubesd.sock",
		},
		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
		},
		Watcher: WatcherConfig{
			Enabled:    true,
			DebounceMS: 500,
		},
		UI: UIConfig{
			Theme: "dark",
		},
	}
}
