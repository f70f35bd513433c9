package config

import "time"

// Config holds runtime settings for the Quill CLI.
//
// Units: SyncInterval and RequestTimeout are time.Durations
// (e.g., 30*time.Second).
type Config struct {
	Endpoint       string
	SyncInterval   time.Duration
	RequestTimeout time.Duration
	DatabasePath   string
	LogFile        string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Endpoint = "http://127.0.0.1:8080"
	c.SyncInterval = 30 * time.Second
	c.RequestTimeout = 15 * time.Second
	c.DatabasePath = "quill.db"
	c.LogFile = "quill.log"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
