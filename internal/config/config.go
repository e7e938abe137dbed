// Package config loads grocer configuration from file, environment, and
// defaults via viper.
//
// Configuration is looked up in ~/.grocer.yaml (overridable with --config)
// and in GROCER_* environment variables; every key has a usable default so
// the CLI works out of the box against a local backend.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all tunable settings.
type Config struct {
	// DBPath is the SQLite file backing the durable store.
	DBPath string `mapstructure:"db_path"`

	// RemoteURL is the base URL of the backend API.
	RemoteURL string `mapstructure:"remote_url"`

	// AuthToken is the bearer token sent with every remote call.
	AuthToken string `mapstructure:"auth_token"`

	// HouseholdID scopes the lists collection.
	HouseholdID string `mapstructure:"household_id"`

	// ProbeAddr is the host:port the network monitor dials.
	ProbeAddr string `mapstructure:"probe_addr"`

	// ProbeInterval is how often connectivity is probed.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`

	// ReconnectWindow is how long the just-reconnected signal stays set.
	ReconnectWindow time.Duration `mapstructure:"reconnect_window"`

	// RemoteTimeout bounds each remote call during sync.
	RemoteTimeout time.Duration `mapstructure:"remote_timeout"`

	// OverrideFile forces the monitor offline while it exists.
	OverrideFile string `mapstructure:"override_file"`

	// LogFile, if set, receives rotated daemon logs instead of stderr.
	LogFile string `mapstructure:"log_file"`
}

// setDefaults registers the default value for every key.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("db_path", filepath.Join(home, ".grocer", "grocer.db"))
	v.SetDefault("remote_url", "http://localhost:8080")
	v.SetDefault("auth_token", "")
	v.SetDefault("household_id", "")
	v.SetDefault("probe_addr", "localhost:8080")
	v.SetDefault("probe_interval", 5*time.Second)
	v.SetDefault("reconnect_window", 3*time.Second)
	v.SetDefault("remote_timeout", 30*time.Second)
	v.SetDefault("override_file", filepath.Join(home, ".grocer", "offline"))
	v.SetDefault("log_file", "")
}

// Load reads configuration from the given file (or ~/.grocer.yaml when
// empty), the GROCER_* environment, and defaults. A missing config file is
// not an error; a malformed one is.
func Load(cfgFile string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to find home directory: %w", err)
	}

	v := viper.New()
	setDefaults(v, home)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(home)
		v.SetConfigName(".grocer")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("GROCER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
