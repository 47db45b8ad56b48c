// Package config loads the host configuration from a YAML file with
// TOOLHUB_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"toolhub/federation"
)

// Config is the full host configuration.
type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	Log     LogConfig     `mapstructure:"log"`
	Status  StatusConfig  `mapstructure:"status"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Storage StorageConfig `mapstructure:"storage"`

	// RemoteServers is the static list of federated peers, supplied once
	// at startup.
	RemoteServers []federation.RemoteServerConfig `mapstructure:"remote_servers"`
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// StatusConfig configures the status HTTP listener.
type StatusConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	EnableCORS     bool          `mapstructure:"enable_cors"`
}

// MonitorConfig configures the status monitor.
type MonitorConfig struct {
	DependencyTTL time.Duration `mapstructure:"dependency_ttl"`
}

// StorageConfig selects the session-usage storage driver.
type StorageConfig struct {
	// Driver is "memory" or "redis".
	Driver   string        `mapstructure:"driver"`
	RedisURL string        `mapstructure:"redis_url"`
	UsageTTL time.Duration `mapstructure:"usage_ttl"`
}

// Load reads the configuration. With an empty path it looks for
// toolhub.yaml in the working directory and falls back to defaults when no
// file exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TOOLHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("toolhub")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "toolhub")
	v.SetDefault("service.version", "1.0.0")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("status.enabled", true)
	v.SetDefault("status.addr", ":8787")
	v.SetDefault("status.request_timeout", 10*time.Second)
	v.SetDefault("status.enable_cors", true)
	v.SetDefault("monitor.dependency_ttl", 30*time.Second)
	v.SetDefault("storage.driver", "memory")
	// Registered so the env override is visible to Unmarshal.
	v.SetDefault("storage.redis_url", "")
	v.SetDefault("storage.usage_ttl", 24*time.Hour)
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown storage driver %q (want memory or redis)", c.Storage.Driver)
	}
	if c.Storage.Driver == "redis" && c.Storage.RedisURL == "" {
		return fmt.Errorf("storage.redis_url is required with the redis driver")
	}

	seen := make(map[string]bool, len(c.RemoteServers))
	for _, peer := range c.RemoteServers {
		if peer.ID == "" {
			return fmt.Errorf("remote server entries require an id")
		}
		if peer.BaseURL == "" {
			return fmt.Errorf("remote server %q requires a base_url", peer.ID)
		}
		if seen[peer.ID] {
			return fmt.Errorf("duplicate remote server id %q", peer.ID)
		}
		seen[peer.ID] = true
	}
	return nil
}
