// Package config wraps viper with nil-safe accessors and typed settings.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (server.port -> SWITCHYARD_SERVER_PORT).
const EnvPrefix = "SWITCHYARD"

// Config is a read-only view over a viper instance. The zero value and a
// Config built from a nil viper return zero values for every key.
type Config struct {
	v *viper.Viper
}

// New wraps v. A nil v is replaced by an empty viper instance.
func New(v *viper.Viper) *Config {
	if v == nil {
		v = viper.New()
	}
	return &Config{v: v}
}

// Load reads the YAML file at path (optional) and layers environment
// overrides and defaults on top.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("switchyard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/switchyard")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return New(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("plugins.monitor.enabled", true)
}

// Viper returns the underlying viper instance.
func (c *Config) Viper() *viper.Viper { return c.v }

func (c *Config) GetString(key string) string          { return c.v.GetString(key) }
func (c *Config) GetInt(key string) int                { return c.v.GetInt(key) }
func (c *Config) GetBool(key string) bool              { return c.v.GetBool(key) }
func (c *Config) GetFloat64(key string) float64        { return c.v.GetFloat64(key) }
func (c *Config) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }
func (c *Config) IsSet(key string) bool                { return c.v.IsSet(key) }

// Sub returns the subtree at key. It never returns nil.
func (c *Config) Sub(key string) *Config {
	return New(c.v.Sub(key))
}

// Unmarshal decodes the whole config into target using mapstructure tags.
func (c *Config) Unmarshal(target any) error {
	return c.v.Unmarshal(target)
}

// UnmarshalKey decodes the subtree at key into target.
func (c *Config) UnmarshalKey(key string, target any) error {
	return c.v.UnmarshalKey(key, target)
}
