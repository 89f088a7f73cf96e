// Package config loads tracker settings from an optional YAML file and
// TRACKER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

const envPrefix = "TRACKER"

// Config is the validated runtime configuration.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Log      LogConfig
	Sync     SyncConfig
}

// DatabaseConfig selects the datastore backend. URL is a postgres connection
// string or a sqlite file path; memory ignores it.
type DatabaseConfig struct {
	Driver string
	URL    string
}

type ServerConfig struct {
	Port int
}

// SyncConfig drives the optional background status sweeper. Zero, the
// default, leaves it off.
type SyncConfig struct {
	Interval time.Duration
}

type LogConfig struct {
	Level  string
	File   string
	Pretty bool
}

// Addr is the listen address for the HTTP server.
func (c ServerConfig) Addr() string { return fmt.Sprintf(":%d", c.Port) }

func defaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.url", "tracker.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.pretty", true)
	v.SetDefault("sync.interval", "0s")
}

// New returns a viper instance with defaults and environment binding but no
// file. TRACKER_DATABASE_URL overrides database.url, and so on.
func New() *viper.Viper {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path when it is set, layers the environment on top and
// validates the result.
func Load(path string) (Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance, so
// command flags bound to v take part.
func FromViper(v *viper.Viper) (Config, error) {
	c := Config{
		Database: DatabaseConfig{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
			URL:    strings.TrimSpace(v.GetString("database.url")),
		},
		Server: ServerConfig{Port: v.GetInt("server.port")},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			File:   v.GetString("log.file"),
			Pretty: v.GetBool("log.pretty"),
		},
		Sync: SyncConfig{Interval: v.GetDuration("sync.interval")},
	}
	return c, c.Validate()
}

// Validate checks that the settings are usable.
func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
		if c.Database.URL == "" {
			errs = append(errs, fmt.Errorf("database.url is required for driver %s", c.Database.Driver))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: want postgres, sqlite or memory", c.Database.Driver))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Sync.Interval < 0 {
		errs = append(errs, fmt.Errorf("sync.interval %s is negative", c.Sync.Interval))
	}
	return errors.Join(errs...)
}
