// Package config loads service configuration from flags, environment
// variables (CIRCLEPOT_ prefix) and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. CIRCLEPOT_POSTGRES_DSN.
const EnvPrefix = "CIRCLEPOT"

// Config is the service configuration.
type Config struct {
	Indexer    IndexerConfig `mapstructure:"indexer"`
	Postgres   DSNConfig     `mapstructure:"postgres"`
	Clickhouse DSNConfig     `mapstructure:"clickhouse"`
	UseMemory  bool          `mapstructure:"use_memory"`
	HTTP       AddrConfig    `mapstructure:"http"`
	Metrics    AddrConfig    `mapstructure:"metrics"`
	Sync       SyncConfig    `mapstructure:"sync"`
	Log        LogConfig     `mapstructure:"log"`
}

// IndexerConfig locates the indexer.
type IndexerConfig struct {
	URL     string        `mapstructure:"url"`
	WSURL   string        `mapstructure:"ws_url"` // empty disables live updates
	Timeout time.Duration `mapstructure:"timeout"`
}

// DSNConfig holds a database connection string.
type DSNConfig struct {
	DSN string `mapstructure:"dsn"`
}

// AddrConfig holds a listen address.
type AddrConfig struct {
	Addr string `mapstructure:"addr"`
}

// SyncConfig controls the ingestion runner.
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Circles  []string      `mapstructure:"circles"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"indexer-url":     "indexer.url",
	"indexer-ws-url":  "indexer.ws_url",
	"indexer-timeout": "indexer.timeout",
	"postgres-dsn":    "postgres.dsn",
	"clickhouse-dsn":  "clickhouse.dsn",
	"use-memory":      "use_memory",
	"http-addr":       "http.addr",
	"metrics-addr":    "metrics.addr",
	"sync-interval":   "sync.interval",
	"circles":         "sync.circles",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

// Flags returns the flag set Load parses.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Path to a YAML/JSON/TOML config file")
	fs.String("indexer-url", "", "Indexer GraphQL HTTP endpoint")
	fs.String("indexer-ws-url", "", "Indexer GraphQL websocket endpoint (optional)")
	fs.Duration("indexer-timeout", 15*time.Second, "Indexer query timeout")
	fs.String("postgres-dsn", "", "PostgreSQL connection string")
	fs.String("clickhouse-dsn", "", "ClickHouse connection string (optional)")
	fs.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	fs.String("http-addr", ":8080", "API listen address")
	fs.String("metrics-addr", ":9090", "Prometheus metrics listen address")
	fs.Duration("sync-interval", time.Minute, "Interval between full syncs")
	fs.StringSlice("circles", nil, "Circle ids to keep in sync")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-format", "json", "Log format (json, console)")
	return fs
}

// Load parses args and merges flags, environment and config file.
// Precedence: flag set explicitly > environment > config file > flag default.
func Load(name string, args []string) (*Config, error) {
	fs := Flags(name)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for flagName, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flagName)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flagName, err)
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Sync.Circles = splitList(cfg.Sync.Circles)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Indexer.URL == "" {
		errs = append(errs, errors.New("indexer.url is required"))
	}
	if c.Indexer.Timeout <= 0 {
		errs = append(errs, errors.New("indexer.timeout must be positive"))
	}
	if c.Sync.Interval <= 0 {
		errs = append(errs, errors.New("sync.interval must be positive"))
	}
	if !c.UseMemory && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required (or use_memory)"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or console", c.Log.Format))
	}
	return errors.Join(errs...)
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
