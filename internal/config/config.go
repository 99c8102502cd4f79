// Package config builds the single configuration record passed into every
// component. The core packages never read ambient process state; viper is
// confined to Load.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Chain   ChainConfig
	Storage StorageConfig
	Notify  NotifyConfig
	Server  ServerConfig
	Watch   WatchConfig
}

// ChainConfig controls the monitored file set and hashing.
type ChainConfig struct {
	File      string   // ledger file path (file backend)
	LogDir    string   // directory the monitored filenames resolve under
	LogFiles  []string // monitored filenames; empty means the default set
	Algorithm string   // sha256 | blake2b
}

// StorageConfig selects and parameterizes the ledger backend.
type StorageConfig struct {
	Backend     string // file | sqlite | postgres | memory
	SQLiteDSN   string
	PostgresURL string
}

// NotifyConfig controls the webhook sink.
type NotifyConfig struct {
	WebhookURL string // empty disables delivery (noop sink)
	RatePerMin int
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port           int
	RateLimitRPS   int
	RateLimitBurst int
	CORSOrigins    []string
}

// WatchConfig controls the periodic append/drift loop.
type WatchConfig struct {
	Interval time.Duration
}

// Load reads configuration from cfgFile (or chainguard.yaml in configs/
// and the working directory), with CHAINGUARD_* environment variables
// overriding file values. Missing config files fall back to defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("chainguard")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("chainguard")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain.file", "./logs/hash_chain.log")
	v.SetDefault("chain.log_dir", "./logs")
	v.SetDefault("chain.log_files", []string{})
	v.SetDefault("chain.algorithm", "sha256")
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.sqlite_dsn", "./logs/chainguard.db")
	v.SetDefault("storage.postgres_url", "")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.rate_per_min", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 20)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("watch.interval", "60s")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfgFile == "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if cfgFile != "" {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	cfg := &Config{
		Chain: ChainConfig{
			File:      v.GetString("chain.file"),
			LogDir:    v.GetString("chain.log_dir"),
			LogFiles:  v.GetStringSlice("chain.log_files"),
			Algorithm: v.GetString("chain.algorithm"),
		},
		Storage: StorageConfig{
			Backend:     v.GetString("storage.backend"),
			SQLiteDSN:   v.GetString("storage.sqlite_dsn"),
			PostgresURL: v.GetString("storage.postgres_url"),
		},
		Notify: NotifyConfig{
			WebhookURL: v.GetString("notify.webhook_url"),
			RatePerMin: v.GetInt("notify.rate_per_min"),
		},
		Server: ServerConfig{
			Port:           v.GetInt("server.port"),
			RateLimitRPS:   v.GetInt("server.rate_limit_rps"),
			RateLimitBurst: v.GetInt("server.rate_limit_burst"),
			CORSOrigins:    v.GetStringSlice("server.cors_origins"),
		},
		Watch: WatchConfig{
			Interval: v.GetDuration("watch.interval"),
		},
	}

	switch cfg.Storage.Backend {
	case "file", "sqlite", "postgres", "memory":
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == "postgres" && cfg.Storage.PostgresURL == "" {
		return nil, fmt.Errorf("storage.postgres_url is required for the postgres backend")
	}
	if cfg.Watch.Interval <= 0 {
		return nil, fmt.Errorf("watch.interval must be positive, got %s", cfg.Watch.Interval)
	}
	return cfg, nil
}
