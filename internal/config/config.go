// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package config loads the layered configuration for each of the three
// services (Metadata Store, Job Orchestrator, API Gateway): defaults,
// then an optional YAML file, then TRAC_* environment variables, then
// command-line flags — each layer overriding the last, via spf13/viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Metadata holds the Metadata Store's tunables.
type Metadata struct {
	ListenAddr string `mapstructure:"listen-addr" yaml:"listen_addr"`
	Driver     string `mapstructure:"driver" yaml:"driver"`
	DSN        string `mapstructure:"dsn" yaml:"dsn"`
}

// Orchestrator holds the Job Manager's tunables.
type Orchestrator struct {
	PollInterval      time.Duration `mapstructure:"poll-interval" yaml:"poll_interval"`
	TicketLifetime    time.Duration `mapstructure:"ticket-lifetime" yaml:"ticket_lifetime"`
	WatchdogThreshold time.Duration `mapstructure:"watchdog-threshold" yaml:"watchdog_threshold"`
	CacheBackend      string        `mapstructure:"cache-backend" yaml:"cache_backend"`
	CacheAddr         string        `mapstructure:"cache-addr" yaml:"cache_addr"`
	ExecutorDriver    string        `mapstructure:"executor-driver" yaml:"executor_driver"`
}

// Gateway holds the protocol gateway's tunables.
type Gateway struct {
	ListenAddr  string        `mapstructure:"listen-addr" yaml:"listen_addr"`
	IdleTimeout time.Duration `mapstructure:"idle-timeout" yaml:"idle_timeout"`
	RoutesFile  string        `mapstructure:"routes-file" yaml:"routes_file"`
}

// Telemetry holds the shared metrics/logging tunables every service
// carries regardless of which observability features its own feature
// set otherwise excludes.
type Telemetry struct {
	MetricsAddr string `mapstructure:"metrics-addr" yaml:"metrics_addr"`
	LogLevel    string `mapstructure:"log-level" yaml:"log_level"`
}

// Config is the union of every service's configuration; a given binary
// only reads the sections it needs.
type Config struct {
	Metadata     Metadata     `mapstructure:"metadata" yaml:"metadata"`
	Orchestrator Orchestrator `mapstructure:"orchestrator" yaml:"orchestrator"`
	Gateway      Gateway      `mapstructure:"gateway" yaml:"gateway"`
	Telemetry    Telemetry    `mapstructure:"telemetry" yaml:"telemetry"`
}

// defaults sets the documented defaults (2s poll, 30s ticket, 15min
// watchdog, 60s gateway idle timeout) so a binary run with no flags,
// no env, and no file still behaves sensibly out of the box.
func defaults() Config {
	return Config{
		Metadata: Metadata{
			ListenAddr: ":7070",
			Driver:     "sqlite3",
			DSN:        "trac-metadata.db",
		},
		Orchestrator: Orchestrator{
			PollInterval:      2 * time.Second,
			TicketLifetime:    30 * time.Second,
			WatchdogThreshold: 15 * time.Minute,
			CacheBackend:      "memory",
			ExecutorDriver:    "local",
		},
		Gateway: Gateway{
			ListenAddr:  ":8080",
			IdleTimeout: 60 * time.Second,
		},
		Telemetry: Telemetry{
			MetricsAddr: ":9090",
			LogLevel:    "info",
		},
	}
}

// Load builds a Config from, in increasing precedence: compiled-in
// defaults, an optional YAML file at configPath (skipped if configPath is
// empty; a configPath that cannot be read is an error), TRAC_*
// environment variables, and flags already parsed into fs.
func Load(configPath string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	applyDefaults(v, defaults())

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %q: %w", configPath, err)
		}
	}

	v.SetEnvPrefix("trac")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, fmt.Errorf("binding flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// applyDefaults seeds every viper key from the Config built by
// defaults(), keyed the same way mapstructure tags resolve nested keys
// ("orchestrator.poll-interval").
func applyDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("metadata.listen-addr", cfg.Metadata.ListenAddr)
	v.SetDefault("metadata.driver", cfg.Metadata.Driver)
	v.SetDefault("metadata.dsn", cfg.Metadata.DSN)

	v.SetDefault("orchestrator.poll-interval", cfg.Orchestrator.PollInterval)
	v.SetDefault("orchestrator.ticket-lifetime", cfg.Orchestrator.TicketLifetime)
	v.SetDefault("orchestrator.watchdog-threshold", cfg.Orchestrator.WatchdogThreshold)
	v.SetDefault("orchestrator.cache-backend", cfg.Orchestrator.CacheBackend)
	v.SetDefault("orchestrator.cache-addr", cfg.Orchestrator.CacheAddr)
	v.SetDefault("orchestrator.executor-driver", cfg.Orchestrator.ExecutorDriver)

	v.SetDefault("gateway.listen-addr", cfg.Gateway.ListenAddr)
	v.SetDefault("gateway.idle-timeout", cfg.Gateway.IdleTimeout)
	v.SetDefault("gateway.routes-file", cfg.Gateway.RoutesFile)

	v.SetDefault("telemetry.metrics-addr", cfg.Telemetry.MetricsAddr)
	v.SetDefault("telemetry.log-level", cfg.Telemetry.LogLevel)
}
