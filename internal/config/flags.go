// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package config

import (
	"github.com/spf13/pflag"
)

// BindCommonFlags registers the flags every service binary shares
// (config file path plus the telemetry section) onto fs, returning the
// config file path flag's backing variable. Service-specific flags
// (e.g. orchestrator's --poll-interval) are registered by the caller
// before Load is called, so viper's flag layer sees the full set.
func BindCommonFlags(fs *pflag.FlagSet) *string {
	configPath := fs.String("config", "", "path to a YAML configuration file")
	fs.String("telemetry.metrics-addr", "", "address the Prometheus metrics endpoint listens on")
	fs.String("telemetry.log-level", "", "zap log level (debug, info, warn, error)")
	return configPath
}
