// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/trac-platform/trac/internal/config"
)

func TestLoadAppliesDefaultsWithNoFileOrFlags(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.Orchestrator.PollInterval)
	require.Equal(t, 15*time.Minute, cfg.Orchestrator.WatchdogThreshold)
	require.Equal(t, ":8080", cfg.Gateway.ListenAddr)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trac.yaml")
	require.NoError(t, os.WriteFile(path, []byte("orchestrator:\n  poll-interval: 5s\n  cache-backend: redis\n"), 0o600))

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.Orchestrator.PollInterval)
	require.Equal(t, "redis", cfg.Orchestrator.CacheBackend)
}

func TestLoadFlagsOverrideFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trac.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  listen-addr: \":8081\"\n"), 0o600))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("gateway.listen-addr", "", "")
	require.NoError(t, fs.Parse([]string{"--gateway.listen-addr=:9999"}))

	cfg, err := config.Load(path, fs)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Gateway.ListenAddr)
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/trac.yaml", nil)
	require.Error(t, err)
}
