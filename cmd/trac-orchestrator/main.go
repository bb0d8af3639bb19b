// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Command trac-orchestrator runs the Job Manager: the single
// cooperative scan loop that advances jobs through the executor driver
// and writes results back through the Trusted Metadata API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trac-platform/trac/internal/config"
	"github.com/trac-platform/trac/internal/dal/postgres"
	"github.com/trac-platform/trac/internal/dal/sqlite"
	"github.com/trac-platform/trac/internal/dal/sqlstore"
	"github.com/trac-platform/trac/internal/executor"
	"github.com/trac-platform/trac/internal/executor/localdriver"
	"github.com/trac-platform/trac/internal/jobcache"
	"github.com/trac-platform/trac/internal/jobcache/membackend"
	"github.com/trac-platform/trac/internal/jobcache/redisbackend"
	"github.com/trac-platform/trac/internal/jobmanager"
	"github.com/trac-platform/trac/internal/metaservices"
	"github.com/trac-platform/trac/pkg/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "trac-orchestrator",
		Short:         "Run the TRAC Job Manager scan loop",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	config.BindCommonFlags(cmd.Flags())
	cmd.Flags().Duration("orchestrator.poll-interval", 0, "job cache scan cadence")
	cmd.Flags().Duration("orchestrator.watchdog-threshold", 0, "staleness before a non-terminal job is force-failed as LOST")
	cmd.Flags().String("orchestrator.cache-backend", "", "job cache backend: memory or redis")
	cmd.Flags().String("orchestrator.cache-addr", "", "redis address, when cache-backend is redis")
	cmd.Flags().String("orchestrator.executor-driver", "", "executor driver: local")
	cmd.Flags().String("metadata.driver", "", "storage driver backing the in-process Trusted Metadata API: sqlite3 or postgres")
	cmd.Flags().String("metadata.dsn", "", "data source name / file path for the configured driver")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log, err := newLogger(cfg.Telemetry.LogLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	store, err := openStore(log, cfg)
	if err != nil {
		return fmt.Errorf("opening metadata store: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrating metadata store: %w", err)
	}

	cache, err := openCache(cfg)
	if err != nil {
		return fmt.Errorf("opening job cache: %w", err)
	}

	driver, err := openDriver(log, cfg)
	if err != nil {
		return fmt.Errorf("configuring executor driver: %w", err)
	}

	metadataWriter := metaservices.New(log, store)
	processor := jobmanager.NewProcessor(driver, metadataWriter, nil, nil)

	jmCfg := jobmanager.Config{
		PollInterval:      cfg.Orchestrator.PollInterval,
		TicketLifetime:    jobcache.DefaultTicketLifetime,
		WatchdogThreshold: cfg.Orchestrator.WatchdogThreshold,
	}
	manager := jobmanager.New(log, cache, processor, jmCfg)

	reg := telemetry.New()
	metricsServer := &http.Server{Addr: cfg.Telemetry.MetricsAddr, Handler: reg.Handler()}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics server listening", zap.String("addr", cfg.Telemetry.MetricsAddr))
		errCh <- metricsServer.ListenAndServe()
	}()

	log.Info("job manager scan loop starting", zap.Duration("poll_interval", jmCfg.PollInterval))
	runErr := manager.Run(ctx)
	_ = metricsServer.Close()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	default:
	}
	if runErr != nil && runErr != context.Canceled {
		return runErr
	}
	return nil
}

func openStore(log *zap.Logger, cfg config.Config) (*sqlstore.Store, error) {
	switch cfg.Metadata.Driver {
	case "postgres":
		return postgres.Open(log, postgres.Config{DSN: cfg.Metadata.DSN})
	case "sqlite3", "":
		return sqlite.Open(log, cfg.Metadata.DSN)
	default:
		return nil, fmt.Errorf("unknown metadata.driver %q", cfg.Metadata.Driver)
	}
}

func openCache(cfg config.Config) (*jobcache.Cache, error) {
	switch cfg.Orchestrator.CacheBackend {
	case "redis":
		backend, err := redisbackend.OpenClient(context.Background(), cfg.Orchestrator.CacheAddr, "", 0)
		if err != nil {
			return nil, err
		}
		return jobcache.New(backend), nil
	case "memory", "":
		return jobcache.New(membackend.New()), nil
	default:
		return nil, fmt.Errorf("unknown orchestrator.cache-backend %q", cfg.Orchestrator.CacheBackend)
	}
}

// openDriver selects the executor.Driver backing the scan loop. Only
// "local" exists today; the switch exists because the driver is meant
// to be pluggable, and a future batch-runtime driver registers here
// rather than at jobmanager's call sites.
func openDriver(log *zap.Logger, cfg config.Config) (executor.Driver, error) {
	switch cfg.Orchestrator.ExecutorDriver {
	case "local", "":
		return executor.NewRetryingDriver(localdriver.New(log, runLocalCommand)), nil
	default:
		return nil, fmt.Errorf("unknown orchestrator.executor-driver %q", cfg.Orchestrator.ExecutorDriver)
	}
}

// runLocalCommand is the localdriver.RunFunc used by the default
// "local" executor driver: it runs a job's command as a child process
// in-process, standing in for whatever pluggable batch runtime a
// production deployment would otherwise register as executor.Driver.
func runLocalCommand(ctx context.Context, _ string, spec executor.JobSpec) (executor.Result, error) {
	if len(spec.Command) == 0 {
		return executor.Result{}, fmt.Errorf("job spec has no command")
	}

	c := exec.CommandContext(ctx, spec.Command[0], spec.Command[1:]...)
	c.Dir = spec.WorkDir
	for k, v := range spec.Env {
		c.Env = append(c.Env, k+"="+v)
	}

	output, err := c.CombinedOutput()
	if err != nil {
		return executor.Result{}, fmt.Errorf("running job command: %w: %s", err, output)
	}

	return executor.Result{ResultMetadata: map[string]string{"output": string(output)}}, nil
}

func newLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	_ = zapCfg.Level.UnmarshalText([]byte(level))
	return zapCfg.Build()
}
