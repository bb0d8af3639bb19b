// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Command trac-metadata runs the Metadata Store service: the Public and
// Trusted Metadata API gRPC servers backed by the configured SQL store.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/trac-platform/trac/internal/config"
	"github.com/trac-platform/trac/internal/dal/postgres"
	"github.com/trac-platform/trac/internal/dal/sqlite"
	"github.com/trac-platform/trac/internal/dal/sqlstore"
	"github.com/trac-platform/trac/internal/metaapi"
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
		Use:           "trac-metadata",
		Short:         "Serve the TRAC Metadata Store's Public and Trusted APIs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	config.BindCommonFlags(cmd.Flags())
	cmd.Flags().String("metadata.listen-addr", "", "address the metadata gRPC server listens on")
	cmd.Flags().String("metadata.driver", "", "storage driver: sqlite3 or postgres")
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
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrating metadata store: %w", err)
	}

	service := metaservices.New(log, store)
	grpcServer := grpc.NewServer()
	metaapi.RegisterPublicServer(grpcServer, metaapi.NewPublicServer(service))
	metaapi.RegisterTrustedServer(grpcServer, metaapi.NewTrustedServer(service))

	listener, err := net.Listen("tcp", cfg.Metadata.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", cfg.Metadata.ListenAddr, err)
	}

	reg := telemetry.New()
	metricsServer := &http.Server{Addr: cfg.Telemetry.MetricsAddr, Handler: reg.Handler()}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		log.Info("metadata gRPC server listening", zap.String("addr", cfg.Metadata.ListenAddr))
		errCh <- grpcServer.Serve(listener)
	}()
	go func() {
		log.Info("metrics server listening", zap.String("addr", cfg.Telemetry.MetricsAddr))
		errCh <- metricsServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		grpcServer.GracefulStop()
		return metricsServer.Close()
	case err := <-errCh:
		return err
	}
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

func newLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	// An empty or unrecognized level keeps NewProductionConfig's default
	// ("info") rather than failing startup over a cosmetic flag.
	_ = zapCfg.Level.UnmarshalText([]byte(level))
	return zapCfg.Build()
}
