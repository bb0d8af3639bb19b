// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Command trac-gateway runs the API Gateway: the protocol negotiator
// and declarative router fronting the Metadata Store and Job
// Orchestrator services behind a single port.
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

	"github.com/trac-platform/trac/internal/config"
	"github.com/trac-platform/trac/internal/gateway"
	"github.com/trac-platform/trac/internal/gateway/grpcproxy"
	"github.com/trac-platform/trac/internal/gateway/grpcweb"
	"github.com/trac-platform/trac/internal/gateway/h2proxy"
	"github.com/trac-platform/trac/internal/gateway/httpproxy"
	"github.com/trac-platform/trac/internal/gateway/internalapi"
	"github.com/trac-platform/trac/internal/gateway/restproxy"
	"github.com/trac-platform/trac/pkg/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "trac-gateway",
		Short:         "Run the TRAC API Gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	config.BindCommonFlags(cmd.Flags())
	cmd.Flags().String("gateway.listen-addr", "", "address the gateway listens on")
	cmd.Flags().Duration("gateway.idle-timeout", 0, "per-connection idle timeout")
	cmd.Flags().String("gateway.routes-file", "", "path to the declarative routes YAML file")
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

	if cfg.Gateway.RoutesFile == "" {
		return fmt.Errorf("gateway.routes-file is required")
	}
	routes, restMappings, err := config.LoadRoutes(cfg.Gateway.RoutesFile)
	if err != nil {
		return fmt.Errorf("loading routes: %w", err)
	}

	reg := telemetry.New()
	health := internalapi.New()
	resolver := newHandlerResolver(routes, restMappings, health, reg, log)
	router := gateway.NewRouter(routes, gateway.DispatchTo(resolver))

	listener, err := net.Listen("tcp", cfg.Gateway.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", cfg.Gateway.ListenAddr, err)
	}

	negotiatorCfg := gateway.NegotiatorConfig{IdleTimeout: cfg.Gateway.IdleTimeout, Keepalive: gateway.DefaultNegotiatorConfig().Keepalive}
	server := gateway.NewServer(listener, negotiatorCfg, router, log)

	metricsServer := &http.Server{Addr: cfg.Telemetry.MetricsAddr, Handler: reg.Handler()}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics server listening", zap.String("addr", cfg.Telemetry.MetricsAddr))
		errCh <- metricsServer.ListenAndServe()
	}()

	log.Info("gateway listening", zap.String("addr", cfg.Gateway.ListenAddr), zap.Int("routes", len(routes)))
	runErr := server.Run(ctx)
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

// handlerResolver implements gateway.Handlers, building (and caching)
// the per-class proxy/translator a Route needs and instrumenting it
// with telemetry keyed by the route's ProtocolClass.
type handlerResolver struct {
	restMappings map[string][]restproxy.Mapping
	health       *internalapi.Handler
	reg          *telemetry.Registry
	log          *zap.Logger
	cache        map[gateway.Route]http.Handler
}

func newHandlerResolver(routes []gateway.Route, restMappings map[string][]restproxy.Mapping, health *internalapi.Handler, reg *telemetry.Registry, log *zap.Logger) *handlerResolver {
	return &handlerResolver{
		restMappings: restMappings,
		health:       health,
		reg:          reg,
		log:          log,
		cache:        make(map[gateway.Route]http.Handler, len(routes)),
	}
}

// HandlerFor implements gateway.Handlers.
func (h *handlerResolver) HandlerFor(route gateway.Route) http.Handler {
	if cached, ok := h.cache[route]; ok {
		return cached
	}

	var inner http.Handler
	switch route.Class {
	case gateway.HTTPProxy:
		inner = httpproxy.New(route.Target, h.log)
	case gateway.GRPCProxy:
		inner = newGRPCProxyHandler(route.Target, h.log)
	case gateway.GRPCWeb:
		inner = grpcweb.New(route.Target, h.log)
	case gateway.RESTMapped:
		inner = restproxy.New(route.Target, h.restMappings[route.Prefix], h.log)
	case gateway.Internal:
		inner = h.health
	default:
		inner = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "unroutable protocol class", http.StatusBadGateway)
		})
	}

	instrumented := h.reg.InstrumentGateway(route.Class.String(), inner)
	h.cache[route] = instrumented
	return instrumented
}

// newGRPCProxyHandler serves a GRPC_PROXY Route, picking the
// passthrough grpcproxy builds when it can — which needs Hijack, so
// only the HTTP/1 listener's plain net/http server supports it — and
// falling back to h2proxy's http2.Transport-based reframing once a
// request has already been demultiplexed off a shared HTTP/2
// connection by the HTTP/2 listener's h2c server, where no single
// net.Conn belongs to just one request any more.
func newGRPCProxyHandler(target gateway.Target, log *zap.Logger) http.Handler {
	raw := grpcproxy.New(target, log)
	reframed := h2proxy.New(target, log)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if proto, ok := gateway.ProtocolFromContext(r.Context()); ok && proto == gateway.ProtoHTTP2 {
			reframed.ServeHTTP(w, r)
			return
		}
		raw.ServeHTTP(w, r)
	})
}

func newLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	_ = zapCfg.Level.UnmarshalText([]byte(level))
	return zapCfg.Build()
}
