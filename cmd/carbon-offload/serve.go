package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rshade/carbon-offload/internal/auth"
	"github.com/rshade/carbon-offload/internal/carbon"
	"github.com/rshade/carbon-offload/internal/gateway"
	"github.com/rshade/carbon-offload/internal/metrics"
	"github.com/rshade/carbon-offload/internal/pricing"
	"github.com/rshade/carbon-offload/internal/regions"
	"github.com/rshade/carbon-offload/internal/savings"
	"github.com/rshade/carbon-offload/internal/server"
	"github.com/rshade/carbon-offload/internal/workload"
)

const readHeaderTimeout = 10 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var noSeed bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the gRPC health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.close(); err != nil {
					a.logger.Error().Err(err).Msg("failed to close store")
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if !noSeed {
				if err := a.ensureCatalog(ctx); err != nil {
					return err
				}
			}
			return serve(ctx, a)
		},
	}
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "do not seed the built-in regions into an empty catalog")
	return cmd
}

// buildHandler wires the core components behind the HTTP surface.
func buildHandler(ctx context.Context, a *app, registry *prometheus.Registry) (http.Handler, error) {
	recorder, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	prices, err := pricing.NewClient(a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pricing client: %w", err)
	}

	cloud := a.cfg.Cloud
	gw := gateway.NewEC2(ctx, gateway.Config{
		Enabled:         cloud.Enabled,
		AccessKeyID:     cloud.AccessKeyID,
		SecretAccessKey: cloud.SecretAccessKey,
		DefaultRegion:   cloud.DefaultRegion,
		CallTimeout:     cloud.CallTimeout,
		ManagedByTag:    cloud.ManagedByTag,
	}, a.logger, gateway.WithRecorder(recorder))

	checkRateTables(a.logger, prices, gw.SupportedInstanceTypes())

	mgr := workload.NewManager(workload.Deps{
		Repo:                 a.store,
		Catalog:              a.catalog,
		Gateway:              gw,
		Pricing:              prices,
		Recorder:             recorder,
		LocalCarbonIntensity: a.cfg.Carbon.LocalCarbonIntensity,
	}, a.logger)

	if len(a.cfg.Auth.Tokens) == 0 {
		a.logger.Warn().Msg("no AUTH_TOKENS configured; every /api/cloud request will be rejected")
	}

	srv := server.New(server.Deps{
		Manager:            mgr,
		Catalog:            a.catalog,
		Preferences:        regions.NewPreferenceService(a.store),
		Savings:            savings.NewCalculator(a.catalog, a.cfg.Carbon.LocalCarbonIntensity),
		Auth:               auth.NewStaticTokens(a.cfg.Auth.Tokens, a.cfg.Auth.Admins),
		Store:              a.store,
		Gatherer:           registry,
		Recorder:           recorder,
		CORSAllowedOrigins: a.cfg.Server.CORSAllowedOrigins,
	}, a.logger)
	return srv.Handler(), nil
}

// checkRateTables logs the loaded rate table and warns about launchable
// instance types that are missing a price or a power figure and would be
// estimated with the default tier. It returns the types missing either.
func checkRateTables(logger zerolog.Logger, prices *pricing.Client, launchable []string) []string {
	priced := prices.InstanceTypes()
	powered := carbon.InstanceTypes()
	logger.Info().
		Str("pricing_version", prices.Version()).
		Int("priced_types", len(priced)).
		Int("power_types", len(powered)).
		Msg("rate tables loaded")

	var missing []string
	for _, t := range launchable {
		hasPrice := gateway.Contains(priced, t)
		hasPower := gateway.Contains(powered, t)
		if hasPrice && hasPower {
			continue
		}
		logger.Warn().
			Str("instance_type", t).
			Bool("priced", hasPrice).
			Bool("powered", hasPower).
			Msg("instance type falls back to the default tier")
		missing = append(missing, t)
	}
	return missing
}

// serve runs the HTTP API and the gRPC health server until ctx is done,
// then drains both within the configured shutdown timeout.
func serve(ctx context.Context, a *app) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler, err := buildHandler(ctx, a, registry)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	var lis net.Listener
	if addr := a.cfg.Server.HealthAddr; addr != "" {
		lis, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info().Str("addr", httpSrv.Addr).Msg("starting HTTP API")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if lis != nil {
		grpcSrv, hs := server.NewGRPCHealth(a.logger)

		g.Go(func() error {
			a.logger.Info().Str("addr", lis.Addr().String()).Msg("starting gRPC health server")
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			server.WatchStore(gctx, a.store, hs, server.DefaultHealthInterval, a.logger)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			grpcSrv.GracefulStop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error().Err(err).Msg("HTTP shutdown failed")
			return err
		}
		return nil
	})

	return g.Wait()
}
