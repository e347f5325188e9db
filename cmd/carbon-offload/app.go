package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/rshade/carbon-offload/internal/config"
	"github.com/rshade/carbon-offload/internal/logging"
	"github.com/rshade/carbon-offload/internal/regions"
	"github.com/rshade/carbon-offload/internal/store"
	"github.com/rshade/carbon-offload/internal/store/memory"
	"github.com/rshade/carbon-offload/internal/store/sqlite"
	"github.com/rshade/carbon-offload/internal/workload"
)

// backend is everything the service persists.
type backend interface {
	regions.Repository
	regions.PreferenceRepository
	workload.Repository
	store.Pinger
}

// app is the configuration, logger and store shared by every subcommand.
type app struct {
	cfg     config.Config
	logger  zerolog.Logger
	store   backend
	catalog *regions.Catalog
	close   func() error
}

func newApp(opts *rootOptions) (*app, error) {
	boot := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Stderr)
	cfg, err := config.Load(opts.configPath, boot)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr).
		With().Str(logging.FieldComponent, "carbon-offload").Logger()

	a := &app{cfg: cfg, logger: logger, close: func() error { return nil }}
	switch cfg.Store.Driver {
	case config.DriverMemory:
		a.store = memory.New()
		logger.Warn().Msg("using in-memory store; data is lost on exit")
	default:
		db, err := sqlite.Open(cfg.Store.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		a.store = db
		a.close = db.Close
	}
	a.catalog = regions.NewCatalog(a.store, logger)
	return a, nil
}

// ensureCatalog seeds the built-in regions when the catalog is empty.
func (a *app) ensureCatalog(ctx context.Context) error {
	existing, err := a.store.ListRegions(ctx, regions.Filter{})
	if err != nil {
		return fmt.Errorf("failed to inspect region catalog: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	defaults, err := regions.DefaultRegions()
	if err != nil {
		return err
	}
	res, err := a.catalog.Seed(ctx, defaults)
	if err != nil {
		return err
	}
	a.logger.Info().Int("count", res.Count).Msg("region catalog was empty; seeded built-in regions")
	return nil
}
