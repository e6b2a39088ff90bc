package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/alfred-ops/restaurant-core/internal/analytics"
	"github.com/alfred-ops/restaurant-core/internal/config"
	"github.com/alfred-ops/restaurant-core/internal/logger"
	"github.com/alfred-ops/restaurant-core/internal/redisclient"
	"github.com/alfred-ops/restaurant-core/internal/store"
)

// app bundles the core's long-lived dependencies, built once per process
// invocation and threaded into whichever subcommand is running.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    *store.Store
	redis    *redisclient.Client
	registry *prometheus.Registry
	metrics  *analytics.Metrics
}

// newApp loads configuration and opens the store/redis connections shared
// by every subcommand.
func newApp() (*app, error) {
	cfg := config.Load()
	log := logger.New(cfg)

	st, err := store.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	rc, err := redisclient.New(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open redis: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := analytics.NewMetrics(registry)

	return &app{
		cfg:      cfg,
		log:      log,
		store:    st,
		redis:    rc,
		registry: registry,
		metrics:  metrics,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("failed to close store")
	}
	if err := a.redis.Close(); err != nil {
		a.log.Error().Err(err).Msg("failed to close redis")
	}
}
