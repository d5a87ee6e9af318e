package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Ashfaaq98/imaging-case-console/internal/bus"
	"github.com/Ashfaaq98/imaging-case-console/internal/filter"
	"github.com/Ashfaaq98/imaging-case-console/internal/logging"
	"github.com/Ashfaaq98/imaging-case-console/internal/metrics"
	"github.com/Ashfaaq98/imaging-case-console/internal/remote"
	"github.com/Ashfaaq98/imaging-case-console/internal/repository"
	"github.com/Ashfaaq98/imaging-case-console/internal/selection"
	"github.com/Ashfaaq98/imaging-case-console/internal/store"
)

// backend bundles everything a command needs to read and mutate cases.
type backend struct {
	store    store.Store
	sql      *store.SQLStore // nil for the REST backend
	tee      *bus.Tee
	repo     *repository.Repository
	registry *prometheus.Registry
	metrics  *metrics.ConsoleMetrics
	logger   *zap.Logger
}

// newLogger builds the command logger from config. Extra outputs replace stdout.
func newLogger(cfg Config, outputs ...string) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "case-console", outputs...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// openStore selects the SQL or REST backend named by store.backend.
func openStore(cfg Config, logger *zap.Logger) (store.Store, *store.SQLStore, error) {
	switch cfg.Store.Backend {
	case "", "sql":
		s, err := store.NewStore(store.Options{
			Driver:      cfg.Database.Driver,
			Path:        cfg.Database.Path,
			DSN:         cfg.Database.DSN,
			PrincipalID: cfg.Principal.ID,
			Logger:      logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize store: %w", err)
		}
		return s, s, nil
	case "rest":
		s, err := remote.New(remote.Options{
			BaseURL:     cfg.Remote.URL,
			APIKey:      cfg.Remote.APIKey,
			AccessToken: cfg.Remote.AccessToken,
			Timeout:     cfg.Remote.Timeout,
			RetryCount:  cfg.Remote.Retries,
			Logger:      logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize remote store: %w", err)
		}
		return s, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q (want sql or rest)", cfg.Store.Backend)
	}
}

// openBackend wires store, bus, metrics and repository. The repository is
// not started and holds no cases until the caller refetches.
func openBackend(cfg Config, logger *zap.Logger) (*backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	st, sqlStore, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m, err := metrics.NewConsoleMetrics(registry)
	if err != nil {
		if sqlStore != nil {
			sqlStore.Close()
		}
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	tee := bus.NewTee(bus.NewBus(cfg.Redis.URL, logger))
	repo := repository.New(repository.Options{
		Store:        st,
		Bus:          tee,
		Metrics:      m,
		Logger:       logger,
		PollInterval: cfg.Poll.Interval,
	})

	return &backend{
		store:    st,
		sql:      sqlStore,
		tee:      tee,
		repo:     repo,
		registry: registry,
		metrics:  m,
		logger:   logger,
	}, nil
}

// selection returns a coordinator bound to engine that mutates through the repository.
func (b *backend) selection(cfg Config, engine *filter.Engine, actor string) *selection.Coordinator {
	opts := selection.Options{
		Mutator:     b.repo,
		ExportDir:   cfg.Export.Dir,
		Concurrency: cfg.Bulk.Concurrency,
		RPS:         cfg.Bulk.RPS,
		Actor:       actor,
		Metrics:     b.metrics,
		Logger:      b.logger,
	}
	if b.sql != nil {
		opts.Auditor = b.sql
	}
	c := selection.New(opts)
	if engine != nil {
		c.Bind(engine)
	}
	return c
}

// Close stops the repository and releases the bus and database.
func (b *backend) Close() {
	b.repo.Close()
	if err := b.tee.Close(); err != nil {
		b.logger.Warn("failed to close bus", zap.Error(err))
	}
	if b.sql != nil {
		if err := b.sql.Close(); err != nil {
			b.logger.Warn("failed to close store", zap.Error(err))
		}
	}
}
