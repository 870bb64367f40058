package main

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-hostwatch/pkg/cache"
	"github.com/illmade-knight/go-hostwatch/pkg/config"
	"github.com/illmade-knight/go-hostwatch/pkg/eventbus"
	"github.com/illmade-knight/go-hostwatch/pkg/historian"
	"github.com/illmade-knight/go-hostwatch/pkg/metrics"
	"github.com/illmade-knight/go-hostwatch/pkg/store"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// historianStack owns everything the historian needs and releases it in
// reverse order of creation.
type historianStack struct {
	historian *historian.Historian
	drain     *historian.Drain
	executor  store.Executor
	latest    cache.SnapshotCache
	closers   []func() error
	logger    zerolog.Logger
}

func newHistorianStack(ctx context.Context, cfg *config.Config, bus *eventbus.Bus, m *metrics.Metrics, logger zerolog.Logger) (*historianStack, error) {
	h := &historianStack{logger: logger}
	ok := false
	defer func() {
		if !ok {
			h.Close()
		}
	}()

	executor, err := openExecutor(ctx, cfg.Historian, logger)
	if err != nil {
		return nil, err
	}
	h.executor = executor
	h.closers = append(h.closers, executor.Close)

	if err := h.openCache(ctx, cfg.Historian.Cache, logger); err != nil {
		return nil, err
	}

	opts := []historian.Option{
		historian.WithMetrics(m),
		historian.WithInterval(cfg.Historian.DrainInterval),
		historian.WithRoutes(cfg.Historian.Routes...),
		historian.WithSubscribeQoS(byte(cfg.Measurements.QoS)),
	}
	if h.latest != nil {
		opts = append(opts, historian.WithLatestCache(h.latest))
	}

	queue := historian.NewQueue()
	if h.historian, err = historian.New(bus, queue, logger, opts...); err != nil {
		return nil, err
	}
	if h.drain, err = historian.NewDrain(queue, executor, logger, opts...); err != nil {
		return nil, err
	}
	if err := h.historian.Start(); err != nil {
		return nil, err
	}
	h.closers = append(h.closers, func() error {
		h.historian.Stop()
		return nil
	})
	ok = true
	return h, nil
}

func openExecutor(ctx context.Context, cfg config.HistorianConfig, logger zerolog.Logger) (store.Executor, error) {
	statements, err := store.ParseStatements(cfg.Statements)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "sqlite":
		sqliteCfg := store.SQLiteConfig{
			Path:       cfg.SQLite.Path,
			PoolSize:   cfg.SQLite.PoolSize,
			Statements: statements,
		}
		if cfg.SQLite.SchemaFile != "" {
			schema, err := os.ReadFile(cfg.SQLite.SchemaFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read sqlite schema: %w", err)
			}
			sqliteCfg.Schema = string(schema)
		} else if len(statements) == 0 {
			sqliteCfg.Schema = store.DefaultSQLiteSchema
			sqliteCfg.Statements = store.DefaultSQLiteStatements()
		}
		return store.NewSQLiteExecutor(ctx, sqliteCfg, logger)
	case "postgres":
		return store.NewPostgresExecutor(ctx, store.PostgresConfig{
			ConnectionString: cfg.Postgres.ConnectionString,
			MaxConns:         cfg.Postgres.MaxConns,
			Statements:       statements,
		}, logger)
	case "bigquery":
		return store.NewBigQueryExecutor(ctx, store.BigQueryConfig{
			ProjectID:       cfg.BigQuery.ProjectID,
			DatasetID:       cfg.BigQuery.DatasetID,
			CredentialsFile: cfg.BigQuery.CredentialsFile,
			Statements:      statements,
		}, logger)
	}
	return nil, fmt.Errorf("unknown historian backend %q", cfg.Backend)
}

func (h *historianStack) openCache(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) error {
	switch cfg.Backend {
	case "", "none":
		return nil
	case "memory":
		h.latest = cache.NewInMemorySnapshotCache()
	case "redis":
		c, err := cache.NewRedisSnapshotCache(ctx, &cache.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			CacheTTL:  cfg.Redis.TTL,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
		if err != nil {
			return err
		}
		h.latest = c
	case "firestore":
		var opts []option.ClientOption
		if cfg.Firestore.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Firestore.CredentialsFile))
		}
		client, err := firestore.NewClient(ctx, cfg.Firestore.ProjectID, opts...)
		if err != nil {
			return fmt.Errorf("failed to create firestore client: %w", err)
		}
		h.closers = append(h.closers, client.Close)
		c, err := cache.NewFirestoreSnapshotCache(client, cfg.Firestore.Collection)
		if err != nil {
			return err
		}
		h.latest = c
	default:
		return fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	h.closers = append(h.closers, h.latest.Close)
	logger.Info().Str("backend", cfg.Backend).Msg("Latest-value cache enabled.")
	return nil
}

// Close releases the stack. Records still queued are not persisted.
func (h *historianStack) Close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil {
			h.logger.Error().Err(err).Msg("Failed to close historian resource.")
		}
	}
	h.closers = nil
}
