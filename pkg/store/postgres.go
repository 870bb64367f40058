package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresConfig configures the PostgreSQL store.
type PostgresConfig struct {
	// ConnectionString is a libpq style DSN or URL.
	ConnectionString string
	MaxConns         int32
	Statements       Statements
}

// pgExecer is the subset of *pgxpool.Pool used by PostgresExecutor.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresExecutor writes records with pgx named arguments; statements use
// "@Name" placeholders.
type PostgresExecutor struct {
	db         pgExecer
	statements Statements
	logger     zerolog.Logger
}

// NewPostgresExecutor creates the connection pool and verifies connectivity.
func NewPostgresExecutor(ctx context.Context, cfg PostgresConfig, logger zerolog.Logger) (*PostgresExecutor, error) {
	if cfg.ConnectionString == "" {
		return nil, errors.New("postgres connection string is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	logger.Info().Str("host", poolCfg.ConnConfig.Host).Str("database", poolCfg.ConnConfig.Database).Msg("Connected to PostgreSQL.")
	return newPostgresExecutor(pool, cfg.Statements, logger), nil
}

func newPostgresExecutor(db pgExecer, statements Statements, logger zerolog.Logger) *PostgresExecutor {
	return &PostgresExecutor{
		db:         db,
		statements: statements,
		logger:     logger.With().Str("component", "PostgresExecutor").Logger(),
	}
}

// Insert executes the kind's statement with the record's parameters.
func (e *PostgresExecutor) Insert(ctx context.Context, rec measurement.Record) error {
	stmt, err := e.statements.statementFor(rec)
	if err != nil {
		return err
	}
	args := pgx.NamedArgs{}
	for _, p := range rec.Measurement.Params() {
		args[p.Name] = p.Value
	}
	if _, err := e.db.Exec(ctx, stmt, args); err != nil {
		return fmt.Errorf("failed to insert %s record: %w", rec.Kind, err)
	}
	return nil
}

// Close closes the pool.
func (e *PostgresExecutor) Close() error {
	e.db.Close()
	e.logger.Info().Msg("PostgreSQL pool closed.")
	return nil
}
