package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
	"github.com/rs/zerolog"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// SQLiteConfig configures the embedded SQLite store.
type SQLiteConfig struct {
	// Path is the database file. "file::memory:?mode=memory" style URIs work
	// with a PoolSize of 1.
	Path     string
	PoolSize int
	// Schema is executed once when the store opens.
	Schema     string
	Statements Statements
}

// SQLiteExecutor writes records through a zombiezen connection pool using
// named "@Name" parameters.
type SQLiteExecutor struct {
	pool       *sqlitex.Pool
	statements Statements
	logger     zerolog.Logger
}

// NewSQLiteExecutor opens the pool and applies the schema.
func NewSQLiteExecutor(ctx context.Context, cfg SQLiteConfig, logger zerolog.Logger) (*SQLiteExecutor, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", cfg.Path, err)
	}

	e := &SQLiteExecutor{
		pool:       pool,
		statements: cfg.Statements,
		logger:     logger.With().Str("component", "SQLiteExecutor").Logger(),
	}
	if cfg.Schema != "" {
		if err := e.applySchema(ctx, cfg.Schema); err != nil {
			_ = pool.Close()
			return nil, err
		}
	}
	e.logger.Info().Str("path", cfg.Path).Int("pool_size", poolSize).Msg("SQLite store opened.")
	return e, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

func (e *SQLiteExecutor) applySchema(ctx context.Context, schema string) error {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("failed to take sqlite connection: %w", err)
	}
	defer e.pool.Put(conn)
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return nil
}

// Insert executes the kind's statement with the record's parameters.
func (e *SQLiteExecutor) Insert(ctx context.Context, rec measurement.Record) error {
	stmt, err := e.statements.statementFor(rec)
	if err != nil {
		return err
	}

	conn, err := e.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("failed to take sqlite connection: %w", err)
	}
	defer e.pool.Put(conn)

	named := make(map[string]any)
	for _, p := range rec.Measurement.Params() {
		named["@"+p.Name] = p.Value
	}
	if err := execNamed(conn, stmt, named); err != nil {
		return fmt.Errorf("failed to insert %s record: %w", rec.Kind, err)
	}
	return nil
}

// execNamed runs query binding only the parameters it declares. Values the
// statement does not reference are ignored and declared parameters without a
// value bind as NULL.
func execNamed(conn *sqlite.Conn, query string, named map[string]any) (err error) {
	stmt, err := conn.Prepare(query)
	if err != nil {
		return err
	}
	defer func() {
		resetErr := stmt.Reset()
		if err == nil {
			err = resetErr
		}
		_ = stmt.ClearBindings()
	}()

	for i := 1; i <= stmt.BindParamCount(); i++ {
		if err := bindValue(stmt, i, named[stmt.BindParamName(i)]); err != nil {
			return fmt.Errorf("parameter %s: %w", stmt.BindParamName(i), err)
		}
	}
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return err
		}
		if !hasRow {
			return nil
		}
	}
}

// Count returns the number of rows in table. It is used by health checks
// and tests.
func (e *SQLiteExecutor) Count(ctx context.Context, table string) (int64, error) {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to take sqlite connection: %w", err)
	}
	defer e.pool.Put(conn)

	var n int64
	err = sqlitex.Execute(conn, fmt.Sprintf("SELECT COUNT(*) FROM %q", table), &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// Close closes every connection in the pool.
func (e *SQLiteExecutor) Close() error {
	if err := e.pool.Close(); err != nil {
		return fmt.Errorf("failed to close sqlite pool: %w", err)
	}
	e.logger.Info().Msg("SQLite store closed.")
	return nil
}

// bindValue binds v to the i-th parameter of stmt.
func bindValue(stmt *sqlite.Stmt, i int, v any) error {
	switch t := v.(type) {
	case nil:
		stmt.BindNull(i)
	case time.Time:
		stmt.BindText(i, t.Format(time.RFC3339Nano))
	case bool:
		stmt.BindBool(i, t)
	case string:
		stmt.BindText(i, t)
	case []byte:
		stmt.BindBytes(i, t)
	case float64:
		stmt.BindFloat(i, t)
	case float32:
		stmt.BindFloat(i, float64(t))
	case int:
		stmt.BindInt64(i, int64(t))
	case int64:
		stmt.BindInt64(i, t)
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			stmt.BindInt64(i, rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
			stmt.BindInt64(i, int64(rv.Uint()))
		case reflect.Float32, reflect.Float64:
			stmt.BindFloat(i, rv.Float())
		case reflect.String:
			stmt.BindText(i, rv.String())
		default:
			return fmt.Errorf("unsupported value type %T", v)
		}
	}
	return nil
}
