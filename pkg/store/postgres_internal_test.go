package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecer struct {
	mu     sync.Mutex
	sql    []string
	args   []pgx.NamedArgs
	err    error
	closed bool
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	f.sql = append(f.sql, sql)
	if len(args) == 1 {
		if named, ok := args[0].(pgx.NamedArgs); ok {
			f.args = append(f.args, named)
		}
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeExecer) Close() { f.closed = true }

func TestPostgresExecutor_Insert(t *testing.T) {
	// Arrange
	db := &fakeExecer{}
	exec := newPostgresExecutor(db, Statements{
		measurement.KindTCPPortState: "INSERT INTO tcp_port_state VALUES (@Timestamp, @Port, @Status, @After)",
	}, zerolog.Nop())
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &measurement.TCPPortState{
		Timestamp: now, Source: "h1", Target: "db", Port: 5432,
		Status: measurement.TCPPortUp, After: measurement.Duration(1500 * time.Millisecond),
	}

	// Act
	err := exec.Insert(context.Background(), measurement.NewRecord(m, now))

	// Assert
	require.NoError(t, err)
	require.Len(t, db.args, 1)
	args := db.args[0]
	assert.Equal(t, 5432, args["Port"])
	assert.Equal(t, 1, args["Status"])
	assert.Equal(t, "Up", args["StatusAsText"])
	assert.InDelta(t, 1.5, args["After"], 1e-9)
	assert.Equal(t, now.Local(), args["Timestamp"])
}

func TestPostgresExecutor_Errors(t *testing.T) {
	now := time.Now()
	rec := measurement.NewRecord(&measurement.Load{Timestamp: now, Hostname: "h1"}, now)

	t.Run("missing statement", func(t *testing.T) {
		exec := newPostgresExecutor(&fakeExecer{}, Statements{}, zerolog.Nop())
		assert.ErrorIs(t, exec.Insert(context.Background(), rec), ErrNoStatement)
	})

	t.Run("exec failure is wrapped", func(t *testing.T) {
		boom := errors.New("connection reset")
		exec := newPostgresExecutor(&fakeExecer{err: boom}, Statements{measurement.KindLoad: "INSERT"}, zerolog.Nop())
		assert.ErrorIs(t, exec.Insert(context.Background(), rec), boom)
	})

	t.Run("close closes pool", func(t *testing.T) {
		db := &fakeExecer{}
		exec := newPostgresExecutor(db, nil, zerolog.Nop())
		require.NoError(t, exec.Close())
		assert.True(t, db.closed)
	})
}

func TestNewPostgresExecutor_RequiresConnectionString(t *testing.T) {
	_, err := NewPostgresExecutor(context.Background(), PostgresConfig{}, zerolog.Nop())
	assert.Error(t, err)
}
