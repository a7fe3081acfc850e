// Package postgres writes import batches into PostgreSQL using the COPY
// protocol.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/sheetimport/internal/sink"
)

// DB is the subset of *pgxpool.Pool the writer needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Writer implements sink.Writer on top of a pgx pool or connection.
type Writer struct {
	db    DB
	close func()
}

var _ sink.Writer = (*Writer)(nil)

// New wraps an existing pool or connection. Close on the returned writer
// does not close db.
func New(db DB) *Writer {
	return &Writer{db: db}
}

// Open creates a pool from cfg and verifies it with a ping.
func Open(ctx context.Context, cfg PoolConfig) (*Writer, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Writer{db: pool, close: pool.Close}, nil
}

// Close releases the pool when the writer created it.
func (w *Writer) Close() error {
	if w.close != nil {
		w.close()
	}
	return nil
}

// EnsureTable creates the import table when missing.
func (w *Writer) EnsureTable(ctx context.Context, table string, columns []string) error {
	if err := sink.CheckIdentifiers(append([]string{table}, columns...)...); err != nil {
		return err
	}
	if _, err := w.db.Exec(ctx, createTableSQL(table, columns)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// WriteBatch copies rows into table.
func (w *Writer) WriteBatch(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := sink.CheckIdentifiers(append([]string{table}, columns...)...); err != nil {
		return 0, err
	}

	n, err := w.db.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

func createTableSQL(table string, columns []string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(pgx.Identifier{table}.Sanitize())
	b.WriteString(" (\n\tid BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY")
	for _, c := range columns {
		b.WriteString(",\n\t")
		b.WriteString(pgx.Identifier{c}.Sanitize())
		b.WriteString(" TEXT")
	}
	b.WriteString(",\n\t")
	b.WriteString(pgx.Identifier{sink.RunIDColumn}.Sanitize())
	b.WriteString(" TEXT")
	b.WriteString(",\n\t")
	b.WriteString(pgx.Identifier{sink.ImportedAtColumn}.Sanitize())
	b.WriteString(" TIMESTAMPTZ NOT NULL DEFAULT now()\n)")
	return b.String()
}
