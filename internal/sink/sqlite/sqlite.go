// Package sqlite writes import batches into an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/sheetimport/internal/sink"
)

// maxVars keeps multi-row inserts under SQLite's bound parameter limit.
const maxVars = 32000

// Writer implements sink.Writer for SQLite.
type Writer struct {
	db *sql.DB
}

var _ sink.Writer = (*Writer)(nil)

// Open opens (or creates) the database at dsn. Use ":memory:" for a
// throwaway database.
func Open(ctx context.Context, dsn string) (*Writer, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection so ":memory:" databases are shared between calls.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Writer{db: db}, nil
}

// DB exposes the underlying handle.
func (w *Writer) DB() *sql.DB { return w.db }

func (w *Writer) Close() error { return w.db.Close() }

// EnsureTable creates the import table when missing.
func (w *Writer) EnsureTable(ctx context.Context, table string, columns []string) error {
	if err := sink.CheckIdentifiers(append([]string{table}, columns...)...); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (id INTEGER PRIMARY KEY AUTOINCREMENT")
	for _, c := range columns {
		b.WriteString(", ")
		b.WriteString(sqlIdent(c))
		b.WriteString(" TEXT")
	}
	b.WriteString(", ")
	b.WriteString(sqlIdent(sink.RunIDColumn))
	b.WriteString(" TEXT, ")
	b.WriteString(sqlIdent(sink.ImportedAtColumn))
	b.WriteString(" TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')))")

	if _, err := w.db.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// WriteBatch inserts rows inside one transaction.
func (w *Writer) WriteBatch(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("insert into %s: no columns", table)
	}
	if err := sink.CheckIdentifiers(append([]string{table}, columns...)...); err != nil {
		return 0, err
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	chunk := max(1, maxVars/len(columns))
	var total int64
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		n, err := insertRows(ctx, tx, table, columns, rows[start:end])
		if err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func insertRows(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	colList := make([]string, 0, len(columns))
	for _, c := range columns {
		colList = append(colList, sqlIdent(c))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row...)
	}

	res, err := tx.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
