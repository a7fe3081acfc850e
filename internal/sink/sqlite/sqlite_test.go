package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/sheetimport/internal/sink"
)

func openMemory(t *testing.T) *Writer {
	t.Helper()
	w, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestWriter_EnsureAndWrite(t *testing.T) {
	ctx := context.Background()
	w := openMemory(t)
	cols := []string{"first_name", "email"}

	if err := w.EnsureTable(ctx, "students", cols); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	// idempotent
	if err := w.EnsureTable(ctx, "students", cols); err != nil {
		t.Fatalf("EnsureTable twice: %v", err)
	}

	n, err := w.WriteBatch(ctx, "students", append(cols, sink.RunIDColumn), [][]any{
		{"Ada", "ada@example.com", "run-1"},
		{"Alan", nil, "run-1"},
	})
	if err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if n != 2 {
		t.Errorf("n = %d, want 2", n)
	}

	rows, err := w.DB().QueryContext(ctx,
		`SELECT first_name, email, import_run_id, imported_at <> '' FROM students ORDER BY id`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	type stored struct {
		First, Email, Run string
		Stamped           bool
	}
	var got []stored
	for rows.Next() {
		var s stored
		var email *string
		if err := rows.Scan(&s.First, &email, &s.Run, &s.Stamped); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if email != nil {
			s.Email = *email
		}
		got = append(got, s)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}

	want := []stored{
		{First: "Ada", Email: "ada@example.com", Run: "run-1", Stamped: true},
		{First: "Alan", Run: "run-1", Stamped: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stored rows mismatch (-want +got):\n%s", diff)
	}
}

func TestWriter_WriteBatchChunks(t *testing.T) {
	ctx := context.Background()
	w := openMemory(t)
	if err := w.EnsureTable(ctx, "wide", []string{"v"}); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}

	rows := make([][]any, maxVars+10)
	for i := range rows {
		rows[i] = []any{fmt.Sprint(i)}
	}
	n, err := w.WriteBatch(ctx, "wide", []string{"v"}, rows)
	if err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if n != int64(len(rows)) {
		t.Errorf("n = %d, want %d", n, len(rows))
	}

	var count int
	if err := w.DB().QueryRowContext(ctx, `SELECT count(*) FROM wide`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != len(rows) {
		t.Errorf("count = %d, want %d", count, len(rows))
	}
}

func TestWriter_WriteBatchRejectsRaggedRows(t *testing.T) {
	ctx := context.Background()
	w := openMemory(t)
	if err := w.EnsureTable(ctx, "students", []string{"email"}); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}

	_, err := w.WriteBatch(ctx, "students", []string{"email"}, [][]any{{"a"}, {"b", "extra"}})
	if err == nil {
		t.Fatal("WriteBatch with ragged row succeeded")
	}

	var count int
	if err := w.DB().QueryRowContext(ctx, `SELECT count(*) FROM students`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d after rejected batch, want 0", count)
	}
}

func TestWriter_Errors(t *testing.T) {
	ctx := context.Background()
	w := openMemory(t)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{
			name: "bad table name",
			run:  func() error { return w.EnsureTable(ctx, "drop table", []string{"a"}) },
			want: sink.ErrInvalidIdentifier,
		},
		{
			name: "bad column name",
			run: func() error {
				_, err := w.WriteBatch(ctx, "students", []string{`a"b`}, [][]any{{"x"}})
				return err
			},
			want: sink.ErrInvalidIdentifier,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("missing table", func(t *testing.T) {
		if _, err := w.WriteBatch(ctx, "nope", []string{"a"}, [][]any{{"x"}}); err == nil {
			t.Error("WriteBatch into missing table succeeded")
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		if n, err := w.WriteBatch(ctx, "nope", []string{"a"}, nil); n != 0 || err != nil {
			t.Errorf("WriteBatch(nil) = %d, %v", n, err)
		}
	})
}
