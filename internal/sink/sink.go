// Package sink defines the table writers that importers persist batches into.
//
// A Writer owns one database handle. Every table it creates carries the
// importer's attribute columns as text plus two bookkeeping columns: the run
// that inserted the row and when.
package sink

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Bookkeeping columns added to every import table.
const (
	RunIDColumn      = "import_run_id"
	ImportedAtColumn = "imported_at"
)

// ErrInvalidIdentifier is returned for table or column names that are not
// plain SQL identifiers.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// Writer persists mapped import rows.
type Writer interface {
	// EnsureTable creates table with the given attribute columns if it does
	// not exist yet.
	EnsureTable(ctx context.Context, table string, columns []string) error

	// WriteBatch inserts rows into table. Each row holds one value per entry
	// in columns, in the same order. It returns the number of rows written.
	WriteBatch(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	Close() error
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidIdentifier reports whether name is usable as a table or column name.
func ValidIdentifier(name string) bool {
	return identRe.MatchString(name)
}

// CheckIdentifiers returns an error naming the first invalid identifier.
func CheckIdentifiers(names ...string) error {
	for _, n := range names {
		if !ValidIdentifier(n) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, n)
		}
	}
	return nil
}

// Text converts a cell value to the text stored in an import column.
// nil stays nil so empty cells become NULL.
func Text(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return val
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
