// Package rowstream turns tabular files into a single-pass stream of rows.
//
// A Stream presents the header row separately from the data rows and yields
// data rows one at a time, so callers never hold more than one row in memory
// (spreadsheet formats may buffer internally, that is the library's concern).
// Restarting a stream means opening the locator again.
//
// Supported formats, chosen by file extension:
//
//   - .csv, .txt, .tsv: encoding/csv with BOM stripping, charset decoding and
//     UTF-8 sanitization
//   - .xls: legacy BIFF workbooks via github.com/extrame/xls
//   - .xlsx, .xlsm: OOXML workbooks via github.com/xuri/excelize/v2
//
// Only the first worksheet of a workbook is read.
package rowstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned by Open when the locator's extension is
// not a known tabular format.
var ErrUnsupportedFormat = errors.New("unsupported file type")

// Cell is one value of a data row together with the column it came from.
type Cell struct {
	Index  int    // Zero-based column position
	Header string // Header text for the column, "" if the header row was shorter
	Value  any    // string, float64, bool or nil for an absent cell
}

// Row is an ordered sequence of cells. Line is the 1-based line (or sheet
// row) number in the source file, useful for error reporting.
type Row struct {
	Line  int
	Cells []Cell
}

// Values returns the raw cell values in column order.
func (r Row) Values() []any {
	vals := make([]any, len(r.Cells))
	for i, c := range r.Cells {
		vals[i] = c.Value
	}
	return vals
}

// Stream is a finite, single-pass row iterator.
//
// Next returns io.EOF once the data rows are exhausted. Any other error is a
// problem with a single row (or the underlying file) and carries the line
// number where possible.
type Stream interface {
	Headers() []string
	Next() (Row, error)
	Close() error
}

// ProgressReporter is implemented by streams that know how much of their
// source is left. Progress returns 0-100.
type ProgressReporter interface {
	Progress() int
}

// Progress returns the progress of s, and false when s cannot tell.
func Progress(s Stream) (int, bool) {
	if pr, ok := s.(ProgressReporter); ok {
		return pr.Progress(), true
	}
	return 0, false
}

// Opener opens a locator (a path on local disk) as a Stream.
type Opener interface {
	Open(ctx context.Context, locator string) (Stream, error)
}

// Options tune how files are decoded.
type Options struct {
	// Delimiter is the CSV field separator. Zero means ',' (or '\t' for .tsv).
	Delimiter rune

	// Encoding is a WHATWG encoding label ("utf-8", "windows-1252",
	// "iso-8859-1", ...). Empty means UTF-8.
	Encoding string

	// XLSCharset is the charset passed to the legacy .xls reader.
	XLSCharset string
}

// FileOpener is the default Opener. It dispatches on the file extension.
type FileOpener struct {
	Options Options
}

// NewFileOpener creates a FileOpener with the given options.
func NewFileOpener(opts Options) *FileOpener {
	return &FileOpener{Options: opts}
}

// Open opens the file at locator and returns a Stream positioned before the
// first data row. The caller must Close the stream.
func (o *FileOpener) Open(ctx context.Context, locator string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format := DetectFormat(locator)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(locator))
	}

	f, err := os.Open(locator)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(locator), err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", filepath.Base(locator), err)
	}

	var s Stream
	switch format {
	case FormatCSV, FormatTSV:
		opts := o.Options
		if opts.Delimiter == 0 && format == FormatTSV {
			opts.Delimiter = '\t'
		}
		s, err = NewCSVStream(f, info.Size(), opts)
	case FormatXLS:
		s, err = NewXLSStream(f, o.Options.XLSCharset)
	case FormatXLSX:
		s, err = NewXLSXStream(f)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Format identifies a tabular file format.
type Format string

const (
	FormatUnknown Format = ""
	FormatCSV     Format = "csv"
	FormatTSV     Format = "tsv"
	FormatXLS     Format = "xls"
	FormatXLSX    Format = "xlsx"
)

// DetectFormat maps a file name to its Format using the extension.
func DetectFormat(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV
	case ".tsv":
		return FormatTSV
	case ".xls":
		return FormatXLS
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatUnknown
	}
}

// Sample reads up to n data rows from s. It stops early at io.EOF.
func Sample(s Stream, n int) ([]Row, error) {
	rows := make([]Row, 0, n)
	for len(rows) < n {
		row, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// buildRow pairs raw values with their headers. Values past the header row
// keep an empty Header and are addressable by index only.
func buildRow(line int, headers []string, values []any) Row {
	cells := make([]Cell, len(values))
	for i, v := range values {
		h := ""
		if i < len(headers) {
			h = headers[i]
		}
		cells[i] = Cell{Index: i, Header: h, Value: v}
	}
	return Row{Line: line, Cells: cells}
}

// normalizeHeaders trims whitespace around header labels.
func normalizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for i, h := range raw {
		headers[i] = strings.TrimSpace(h)
	}
	return headers
}
