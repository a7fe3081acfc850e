package rowstream

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/extrame/xls"
)

// DefaultXLSCharset is used when Options.XLSCharset is empty. Legacy workbooks
// exported by Windows Excel are almost always cp1252.
const DefaultXLSCharset = "cp1252"

type readSeekCloser interface {
	io.ReadSeeker
	io.Closer
}

// XLSStream reads the first worksheet of a legacy .xls workbook.
type XLSStream struct {
	src     io.Closer
	sheet   *xls.WorkSheet
	headers []string
	next    int          // next sheet row index to read
	last    int          // last sheet row index
	done    atomic.Int64 // sheet rows consumed, for Progress
}

// NewXLSStream opens the workbook in src. The first non-empty sheet row is
// taken as the header row. The stream owns src.
func NewXLSStream(src readSeekCloser, charset string) (*XLSStream, error) {
	if charset == "" {
		charset = DefaultXLSCharset
	}

	wb, err := xls.OpenReader(src, charset)
	if err != nil {
		return nil, fmt.Errorf("invalid xls workbook: %w", err)
	}
	if wb.NumSheets() == 0 {
		return nil, fmt.Errorf("empty file: workbook has no sheets")
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("empty file: first sheet unreadable")
	}

	s := &XLSStream{src: src, sheet: sheet, last: int(sheet.MaxRow)}

	for s.next <= s.last {
		vals := s.rowStrings(s.next)
		s.next++
		if len(vals) > 0 {
			s.headers = normalizeHeaders(vals)
			return s, nil
		}
	}
	return nil, fmt.Errorf("empty file: no header row")
}

// Headers returns the trimmed header row.
func (s *XLSStream) Headers() []string {
	return s.headers
}

// Next returns the next data row. Missing sheet rows are returned as rows
// with no cells so that callers see a consistent line numbering; the
// pipeline discards them as blank.
func (s *XLSStream) Next() (Row, error) {
	if s.next > s.last {
		return Row{}, io.EOF
	}
	idx := s.next
	s.next++
	s.done.Store(int64(s.next))

	vals := s.rowStrings(idx)
	values := make([]any, len(vals))
	for i, v := range vals {
		if v == "" {
			values[i] = nil
			continue
		}
		values[i] = v
	}
	return buildRow(idx+1, s.headers, values), nil
}

// rowStrings returns the cell texts of sheet row i, or nil if the row is
// absent from the workbook.
func (s *XLSStream) rowStrings(i int) []string {
	row := s.sheet.Row(i)
	if row == nil {
		return nil
	}
	last := row.LastCol()
	if last <= 0 {
		return nil
	}
	vals := make([]string, last)
	empty := true
	for c := 0; c < last; c++ {
		vals[c] = strings.TrimSpace(row.Col(c))
		if vals[c] != "" {
			empty = false
		}
	}
	if empty {
		return nil
	}
	return vals
}

// Progress returns the percentage of sheet rows consumed so far.
func (s *XLSStream) Progress() int {
	return int(s.done.Load() * 100 / int64(s.last+1))
}

// Close releases the underlying file.
func (s *XLSStream) Close() error {
	return s.src.Close()
}
