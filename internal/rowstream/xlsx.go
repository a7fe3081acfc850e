package rowstream

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// XLSXStream reads the first worksheet of an OOXML workbook row by row using
// excelize's streaming row iterator.
type XLSXStream struct {
	src     io.Closer
	file    *excelize.File
	rows    *excelize.Rows
	headers []string
	line    int
}

// NewXLSXStream opens the workbook in src and reads its header row. The
// stream owns src.
func NewXLSXStream(src io.ReadCloser) (*XLSXStream, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx workbook: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("empty file: workbook has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	s := &XLSXStream{src: src, file: f, rows: rows}

	for rows.Next() {
		s.line++
		cols, err := rows.Columns()
		if err != nil {
			s.release()
			return nil, fmt.Errorf("invalid xlsx header: %w", err)
		}
		if len(cols) == 0 {
			continue
		}
		s.headers = normalizeHeaders(cols)
		return s, nil
	}
	s.release()
	return nil, fmt.Errorf("empty file: no header row")
}

// Headers returns the trimmed header row.
func (s *XLSXStream) Headers() []string {
	return s.headers
}

// Next returns the next data row. Trailing empty cells are not reported by
// excelize, so rows may be shorter than the header.
func (s *XLSXStream) Next() (Row, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return Row{}, &ParseError{Line: s.line + 1, Err: err}
		}
		return Row{}, io.EOF
	}
	s.line++

	cols, err := s.rows.Columns()
	if err != nil {
		return Row{}, &ParseError{Line: s.line, Err: err}
	}

	values := make([]any, len(cols))
	for i, v := range cols {
		if v == "" {
			values[i] = nil
			continue
		}
		values[i] = v
	}
	return buildRow(s.line, s.headers, values), nil
}

// Close releases the row iterator, the workbook and the source file.
func (s *XLSXStream) Close() error {
	firstErr := s.release()
	if err := s.src.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// release closes the excelize handles but leaves src to its owner.
func (s *XLSXStream) release() error {
	var firstErr error
	if s.rows != nil {
		if err := s.rows.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
