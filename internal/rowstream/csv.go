package rowstream

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// CSVStream reads delimited text one record at a time.
type CSVStream struct {
	src     io.Closer
	counter *CountingReader
	reader  *csv.Reader
	headers []string
	line    int
}

// NewCSVStream wraps src and reads the header row immediately. size is the
// source size in bytes for progress reporting (0 if unknown). The returned
// stream owns src and closes it on Close.
func NewCSVStream(src io.ReadCloser, size int64, opts Options) (*CSVStream, error) {
	counter := NewCountingReader(src, size)

	text, err := decodeText(counter, opts.Encoding)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(text)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}

	s := &CSVStream{src: src, counter: counter, reader: cr}

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}
	s.line = 1
	s.headers = normalizeHeaders(header)

	return s, nil
}

// decodeText layers BOM stripping, charset decoding and UTF-8 sanitization.
// The BOM check runs on raw bytes, before any decoder sees them.
func decodeText(r io.Reader, label string) (io.Reader, error) {
	r = skipBOM(r)

	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" || label == "utf-8" || label == "utf8" {
		return newSanitizeReader(r), nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("encoding error: unknown charset %q", label)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// Headers returns the trimmed header row.
func (s *CSVStream) Headers() []string {
	return s.headers
}

// Next returns the next data row. Malformed records surface as *ParseError
// with the line number; the stream may continue after one.
func (s *CSVStream) Next() (Row, error) {
	rec, err := s.reader.Read()
	if err == io.EOF {
		return Row{}, io.EOF
	}
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			s.line = pe.Line
			return Row{}, &ParseError{Line: pe.Line, Err: pe.Err}
		}
		return Row{}, err
	}

	line, _ := s.reader.FieldPos(0)
	s.line = line

	values := make([]any, len(rec))
	for i, v := range rec {
		values[i] = v
	}
	return buildRow(line, s.headers, values), nil
}

// Progress returns the percentage of the source consumed so far.
func (s *CSVStream) Progress() int {
	return s.counter.Percent()
}

// Close releases the underlying source.
func (s *CSVStream) Close() error {
	return s.src.Close()
}

// ParseError reports a row that could not be decoded.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
