package rowstream

// readers.go provides io.Reader wrappers applied to text sources before CSV
// parsing:
//
//   - skipBOM: drops a leading UTF-8 byte order mark (Excel adds one on Windows)
//   - sanitizeReader: replaces invalid UTF-8 bytes with '?' as they stream past
//   - CountingReader: tracks bytes consumed for progress reporting
//
// All of them keep memory bounded by the read buffer, never by file size.

import (
	"bufio"
	"bytes"
	"io"
	"sync/atomic"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// skipBOM returns a reader positioned after a UTF-8 BOM, if r starts with one.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(utf8BOM))
	if err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// sanitizeReader replaces invalid UTF-8 bytes with '?'. A multi-byte sequence
// split across two reads is carried over instead of being mangled.
type sanitizeReader struct {
	r       io.Reader
	buf     []byte
	pending []byte // sanitized bytes not yet handed out
	carry   []byte // incomplete trailing rune from the previous read
	err     error
}

func newSanitizeReader(r io.Reader) *sanitizeReader {
	return &sanitizeReader{r: r, buf: make([]byte, 32*1024)}
}

func (s *sanitizeReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for len(s.pending) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		s.fill()
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// fill reads the next chunk from the source into pending.
func (s *sanitizeReader) fill() {
	n := copy(s.buf, s.carry)
	s.carry = s.carry[:0]

	m, err := s.r.Read(s.buf[n:])
	n += m
	s.err = err

	chunk := s.buf[:n]
	if asciiOnly(chunk) {
		s.pending = chunk
		return
	}
	s.pending = chunk[:s.sanitize(chunk, err != nil)]
}

// sanitize rewrites buf in place and returns the number of bytes to hand out.
// '?' is one byte, so the output never grows.
func (s *sanitizeReader) sanitize(buf []byte, atEOF bool) int {
	w := 0
	for i := 0; i < len(buf); {
		if buf[i] < utf8.RuneSelf {
			buf[w] = buf[i]
			w++
			i++
			continue
		}
		if !atEOF && !utf8.FullRune(buf[i:]) {
			s.carry = append(s.carry, buf[i:]...)
			return w
		}
		r, size := utf8.DecodeRune(buf[i:])
		if r == utf8.RuneError && size == 1 {
			buf[w] = '?'
			w++
			i++
			continue
		}
		copy(buf[w:], buf[i:i+size])
		w += size
		i += size
	}
	return w
}

func asciiOnly(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// CountingReader wraps an io.Reader and counts the bytes read through it.
// The count may be read from another goroutine while reading goes on.
type CountingReader struct {
	r     io.Reader
	read  atomic.Int64
	Total int64 // 0 if unknown
}

// NewCountingReader wraps r. total is the expected size, or 0 if unknown.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{r: r, Total: total}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (c *CountingReader) BytesRead() int64 {
	return c.read.Load()
}

// Percent returns read progress as 0-100, or 0 when the total is unknown.
func (c *CountingReader) Percent() int {
	if c.Total <= 0 {
		return 0
	}
	return int(min(c.read.Load()*100/c.Total, 100))
}
