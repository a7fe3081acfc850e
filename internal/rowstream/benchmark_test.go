package rowstream

import (
	"bytes"
	"fmt"
	"io"
	"testing"
)

// BenchmarkCSVStream benchmarks streaming a 10k row CSV through the
// BOM, charset and sanitizing readers.
func BenchmarkCSVStream(b *testing.B) {
	var buf bytes.Buffer
	buf.WriteString("\xEF\xBB\xBFName,Email,Amount,Notes\n")
	for i := 0; i < 10000; i++ {
		fmt.Fprintf(&buf, "Person %d,p%d@example.com,%d.50,\"note, with comma\"\n", i, i, i)
	}
	data := buf.Bytes()

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s, err := NewCSVStream(io.NopCloser(bytes.NewReader(data)), int64(len(data)), Options{})
		if err != nil {
			b.Fatal(err)
		}
		for {
			if _, err := s.Next(); err == io.EOF {
				break
			} else if err != nil {
				b.Fatal(err)
			}
		}
		s.Close()
	}
}

// BenchmarkCSVStream_Latin1 benchmarks the same file with charset decoding.
func BenchmarkCSVStream_Latin1(b *testing.B) {
	var buf bytes.Buffer
	buf.WriteString("Name,Stadt\n")
	for i := 0; i < 10000; i++ {
		fmt.Fprintf(&buf, "M\xfcller %d,K\xf6ln\n", i)
	}
	data := buf.Bytes()

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s, err := NewCSVStream(io.NopCloser(bytes.NewReader(data)), int64(len(data)), Options{Encoding: "latin1"})
		if err != nil {
			b.Fatal(err)
		}
		for {
			if _, err := s.Next(); err != nil {
				break
			}
		}
		s.Close()
	}
}
