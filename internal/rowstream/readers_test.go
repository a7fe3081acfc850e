package rowstream

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestSkipBOM(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("name,email")...),
			expected: "name,email",
		},
		{
			name:     "file without BOM",
			input:    []byte("name,email"),
			expected: "name,email",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM kept",
			input:    []byte{0xEF, 0xBB, 'a'},
			expected: string([]byte{0xEF, 0xBB, 'a'}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(skipBOM(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSanitizeReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "ascii",
			input:    []byte("hello,world"),
			expected: "hello,world",
		},
		{
			name:     "valid multibyte",
			input:    []byte("café,naïve"),
			expected: "café,naïve",
		},
		{
			name:     "invalid byte replaced",
			input:    []byte{'h', 'e', 0x80, 'l', 'o'},
			expected: "he?lo",
		},
		{
			name:     "truncated rune at end",
			input:    []byte{'a', 0xC3},
			expected: "a?",
		},
		{
			name:     "empty",
			input:    []byte{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newSanitizeReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSanitizeReader_SplitRune(t *testing.T) {
	// One byte per read forces every multibyte rune across a read boundary.
	input := "Zoë,Łukasz,日本"
	r := newSanitizeReader(iotest.OneByteReader(strings.NewReader(input)))

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != input {
		t.Errorf("got %q, want %q", got, input)
	}
}

func TestSanitizeReader_SmallBuffer(t *testing.T) {
	input := "日本語"
	r := newSanitizeReader(iotest.OneByteReader(strings.NewReader(input)))

	var out []byte
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if string(out) != input {
		t.Errorf("got %q, want %q", out, input)
	}
}

func TestCountingReader(t *testing.T) {
	data := strings.Repeat("x", 200)
	cr := NewCountingReader(strings.NewReader(data), int64(len(data)))

	buf := make([]byte, 50)
	if _, err := cr.Read(buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cr.BytesRead(); got != 50 {
		t.Errorf("BytesRead() = %d, want 50", got)
	}
	if got := cr.Percent(); got != 25 {
		t.Errorf("Percent() = %d, want 25", got)
	}

	if _, err := io.ReadAll(cr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cr.Percent(); got != 100 {
		t.Errorf("Percent() = %d, want 100", got)
	}
}

func TestCountingReader_UnknownTotal(t *testing.T) {
	cr := NewCountingReader(strings.NewReader("abc"), 0)
	_, _ = io.ReadAll(cr)
	if got := cr.BytesRead(); got != 3 {
		t.Errorf("BytesRead() = %d, want 3", got)
	}
	if got := cr.Percent(); got != 0 {
		t.Errorf("Percent() = %d, want 0", got)
	}
}
