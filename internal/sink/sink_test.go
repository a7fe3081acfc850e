package sink

import (
	"errors"
	"testing"
	"time"
)

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"simple", "students", true},
		{"underscore start", "_tmp", true},
		{"digits", "table_2024", true},
		{"empty", "", false},
		{"leading digit", "1table", false},
		{"space", "first name", false},
		{"quote", `a"b`, false},
		{"semicolon", "x;drop", false},
		{"too long", "a123456789012345678901234567890123456789012345678901234567890123", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidIdentifier(tt.in); got != tt.want {
				t.Errorf("ValidIdentifier(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCheckIdentifiers(t *testing.T) {
	if err := CheckIdentifiers("students", "email"); err != nil {
		t.Errorf("CheckIdentifiers() = %v, want nil", err)
	}
	err := CheckIdentifiers("students", "e-mail")
	if !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("CheckIdentifiers() = %v, want ErrInvalidIdentifier", err)
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"string", "Ada", "Ada"},
		{"bytes", []byte("x"), "x"},
		{"float", 36.5, "36.5"},
		{"bool", true, "true"},
		{"duration stringer", 2 * time.Second, "2s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in); got != tt.want {
				t.Errorf("Text(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
