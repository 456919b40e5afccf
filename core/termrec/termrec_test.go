package termrec

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	aerrors "github.com/FocuswithJustin/alimerge/core/errors"
)

func TestParse_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		index     int64
		composite string
		junk      string
	}{
		{"first term", 0, "276", " 2^2 * 3 * 23"},
		{"negative index", -4, "1024", " 2^10"},
		{"large index", 1843, strings.Repeat("7", 80), " P3 * C78"},
		{"no trailing detail", 12, "45", ""},
		{"junk containing separators", 9, "123", " 3 . 41 = 123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := fmt.Sprintf("%d .   %s =%s", tt.index, tt.composite, tt.junk)
			got, err := Parse(line)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", line, err)
			}
			if got.Index != tt.index {
				t.Errorf("Index = %d, want %d", got.Index, tt.index)
			}
			if got.Composite != tt.composite {
				t.Errorf("Composite = %q, want %q", got.Composite, tt.composite)
			}
		})
	}
}

func TestParse_NoSpaceBeforeTerminator(t *testing.T) {
	got, err := Parse("7 .   99=3^2 * 11")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Index != 7 || got.Composite != "99" {
		t.Errorf("Parse() = %+v, want {7 99}", got)
	}
}

func TestParse_SpacerIsNotValidated(t *testing.T) {
	// Only the separator and three spacer bytes are skipped, whatever they are.
	// A fourth spacer byte becomes part of the composite.
	got, err := Parse("12 .XXXX45=junk")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Index != 12 || got.Composite != "X45" {
		t.Errorf("Parse() = %+v, want {12 X45}", got)
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"no separator", "12 276 = 2^2"},
		{"truncated after separator", "12 ."},
		{"no terminator", "12 .   276"},
		{"empty composite", "12 .    = 1"},
		{"non-integer index", "abc .   276 = 2^2"},
		{"empty index", " .   276 = 2^2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.line)
			if err == nil {
				t.Fatalf("Parse(%q) expected error", tt.line)
			}
			if !errors.Is(err, aerrors.ErrMalformedRecord) {
				t.Errorf("Parse(%q) error = %v, want ErrMalformedRecord", tt.line, err)
			}
		})
	}
}

func TestParseLine_CarriesLineNumber(t *testing.T) {
	_, err := ParseLine("garbage", 42)
	var rec *aerrors.RecordError
	if !errors.As(err, &rec) {
		t.Fatalf("ParseLine() error = %v, want *RecordError", err)
	}
	if rec.Line != 42 || rec.Kind != "term" {
		t.Errorf("RecordError = %+v, want line 42 kind term", rec)
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []string
	}{
		{"empty", "", nil},
		{"single without newline", "a", []string{"a"}},
		{"trailing newline", "a\nb\n", []string{"a", "b"}},
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}},
		{"inner blank line", "a\n\nb", []string{"a", "", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitLines([]byte(tt.data))
			if len(got) != len(tt.want) {
				t.Fatalf("SplitLines() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("line %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestIsBlank(t *testing.T) {
	if !IsBlank(" \t") {
		t.Error("IsBlank(whitespace) = false")
	}
	if IsBlank("0 .   1 = 1") {
		t.Error("IsBlank(record) = true")
	}
}
