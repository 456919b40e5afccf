// Package termrec decodes the term records of an Aliquot sequence listing.
//
// A listing has one term per line:
//
//	0 .   276 = 2^2 * 3 * 23
//	1 .   396 = 2^2 * 3^2 * 11
//
// The index precedes the '.' separator, the composite value starts SpacerWidth
// bytes after the separator and ends before the next '='. Anything after the
// '=' is factorisation detail and is ignored.
package termrec

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/alimerge/core/errors"
)

const (
	// Separator divides the index field from the factorisation field.
	Separator = '.'

	// SpacerWidth is the distance from the separator to the first byte of the composite.
	SpacerWidth = 4

	// ValueTerminator ends the composite value.
	ValueTerminator = '='
)

// Record is one decoded term.
type Record struct {
	Index     int64
	Composite string
}

// Parse decodes a single listing line.
func Parse(line string) (Record, error) {
	return parse(line, 0)
}

// ParseLine is Parse with a 1-based line number attached to any error.
func ParseLine(line string, lineNo int) (Record, error) {
	return parse(line, lineNo)
}

func parse(line string, lineNo int) (Record, error) {
	sep := strings.IndexByte(line, Separator)
	if sep < 0 {
		return Record{}, errors.NewRecord("term", lineNo, line, "missing separator")
	}

	start := sep + SpacerWidth
	if start > len(line) {
		return Record{}, errors.NewRecord("term", lineNo, line, "truncated after separator")
	}

	end := strings.IndexByte(line[start:], ValueTerminator)
	if end < 0 {
		return Record{}, errors.NewRecord("term", lineNo, line, "missing '='")
	}

	composite := strings.TrimSpace(line[start : start+end])
	if composite == "" {
		return Record{}, errors.NewRecord("term", lineNo, line, "empty composite")
	}

	index, err := strconv.ParseInt(strings.TrimSpace(line[:sep]), 10, 64)
	if err != nil {
		return Record{}, errors.NewRecord("term", lineNo, line, "index is not an integer")
	}

	return Record{Index: index, Composite: composite}, nil
}

// SplitLines splits a raw listing body into lines. CRLF endings are
// normalised and a trailing newline does not produce an empty final line.
func SplitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	data = bytes.TrimSuffix(data, []byte("\n"))
	parts := bytes.Split(data, []byte("\n"))
	lines := make([]string, len(parts))
	for i, p := range parts {
		lines[i] = string(bytes.TrimSuffix(p, []byte("\r")))
	}
	return lines
}

// IsBlank reports whether a line carries no record at all.
func IsBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
