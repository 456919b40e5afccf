// Package refindex maps known terminal composites to the sequence that contains them.
//
// The reference dataset has one record per line: a one-byte marker, the
// sequence identifier, a space, and the composite filling the rest of the line.
// The index is built once and is read-only afterwards.
package refindex

import (
	"bufio"
	"io"
	"strings"

	"github.com/FocuswithJustin/alimerge/core/errors"
)

// idSearchStart is the first offset at which the identifier may end.
const idSearchStart = 2

// maxLineSize bounds a single reference record when streaming.
const maxLineSize = 1 << 20

// Index maps composite values to sequence identifiers.
type Index struct {
	entries map[string]string
}

// Build parses reference lines. When a composite appears more than once the
// last line wins.
func Build(lines []string) (*Index, error) {
	idx := &Index{entries: make(map[string]string, len(lines))}
	for i, line := range lines {
		if err := idx.add(line, i+1); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Read streams reference lines from r.
func Read(r io.Reader) (*Index, error) {
	idx := &Index{entries: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := idx.add(scanner.Text(), lineNo); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewIO("read", "reference dataset", err)
	}
	return idx, nil
}

func (idx *Index) add(line string, lineNo int) error {
	line = strings.TrimRight(line, " \t\r\n")
	if line == "" {
		return nil
	}

	id, composite, err := parseRecord(line, lineNo)
	if err != nil {
		return err
	}
	idx.entries[composite] = id
	return nil
}

func parseRecord(line string, lineNo int) (id, composite string, err error) {
	if len(line) <= idSearchStart {
		return "", "", errors.NewRecord("reference", lineNo, line, "too short")
	}

	sp := strings.IndexByte(line[idSearchStart:], ' ')
	if sp < 0 {
		return "", "", errors.NewRecord("reference", lineNo, line, "missing space after identifier")
	}
	sp += idSearchStart

	id = line[1:sp]
	composite = line[sp+1:]
	if composite == "" {
		return "", "", errors.NewRecord("reference", lineNo, line, "empty composite")
	}
	return id, composite, nil
}

// Lookup returns the sequence known to contain composite.
func (idx *Index) Lookup(composite string) (string, bool) {
	id, ok := idx.entries[composite]
	return id, ok
}

// Len returns the number of distinct composites.
func (idx *Index) Len() int {
	return len(idx.entries)
}
