// Package trace holds the in-memory view of one sequence listing.
package trace

import (
	"github.com/FocuswithJustin/alimerge/core/termrec"
)

// TerminalDigits is the composite length used to look a sequence up in the reference index.
const TerminalDigits = 80

// Trace is the set of terms seen in one listing.
//
// Terms keeps listing order. The composite index keeps only the most recent
// index for a composite that recurs.
type Trace struct {
	terms       []termrec.Record
	byComposite map[string]int64
	terminal    string
}

// New returns an empty trace.
func New() *Trace {
	return &Trace{byComposite: make(map[string]int64)}
}

// FromLines parses a listing. It returns the trace and the last composite of
// exactly TerminalDigits characters, if any. Blank lines are skipped.
func FromLines(lines []string) (*Trace, string, bool, error) {
	t := &Trace{
		terms:       make([]termrec.Record, 0, len(lines)),
		byComposite: make(map[string]int64, len(lines)),
	}
	for i, line := range lines {
		if termrec.IsBlank(line) {
			continue
		}
		rec, err := termrec.ParseLine(line, i+1)
		if err != nil {
			return nil, "", false, err
		}
		t.Add(rec)
	}
	terminal, ok := t.Terminal()
	return t, terminal, ok, nil
}

// Add appends a record.
func (t *Trace) Add(rec termrec.Record) {
	t.terms = append(t.terms, rec)
	t.byComposite[rec.Composite] = rec.Index
	if len(rec.Composite) == TerminalDigits {
		t.terminal = rec.Composite
	}
}

// Find returns the index recorded for composite.
func (t *Trace) Find(composite string) (int64, bool) {
	idx, ok := t.byComposite[composite]
	return idx, ok
}

// Terminal returns the most recent TerminalDigits-long composite.
func (t *Trace) Terminal() (string, bool) {
	return t.terminal, t.terminal != ""
}

// Terms returns the records in listing order. The slice must not be modified.
func (t *Trace) Terms() []termrec.Record {
	return t.terms
}

// Len returns the number of records.
func (t *Trace) Len() int {
	return len(t.terms)
}
