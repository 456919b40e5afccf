// Package merge finds the point where a candidate sequence joins a known sequence.
//
// For each candidate the detector traces its listing, looks the terminal
// 80-digit composite up in the reference index and, on a hit, traces the
// matched sequence and scans it top to bottom for the first composite the
// candidate also reached. Once two sequences share a term every later term is
// shared too, so the first hit in listing order is the merge point.
package merge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/FocuswithJustin/alimerge/core/errors"
	"github.com/FocuswithJustin/alimerge/core/trace"
)

// ListingSource returns the term listing of a sequence, one line per term.
type ListingSource interface {
	Listing(ctx context.Context, id string) ([]string, error)
}

// Lookuper resolves a terminal composite to the sequence known to contain it.
type Lookuper interface {
	Lookup(composite string) (string, bool)
}

// Result is a detected merge.
type Result struct {
	Candidate      string `json:"candidate"`
	CandidateIndex int64  `json:"candidate_index"`
	Matched        string `json:"matched"`
	MatchedIndex   int64  `json:"matched_index"`
}

// String formats the result the way the listing site reports merges.
func (r Result) String() string {
	return fmt.Sprintf("%s:i%d merges with %s:i%d", r.Candidate, r.CandidateIndex, r.Matched, r.MatchedIndex)
}

// Outcome classifies what happened to a candidate.
type Outcome int

const (
	// OutcomeMerged means a merge point was found.
	OutcomeMerged Outcome = iota
	// OutcomeNoTerminal means the listing has no 80-digit composite.
	OutcomeNoTerminal
	// OutcomeNotIndexed means the terminal composite is not in the reference index.
	OutcomeNotIndexed
	// OutcomeNoSharedTerm means the matched listing shares no composite with the candidate.
	OutcomeNoSharedTerm
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMerged:
		return "merged"
	case OutcomeNoTerminal:
		return "no terminal composite"
	case OutcomeNotIndexed:
		return "terminal composite not indexed"
	case OutcomeNoSharedTerm:
		return "no shared term"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Summary counts outcomes over a run.
type Summary struct {
	Candidates   int `json:"candidates"`
	Merged       int `json:"merged"`
	NoTerminal   int `json:"no_terminal"`
	NotIndexed   int `json:"not_indexed"`
	NoSharedTerm int `json:"no_shared_term"`
}

func (s *Summary) record(o Outcome) {
	s.Candidates++
	switch o {
	case OutcomeMerged:
		s.Merged++
	case OutcomeNoTerminal:
		s.NoTerminal++
	case OutcomeNotIndexed:
		s.NotIndexed++
	case OutcomeNoSharedTerm:
		s.NoSharedTerm++
	}
}

// Detector runs merge detection against a fixed reference index.
type Detector struct {
	index   Lookuper
	source  ListingSource
	matched ListingSource
	logger  *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger used for skip diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMatchedSource fetches matched sequences from src instead of the
// candidate source. Candidates keep growing between runs, so a cached source
// only suits the matched side.
func WithMatchedSource(src ListingSource) Option {
	return func(d *Detector) {
		if src != nil {
			d.matched = src
		}
	}
}

// NewDetector creates a detector.
func NewDetector(index Lookuper, source ListingSource, opts ...Option) *Detector {
	d := &Detector{
		index:  index,
		source: source,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.matched == nil {
		d.matched = source
	}
	return d
}

// Detect checks one candidate. A nil result with a nil error means no merge.
func (d *Detector) Detect(ctx context.Context, candidate string) (*Result, Outcome, error) {
	candTrace, terminal, ok, err := d.trace(ctx, d.source, candidate)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, OutcomeNoTerminal, nil
	}

	matched, ok := d.index.Lookup(terminal)
	if !ok {
		return nil, OutcomeNotIndexed, nil
	}

	matchedTrace, _, _, err := d.trace(ctx, d.matched, matched)
	if err != nil {
		return nil, 0, err
	}

	candIdx, matchedIdx, ok := FindMerge(candTrace, matchedTrace)
	if !ok {
		return nil, OutcomeNoSharedTerm, nil
	}

	return &Result{
		Candidate:      candidate,
		CandidateIndex: candIdx,
		Matched:        matched,
		MatchedIndex:   matchedIdx,
	}, OutcomeMerged, nil
}

func (d *Detector) trace(ctx context.Context, src ListingSource, id string) (*trace.Trace, string, bool, error) {
	lines, err := src.Listing(ctx, id)
	if err != nil {
		return nil, "", false, errors.Wrapf(err, "fetching sequence %s", id)
	}
	t, terminal, ok, err := trace.FromLines(lines)
	if err != nil {
		return nil, "", false, errors.Wrapf(err, "reading sequence %s", id)
	}
	return t, terminal, ok, nil
}

// Run checks candidates in order and passes each merge to emit as soon as it
// is found. The first fetch, parse or emit error stops the run.
func (d *Detector) Run(ctx context.Context, candidates []string, emit func(Result) error) (Summary, error) {
	var summary Summary
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result, outcome, err := d.Detect(ctx, candidate)
		if err != nil {
			return summary, err
		}
		summary.record(outcome)

		if result == nil {
			d.logger.DebugContext(ctx, "sequence_skipped",
				"sequence", candidate,
				"reason", outcome.String(),
			)
			continue
		}

		d.logger.DebugContext(ctx, "merge_found",
			"sequence", result.Candidate,
			"candidate_index", result.CandidateIndex,
			"matched", result.Matched,
			"matched_index", result.MatchedIndex,
		)
		if emit != nil {
			if err := emit(*result); err != nil {
				return summary, err
			}
		}
	}
	return summary, nil
}

// FindMerge scans matched in listing order and stops at the first composite
// the candidate trace also contains.
func FindMerge(candidate, matched *trace.Trace) (candidateIndex, matchedIndex int64, ok bool) {
	for _, rec := range matched.Terms() {
		if idx, found := candidate.Find(rec.Composite); found {
			return idx, rec.Index, true
		}
	}
	return 0, 0, false
}
