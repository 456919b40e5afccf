// Package report writes scan results for people or for scripts.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/FocuswithJustin/alimerge/core/merge"
)

// Stats is what a finished run reports in its summary line.
type Stats struct {
	Summary         merge.Summary
	Elapsed         time.Duration
	DownloadTime    time.Duration
	DownloadedBytes int64
}

// Writer formats results as text or as JSON lines.
type Writer struct {
	w    io.Writer
	json bool
	enc  *json.Encoder
}

// New returns a text writer, or a JSON lines writer when asJSON is set.
func New(w io.Writer, asJSON bool) *Writer {
	rw := &Writer{w: w, json: asJSON}
	if asJSON {
		rw.enc = json.NewEncoder(w)
	}
	return rw
}

// Banner announces a base/exponent scan. JSON output has no banner.
func (w *Writer) Banner(base string, first, last int) error {
	if w.json {
		return nil
	}
	_, err := fmt.Fprintf(w.w, "Running base %s from %d through %d . . .\n", base, first, last)
	return err
}

// Merge writes one result.
func (w *Writer) Merge(r merge.Result) error {
	if w.json {
		return w.enc.Encode(r)
	}
	_, err := fmt.Fprintln(w.w, r.String())
	return err
}

// Summary closes a text report. JSON output has no summary.
func (w *Writer) Summary(s Stats) error {
	if w.json {
		return nil
	}
	_, err := fmt.Fprintln(w.w, SummaryLine(s))
	return err
}

// SummaryLine formats the closing line of a text report.
func SummaryLine(s Stats) string {
	return fmt.Sprintf("Checked %d sequences, %d merges in %s (downloads %s for %s)",
		s.Summary.Candidates,
		s.Summary.Merged,
		round(s.Elapsed),
		round(s.DownloadTime),
		humanize.Bytes(uint64(max(s.DownloadedBytes, 0))),
	)
}

func round(d time.Duration) time.Duration {
	if d >= time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(time.Microsecond)
}
