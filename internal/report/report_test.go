package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/FocuswithJustin/alimerge/core/merge"
)

var sample = merge.Result{Candidate: "2^10", CandidateIndex: 4, Matched: "276", MatchedIndex: 12}

func TestWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, false)

	w.Banner("2", 1, 30)
	w.Merge(sample)
	w.Summary(Stats{
		Summary:         merge.Summary{Candidates: 30, Merged: 1},
		Elapsed:         2500 * time.Millisecond,
		DownloadTime:    1200 * time.Millisecond,
		DownloadedBytes: 1500,
	})

	want := "Running base 2 from 1 through 30 . . .\n" +
		"2^10:i4 merges with 276:i12\n" +
		"Checked 30 sequences, 1 merges in 2.5s (downloads 1.2s for 1.5 kB)\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("text output mismatch (-want +got):\n%s", diff)
	}
}

func TestWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, true)

	w.Banner("2", 1, 30)
	w.Merge(sample)
	w.Merge(merge.Result{Candidate: "3^5", CandidateIndex: 1, Matched: "552", MatchedIndex: 0})
	w.Summary(Stats{Summary: merge.Summary{Candidates: 2, Merged: 2}})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}

	var got merge.Result
	if err := json.Unmarshal(lines[0], &got); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if diff := cmp.Diff(sample, got); diff != "" {
		t.Errorf("decoded result mismatch (-want +got):\n%s", diff)
	}
	if !bytes.Contains(lines[1], []byte(`"candidate_index":1`)) {
		t.Errorf("second line = %s", lines[1])
	}
}

func TestSummaryLine(t *testing.T) {
	tests := []struct {
		name  string
		stats Stats
		want  string
	}{
		{
			name:  "empty run",
			stats: Stats{},
			want:  "Checked 0 sequences, 0 merges in 0s (downloads 0s for 0 B)",
		},
		{
			name: "sub-second rounding",
			stats: Stats{
				Summary:      merge.Summary{Candidates: 3},
				Elapsed:      1234567 * time.Nanosecond,
				DownloadTime: 999 * time.Nanosecond,
			},
			want: "Checked 3 sequences, 0 merges in 1.235ms (downloads 1µs for 0 B)",
		},
		{
			name: "negative bytes clamp",
			stats: Stats{
				DownloadedBytes: -5,
			},
			want: "Checked 0 sequences, 0 merges in 0s (downloads 0s for 0 B)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SummaryLine(tt.stats); got != tt.want {
				t.Errorf("SummaryLine() = %q, want %q", got, tt.want)
			}
		})
	}
}
