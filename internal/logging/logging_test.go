package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// captureLogOutput temporarily points the logger at a buffer.
func captureLogOutput(f func()) string {
	var buf bytes.Buffer

	oldLogger := defaultLogger
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	defaultLogger = slog.New(handler)

	f()

	defaultLogger = oldLogger
	return buf.String()
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name      string
		level     Level
		format    Format
		logFunc   func()
		wantEmpty bool
		wantText  string
	}{
		{
			name:     "debug level shows debug",
			level:    LevelDebug,
			format:   FormatJSON,
			logFunc:  func() { DebugContext(context.Background(), "debug message") },
			wantText: `"msg":"debug message"`,
		},
		{
			name:      "warn level hides info",
			level:     LevelWarn,
			format:    FormatText,
			logFunc:   func() { InfoContext(context.Background(), "info message") },
			wantEmpty: true,
		},
		{
			name:     "text format",
			level:    LevelInfo,
			format:   FormatText,
			logFunc:  func() { InfoContext(context.Background(), "text message", "key", "value") },
			wantText: "key=value",
		},
		{
			name:     "error level shows error",
			level:    LevelError,
			format:   FormatJSON,
			logFunc:  func() { ErrorContext(context.Background(), "boom") },
			wantText: `"level":"ERROR"`,
		},
		{
			name:      "unknown level falls back to warn",
			level:     Level(99),
			format:    FormatJSON,
			logFunc:   func() { InfoContext(context.Background(), "hidden") },
			wantEmpty: true,
		},
	}

	oldLogger := defaultLogger
	defer func() {
		defaultLogger = oldLogger
		slog.SetDefault(oldLogger)
	}()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			InitLogger(tt.level, tt.format, &buf)
			tt.logFunc()

			out := buf.String()
			if tt.wantEmpty {
				if out != "" {
					t.Errorf("expected no output, got %q", out)
				}
				return
			}
			if !strings.Contains(out, tt.wantText) {
				t.Errorf("output %q does not contain %q", out, tt.wantText)
			}
		})
	}
}

func TestInitLogger_TimestampFormat(t *testing.T) {
	oldLogger := defaultLogger
	defer func() {
		defaultLogger = oldLogger
		slog.SetDefault(oldLogger)
	}()

	var buf bytes.Buffer
	InitLogger(LevelInfo, FormatJSON, &buf)
	InfoContext(context.Background(), "stamped")

	out := buf.String()
	idx := strings.Index(out, `"time":"`)
	if idx < 0 {
		t.Fatalf("no time field in %q", out)
	}
	stamp := out[idx+len(`"time":"`):]
	stamp = stamp[:strings.IndexByte(stamp, '"')]
	if _, err := time.Parse(time.RFC3339, stamp); err != nil {
		t.Errorf("time %q is not RFC3339: %v", stamp, err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug": LevelDebug,
		"INFO":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"":      LevelWarn,
		"trace": LevelWarn,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("json") != FormatJSON {
		t.Error("ParseFormat(json) != FormatJSON")
	}
	if ParseFormat("text") != FormatText {
		t.Error("ParseFormat(text) != FormatText")
	}
	if ParseFormat("xml") != FormatText {
		t.Error("ParseFormat(xml) should fall back to text")
	}
}

func TestRunID(t *testing.T) {
	ctx := context.Background()
	if got := GetRunID(ctx); got != "" {
		t.Errorf("GetRunID(empty) = %q", got)
	}

	id := NewRunID()
	if len(id) != 36 {
		t.Errorf("NewRunID() = %q, want a UUID", id)
	}
	if NewRunID() == id {
		t.Error("NewRunID() returned the same id twice")
	}

	ctx = WithRunID(ctx, id)
	if got := GetRunID(ctx); got != id {
		t.Errorf("GetRunID() = %q, want %q", got, id)
	}
}

func TestLoggerFromContext(t *testing.T) {
	out := captureLogOutput(func() {
		ctx := WithRunID(context.Background(), "run-123")
		InfoContext(ctx, "with run")
		InfoContext(context.Background(), "without run")
	})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out)
	}
	if !strings.Contains(lines[0], `"run_id":"run-123"`) {
		t.Errorf("line %q missing run_id", lines[0])
	}
	if strings.Contains(lines[1], "run_id") {
		t.Errorf("line %q should not carry run_id", lines[1])
	}
}

func TestContextLoggingFunctions(t *testing.T) {
	ctx := WithRunID(context.Background(), "r1")
	tests := []struct {
		name      string
		logFunc   func()
		wantLevel string
	}{
		{"DebugContext", func() { DebugContext(ctx, "m") }, "DEBUG"},
		{"InfoContext", func() { InfoContext(ctx, "m") }, "INFO"},
		{"WarnContext", func() { WarnContext(ctx, "m") }, "WARN"},
		{"ErrorContext", func() { ErrorContext(ctx, "m") }, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureLogOutput(tt.logFunc)
			if !strings.Contains(out, `"level":"`+tt.wantLevel+`"`) {
				t.Errorf("output %q missing level %s", out, tt.wantLevel)
			}
		})
	}
}

func TestEventHelpers(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		logFunc func()
		want    []string
	}{
		{
			name: "Download",
			logFunc: func() {
				Download(ctx, "GET", "http://example.com/elf.php", 200, 512, 1500*time.Millisecond)
			},
			want: []string{`"msg":"download"`, `"status_code":200`, `"bytes":512`, `"duration_ms":1500`},
		},
		{
			name: "ReferenceLoaded",
			logFunc: func() {
				ReferenceLoaded(ctx, "OE.txt", 3, "abc", true)
			},
			want: []string{`"msg":"reference_loaded"`, `"entries":3`, `"blake3":"abc"`, `"downloaded":true`},
		},
		{
			name: "CacheEvent",
			logFunc: func() {
				CacheEvent(ctx, "hit", "2^10", "bytes", 10)
			},
			want: []string{`"msg":"cache_event"`, `"event":"hit"`, `"sequence":"2^10"`, `"bytes":10`},
		},
		{
			name: "CacheCorrupt",
			logFunc: func() {
				CacheCorrupt(ctx, "2^10", "aa", "bb")
			},
			want: []string{`"level":"WARN"`, `"want_blake3":"aa"`, `"got_blake3":"bb"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureLogOutput(tt.logFunc)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output %q missing %s", out, w)
				}
			}
		})
	}
}

func TestTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short"))
	}))
	defer server.Close()

	client := &http.Client{Transport: NewTransport(nil)}

	out := captureLogOutput(func() {
		req, _ := http.NewRequestWithContext(WithRunID(context.Background(), "r9"), http.MethodGet, server.URL+"/x", nil)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		resp.Body.Close()
	})

	for _, w := range []string{`"msg":"download"`, `"status_code":418`, `"run_id":"r9"`, `/x`} {
		if !strings.Contains(out, w) {
			t.Errorf("output %q missing %s", out, w)
		}
	}
}

type failingRoundTripper struct{}

func (failingRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("dial failed")
}

func TestTransport_Error(t *testing.T) {
	tr := NewTransport(failingRoundTripper{})
	out := captureLogOutput(func() {
		req := httptest.NewRequest(http.MethodGet, "http://example.invalid/", nil)
		if _, err := tr.RoundTrip(req); err == nil {
			t.Error("RoundTrip() expected error")
		}
	})
	if !strings.Contains(out, `"msg":"download_failed"`) || !strings.Contains(out, "dial failed") {
		t.Errorf("output %q missing failure record", out)
	}
}

func TestLevelConstants(t *testing.T) {
	if LevelDebug != 0 || LevelInfo != 1 || LevelWarn != 2 || LevelError != 3 {
		t.Error("level constants changed order")
	}
	if FormatJSON != 0 || FormatText != 1 {
		t.Error("format constants changed order")
	}
}
