package logging

import (
	"net/http"
	"time"
)

// Transport wraps an http.RoundTripper and logs each outgoing request.
type Transport struct {
	Base http.RoundTripper
}

// NewTransport wraps base, or http.DefaultTransport when base is nil.
func NewTransport(base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Base.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		LoggerFromContext(req.Context()).Debug("download_failed",
			"method", req.Method,
			"url", req.URL.String(),
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
		return nil, err
	}

	Download(req.Context(), req.Method, req.URL.String(), resp.StatusCode, resp.ContentLength, duration)
	return resp, nil
}
