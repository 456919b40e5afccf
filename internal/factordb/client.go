// Package factordb downloads Aliquot sequence listings from factordb.com.
//
// The listing endpoint (elf.php) returns one term per line in the layout
// decoded by core/termrec. Other hosts serving the same layout can be used by
// changing the base URL.
package factordb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/FocuswithJustin/alimerge/core/errors"
	"github.com/FocuswithJustin/alimerge/core/termrec"
	"github.com/FocuswithJustin/alimerge/internal/logging"
)

const (
	// DefaultBaseURL is the factordb listing endpoint.
	DefaultBaseURL = "http://www.factordb.com/elf.php"

	// DefaultUserAgent identifies the client to the listing host.
	DefaultUserAgent = "alimerge/1.0"

	// DefaultTimeout bounds a single download.
	DefaultTimeout = 60 * time.Second
)

// Client provides HTTP download functionality for sequence listings.
type Client struct {
	httpClient *http.Client
	userAgent  string
	baseURL    string
	limiter    *rate.Limiter
}

// HTTPError represents an HTTP error response.
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error: %s", e.Status)
}

// IsNotFound returns true if this is a 404 error.
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the listing endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeout sets the per-download timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRateLimit paces downloads to perSecond requests per second with the
// given burst. A non-positive rate disables pacing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient creates a new listing client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: logging.NewTransport(nil),
		},
		userAgent: DefaultUserAgent,
		baseURL:   DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListingURL returns the URL of the term listing for a sequence.
func (c *Client) ListingURL(id string) string {
	q := url.Values{}
	q.Set("seq", id)
	q.Set("type", "1")

	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	return c.baseURL + sep + q.Encode()
}

// Download fetches a URL and returns its content as bytes.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, errors.NewValidation("URL", "", "empty URL")
	}

	// Validate URL scheme - only support HTTP/HTTPS
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, errors.NewValidation("URL", rawURL, "unsupported URL scheme")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "waiting for rate limiter")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "executing request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response")
	}

	return data, nil
}

// Fetch returns the raw listing body for a sequence.
func (c *Client) Fetch(ctx context.Context, id string) ([]byte, error) {
	return c.Download(ctx, c.ListingURL(id))
}

// Listing returns the listing for a sequence split into lines.
func (c *Client) Listing(ctx context.Context, id string) ([]string, error) {
	data, err := c.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return termrec.SplitLines(data), nil
}
