package source

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/logging"
	"github.com/paveg/finwrangle/internal/version"
	"github.com/sethvargo/go-retry"
)

// Fetcher retrieves the raw bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Default fetch settings.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultBaseBackoff = 500 * time.Millisecond
)

// NoRetries as HTTPOptions.MaxRetries makes a single attempt.
const NoRetries = -1

// HTTPOptions configures an HTTPFetcher. Zero values take the defaults.
type HTTPOptions struct {
	// Timeout bounds each attempt, not the whole fetch.
	Timeout time.Duration
	// MaxRetries counts attempts after the first. Any negative value,
	// such as NoRetries, disables retrying.
	MaxRetries  int
	BaseBackoff time.Duration
	UserAgent   string
	Client      *http.Client
	Logger      *slog.Logger
}

// HTTPFetcher performs GET requests with exponential backoff between
// attempts. Network errors, 429 and 5xx responses are retried; other
// non-200 responses fail at once.
type HTTPFetcher struct {
	client      *http.Client
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	userAgent   string
	logger      *slog.Logger
}

// NewHTTPFetcher creates a fetcher from opts.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	f := &HTTPFetcher{
		client:      opts.Client,
		timeout:     opts.Timeout,
		maxRetries:  opts.MaxRetries,
		baseBackoff: opts.BaseBackoff,
		userAgent:   opts.UserAgent,
		logger:      logging.OrDiscard(opts.Logger),
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	switch {
	case f.maxRetries == 0:
		f.maxRetries = DefaultMaxRetries
	case f.maxRetries < 0:
		f.maxRetries = 0
	}
	if f.baseBackoff <= 0 {
		f.baseBackoff = DefaultBaseBackoff
	}
	if f.userAgent == "" {
		f.userAgent = version.UserAgent()
	}
	return f
}

// statusError is a non-200 HTTP response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.code, http.StatusText(e.code))
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= http.StatusInternalServerError
}

// Fetch returns the response body of url. Every failure is a
// SourceUnavailable error wrapping the last attempt's cause.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	backoff := retry.WithMaxRetries(uint64(f.maxRetries), retry.NewExponential(f.baseBackoff))

	var body []byte
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		data, err := f.fetchOnce(ctx, url)
		if err == nil {
			body = data
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		var se *statusError
		if stderrors.As(err, &se) && !se.retryable() {
			return err
		}
		f.logger.WarnContext(ctx, "fetch attempt failed", "url", url, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		return nil, errors.NewSourceUnavailableError("Fetch", url, err)
	}

	f.logger.DebugContext(ctx, "fetched source", "url", url, "attempts", attempt, "bytes", len(body))
	return body, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &statusError{code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}
