package source

import (
	"bytes"
	"context"
	"log/slog"
	"os"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/logging"
)

// Reader loads descriptors into DataFrames.
type Reader struct {
	fetcher Fetcher
	mem     memory.Allocator
	logger  *slog.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithAllocator sets the allocator for decoded columns.
func WithAllocator(mem memory.Allocator) ReaderOption {
	return func(r *Reader) { r.mem = mem }
}

// WithLogger sets the reader's logger.
func WithLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) { r.logger = l }
}

// NewReader creates a Reader. A nil fetcher gets an HTTPFetcher with
// default settings.
func NewReader(fetcher Fetcher, opts ...ReaderOption) *Reader {
	r := &Reader{fetcher: fetcher}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)
	if r.fetcher == nil {
		r.fetcher = NewHTTPFetcher(HTTPOptions{Logger: r.logger})
	}
	if r.mem == nil {
		r.mem = memory.NewGoAllocator()
	}
	return r
}

// Read loads d. A descriptor with a URL is fetched remotely; when that
// fails and a FallbackPath is set, the local copy is read instead and a
// warning is logged. A descriptor with only a Path reads the local file.
func (r *Reader) Read(ctx context.Context, d Descriptor) (*dataframe.DataFrame, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var (
		data   []byte
		origin string
		err    error
	)
	switch {
	case d.URL != "":
		origin = d.URL
		data, err = r.fetcher.Fetch(ctx, d.URL)
		if err != nil && errors.IsRetryable(err) && d.FallbackPath != "" {
			r.logger.WarnContext(ctx, "remote source unavailable, using local fallback",
				"source", d.Name, "url", d.URL, "fallback", d.FallbackPath, "error", err)
			origin = d.FallbackPath
			data, err = readLocal(d.FallbackPath)
		}
	default:
		origin = d.Path
		data, err = readLocal(d.Path)
	}
	if err != nil {
		return nil, err
	}

	df, err := d.Decode(bytes.NewReader(data), r.mem)
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "source read", "source", d.Name, "origin", origin,
		"format", string(d.ResolvedFormat()), "rows", df.Len(), "columns", df.Width())
	return df, nil
}

func readLocal(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewSourceUnavailableError("Read", path, err)
	}
	return data, nil
}
