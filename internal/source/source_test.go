package source_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	dferrors "github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/logging"
	"github.com/paveg/finwrangle/internal/source"
	"github.com/paveg/finwrangle/internal/testutil"
	"github.com/paveg/finwrangle/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastFetcher(t *testing.T, retries int) *source.HTTPFetcher {
	t.Helper()
	return source.NewHTTPFetcher(source.HTTPOptions{
		Timeout:     2 * time.Second,
		MaxRetries:  retries,
		BaseBackoff: time.Millisecond,
		Logger:      testutil.NewTestLogger(t),
	})
}

func TestDescriptorValidate(t *testing.T) {
	tests := []struct {
		name    string
		desc    source.Descriptor
		wantErr string
	}{
		{name: "local path", desc: source.Descriptor{Name: "tickers", Path: "tickers.csv"}},
		{name: "remote url", desc: source.Descriptor{Name: "dgs10", URL: "https://fred.example.com/DGS10.csv"}},
		{name: "missing name", desc: source.Descriptor{Path: "x.csv"}, wantErr: "name is required"},
		{name: "no location", desc: source.Descriptor{Name: "x"}, wantErr: "url is required when path is empty"},
		{name: "bad url", desc: source.Descriptor{Name: "x", URL: "::nope"}, wantErr: "url must be a valid URL"},
		{name: "unknown format", desc: source.Descriptor{Name: "x", Path: "x", Format: "tsv"}, wantErr: "format must be one of"},
		{
			name:    "long delimiter",
			desc:    source.Descriptor{Name: "x", Path: "x", CSV: source.CSVSettings{Delimiter: "::"}},
			wantErr: "csv.delimiter must be a single character",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, dferrors.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolvedFormat(t *testing.T) {
	tests := map[source.Format]source.Descriptor{
		source.FormatCSV:     {Path: "data/prices.txt"},
		source.FormatXLSX:    {Path: "data/GDP.XLSX"},
		source.FormatJSONL:   {URL: "https://example.com/feed.jsonl?token=1"},
		source.FormatParquet: {Path: "rates.parquet"},
		source.FormatJSON:    {Path: "rates.csv", Format: source.FormatJSON},
	}
	for want, d := range tests {
		assert.Equal(t, want, d.ResolvedFormat(), d)
	}
}

func TestHTTPFetcherRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, version.UserAgent(), r.Header.Get("User-Agent"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("date,rate\n"))
	}))
	defer srv.Close()

	body, err := fastFetcher(t, 3).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "date,rate\n", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcherRetryDefaults(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		wantCalls  int32
		wantErr    bool
	}{
		{name: "zero takes the default", maxRetries: 0, wantCalls: 2},
		{name: "no retries", maxRetries: source.NoRetries, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if calls.Add(1) == 1 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				_, _ = w.Write([]byte("ok"))
			}))
			defer srv.Close()

			fetcher := source.NewHTTPFetcher(source.HTTPOptions{
				MaxRetries:  tt.maxRetries,
				BaseBackoff: time.Millisecond,
			})
			body, err := fetcher.Fetch(context.Background(), srv.URL)
			if tt.wantErr {
				assert.ErrorIs(t, err, dferrors.ErrSourceUnavailable)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "ok", string(body))
			}
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestHTTPFetcherFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retries   int
		wantCalls int32
	}{
		{name: "not found is not retried", status: http.StatusNotFound, retries: 3, wantCalls: 1},
		{name: "rate limit is retried", status: http.StatusTooManyRequests, retries: 2, wantCalls: 3},
		{name: "server error exhausts retries", status: http.StatusInternalServerError, retries: 1, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := fastFetcher(t, tt.retries).Fetch(context.Background(), srv.URL)
			require.Error(t, err)
			assert.ErrorIs(t, err, dferrors.ErrSourceUnavailable)
			assert.Contains(t, err.Error(), http.StatusText(tt.status))
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestHTTPFetcherCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fastFetcher(t, 3).Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, dferrors.ErrSourceUnavailable)
}

func TestReaderRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("DATE,DGS10\n2020-01-02,1.88\n2020-01-03,.\n"))
	}))
	defer srv.Close()

	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	reader := source.NewReader(fastFetcher(t, source.NoRetries), source.WithAllocator(mem.Allocator))
	df, err := reader.Read(context.Background(), source.Descriptor{
		Name: "dgs10",
		URL:  srv.URL + "/DGS10.csv",
		CSV:  source.CSVSettings{ColumnNames: []string{"date", "rate"}, NullValues: []string{"."}},
	})
	require.NoError(t, err)
	defer df.Release()

	assert.Equal(t, []string{"date", "rate"}, df.Columns())
	assert.Equal(t, []string{"1.88", "<nil>"}, testutil.ColumnStrings(t, df, "rate"))
}

func TestReaderFallsBackToLocalCopy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var logs bytes.Buffer
	logger := logging.New(logging.Options{Level: "info", Format: "text"}, &logs)
	reader := source.NewReader(fastFetcher(t, 1), source.WithLogger(logger))

	df, err := reader.Read(context.Background(), source.Descriptor{
		Name:         "dgs10",
		URL:          srv.URL,
		FallbackPath: "testdata/dgs10.csv",
		CSV:          source.CSVSettings{NullValues: []string{"."}},
	})
	require.NoError(t, err)
	defer df.Release()

	assert.Equal(t, 3, df.Len())
	assert.Equal(t, []string{"DATE", "DGS10"}, df.Columns())
	assert.Contains(t, logs.String(), "using local fallback")
	assert.Contains(t, logs.String(), "fallback=testdata/dgs10.csv")
}

func TestReaderWithoutFallbackFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := source.NewReader(fastFetcher(t, source.NoRetries)).Read(context.Background(), source.Descriptor{Name: "x", URL: srv.URL})
	assert.ErrorIs(t, err, dferrors.ErrSourceUnavailable)
}

func TestReaderLocal(t *testing.T) {
	reader := source.NewReader(nil, source.WithLogger(testutil.NewTestLogger(t)))

	t.Run("colon delimited", func(t *testing.T) {
		df, err := reader.Read(context.Background(), source.Descriptor{
			Name: "tickers",
			Path: "testdata/tickers.txt",
			CSV:  source.CSVSettings{Delimiter: ":"},
		})
		require.NoError(t, err)
		defer df.Release()
		assert.Equal(t, []string{"ticker", "name", "sector"}, df.Columns())
		assert.Equal(t, []string{"Industrials", "Energy"}, testutil.ColumnStrings(t, df, "sector"))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := reader.Read(context.Background(), source.Descriptor{Name: "x", Path: "testdata/missing.csv"})
		assert.ErrorIs(t, err, dferrors.ErrSourceUnavailable)
	})

	t.Run("malformed content", func(t *testing.T) {
		_, err := reader.Read(context.Background(), source.Descriptor{Name: "x", Path: "testdata/dgs10.csv", Format: source.FormatJSON})
		assert.ErrorIs(t, err, dferrors.ErrParse)
	})

	t.Run("invalid descriptor", func(t *testing.T) {
		_, err := reader.Read(context.Background(), source.Descriptor{Path: "testdata/dgs10.csv"})
		assert.ErrorIs(t, err, dferrors.ErrInvalidInput)
	})
}
