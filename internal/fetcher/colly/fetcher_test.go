package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
)

func TestFetchSendsUserAgent(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "jadwal-test/1.0", Timeout: 2 * time.Second})
	resp, err := f.Fetch(context.Background(), srv.URL+"/brebes?month=03&year=2024")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "ok")
	require.Equal(t, "jadwal-test/1.0", gotUA.Load())
}

func TestFetchRevisitsSameURL(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("again"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 2 * time.Second})
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	require.Equal(t, int32(3), hits.Load())
}

func TestFetchStatusErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"not found", http.StatusNotFound, false},
		{"forbidden", http.StatusForbidden, false},
		{"unavailable", http.StatusServiceUnavailable, true},
		{"throttled", http.StatusTooManyRequests, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			t.Cleanup(srv.Close)

			f := New(Config{Timeout: 2 * time.Second})
			_, err := f.Fetch(context.Background(), srv.URL)
			require.Error(t, err)

			fe, ok := crawler.AsFetchError(err)
			require.True(t, ok, "expected FetchError, got %T", err)
			require.Equal(t, tt.status, fe.Status)
			require.Equal(t, tt.retryable, fe.Retryable())
		})
	}
}

func TestFetchNetworkErrorIsRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), addr)
	require.Error(t, err)
	require.True(t, crawler.IsRetryable(err))
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(Config{})
	_, err := f.Fetch(ctx, "http://127.0.0.1:1")
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, crawler.IsRetryable(err))
}

func TestFetchUsesLimiter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	lim := &countingLimiter{}
	f := New(Config{Timeout: 2 * time.Second, Limiter: lim})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, int32(1), lim.calls.Load())
}

func TestFetchLimiterErrorFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 2 * time.Second, Limiter: &countingLimiter{err: errors.New("limiter closed")}})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	_, ok := crawler.AsFetchError(err)
	require.True(t, ok)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	res := &attempt{}
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, time.Unix(0, 0), res)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/brebes")},
	})
	require.Equal(t, http.StatusOK, res.resp.StatusCode)
	require.Equal(t, "body", string(res.resp.Body))
	require.Equal(t, "https://example.com/brebes", res.resp.URL)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, res.err, "boom")
}

func TestToFetchErrorRobotsBlocked(t *testing.T) {
	t.Parallel()

	fe := toFetchError("https://example.com/x", 0, colly.ErrRobotsTxtBlocked)
	require.Equal(t, http.StatusForbidden, fe.Status)
	require.False(t, fe.Retryable())
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

type countingLimiter struct {
	calls atomic.Int32
	err   error
}

func (l *countingLimiter) Wait(context.Context, string) error {
	l.calls.Add(1)
	return l.err
}
