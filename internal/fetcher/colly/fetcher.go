// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// Limiter, when set, throttles every outbound request including robots.txt probes.
	Limiter crawler.Limiter
}

// Fetcher implements crawler.Fetcher using the Colly collector. It performs a
// single attempt per call; retries belong to the caller.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// attempt holds the outcome of one collector visit.
type attempt struct {
	resp   crawler.FetchResponse
	status int
	err    error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !cfg.RespectRobots

	var transport http.RoundTripper = newHTTPTransport(cfg.Timeout)
	if cfg.Limiter != nil {
		transport = &throttledTransport{base: transport, limiter: cfg.Limiter}
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.FetchResponse, error) {
	if err := ctx.Err(); err != nil {
		return crawler.FetchResponse{}, &crawler.FetchError{URL: url, Reason: "canceled", Err: err}
	}
	res := &attempt{}
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, time.Now(), res)

	if err := f.runCollector(ctx, collector, url, res); err != nil {
		return crawler.FetchResponse{}, err
	}
	return res.resp, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, start time.Time, res *attempt) {
	hooks.OnResponse(func(r *colly.Response) {
		res.status = r.StatusCode
		res.resp = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			res.status = r.StatusCode
		}
		res.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, res *attempt) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return &crawler.FetchError{URL: url, Reason: "canceled", Err: ctx.Err()}
	case err := <-done:
		if res.err != nil {
			err = res.err
		}
		if err == nil && (res.status < 200 || res.status > 299) {
			err = errors.New(http.StatusText(res.status))
		}
		if err != nil {
			return toFetchError(url, res.status, err)
		}
		return nil
	}
}

func toFetchError(url string, status int, err error) *crawler.FetchError {
	if errors.Is(err, colly.ErrRobotsTxtBlocked) {
		return &crawler.FetchError{URL: url, Status: http.StatusForbidden, Reason: "blocked by robots.txt", Err: err}
	}
	reason := err.Error()
	if status > 0 {
		reason = http.StatusText(status)
	}
	return &crawler.FetchError{URL: url, Status: status, Reason: reason, Err: err}
}

func newHTTPTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
