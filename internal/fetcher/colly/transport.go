package collyfetcher

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
)

// throttledTransport waits on the limiter before every round trip.
type throttledTransport struct {
	base    http.RoundTripper
	limiter crawler.Limiter
}

func (t *throttledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("throttled transport received nil request")
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context(), req.URL.String()); err != nil {
			return nil, fmt.Errorf("throttle %s: %w", req.URL.Host, err)
		}
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("throttled transport roundtrip: %w", err)
	}
	return resp, nil
}
