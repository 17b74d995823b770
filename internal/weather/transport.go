package weather

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	maxAttempts   = 3
	maxRetryAfter = 30 * time.Second
)

// retryTransport wraps an http.RoundTripper and retries requests answered
// with 429 or 503 when the server sends a usable Retry-After header. Both
// Nominatim and Open-Meteo throttle anonymous clients this way.
type retryTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}

	for attempt := range maxAttempts {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
			return resp, nil
		}

		wait, ok := retryAfter(resp.Header.Get("Retry-After"))
		if !ok || attempt == maxAttempts-1 {
			return resp, nil
		}

		slog.Warn("weather service throttled, retrying",
			"host", req.URL.Host, "status", resp.StatusCode, "retry_after", wait, "attempt", attempt+1)
		resp.Body.Close()
		if err := sleepContext(req.Context(), wait); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("weather request to %s: retries exhausted after %d attempts", req.URL.Host, maxAttempts)
}

// retryAfter parses a Retry-After value given in seconds. Values that are
// missing, malformed or longer than maxRetryAfter are not worth waiting for.
func retryAfter(v string) (time.Duration, bool) {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		return 0, false
	}
	return d, true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
