package jsonrpc

import (
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// hostRateLimiter enforces a per-host token bucket. A MaxRequestsPerSec of
// zero means unlimited.
type hostRateLimiter struct {
	maxPerSec float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newHostRateLimiter(maxRequestsPerSec float64) *hostRateLimiter {
	if maxRequestsPerSec <= 0 {
		return nil
	}
	return &hostRateLimiter{
		maxPerSec: maxRequestsPerSec,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// allow reports whether a request to rawURL's host may proceed right now. It
// never blocks or enqueues — a request over the limit is rejected
// immediately, as HttpError(429), by the caller.
func (h *hostRateLimiter) allow(rawURL string) bool {
	if h == nil {
		return true
	}
	host := hostOf(rawURL)

	h.mu.Lock()
	lim, ok := h.limiters[host]
	if !ok {
		// Burst of 1: a strict requests-per-second cap, not a bucket that
		// lets a quiet host save up credit for a burst.
		lim = rate.NewLimiter(rate.Limit(h.maxPerSec), 1)
		h.limiters[host] = lim
	}
	h.mu.Unlock()

	return lim.Allow()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
