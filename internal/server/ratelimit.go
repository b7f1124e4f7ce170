package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitorIdleTimeout is how long a client's limiter survives without
// traffic before the janitor drops it.
const visitorIdleTimeout = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter applies per-client admission control before the retrieval
// core is reached: a token bucket per caller IP bounding the sustained
// request rate with burst tolerance.
type clientLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
}

func newClientLimiter(perMinute, burst int) *clientLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &clientLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

func (c *clientLimiter) allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(c.rate, c.burst)}
		c.visitors[key] = v
	}
	v.lastSeen = time.Now()

	if len(c.visitors) > 1 {
		c.dropIdleLocked()
	}

	return v.limiter.Allow()
}

// dropIdleLocked discards limiters that have not been seen recently, so the
// visitor map stays bounded by active clients. Caller holds c.mu.
func (c *clientLimiter) dropIdleLocked() {
	cutoff := time.Now().Add(-visitorIdleTimeout)
	for key, v := range c.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(c.visitors, key)
		}
	}
}

func (c *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.allow(clientIP(r)) {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":   "rate_limited",
				"message": "too many requests, slow down",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP identifies the caller: the first X-Forwarded-For hop when a
// proxy is in front, the remote address otherwise.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx != -1 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
