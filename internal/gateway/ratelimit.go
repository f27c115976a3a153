// ABOUTME: Per-client request limiter for the public routes
// ABOUTME: Allows max requests per window per client IP using token buckets

package gateway

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client IP. A bucket holds maxRequests
// tokens and refills at that many per window, so a client may burst the whole
// allowance and then proceeds at the average rate.
type clientLimiter struct {
	mu        sync.Mutex
	clients   map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastPrune time.Time
	now       func() time.Time
}

// newClientLimiter creates a limiter. A maxRequests of zero or less disables limiting.
func newClientLimiter(window time.Duration, maxRequests int) *clientLimiter {
	l := &clientLimiter{
		clients: make(map[string]*limiterEntry),
		burst:   maxRequests,
		idle:    window,
		now:     time.Now,
	}
	if maxRequests > 0 && window > 0 {
		l.limit = rate.Limit(float64(maxRequests) / window.Seconds())
	} else {
		l.limit = rate.Inf
	}
	return l
}

// Allow reports whether the client may make a request now.
func (l *clientLimiter) Allow(client string) bool {
	if l.limit == rate.Inf {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	e, ok := l.clients[client]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// pruneLocked drops clients idle for a full window; their buckets are full
// again by then. Runs at most once per window.
func (l *clientLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < l.idle {
		return
	}
	l.lastPrune = now
	for k, e := range l.clients {
		if now.Sub(e.lastSeen) >= l.idle {
			delete(l.clients, k)
		}
	}
}

// Middleware rejects over-limit requests with 429. onReject, if set, is
// called for each rejected request.
func (l *clientLimiter) Middleware(onReject func(*http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientIP(r)) {
				if onReject != nil {
					onReject(r)
				}
				w.Header().Set("Retry-After", "60")
				sendJSONError(w, http.StatusTooManyRequests, "too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the host part of RemoteAddr, which chi's RealIP
// middleware has already rewritten from proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
