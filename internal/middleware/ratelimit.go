package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Buckets untouched for this long are dropped.
const clientIdleTTL = 10 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client address.
type clientLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientBucket
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	return &clientLimiter{
		clients:   make(map[string]*clientBucket),
		limit:     rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// allow takes a token from the client's bucket at now. Idle buckets are
// swept at most once per clientIdleTTL.
func (cl *clientLimiter) allow(client string, now time.Time) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if now.Sub(cl.lastSweep) > clientIdleTTL {
		cl.evictIdleLocked(now)
		cl.lastSweep = now
	}

	b, ok := cl.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(cl.limit, cl.burst)}
		cl.clients[client] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// retryAfter is the whole number of seconds until one token is refilled.
func (cl *clientLimiter) retryAfter() string {
	secs := 1.0
	if cl.limit > 0 {
		secs = math.Max(1, math.Ceil(1/float64(cl.limit)))
	}
	return strconv.Itoa(int(secs))
}

func (cl *clientLimiter) evictIdleLocked(now time.Time) {
	for client, b := range cl.clients {
		if now.Sub(b.lastSeen) > clientIdleTTL {
			delete(cl.clients, client)
		}
	}
}

// RateLimit limits requests per client IP to rps with bursts of up to burst.
// Mount chi's RealIP before it when running behind a proxy.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := newClientLimiter(rps, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientIP(r), time.Now()) {
				w.Header().Set("Retry-After", limiter.retryAfter())
				writeJSONError(w, http.StatusTooManyRequests, "too many requests", "TOO_MANY_REQUESTS")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
