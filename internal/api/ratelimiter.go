package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	// RateLimitWindow is the window RATE_LIMIT_15_MINUTE_WINDOW is counted over.
	RateLimitWindow = 15 * time.Minute

	maxTrackedClients = 10000
)

type rateLimiter interface {
	Allow(key string) bool
}

// clientLimiter keeps one token bucket per client key. Buckets of idle
// clients expire after a full window.
type clientLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// newClientLimiter allows perWindow requests per client per window, refilled
// continuously. A non-positive perWindow disables limiting.
func newClientLimiter(perWindow int, window time.Duration) rateLimiter {
	if perWindow <= 0 {
		return nil
	}
	if window <= 0 {
		window = RateLimitWindow
	}

	return &clientLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, window),
		limit:    rate.Every(window / time.Duration(perWindow)),
		burst:    perWindow,
	}
}

func (l *clientLimiter) Allow(key string) bool {
	if l == nil || l.limiters == nil {
		return true
	}

	l.mu.Lock()
	limiter, ok := l.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(key, limiter)
	}
	l.mu.Unlock()

	return limiter.Allow()
}

// WithRateLimit limits each client to perWindow requests per 15 minutes.
// Zero disables the limiter.
func WithRateLimit(perWindow int) RouterOption {
	return func(cfg *routerConfig) {
		cfg.rateLimiter = newClientLimiter(perWindow, RateLimitWindow)
	}
}

func rateLimitMiddleware(limiter rateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter.Allow(clientKey(r)) {
			next.ServeHTTP(w, r)
			return
		}
		WriteError(w, http.StatusTooManyRequests, "Too many requests", "rate limit exceeded, please retry later")
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
