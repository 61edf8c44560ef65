package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const idleClientTTL = 10 * time.Minute

// clientLimiterEntry holds a rate limiter and last-seen timestamp for cleanup.
type clientLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientRateLimiter manages per-client rate limiters. A client is its Plex
// token when the request carries one, otherwise its IP.
type ClientRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiterEntry
	rate     rate.Limit
	burst    int
	stop     chan struct{}
	once     sync.Once
}

// NewClientRateLimiter creates a rate limiter that allows r events per second
// per client with the given burst size. Call Close to stop the idle sweeper.
func NewClientRateLimiter(r rate.Limit, burst int) *ClientRateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &ClientRateLimiter{
		limiters: make(map[string]*clientLimiterEntry),
		rate:     r,
		burst:    burst,
		stop:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Close stops the background sweeper.
func (rl *ClientRateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// Allow reports whether the client may proceed now.
func (rl *ClientRateLimiter) Allow(client string) bool {
	return rl.getLimiter(client).Allow()
}

// getLimiter returns the rate limiter for the given client, creating one if needed.
func (rl *ClientRateLimiter) getLimiter(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[client]
	if !exists {
		limiter := rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[client] = &clientLimiterEntry{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// cleanup evicts clients not seen for idleClientTTL.
func (rl *ClientRateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle(time.Now())
		}
	}
}

func (rl *ClientRateLimiter) evictIdle(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	evicted := 0
	for client, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > idleClientTTL {
			delete(rl.limiters, client)
			evicted++
		}
	}
	return evicted
}

// retryAfter is the whole number of seconds until one token refills.
func (rl *ClientRateLimiter) retryAfter() string {
	if rl.rate <= 0 || rl.rate == rate.Inf {
		return "1"
	}
	return strconv.Itoa(int(math.Ceil(1 / float64(rl.rate))))
}

// getClientIP extracts client IP from the request, honoring proxy headers.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

// clientKey prefers the caller's token so clients behind one NAT are separated.
func clientKey(r *http.Request) string {
	if token := GetPlexToken(r); token != "" {
		return "token:" + token
	}
	if token := extractToken(r); token != "" {
		return "token:" + token
	}
	return "ip:" + getClientIP(r)
}

// RateLimitHandler wraps an http.Handler with per-client rate limiting.
// Returns 429 Too Many Requests when the limit is exceeded.
func RateLimitHandler(rl *ClientRateLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientKey(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", rl.retryAfter())
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitMiddleware adapts RateLimitHandler for mux routers.
func RateLimitMiddleware(rl *ClientRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return RateLimitHandler(rl, next)
	}
}
