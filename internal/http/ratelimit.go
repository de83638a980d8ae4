package http

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"envelopes/internal/log"
	"envelopes/internal/metrics"
)

const (
	defaultWritesPerMinute = 60
	rateWindow             = time.Minute
	staleClientAfter       = 10 * time.Minute
	rateCleanupInterval    = 5 * time.Minute
)

// rateLimiter is a fixed-window limiter keyed by client IP.
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	limit        int
	now          func() time.Time
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	windowStart time.Time
	requests    int
}

func newRateLimiter(limit int) *rateLimiter {
	if limit <= 0 {
		limit = defaultWritesPerMinute
	}
	return &rateLimiter{
		clients:     make(map[string]*clientInfo),
		limit:       limit,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
}

// allow counts one request for ip and reports whether it is within the
// limit. It returns the time until the window resets when it is not.
func (rl *rateLimiter) allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	client, ok := rl.clients[ip]
	if !ok || now.Sub(client.windowStart) >= rateWindow {
		rl.clients[ip] = &clientInfo{windowStart: now, requests: 1}
		return true, 0
	}
	client.requests++
	if client.requests <= rl.limit {
		return true, 0
	}
	return false, rateWindow - now.Sub(client.windowStart)
}

// startCleanup removes stale clients until stop is called.
func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(rateCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *rateLimiter) cleanupStaleEntries() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-staleClientAfter)
	removed := 0
	for ip, client := range rl.clients {
		if client.windowStart.Before(cutoff) {
			delete(rl.clients, ip)
			removed++
		}
	}
	return removed
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() { close(rl.stopCleanup) })
}

// limitWrites applies the limiter to state-changing methods only.
func (rl *rateLimiter) limitWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		ip := clientIP(r)
		ok, retry := rl.allow(ip)
		if !ok {
			metrics.RateLimited.Inc()
			log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, ip, log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
			seconds := int(retry.Round(time.Second) / time.Second)
			ErrorResponse(r, http.StatusTooManyRequests, CodeTooManyRequests, "rate limit exceeded, please try again later").
				Header("Retry-After", strconv.Itoa(max(seconds, 1))).
				Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
