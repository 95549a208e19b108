package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiter pairs a token bucket with its last access time so idle
// entries can be evicted.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter holds rate limiters for each client IP address.
type IPRateLimiter struct {
	limiters map[string]*ipLimiter
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	maxIdle  time.Duration
}

// NewIPRateLimiter creates a new IP-based rate limiter.
// rps is the sustained request rate allowed per IP, burst the bucket size.
func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	limiter := &IPRateLimiter{
		limiters: make(map[string]*ipLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		maxIdle:  5 * time.Minute,
	}

	go limiter.cleanupRoutine()

	return limiter
}

func (i *IPRateLimiter) allow(ip string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	entry, exists := i.limiters[ip]
	if !exists {
		entry = &ipLimiter{limiter: rate.NewLimiter(i.rps, i.burst)}
		i.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

// cleanupRoutine evicts limiters for IPs that have gone quiet.
func (i *IPRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(i.maxIdle)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-i.maxIdle)
		i.mu.Lock()
		for ip, entry := range i.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(i.limiters, ip)
			}
		}
		i.mu.Unlock()
	}
}

// RateLimit middleware limits requests per client IP address.
func RateLimit(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientIP(r)) {
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// First entry is the originating client.
		if idx := strings.Index(forwarded, ","); idx > 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	return r.RemoteAddr
}
