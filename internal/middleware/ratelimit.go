package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimitMiddleware provides sliding-window rate limiting per client IP.
type RateLimitMiddleware struct {
	requests   map[string][]int64 // IP -> unix timestamps
	mu         sync.Mutex
	now        func() time.Time
	trustProxy bool
	lastSweep  int64
}

// NewRateLimitMiddleware creates a new rate limiting middleware. With
// trustProxy set, the client IP is read from X-Forwarded-For or X-Real-IP;
// otherwise only the connection address counts.
func NewRateLimitMiddleware(trustProxy bool) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		requests:   make(map[string][]int64),
		now:        time.Now,
		trustProxy: trustProxy,
	}
}

// RateLimit allows maxRequests per client within windowSeconds. A
// non-positive maxRequests disables limiting.
func (m *RateLimitMiddleware) RateLimit(maxRequests int, windowSeconds int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxRequests <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.allow(m.clientIP(r), maxRequests, windowSeconds) {
				LoggerFromContext(r.Context()).Warn("Rate limit exceeded")
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *RateLimitMiddleware) allow(clientIP string, maxRequests, windowSeconds int) bool {
	now := m.now().Unix()
	windowStart := now - int64(windowSeconds)

	m.mu.Lock()
	defer m.mu.Unlock()

	if now-m.lastSweep >= int64(windowSeconds) {
		m.sweep(windowStart)
		m.lastSweep = now
	}

	kept := inWindow(m.requests[clientIP], windowStart)
	if len(kept) >= maxRequests {
		m.requests[clientIP] = kept
		return false
	}
	m.requests[clientIP] = append(kept, now)
	return true
}

// sweep drops clients with no requests inside the window.
func (m *RateLimitMiddleware) sweep(windowStart int64) {
	for ip, timestamps := range m.requests {
		if kept := inWindow(timestamps, windowStart); len(kept) == 0 {
			delete(m.requests, ip)
		} else {
			m.requests[ip] = kept
		}
	}
}

func inWindow(timestamps []int64, windowStart int64) []int64 {
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if ts > windowStart {
			kept = append(kept, ts)
		}
	}
	return kept
}

// clientIP extracts the client IP from the request
func (m *RateLimitMiddleware) clientIP(r *http.Request) string {
	if m.trustProxy {
		if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
			return strings.TrimSpace(strings.Split(ip, ",")[0])
		}
		if ip := r.Header.Get("X-Real-IP"); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
