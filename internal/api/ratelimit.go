package api

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pong-arena/internal/config"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the IP-based rate limiter
type RateLimitConfig struct {
	RequestsPerSecond float64       // Requests allowed per second per IP
	Burst             int           // Maximum burst size
	CleanupInterval   time.Duration // How often to clean up stale limiters
}

// DefaultRateLimitConfig returns production-safe defaults
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 10,
	Burst:             20,
	CleanupInterval:   5 * time.Minute,
}

// RateLimitFromLimits converts the loaded limits into limiter settings
func RateLimitFromLimits(l config.LimitsConfig) RateLimitConfig {
	cfg := DefaultRateLimitConfig
	if l.RequestsPerSecond > 0 {
		cfg.RequestsPerSecond = l.RequestsPerSecond
	}
	if l.RequestBurst > 0 {
		cfg.Burst = l.RequestBurst
	}
	return cfg
}

// ipLimiterEntry tracks per-IP rate limiting state
type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// IPRateLimiter provides IP-based rate limiting for HTTP requests
type IPRateLimiter struct {
	limiters sync.Map // map[string]*ipLimiterEntry
	config   RateLimitConfig
	stopChan chan struct{}
	stopOnce sync.Once

	rejectedCount atomic.Uint64
	allowedCount  atomic.Uint64
}

// NewIPRateLimiter creates a new IP-based rate limiter
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}
	rl := &IPRateLimiter{
		config:   cfg,
		stopChan: make(chan struct{}),
	}

	// Clean up abandoned IPs so the map does not grow forever
	go rl.cleanupLoop()

	return rl
}

// Stop stops the rate limiter cleanup goroutine
func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
	})
}

// getLimiter returns or creates a rate limiter for the given IP
func (rl *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	now := time.Now().UnixNano()

	if v, ok := rl.limiters.Load(ip); ok {
		e := v.(*ipLimiterEntry)
		e.lastSeen.Store(now)
		return e.limiter
	}

	entry := &ipLimiterEntry{
		limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst),
	}
	entry.lastSeen.Store(now)

	actual, _ := rl.limiters.LoadOrStore(ip, entry)
	return actual.(*ipLimiterEntry).limiter
}

func (rl *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.cleanup(time.Now())
		}
	}
}

// cleanup removes rate limiters that haven't been used recently
func (rl *IPRateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-rl.config.CleanupInterval * 2).UnixNano()

	rl.limiters.Range(func(key, value interface{}) bool {
		if value.(*ipLimiterEntry).lastSeen.Load() < cutoff {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// Allow checks if a request from the given IP should be allowed
func (rl *IPRateLimiter) Allow(ip string) bool {
	if rl.getLimiter(ip).Allow() {
		rl.allowedCount.Add(1)
		return true
	}
	rl.rejectedCount.Add(1)
	return false
}

// Middleware returns an HTTP middleware for rate limiting
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			RecordConnectionRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			writeError(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetStats returns rate limiter statistics
func (rl *IPRateLimiter) GetStats() map[string]uint64 {
	return map[string]uint64{
		"allowed":  rl.allowedCount.Load(),
		"rejected": rl.rejectedCount.Load(),
	}
}

// GetClientIP extracts the client IP from an HTTP request
// Handles X-Forwarded-For header for proxied requests
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// CAUTION: This can be spoofed if not behind a trusted proxy
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// WebSocketRateLimiter limits concurrent WebSocket connections per IP
// and in total
type WebSocketRateLimiter struct {
	connections sync.Map // map[string]*atomic.Int32
	maxPerIP    int
	maxTotal    int
	total       atomic.Int32

	rejectedCount atomic.Uint64
}

// NewWebSocketRateLimiter creates a WebSocket connection limiter.
// A non-positive maxTotal disables the global cap.
func NewWebSocketRateLimiter(maxPerIP, maxTotal int) *WebSocketRateLimiter {
	return &WebSocketRateLimiter{maxPerIP: maxPerIP, maxTotal: maxTotal}
}

// Allow reserves a connection slot for ip. It returns "" on success or the
// rejection reason.
func (wrl *WebSocketRateLimiter) Allow(ip string) string {
	if wrl.maxTotal > 0 {
		if int(wrl.total.Add(1)) > wrl.maxTotal {
			wrl.total.Add(-1)
			wrl.rejectedCount.Add(1)
			return "ws_total_limit"
		}
	} else {
		wrl.total.Add(1)
	}

	actual, _ := wrl.connections.LoadOrStore(ip, new(atomic.Int32))
	counter := actual.(*atomic.Int32)

	for {
		current := counter.Load()
		if int(current) >= wrl.maxPerIP {
			wrl.total.Add(-1)
			wrl.rejectedCount.Add(1)
			return "ws_ip_limit"
		}
		if counter.CompareAndSwap(current, current+1) {
			return ""
		}
	}
}

// Release returns the slot reserved for ip
func (wrl *WebSocketRateLimiter) Release(ip string) {
	if val, ok := wrl.connections.Load(ip); ok {
		val.(*atomic.Int32).Add(-1)
		wrl.total.Add(-1)
	}
}

// GetConnectionCount returns current connection count for an IP
func (wrl *WebSocketRateLimiter) GetConnectionCount(ip string) int {
	if val, ok := wrl.connections.Load(ip); ok {
		return int(val.(*atomic.Int32).Load())
	}
	return 0
}

// Total returns the number of reserved connection slots
func (wrl *WebSocketRateLimiter) Total() int {
	return int(wrl.total.Load())
}

// GetStats returns WebSocket rate limiter statistics
func (wrl *WebSocketRateLimiter) GetStats() map[string]uint64 {
	return map[string]uint64{
		"rejected": wrl.rejectedCount.Load(),
	}
}

// OriginChecker validates browser origins for websocket upgrades against
// the configured CORS origins. Entries may use a "*" port or subdomain
// wildcard, e.g. "http://localhost:*" or "https://*.example.com".
type OriginChecker struct {
	allowed []string
}

// NewOriginChecker creates a checker for the given origins
func NewOriginChecker(origins []string) *OriginChecker {
	return &OriginChecker{allowed: origins}
}

// Check reports whether the request origin may open a socket. Requests
// without an Origin header come from non-browser clients and are allowed.
func (oc *OriginChecker) Check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return oc.IsAllowed(origin)
}

// IsAllowed checks if an origin is in the allowed list
func (oc *OriginChecker) IsAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range oc.allowed {
		if allowed == "*" || allowed == origin || wildcardMatch(allowed, origin) {
			return true
		}
	}
	return false
}

func wildcardMatch(pattern, origin string) bool {
	if !strings.Contains(pattern, "*") {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	prefix, suffix, _ := strings.Cut(pattern, "*")
	if strings.HasSuffix(prefix, ":") {
		// scheme://host:* accepts any port
		return strings.HasPrefix(origin, prefix) && u.Port() != ""
	}
	// scheme://*.domain accepts any subdomain
	return strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) &&
		len(origin) > len(prefix)+len(suffix)
}
