package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"pong-arena/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestWebSocketRateLimiterPerIP(t *testing.T) {
	wrl := NewWebSocketRateLimiter(2, 0)

	assert.Empty(t, wrl.Allow("10.0.0.1"))
	assert.Empty(t, wrl.Allow("10.0.0.1"))
	assert.Equal(t, "ws_ip_limit", wrl.Allow("10.0.0.1"))
	assert.Empty(t, wrl.Allow("10.0.0.2"))
	assert.Equal(t, 3, wrl.Total())

	wrl.Release("10.0.0.1")
	assert.Equal(t, 1, wrl.GetConnectionCount("10.0.0.1"))
	assert.Empty(t, wrl.Allow("10.0.0.1"))
	assert.Equal(t, uint64(1), wrl.GetStats()["rejected"])
}

func TestWebSocketRateLimiterTotal(t *testing.T) {
	wrl := NewWebSocketRateLimiter(10, 2)

	assert.Empty(t, wrl.Allow("a"))
	assert.Empty(t, wrl.Allow("b"))
	assert.Equal(t, "ws_total_limit", wrl.Allow("c"))
	assert.Equal(t, 2, wrl.Total())

	wrl.Release("a")
	assert.Empty(t, wrl.Allow("c"))
}

func TestIPRateLimiterCleanup(t *testing.T) {
	rl := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))

	rl.cleanup(time.Now().Add(3 * time.Hour))

	// A fresh limiter gets a full burst again
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.Equal(t, map[string]uint64{"allowed": 2, "rejected": 1}, rl.GetStats())
}

func TestRateLimitFromLimits(t *testing.T) {
	cfg := RateLimitFromLimits(config.LimitsConfig{RequestsPerSecond: 50, RequestBurst: 5})
	assert.Equal(t, 50.0, cfg.RequestsPerSecond)
	assert.Equal(t, 5, cfg.Burst)
	assert.Equal(t, DefaultRateLimitConfig.CleanupInterval, cfg.CleanupInterval)

	assert.Equal(t, DefaultRateLimitConfig, RateLimitFromLimits(config.LimitsConfig{}))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "10.0.0.1:1234", "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.4 "}, "10.0.0.1:1234", "198.51.100.4"},
		{"remote addr", nil, "192.0.2.7:5555", "192.0.2.7"},
		{"remote without port", nil, "192.0.2.7", "192.0.2.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}

func TestOriginChecker(t *testing.T) {
	oc := NewOriginChecker([]string{
		"http://localhost:3000",
		"http://127.0.0.1:*",
		"https://*.example.com",
	})

	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:3000", true},
		{"http://localhost:3001", false},
		{"http://127.0.0.1:5173", true},
		{"http://127.0.0.1", false},
		{"https://play.example.com", true},
		{"https://example.com", false},
		{"https://evil.com", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, oc.IsAllowed(tt.origin))
		})
	}

	// Non-browser clients send no Origin header
	assert.True(t, oc.Check(httptest.NewRequest("GET", "/ws", nil)))
	assert.True(t, NewOriginChecker([]string{"*"}).IsAllowed("https://anything.test"))
}
