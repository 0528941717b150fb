package api

import (
	"net/http"

	"pong-arena/internal/game"
	"pong-arena/internal/preview"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// EngineInterface defines the engine methods used by the HTTP API.
// This interface enables mocking for tests without spinning up the tick loop.
// Keep this minimal - only include methods the API layer actually calls.
type EngineInterface interface {
	// Snapshot returns an independent copy of the current match state
	Snapshot() game.Snapshot
	// Stats returns tick loop statistics
	Stats() game.EngineStats
	// EventLogStats returns event log counters, nil when logging is off
	EventLogStats() map[string]interface{}
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Engine: mockEngine,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the match engine (required)
	Engine EngineInterface

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil.
	// If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, local development origins are allowed.
	CORSOrigins []string

	// StaticFilesDir serves a web client at / when set
	StaticFilesDir string

	// DisableLogging disables the request logger middleware (useful for tests).
	DisableLogging bool

	// Preview renders /api/preview.png. If nil, a default renderer is used.
	Preview *preview.Renderer

	// Connections reports open sockets for /api/stats (optional)
	Connections func() int

	// Limits reports connection limiter counters for /api/stats (optional)
	Limits func() map[string]interface{}
}

// routerHandlers holds the handler dependencies
type routerHandlers struct {
	engine      EngineInterface
	preview     *preview.Renderer
	rateLimiter *IPRateLimiter
	connections func() int
	limits      func() map[string]interface{}
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// IMPORTANT: apart from the rate limiter cleanup goroutine this function
// has no side effects: no network listeners are opened and the tick loop
// is not started. This makes it safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &routerHandlers{
		engine:      cfg.Engine,
		preview:     cfg.Preview,
		rateLimiter: rateLimiter,
		connections: cfg.Connections,
		limits:      cfg.Limits,
	}
	if h.preview == nil {
		h.preview = preview.NewRenderer(preview.DefaultWidth, preview.DefaultHeight)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.handleGetState)
		r.Get("/stats", h.handleGetStats)
		r.Get("/preview.png", h.handlePreview)
	})

	if cfg.StaticFilesDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticFilesDir)))
	}

	return r
}
