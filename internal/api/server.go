package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"pong-arena/internal/game"
	"pong-arena/internal/preview"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// ServerOptions configures NewServer
type ServerOptions struct {
	Hub            HubConfig
	RateLimit      RateLimitConfig
	CORSOrigins    []string
	StaticFilesDir string
	DisableLogging bool
}

// DefaultServerOptions returns the production defaults
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		Hub:       DefaultHubConfig(),
		RateLimit: DefaultRateLimitConfig,
	}
}

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with the WebSocket hub for real-time updates.
type Server struct {
	engine      *game.Engine
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// NewServer creates a new API server.
//
// IMPORTANT: The hub is not subscribed to the engine until Start() is
// called. Tests can construct the server and use Router() without ticks
// being broadcast.
func NewServer(engine *game.Engine, opts ServerOptions) *Server {
	s := &Server{
		engine:      engine,
		wsHub:       NewWebSocketHub(engine.Match(), opts.Hub),
		rateLimiter: NewIPRateLimiter(opts.RateLimit),
	}

	renderer := preview.NewRenderer(preview.DefaultWidth, preview.DefaultHeight).
		WithRules(engine.Match().Rules())

	s.router = NewRouter(RouterConfig{
		Engine:         engine,
		RateLimiter:    s.rateLimiter,
		CORSOrigins:    opts.CORSOrigins,
		StaticFilesDir: opts.StaticFilesDir,
		DisableLogging: opts.DisableLogging,
		Connections:    s.wsHub.ClientCount,
		Limits:         s.wsHub.LimiterStats,
		Preview:        renderer,
	})

	s.setupWebSocketRoutes()

	return s
}

// setupWebSocketRoutes adds WebSocket-specific routes to the router.
// These routes need access to the wsHub instance, so they can't be
// part of the generic NewRouter factory.
func (s *Server) setupWebSocketRoutes() {
	s.router.Get("/socket.io/", s.handleSocketIO)
	s.router.Get("/ws", s.wsHub.HandleWebSocket)
}

// Attach subscribes metrics and snapshot broadcast to the engine's ticks
func (s *Server) Attach() {
	s.engine.Subscribe(RecordTick)
	s.engine.Subscribe(s.wsHub.BroadcastSnapshot)
}

// Start attaches to the engine and serves HTTP until Shutdown is called.
// It returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.Attach()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("🌐 API server starting on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
//
// Example:
//
//	server := api.NewServer(engine, api.DefaultServerOptions())
//	ts := httptest.NewServer(server.Router())
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/state")
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the websocket hub
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops accepting requests, closes every socket and stops
// background workers
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.wsHub.Close()
	s.rateLimiter.Stop()
	return err
}

func (s *Server) handleSocketIO(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.wsHub.HandleWebSocket(w, r)
		return
	}

	// No long-polling fallback
	writeError(w, "use websocket", http.StatusNotFound)
}
