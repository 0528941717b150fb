package api

import (
	"errors"
	"log"
	"net/http"
	"net/http/pprof"
	"time"

	"pong-arena/internal/config"
	"pong-arena/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (no per-connection labels)
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pong_tick_duration_seconds",
		Help:    "Time spent in a match tick",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.005, 0.01, 0.016},
	})

	matchPhase = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pong_match_phase",
		Help: "Current match phase (0 waiting, 1 playing, 2 game over)",
	})

	seatedPlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pong_seated_players",
		Help: "Occupied player slots",
	})

	pointsScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pong_points_total",
		Help: "Points scored by slot",
	}, []string{"slot"}) // Bounded: "1", "2"

	paddleBounces = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pong_paddle_bounces_total",
		Help: "Ball returns off a paddle",
	})

	matchesFinished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pong_matches_finished_total",
		Help: "Matches that reached the winning score",
	})

	matchFullRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pong_match_full_total",
		Help: "Connections refused a slot because the match was full",
	})

	droppedIntents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pong_intents_dropped_total",
		Help: "move-paddle messages dropped by the per-connection limiter",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "codec", "ws_total_limit", "ws_ip_limit"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the full URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages queued for sending",
	})

	wsMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_dropped_total",
		Help: "Messages dropped because a client send buffer was full",
	})
)

// debugServer builds the internal observability server without starting it
func debugServer(cfg config.ObservabilityConfig) *http.Server {
	addr := cfg.ListenAddr
	if addr != "127.0.0.1:6060" && addr != "localhost:6060" {
		// Only allow external binding if explicitly enabled
		if !cfg.AllowExternal {
			log.Println("⚠️ Debug server forced to localhost for security")
			addr = "127.0.0.1:6060"
		}
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// StartDebugServer starts the pprof + metrics server in the background.
// It returns nil when the server is disabled.
// CRITICAL: This MUST bind to localhost only to prevent pprof-based DoS
func StartDebugServer(cfg config.ObservabilityConfig) *http.Server {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	srv := debugServer(cfg)
	go func() {
		log.Printf("📊 Debug server starting on %s", srv.Addr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", srv.Addr)
		log.Printf("   - metrics: http://%s/metrics", srv.Addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()

	return srv
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records latency per chi route pattern
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}

// RecordTick updates match metrics from one tick result
func RecordTick(res game.TickResult) {
	tickDuration.Observe(res.Duration.Seconds())
	matchPhase.Set(float64(res.Snapshot.Phase()))

	seated := 0
	if res.Snapshot.Player1.ID != "" {
		seated++
	}
	if res.Snapshot.Player2.ID != "" {
		seated++
	}
	seatedPlayers.Set(float64(seated))

	out := res.Outcome
	if out.Bounce != game.SlotNone {
		paddleBounces.Inc()
	}
	if out.Scored != game.SlotNone {
		pointsScored.WithLabelValues(out.Scored.String()).Inc()
	}
	if out.GameOver {
		matchesFinished.Inc()
	}
}

// RecordMatchFull counts a connection that could not take a slot
func RecordMatchFull() {
	matchFullRejections.Inc()
}

// RecordDroppedIntent counts a rate-limited move-paddle message
func RecordDroppedIntent() {
	droppedIntents.Inc()
}

// RecordConnectionRejected increments the rejection counter
// reason must be one of: "rate_limit", "origin", "codec", "ws_total_limit", "ws_ip_limit"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}

// IncrementWSDropped counts a message dropped for a slow client
func IncrementWSDropped() {
	wsMessagesDropped.Inc()
}
