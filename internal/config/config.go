// Package config provides centralized configuration management.
// Every tunable of the server is defined here with its default value and
// the environment variable that overrides it.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// GAME CONFIGURATION
// =============================================================================

// GameConfig holds the simulation tuning. Lengths are fractions of the
// normalized [0,1] playfield; speeds are per tick.
type GameConfig struct {
	TickInterval time.Duration // fixed simulation step
	WinningScore int           // first score to reach this ends the match
	PaddleHeight float64
	PaddleMargin float64 // hit tolerance around a paddle
	BallRadius   float64
	BaseSpeed    float64 // speed of a freshly launched ball
	SpeedFactor  float64 // multiplier applied on each paddle bounce
	LeftPaddleX  float64
	RightPaddleX float64
	Seed         int64 // 0 seeds from the clock
}

// DefaultGame returns the standard match tuning
func DefaultGame() GameConfig {
	return GameConfig{
		TickInterval: 16 * time.Millisecond, // ~60Hz
		WinningScore: 5,
		PaddleHeight: 0.2,
		PaddleMargin: 0.01,
		BallRadius:   0.015,
		BaseSpeed:    0.01,
		SpeedFactor:  1.05,
		LeftPaddleX:  0.02,
		RightPaddleX: 0.98,
	}
}

// GameFromEnv returns game configuration with environment variable overrides.
// Out-of-range values are ignored.
func GameFromEnv() GameConfig {
	cfg := DefaultGame()

	if ms := getEnvInt("TICK_MS", 0); ms > 0 {
		cfg.TickInterval = time.Duration(ms) * time.Millisecond
	}
	if ws := getEnvInt("WINNING_SCORE", 0); ws > 0 {
		cfg.WinningScore = ws
	}
	if s := getEnvFloat("BALL_SPEED", 0); s > 0 && s < 1 {
		cfg.BaseSpeed = s
	}
	if f := getEnvFloat("SPEED_FACTOR", 0); f >= 1 {
		cfg.SpeedFactor = f
	}
	if h := getEnvFloat("PADDLE_HEIGHT", 0); h > 0 && h < 1 {
		cfg.PaddleHeight = h
	}
	if seed := getEnvInt("GAME_SEED", 0); seed != 0 {
		cfg.Seed = int64(seed)
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP and connection handling settings
type ServerConfig struct {
	Port            int
	CORSOrigins     []string
	AllowSpectators bool   // keep rejected controllers connected as viewers
	ResetPolicy     string // "players" or "anyone"
	StaticDir       string // optional directory with the web client
}

// DefaultServer returns the default server configuration
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:            4000,
		CORSOrigins:     []string{"http://localhost:3000"},
		AllowSpectators: true,
		ResetPolicy:     "players",
	}
}

// ServerFromEnv returns server configuration with environment variable overrides
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if origins := splitList(os.Getenv("CORS_ORIGINS")); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
	if os.Getenv("ALLOW_SPECTATORS") == "false" {
		cfg.AllowSpectators = false
	}
	if rp := os.Getenv("RESET_POLICY"); rp == "players" || rp == "anyone" {
		cfg.ResetPolicy = rp
	}
	if dir := os.Getenv("STATIC_DIR"); dir != "" {
		cfg.StaticDir = dir
	}

	return cfg
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// LimitsConfig controls DoS protection
type LimitsConfig struct {
	MaxConnections      int     // total websocket connections
	MaxConnectionsPerIP int     // concurrent websocket connections per IP
	IntentsPerSecond    float64 // move-paddle messages per connection
	IntentBurst         int
	RequestsPerSecond   float64 // HTTP requests per IP
	RequestBurst        int
}

// DefaultLimits returns production-safe defaults
func DefaultLimits() LimitsConfig {
	return LimitsConfig{
		MaxConnections:      500,
		MaxConnectionsPerIP: 10,
		IntentsPerSecond:    120, // two per tick at 60Hz
		IntentBurst:         30,
		RequestsPerSecond:   10,
		RequestBurst:        20,
	}
}

// LimitsFromEnv returns limits with environment variable overrides
func LimitsFromEnv() LimitsConfig {
	cfg := DefaultLimits()

	if n := getEnvInt("MAX_CONNECTIONS", 0); n > 0 {
		cfg.MaxConnections = n
	}
	if n := getEnvInt("MAX_CONNECTIONS_PER_IP", 0); n > 0 {
		cfg.MaxConnectionsPerIP = n
	}
	if r := getEnvFloat("INTENTS_PER_SECOND", 0); r > 0 {
		cfg.IntentsPerSecond = r
	}

	return cfg
}

// =============================================================================
// OBSERVABILITY
// =============================================================================

// ObservabilityConfig configures the debug server (pprof + metrics)
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // localhost only unless AllowExternal is set
	AllowExternal bool
	BasicAuthUser string
	BasicAuthPass string
	EventLogPath  string // empty keeps the match event log in memory
}

// DefaultObservability returns safe defaults
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// ObservabilityFromEnv returns observability settings with environment overrides
func ObservabilityFromEnv() ObservabilityConfig {
	cfg := DefaultObservability()

	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.Enabled = false
	}
	if addr := os.Getenv("DEBUG_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	cfg.AllowExternal = os.Getenv("ALLOW_DEBUG_EXTERNAL") == "true"
	cfg.BasicAuthUser = os.Getenv("DEBUG_USER")
	cfg.BasicAuthPass = os.Getenv("DEBUG_PASS")
	cfg.EventLogPath = os.Getenv("EVENT_LOG_PATH")

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration
type AppConfig struct {
	Game          GameConfig
	Server        ServerConfig
	Limits        LimitsConfig
	Observability ObservabilityConfig
}

// Load returns the complete configuration with environment overrides
func Load() AppConfig {
	return AppConfig{
		Game:          GameFromEnv(),
		Server:        ServerFromEnv(),
		Limits:        LimitsFromEnv(),
		Observability: ObservabilityFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
