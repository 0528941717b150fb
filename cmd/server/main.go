package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"pong-arena/internal/api"
	"pong-arena/internal/config"
	"pong-arena/internal/game"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🏓 ================================")
	log.Println("🏓  PONG ARENA - GO SERVER")
	log.Println("🏓 ================================")

	appConfig := config.Load()
	gameCfg := appConfig.Game
	serverCfg := appConfig.Server
	limits := appConfig.Limits

	rules := rulesFromConfig(gameCfg)
	log.Printf("🎮 Config: tick %s, first to %d, ball speed %.4f (x%.2f per hit)",
		gameCfg.TickInterval, rules.WinningScore, rules.BaseSpeed, rules.SpeedFactor)

	policy, ok := game.ParseResetPolicy(serverCfg.ResetPolicy)
	if !ok {
		log.Printf("⚠️ Unknown reset policy %q, only players may reset", serverCfg.ResetPolicy)
	}

	// Start event log
	eventLog := game.NewEventLog()
	if err := eventLog.Start(appConfig.Observability.EventLogPath); err != nil {
		log.Printf("⚠️ Event log file disabled: %v", err)
		if err := eventLog.Start(""); err != nil {
			log.Printf("⚠️ Event log disabled: %v", err)
		}
	} else if appConfig.Observability.EventLogPath != "" {
		log.Printf("📝 Event log: %s", appConfig.Observability.EventLogPath)
	}

	opts := []game.MatchOption{game.WithResetPolicy(policy), game.WithEventLog(eventLog)}
	if gameCfg.Seed != 0 {
		opts = append(opts, game.WithSeed(gameCfg.Seed))
	}
	match := game.NewMatch(rules, opts...)
	engine := game.NewEngine(match, gameCfg.TickInterval)

	// Start debug server
	debugServer := api.StartDebugServer(appConfig.Observability)

	server := api.NewServer(engine, api.ServerOptions{
		Hub: api.HubConfig{
			AllowSpectators:     serverCfg.AllowSpectators,
			MaxConnections:      limits.MaxConnections,
			MaxConnectionsPerIP: limits.MaxConnectionsPerIP,
			IntentsPerSecond:    limits.IntentsPerSecond,
			IntentBurst:         limits.IntentBurst,
			Origins:             api.NewOriginChecker(serverCfg.CORSOrigins),
		},
		RateLimit:      api.RateLimitFromLimits(limits),
		CORSOrigins:    serverCfg.CORSOrigins,
		StaticFilesDir: serverCfg.StaticDir,
	})

	engine.Start()
	log.Println("✅ Match engine started")

	addr := ":" + strconv.Itoa(serverCfg.Port)
	go func() {
		log.Printf("🌐 WebSocket: ws://localhost%s/ws", addr)
		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ API server shutdown: %v", err)
	}
	if debugServer != nil {
		debugServer.Shutdown(ctx)
	}
	engine.Stop()
	eventLog.Stop()
	log.Println("👋 Goodbye!")
}

func rulesFromConfig(cfg config.GameConfig) game.Rules {
	return game.Rules{
		PaddleHeight: cfg.PaddleHeight,
		PaddleMargin: cfg.PaddleMargin,
		BallRadius:   cfg.BallRadius,
		LeftPaddleX:  cfg.LeftPaddleX,
		RightPaddleX: cfg.RightPaddleX,
		BaseSpeed:    cfg.BaseSpeed,
		SpeedFactor:  cfg.SpeedFactor,
		WinningScore: cfg.WinningScore,
	}
}
