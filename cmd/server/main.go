package main // Entry point package

import (
	"context" // Context for startup deadlines
	"log"     // Logging library
	"time"    // Durations for TTLs and timeouts

	"github.com/joho/godotenv"    // Loads .env files in development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/arcanalabs/piminder/internal/auth"       // Token minting and validation
	"github.com/arcanalabs/piminder/internal/config"     // Internal config loader
	"github.com/arcanalabs/piminder/internal/database"   // MySQL pool and schema bootstrap
	"github.com/arcanalabs/piminder/internal/handler"    // HTTP handlers
	"github.com/arcanalabs/piminder/internal/middleware" // Rate limiting middleware
	"github.com/arcanalabs/piminder/internal/queue"      // RabbitMQ publisher and consumer
	"github.com/arcanalabs/piminder/internal/repository" // SQL-backed store
	"github.com/arcanalabs/piminder/internal/router"     // Internal router setup
	"github.com/arcanalabs/piminder/internal/service"    // Authenticated service gate
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load() // Load environment config

	// Open the MySQL pool and make sure the schema and the bootstrap
	// administrator exist before accepting traffic.
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.InitSchema(initCtx, db, cfg.AdminUser, cfg.AdminPass, cfg.BcryptCost); err != nil {
		log.Fatalf("init schema: %v", err)
	}

	store := repository.NewStore(db)
	authenticator := auth.NewAuthenticator(
		cfg.NetworkLabel,
		time.Duration(cfg.BearerTTLMin)*time.Minute,
		time.Duration(cfg.RefreshTTLMin)*time.Minute,
	)
	gate := service.NewGate(store, authenticator, time.Duration(cfg.GateTimeoutMS)*time.Millisecond)

	// Fire-and-forget publisher; broker outages are logged, never fatal.
	publish := func(ctx context.Context, ev queue.MessageRaisedEvent) {
		_ = queue.PublishMessageRaised(ctx, ev)
	}

	authHandler := handler.NewAuthHandler(gate)
	messageHandler := handler.NewMessageHandler(gate, publish)
	userHandler := handler.NewUserHandler(gate, cfg.BcryptCost)
	clientHandler := handler.NewClientHandler(gate)

	// Redis-backed token bucket on the ingestion routes; degrades to a
	// pass-through when Redis is unreachable.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; rate limiting disabled")
	}
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	// Background consumer appends raised alerts to logs/alerts.log.
	go func() {
		if err := queue.StartMessageConsumer(); err != nil {
			log.Printf("alert consumer stopped: %v", err)
		}
	}()

	e := echo.New() // Create Echo instance
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authHandler)
	router.RegisterMessages(e, messageHandler, limiter)
	router.RegisterAdmin(e, userHandler, clientHandler)

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err)
	}
}
