package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nekogravitycat/cowork-booking-backend/internal/app"
	"github.com/nekogravitycat/cowork-booking-backend/internal/config"
	"github.com/nekogravitycat/cowork-booking-backend/internal/db"
	"github.com/nekogravitycat/cowork-booking-backend/internal/event"
	"github.com/nekogravitycat/cowork-booking-backend/internal/idempotency"
)

func main() {
	// For receiving Ctrl+C / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Connect DB
	pool, err := db.NewPool(ctx, cfg.DBDSN, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("failed to migrate db: %v", err)
	}

	// Transition events: Kafka when brokers are configured, the log otherwise
	var publisher event.Publisher = event.LogPublisher{Producer: event.DefaultProducer}
	if len(cfg.KafkaBrokers) > 0 {
		kp := event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, event.DefaultProducer, 0)
		kp.Start()
		defer kp.Close()
		publisher = kp
		log.Printf("publishing transitions to kafka topic %s", cfg.KafkaTopic)
	}

	// Idempotency keys need Redis; without it retries are not deduplicated
	var idem idempotency.Store
	if cfg.RedisAddr != "" {
		rdb, err := idempotency.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		idem = idempotency.NewRedisStore(rdb, cfg.IdempotencyTTL)
	}

	container := app.NewContainer(app.Config{
		IsProduction:  cfg.IsProduction,
		ProdOrigins:   cfg.ProdOrigins,
		DBPool:        pool,
		JWTSecret:     cfg.JWTSecret,
		JWTTTL:        cfg.JWTAccessTokenTTL,
		WebhookSecret: cfg.WebhookSecret,
		Publisher:     publisher,
		Idempotency:   idem,
		Policy:        app.PolicyFrom(cfg),
	})

	// Use http.Server for graceful shutdown
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: container.Router,
	}

	// Run server in separate goroutine
	go func() {
		log.Printf("server running on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Wait for Ctrl+C
	<-ctx.Done()
	log.Println("shutdown signal received")

	// Create a shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}

	log.Println("server exited gracefully")
}
