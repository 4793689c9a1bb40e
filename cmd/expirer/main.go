package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nekogravitycat/cowork-booking-backend/internal/app"
	"github.com/nekogravitycat/cowork-booking-backend/internal/config"
	"github.com/nekogravitycat/cowork-booking-backend/internal/db"
	"github.com/nekogravitycat/cowork-booking-backend/internal/event"
	"github.com/nekogravitycat/cowork-booking-backend/internal/expiry"
	"github.com/nekogravitycat/cowork-booking-backend/internal/reservation"
	"github.com/nekogravitycat/cowork-booking-backend/internal/resource"
)

// expirer cancels card and PayPal reservations whose payment never settled,
// releasing their slots.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DBDSN, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("failed to migrate db: %v", err)
	}

	var publisher event.Publisher = event.LogPublisher{Producer: "cowork-expirer"}
	if len(cfg.KafkaBrokers) > 0 {
		kp := event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, "cowork-expirer", 0)
		kp.Start()
		defer kp.Close()
		publisher = kp
	}

	resources := resource.NewService(resource.NewPgxRepository(pool))
	svc := reservation.NewService(reservation.NewPgxStore(pool), resources, publisher, nil, app.PolicyFrom(cfg))

	log.Printf("expiring payment_pending reservations older than %s every %s", cfg.PaymentPendingTTL, cfg.ExpiryInterval)
	expiry.NewWorker(svc, cfg.PaymentPendingTTL).Run(ctx, cfg.ExpiryInterval)
	log.Println("expirer exited gracefully")
}
