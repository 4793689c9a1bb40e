package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nekogravitycat/cowork-booking-backend/internal/api"
	"github.com/nekogravitycat/cowork-booking-backend/internal/auth"
	"github.com/nekogravitycat/cowork-booking-backend/internal/event"
	"github.com/nekogravitycat/cowork-booking-backend/internal/idempotency"
	"github.com/nekogravitycat/cowork-booking-backend/internal/reservation"
	"github.com/nekogravitycat/cowork-booking-backend/internal/resource"
)

// Config holds the dependencies and settings required to start the application.
// DBPool backs both stores unless ResourceRepo or ReservationStore override them.
type Config struct {
	IsProduction  bool
	ProdOrigins   string
	DBPool        *pgxpool.Pool
	JWTSecret     string
	JWTTTL        time.Duration
	WebhookSecret string

	ResourceRepo     resource.Repository
	ReservationStore reservation.Store
	Publisher        event.Publisher   // nil logs transitions
	Idempotency      idempotency.Store // nil disables idempotent replay
	Policy           reservation.Policy
}

// Container holds the initialized components that are needed externally.
type Container struct {
	Router             *gin.Engine
	JWTManager         *auth.JWTManager
	ResourceService    resource.Service
	ReservationService reservation.Service
}

// NewContainer initializes all modules and returns the container.
func NewContainer(cfg Config) *Container {
	// Init Components
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = event.LogPublisher{Producer: event.DefaultProducer}
	}

	// Resource Module
	resRepo := cfg.ResourceRepo
	if resRepo == nil {
		resRepo = resource.NewPgxRepository(cfg.DBPool)
	}
	resService := resource.NewService(resRepo)

	// Reservation Module
	store := cfg.ReservationStore
	if store == nil {
		store = reservation.NewPgxStore(cfg.DBPool)
	}
	reservationService := reservation.NewService(store, resService, publisher, cfg.Idempotency, cfg.Policy)

	// Router
	router := api.NewRouter(api.Config{
		IsProduction:       cfg.IsProduction,
		ProdOrigins:        cfg.ProdOrigins,
		WebhookSecret:      cfg.WebhookSecret,
		ResourceService:    resService,
		ReservationService: reservationService,
		JWTManager:         jwtManager,
	})

	return &Container{
		Router:             router,
		JWTManager:         jwtManager,
		ResourceService:    resService,
		ReservationService: reservationService,
	}
}
