package api

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/nekogravitycat/cowork-booking-backend/internal/auth"
	"github.com/nekogravitycat/cowork-booking-backend/internal/reservation"
	reservationHttp "github.com/nekogravitycat/cowork-booking-backend/internal/reservation/http"
	"github.com/nekogravitycat/cowork-booking-backend/internal/resource"
	resourceHttp "github.com/nekogravitycat/cowork-booking-backend/internal/resource/http"
)

// Config holds what the router needs to build every route group.
type Config struct {
	IsProduction       bool
	ProdOrigins        string
	WebhookSecret      string
	ResourceService    resource.Service
	ReservationService reservation.Service
	JWTManager         *auth.JWTManager
}

// NewRouter initializes the HTTP router engine.
// It is responsible for assembling middleware (CORS, Logger, Auth) and registering routes for various modules.
func NewRouter(cfg Config) *gin.Engine {
	r := gin.New()

	// Global Middleware:
	// - Logger: Logs request information to the console.
	// - Recovery: Captures panics to prevent server crashes and returns a 500 error.
	r.Use(gin.Logger(), gin.Recovery())

	// Configure CORS (Cross-Origin Resource Sharing).
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{
		"http://localhost:8081", // Swagger
	}
	if cfg.IsProduction && cfg.ProdOrigins != "" {
		config.AllowOrigins = nil
		for _, o := range strings.Split(cfg.ProdOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				config.AllowOrigins = append(config.AllowOrigins, o)
			}
		}
	}
	config.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", reservationHttp.IdempotencyHeader}
	r.Use(cors.New(config))

	// authMiddleware: Validates if the request contains a valid JWT.
	authMiddleware := auth.AuthRequired(cfg.JWTManager)
	// adminMiddleware: Further checks the token carries the staff role.
	adminMiddleware := RequireAdmin()
	// webhookMiddleware: Authenticates the payment provider instead of a user.
	webhookMiddleware := RequireWebhookSecret(cfg.WebhookSecret)

	// Initialize HTTP Handlers for each module (injecting Service dependencies).
	resourceHandler := resourceHttp.NewHandler(cfg.ResourceService)
	reservationHandler := reservationHttp.NewHandler(cfg.ReservationService)

	// Register API routes under /v1
	v1 := r.Group("/v1")
	{
		resourceHttp.RegisterRoutes(v1, resourceHandler, authMiddleware, adminMiddleware)
		reservationHttp.RegisterRoutes(v1, reservationHandler, authMiddleware, adminMiddleware, webhookMiddleware)
	}

	return r
}
