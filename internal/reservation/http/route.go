package http

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers reservation, availability and payment webhook routes.
func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware, adminMiddleware, webhookMiddleware gin.HandlerFunc) {
	group := g.Group("/reservations")

	// === Authenticated Routes ===
	group.Use(authMiddleware)
	{
		group.POST("", h.Create)            // Book a slot
		group.GET("", h.List)               // Own reservations (all for admins)
		group.GET("/:id", h.Get)            // Reservation details
		group.PATCH("/:id", h.Modify)       // Change date or time
		group.POST("/:id/cancel", h.Cancel) // Cancel (owner or admin)
	}

	// === Staff Routes ===
	staff := group.Group("", adminMiddleware)
	{
		staff.POST("/:id/confirm", h.Confirm)   // Confirm an onsite booking
		staff.POST("/:id/complete", h.Complete) // Mark as used
	}

	g.GET("/resources/:id/availability", authMiddleware, h.Availability)

	// === Payment Provider ===
	g.POST("/payments/webhook", webhookMiddleware, h.PaymentWebhook)
}
