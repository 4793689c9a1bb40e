package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nekogravitycat/cowork-booking-backend/internal/auth"
	"github.com/nekogravitycat/cowork-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/cowork-booking-backend/internal/pkg/request"
	"github.com/nekogravitycat/cowork-booking-backend/internal/pkg/response"
	"github.com/nekogravitycat/cowork-booking-backend/internal/reservation"
	"github.com/nekogravitycat/cowork-booking-backend/internal/timerange"
)

// IdempotencyHeader lets clients retry a create without booking twice.
const IdempotencyHeader = "Idempotency-Key"

type Handler struct {
	service reservation.Service
}

func NewHandler(service reservation.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Create(c *gin.Context) {
	var body CreateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BindError(c, "invalid request body", err)
		return
	}

	r, err := h.service.Create(c.Request.Context(), reservation.CreateRequest{
		ResourceID:     body.ResourceID,
		Date:           body.Date,
		StartTime:      body.StartTime,
		EndTime:        body.EndTime,
		DurationType:   body.DurationType,
		Duration:       body.Duration,
		Guests:         body.Guests,
		PaymentMethod:  body.PaymentMethod,
		RequesterID:    auth.GetUserID(c),
		IdempotencyKey: c.GetHeader(IdempotencyHeader),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewResponse(r))
}

func (h *Handler) List(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BindError(c, "invalid query parameters", err)
		return
	}
	req.Normalize()

	filter := reservation.Filter{
		ResourceID: req.ResourceID,
		Status:     reservation.Status(req.Status),
		Page:       req.Page,
		PageSize:   req.PageSize,
	}
	if req.Date != "" {
		d, err := timerange.ParseDate(req.Date)
		if err != nil {
			response.Error(c, reservation.ErrValidation.WithDetails([]apperror.FieldError{{Field: "date", Message: err.Error()}}))
			return
		}
		filter.Date = d
	}

	items, total, err := h.service.List(c.Request.Context(), filter, auth.GetUserID(c), auth.IsAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := make([]Response, len(items))
	for i, r := range items {
		resp[i] = NewResponse(r)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(resp, req.Page, req.PageSize, total))
}

func (h *Handler) Get(c *gin.Context) {
	var req request.ByIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		response.BindError(c, "invalid request", err)
		return
	}

	r, err := h.service.Get(c.Request.Context(), req.ID, auth.GetUserID(c), auth.IsAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewResponse(r))
}

func (h *Handler) Modify(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BindError(c, "invalid request", err)
		return
	}

	var body ModifyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BindError(c, "invalid request body", err)
		return
	}

	r, err := h.service.Modify(c.Request.Context(), uri.ID, reservation.ModifyRequest{
		ActorID:   auth.GetUserID(c),
		IsAdmin:   auth.IsAdmin(c),
		Date:      body.Date,
		StartTime: body.StartTime,
		EndTime:   body.EndTime,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewResponse(r))
}

func (h *Handler) Cancel(c *gin.Context) {
	h.transition(c, func(c *gin.Context, id string) (*reservation.Reservation, error) {
		return h.service.Cancel(c.Request.Context(), id, auth.GetUserID(c), auth.IsAdmin(c))
	})
}

func (h *Handler) Confirm(c *gin.Context) {
	h.transition(c, func(c *gin.Context, id string) (*reservation.Reservation, error) {
		return h.service.Confirm(c.Request.Context(), id)
	})
}

func (h *Handler) Complete(c *gin.Context) {
	h.transition(c, func(c *gin.Context, id string) (*reservation.Reservation, error) {
		return h.service.Complete(c.Request.Context(), id)
	})
}

func (h *Handler) transition(c *gin.Context, apply func(c *gin.Context, id string) (*reservation.Reservation, error)) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BindError(c, "invalid request", err)
		return
	}

	r, err := apply(c, uri.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewResponse(r))
}

func (h *Handler) Availability(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BindError(c, "invalid request", err)
		return
	}

	var req AvailabilityRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BindError(c, "invalid query parameters", err)
		return
	}

	report, err := h.service.QueryAvailability(c.Request.Context(), uri.ID, req.Date, req.Start, req.End)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewAvailabilityResponse(report))
}

// PaymentWebhook receives the payment provider's verdict for a payment_pending reservation.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	var body WebhookBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BindError(c, "invalid request body", err)
		return
	}

	var (
		r   *reservation.Reservation
		err error
	)
	switch body.Outcome {
	case "settled":
		r, err = h.service.MarkPaymentSettled(c.Request.Context(), body.ReservationID)
	default:
		r, err = h.service.MarkPaymentFailed(c.Request.Context(), body.ReservationID)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewResponse(r))
}
