package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nekogravitycat/cowork-booking-backend/internal/pkg/request"
	"github.com/nekogravitycat/cowork-booking-backend/internal/pkg/response"
	"github.com/nekogravitycat/cowork-booking-backend/internal/pricing"
	"github.com/nekogravitycat/cowork-booking-backend/internal/resource"
)

type Handler struct {
	service resource.Service
}

func NewHandler(service resource.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) List(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BindError(c, "invalid query parameters", err)
		return
	}
	req.Normalize()

	filter := resource.Filter{
		AvailableOnly: req.AvailableOnly,
		MinCapacity:   req.MinCapacity,
		Page:          req.Page,
		PageSize:      req.PageSize,
		SortBy:        req.SortBy,
		SortOrder:     strings.ToUpper(req.SortOrder),
	}

	resources, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]Response, len(resources))
	for i, r := range resources {
		items[i] = NewResponse(r)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(items, req.Page, req.PageSize, total))
}

func (h *Handler) Get(c *gin.Context) {
	var req request.ByIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		response.BindError(c, "invalid request", err)
		return
	}

	res, err := h.service.GetByID(c.Request.Context(), req.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewResponse(res))
}

func (h *Handler) Create(c *gin.Context) {
	var body CreateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BindError(c, "invalid request body", err)
		return
	}

	hours, err := body.OpeningHours.Parse()
	if err != nil {
		response.Error(c, err)
		return
	}

	rates, err := body.Rates.Table()
	if err != nil {
		response.Error(c, err)
		return
	}

	available := true
	if body.Available != nil {
		available = *body.Available
	}

	res, err := h.service.Create(c.Request.Context(), resource.CreateRequest{
		Name:         body.Name,
		Description:  body.Description,
		Capacity:     body.Capacity,
		Rates:        rates,
		OpeningHours: hours,
		Available:    available,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewResponse(res))
}

func (h *Handler) Update(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BindError(c, "invalid request", err)
		return
	}

	var body UpdateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BindError(c, "invalid request body", err)
		return
	}

	hours, err := body.OpeningHours.Parse()
	if err != nil {
		response.Error(c, err)
		return
	}

	var rates *pricing.RateTable
	if body.Rates != nil {
		t, err := body.Rates.Table()
		if err != nil {
			response.Error(c, err)
			return
		}
		rates = &t
	}

	res, err := h.service.Update(c.Request.Context(), uri.ID, resource.UpdateRequest{
		Name:         body.Name,
		Description:  body.Description,
		Capacity:     body.Capacity,
		Rates:        rates,
		OpeningHours: hours,
		ClearHours:   body.ClearHours,
		Available:    body.Available,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewResponse(res))
}
