package http

import (
	"time"

	"github.com/nekogravitycat/cowork-booking-backend/internal/pkg/request"
	"github.com/nekogravitycat/cowork-booking-backend/internal/reservation"
	"github.com/nekogravitycat/cowork-booking-backend/internal/timerange"
)

// Guests, duration and the enum fields are checked by the service so that
// their errors come back as field details.
type CreateBody struct {
	ResourceID    string  `json:"resource_id" binding:"required,uuid"`
	Date          string  `json:"date" binding:"required"`
	StartTime     string  `json:"start_time" binding:"required"`
	EndTime       string  `json:"end_time" binding:"required"`
	DurationType  string  `json:"duration_type" binding:"required"`
	Duration      float64 `json:"duration"`
	Guests        int     `json:"guests"`
	PaymentMethod string  `json:"payment_method" binding:"required"`
}

type ModifyBody struct {
	Date      *string `json:"date"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
}

type ListRequest struct {
	request.ListParams
	Status     string `form:"status" binding:"omitempty,oneof=payment_pending pending confirmed cancelled completed"`
	ResourceID string `form:"resource_id" binding:"omitempty,uuid"`
	Date       string `form:"date"`
}

type AvailabilityRequest struct {
	Date  string  `form:"date" binding:"required"`
	Start *string `form:"start"`
	End   *string `form:"end"`
}

type WebhookBody struct {
	ReservationID string `json:"reservation_id" binding:"required,uuid"`
	Outcome       string `json:"outcome" binding:"required,oneof=settled failed"`
}

type Response struct {
	ID            string    `json:"id"`
	ResourceID    string    `json:"resource_id"`
	RequesterID   string    `json:"requester_id"`
	Date          string    `json:"date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	Guests        int       `json:"guests"`
	DurationType  string    `json:"duration_type"`
	Duration      float64   `json:"duration"`
	TotalPrice    float64   `json:"total_price"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	PaymentMethod string    `json:"payment_method"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func NewResponse(r *reservation.Reservation) Response {
	return Response{
		ID:            r.ID,
		ResourceID:    r.ResourceID,
		RequesterID:   r.RequesterID,
		Date:          r.Range.Date.String(),
		StartTime:     r.Range.Start.String(),
		EndTime:       r.Range.End.String(),
		Guests:        r.Guests,
		DurationType:  string(r.DurationType),
		Duration:      r.Duration,
		TotalPrice:    r.TotalPrice.Major(),
		Status:        string(r.Status),
		PaymentStatus: string(r.PaymentStatus),
		PaymentMethod: string(r.PaymentMethod),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type RangeBody struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func newRanges(rs []timerange.TimeRange) []RangeBody {
	out := make([]RangeBody, len(rs))
	for i, r := range rs {
		out[i] = RangeBody{StartTime: r.Start.String(), EndTime: r.End.String()}
	}
	return out
}

type SlotBody struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Free      bool   `json:"free"`
}

type CheckBody struct {
	StartTime          string                       `json:"start_time"`
	EndTime            string                       `json:"end_time"`
	Available          bool                         `json:"available"`
	WithinOpeningHours bool                         `json:"within_opening_hours"`
	Conflicts          []reservation.ConflictDetail `json:"conflicts"`
}

type AvailabilityResponse struct {
	ResourceID   string      `json:"resource_id"`
	Date         string      `json:"date"`
	OpeningHours *RangeBody  `json:"opening_hours"`
	Busy         []RangeBody `json:"busy"`
	Free         []RangeBody `json:"free"`
	Slots        []SlotBody  `json:"slots"`
	Check        *CheckBody  `json:"check,omitempty"`
}

func NewAvailabilityResponse(r *reservation.Report) AvailabilityResponse {
	resp := AvailabilityResponse{
		ResourceID: r.ResourceID,
		Date:       r.Date.String(),
		Busy:       newRanges(r.Busy),
		Free:       newRanges(r.Free),
		Slots:      make([]SlotBody, len(r.Slots)),
	}
	if r.Window != nil {
		resp.OpeningHours = &RangeBody{StartTime: r.Window.Start.String(), EndTime: r.Window.End.String()}
	}
	for i, s := range r.Slots {
		resp.Slots[i] = SlotBody{StartTime: s.Range.Start.String(), EndTime: s.Range.End.String(), Free: s.Free}
	}
	if c := r.Check; c != nil {
		resp.Check = &CheckBody{
			StartTime:          c.Range.Start.String(),
			EndTime:            c.Range.End.String(),
			Available:          c.Available,
			WithinOpeningHours: c.WithinOpeningHours,
			Conflicts:          c.Conflicts,
		}
	}
	return resp
}
