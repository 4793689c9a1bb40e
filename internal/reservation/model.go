package reservation

import (
	"fmt"
	"net/http"
	"time"

	"github.com/nekogravitycat/cowork-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/cowork-booking-backend/internal/pricing"
	"github.com/nekogravitycat/cowork-booking-backend/internal/timerange"
)

var (
	ErrNotFound            = apperror.New(http.StatusNotFound, "reservation not found")
	ErrValidation          = apperror.New(http.StatusBadRequest, "invalid reservation request")
	ErrResourceNotFound    = apperror.New(http.StatusNotFound, "resource not found")
	ErrResourceUnavailable = apperror.New(http.StatusConflict, "resource is not available for booking")
	ErrSlotConflict        = apperror.New(http.StatusConflict, "time slot already booked")
	ErrIllegalTransition   = apperror.New(http.StatusConflict, "reservation status does not allow this action")
	ErrPermissionDenied    = apperror.New(http.StatusForbidden, "permission denied")
	ErrStoreUnavailable    = apperror.New(http.StatusServiceUnavailable, "reservation store unavailable")
	ErrIdempotencyMismatch = apperror.New(http.StatusUnprocessableEntity, "idempotency key was already used for a different request")
	ErrRequestInProgress   = apperror.New(http.StatusConflict, "a request with this idempotency key is still in progress, retry later")
)

// ConflictDetail is what a rejected requester learns about a colliding
// reservation: its time range, never its owner.
type ConflictDetail struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func validationError(fields ...apperror.FieldError) error {
	return ErrValidation.WithDetails(fields)
}

func conflictDetails(conflicts []*Reservation) []ConflictDetail {
	details := make([]ConflictDetail, len(conflicts))
	for i, c := range conflicts {
		details[i] = ConflictDetail{
			Date:      c.Range.Date.String(),
			StartTime: c.Range.Start.String(),
			EndTime:   c.Range.End.String(),
		}
	}
	return details
}

func conflictError(conflicts []*Reservation) error {
	return ErrSlotConflict.WithDetails(conflictDetails(conflicts))
}

func storeUnavailable(err error) error {
	return apperror.Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err), ErrStoreUnavailable.Code, ErrStoreUnavailable.Message)
}

type Status string

const (
	StatusPaymentPending Status = "payment_pending"
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusCancelled      Status = "cancelled"
	StatusCompleted      Status = "completed"
)

type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"  // onsite, collected in person
	PaymentPending PaymentStatus = "pending" // waiting on the payment provider
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type PaymentMethod string

const (
	MethodOnsite PaymentMethod = "onsite"
	MethodCard   PaymentMethod = "card"
	MethodPaypal PaymentMethod = "paypal"
)

func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch m := PaymentMethod(s); m {
	case MethodOnsite, MethodCard, MethodPaypal:
		return m, true
	}
	return "", false
}

// Reservation is one booking of a resource for a time range.
type Reservation struct {
	ID            string
	ResourceID    string
	RequesterID   string
	Range         timerange.TimeRange
	Guests        int
	DurationType  pricing.Unit
	Duration      float64
	TotalPrice    pricing.Money
	Status        Status
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r *Reservation) clone() *Reservation {
	c := *r
	return &c
}

// Filter defines parameters for listing reservations.
type Filter struct {
	RequesterID string
	ResourceID  string
	Status      Status
	Date        timerange.Date
	Page        int
	PageSize    int
}
