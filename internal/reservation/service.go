package reservation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nekogravitycat/cowork-booking-backend/internal/event"
	"github.com/nekogravitycat/cowork-booking-backend/internal/idempotency"
	"github.com/nekogravitycat/cowork-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/cowork-booking-backend/internal/pricing"
	"github.com/nekogravitycat/cowork-booking-backend/internal/resource"
	"github.com/nekogravitycat/cowork-booking-backend/internal/timerange"
)

// Policy holds the scheduling rules that are configured rather than stored per resource.
type Policy struct {
	DefaultHours       resource.OpeningHours // used when a resource has no opening hours
	SlotMinutes        int
	MinDurationMinutes int
	MaxDurationMinutes int // 0 means no upper bound
}

func DefaultPolicy() Policy {
	return Policy{
		DefaultHours:       resource.OpeningHours{Open: timerange.MustClock("08:00"), Close: timerange.MustClock("20:00")},
		SlotMinutes:        30,
		MinDurationMinutes: 30,
		MaxDurationMinutes: 12 * 60,
	}
}

// ResourceReader is the read-only view of the resource admin collaborator.
type ResourceReader interface {
	GetByID(ctx context.Context, id string) (*resource.Resource, error)
}

type CreateRequest struct {
	ResourceID     string
	Date           string
	StartTime      string
	EndTime        string
	DurationType   string
	Duration       float64
	Guests         int
	PaymentMethod  string
	RequesterID    string
	IdempotencyKey string
}

// Fingerprint identifies what was asked for, so a reused idempotency key can be
// told apart from a genuine retry.
func (r CreateRequest) Fingerprint() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		r.ResourceID, r.Date, r.StartTime, r.EndTime, r.DurationType,
		strconv.FormatFloat(r.Duration, 'g', -1, 64), strconv.Itoa(r.Guests), r.PaymentMethod,
	}, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// ModifyRequest changes the date or time of a reservation. Nil fields keep their value.
type ModifyRequest struct {
	ActorID   string
	IsAdmin   bool
	Date      *string
	StartTime *string
	EndTime   *string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Reservation, error)
	Modify(ctx context.Context, id string, req ModifyRequest) (*Reservation, error)
	Cancel(ctx context.Context, id string, actorID string, isAdmin bool) (*Reservation, error)
	Confirm(ctx context.Context, id string) (*Reservation, error)
	Complete(ctx context.Context, id string) (*Reservation, error)
	MarkPaymentSettled(ctx context.Context, id string) (*Reservation, error)
	MarkPaymentFailed(ctx context.Context, id string) (*Reservation, error)
	Get(ctx context.Context, id string, actorID string, isAdmin bool) (*Reservation, error)
	List(ctx context.Context, filter Filter, actorID string, isAdmin bool) ([]*Reservation, int, error)
	QueryAvailability(ctx context.Context, resourceID, date string, start, end *string) (*Report, error)
	ListStalePayments(ctx context.Context, olderThan time.Duration, limit int) ([]*Reservation, error)
}

type service struct {
	store        Store
	resources    ResourceReader
	availability *AvailabilityEngine
	publisher    event.Publisher
	idem         idempotency.Store
	policy       Policy
	now          func() time.Time
}

// NewService wires the lifecycle. idem may be nil, which disables idempotent replay.
func NewService(store Store, resources ResourceReader, publisher event.Publisher, idem idempotency.Store, policy Policy) Service {
	return &service{
		store:        store,
		resources:    resources,
		availability: NewAvailabilityEngine(store, policy.DefaultHours, policy.SlotMinutes),
		publisher:    publisher,
		idem:         idem,
		policy:       policy,
		now:          time.Now,
	}
}

func (s *service) getResource(ctx context.Context, id string) (*resource.Resource, error) {
	res, err := s.resources.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	return res, nil
}

// parseRange turns boundary strings into a TimeRange, reporting each bad field.
func parseRange(date, start, end string) (timerange.TimeRange, []apperror.FieldError) {
	var fields []apperror.FieldError
	d, err := timerange.ParseDate(date)
	if err != nil {
		fields = append(fields, apperror.FieldError{Field: "date", Message: err.Error()})
	}
	st, err := timerange.ParseClock(start)
	if err != nil {
		fields = append(fields, apperror.FieldError{Field: "start_time", Message: err.Error()})
	}
	et, err := timerange.ParseClock(end)
	if err != nil {
		fields = append(fields, apperror.FieldError{Field: "end_time", Message: err.Error()})
	}
	if len(fields) > 0 {
		return timerange.TimeRange{}, fields
	}

	rng, err := timerange.New(d, st, et)
	if err != nil {
		return timerange.TimeRange{}, []apperror.FieldError{{Field: "end_time", Message: err.Error()}}
	}
	return rng, nil
}

// checkSchedule validates rng against the resource's bookable window, the
// duration policy and the current date.
func (s *service) checkSchedule(res *resource.Resource, rng timerange.TimeRange) []apperror.FieldError {
	var fields []apperror.FieldError

	// Dates are naive wall-clock dates, so "today" is the server's local date.
	if rng.Date < timerange.DateOf(s.now()) {
		fields = append(fields, apperror.FieldError{Field: "date", Message: "date cannot be in the past"})
	}

	window, ok := s.availability.Window(res, rng.Date)
	switch {
	case !ok:
		fields = append(fields, apperror.FieldError{Field: "start_time", Message: "resource has no opening hours"})
	case !window.Contains(rng):
		fields = append(fields, apperror.FieldError{
			Field:   "start_time",
			Message: "time range must be within opening hours " + window.Start.String() + "-" + window.End.String(),
		})
	}

	if m := rng.Minutes(); m < s.policy.MinDurationMinutes {
		fields = append(fields, apperror.FieldError{Field: "end_time", Message: "reservation is shorter than the minimum duration"})
	} else if s.policy.MaxDurationMinutes > 0 && m > s.policy.MaxDurationMinutes {
		fields = append(fields, apperror.FieldError{Field: "end_time", Message: "reservation is longer than the maximum duration"})
	}
	return fields
}

func priceError(err error) error {
	field := "duration"
	if errors.Is(err, pricing.ErrUnsupportedDurationUnit) || errors.Is(err, pricing.ErrUnitNotOffered) {
		field = "duration_type"
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return validationError(apperror.FieldError{Field: field, Message: appErr.Message})
	}
	return err
}

// Create books a slot. With an idempotency key, the key is claimed before the
// insert so a retry racing the original sees it pending instead of colliding
// with the original's slot.
func (s *service) Create(ctx context.Context, req CreateRequest) (*Reservation, error) {
	if s.idem == nil || req.IdempotencyKey == "" {
		return s.create(ctx, req)
	}

	fingerprint := req.Fingerprint()
	existing, claimed, err := s.idem.Claim(ctx, req.RequesterID, req.IdempotencyKey, fingerprint)
	if err != nil {
		log.Printf("reservation: idempotency claim failed, processing request: %v", err)
		return s.create(ctx, req)
	}
	if !claimed {
		return s.replay(ctx, existing, fingerprint)
	}

	// Recorded even if the caller has gone away.
	bg := context.WithoutCancel(ctx)
	r, err := s.create(ctx, req)
	if err != nil {
		if relErr := s.idem.Release(bg, req.RequesterID, req.IdempotencyKey); relErr != nil {
			log.Printf("reservation: release idempotency key: %v", relErr)
		}
		return nil, err
	}
	entry := idempotency.Entry{Fingerprint: fingerprint, ReservationID: r.ID}
	if err := s.idem.Complete(bg, req.RequesterID, req.IdempotencyKey, entry); err != nil {
		log.Printf("reservation: remember idempotency key for %s: %v", r.ID, err)
	}
	return r, nil
}

func (s *service) replay(ctx context.Context, existing idempotency.Entry, fingerprint string) (*Reservation, error) {
	if existing.Fingerprint != fingerprint {
		return nil, ErrIdempotencyMismatch
	}
	if existing.Pending() {
		return nil, ErrRequestInProgress
	}
	return s.store.GetByID(ctx, existing.ReservationID)
}

func (s *service) create(ctx context.Context, req CreateRequest) (*Reservation, error) {
	// 1. Validate input shape
	rng, fields := parseRange(req.Date, req.StartTime, req.EndTime)
	unit, err := pricing.ParseUnit(req.DurationType)
	if err != nil {
		fields = append(fields, apperror.FieldError{Field: "duration_type", Message: err.Error()})
	}
	if req.Guests < 1 {
		fields = append(fields, apperror.FieldError{Field: "guests", Message: "guests must be at least 1"})
	}
	method, ok := ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		fields = append(fields, apperror.FieldError{Field: "payment_method", Message: "payment method must be one of onsite, card, paypal"})
	}
	if req.RequesterID == "" {
		fields = append(fields, apperror.FieldError{Field: "requester_id", Message: "requester is required"})
	}
	if len(fields) > 0 {
		return nil, validationError(fields...)
	}

	// 2. Resource exists and accepts bookings
	res, err := s.getResource(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}
	if !res.Available {
		return nil, ErrResourceUnavailable
	}

	// 3. Range fits opening hours and duration policy, guests fit the space
	fields = s.checkSchedule(res, rng)
	if req.Guests > res.Capacity {
		fields = append(fields, apperror.FieldError{Field: "guests", Message: "guests exceed resource capacity"})
	}
	if len(fields) > 0 {
		return nil, validationError(fields...)
	}

	// 4. Price once
	price, err := pricing.CalculatePrice(res.Rates, req.Duration, unit)
	if err != nil {
		return nil, priceError(err)
	}

	// 5. Atomic conflict-checked insert
	status, payment := InitialStatus(method)
	r := &Reservation{
		ID:            uuid.NewString(),
		ResourceID:    res.ID,
		RequesterID:   req.RequesterID,
		Range:         rng,
		Guests:        req.Guests,
		DurationType:  unit,
		Duration:      req.Duration,
		TotalPrice:    price,
		Status:        status,
		PaymentStatus: payment,
		PaymentMethod: method,
	}
	if err := s.store.TryInsert(ctx, r, Overlapping); err != nil {
		return nil, err
	}

	s.emit(ctx, r, "", r.Status, r.CreatedAt)
	return r, nil
}

func (s *service) Modify(ctx context.Context, id string, req ModifyRequest) (*Reservation, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.IsAdmin && r.RequesterID != req.ActorID {
		return nil, ErrPermissionDenied
	}
	if r.Status.Terminal() {
		return nil, ErrIllegalTransition
	}
	if req.Date == nil && req.StartTime == nil && req.EndTime == nil {
		return nil, validationError(apperror.FieldError{Field: "date", Message: "nothing to change"})
	}

	date, start, end := r.Range.Date.String(), r.Range.Start.String(), r.Range.End.String()
	if req.Date != nil {
		date = *req.Date
	}
	if req.StartTime != nil {
		start = *req.StartTime
	}
	if req.EndTime != nil {
		end = *req.EndTime
	}
	rng, fields := parseRange(date, start, end)
	if len(fields) > 0 {
		return nil, validationError(fields...)
	}

	res, err := s.getResource(ctx, r.ResourceID)
	if err != nil {
		return nil, err
	}
	if !res.Available {
		return nil, ErrResourceUnavailable
	}
	if fields := s.checkSchedule(res, rng); len(fields) > 0 {
		return nil, validationError(fields...)
	}

	// Explicit modification is the one place the price is recomputed.
	price, err := pricing.CalculatePrice(res.Rates, r.Duration, r.DurationType)
	if err != nil {
		return nil, priceError(err)
	}

	candidate := r.clone()
	candidate.Range = rng
	candidate.TotalPrice = price
	if err := s.store.TryReschedule(ctx, candidate, Overlapping); err != nil {
		return nil, err
	}
	return candidate, nil
}

func (s *service) Cancel(ctx context.Context, id string, actorID string, isAdmin bool) (*Reservation, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && r.RequesterID != actorID {
		return nil, ErrPermissionDenied
	}
	return s.transition(ctx, r, StatusCancelled, r.PaymentStatus)
}

func (s *service) Confirm(ctx context.Context, id string) (*Reservation, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Card and PayPal reservations are confirmed by their payment, not by staff.
	if r.Status != StatusPending {
		return nil, ErrIllegalTransition
	}
	return s.transition(ctx, r, StatusConfirmed, r.PaymentStatus)
}

func (s *service) Complete(ctx context.Context, id string) (*Reservation, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, r, StatusCompleted, r.PaymentStatus)
}

func (s *service) MarkPaymentSettled(ctx context.Context, id string) (*Reservation, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPaymentPending {
		return nil, ErrIllegalTransition
	}
	return s.transition(ctx, r, StatusConfirmed, PaymentPaid)
}

func (s *service) MarkPaymentFailed(ctx context.Context, id string) (*Reservation, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPaymentPending {
		return nil, ErrIllegalTransition
	}
	return s.transition(ctx, r, StatusCancelled, PaymentFailed)
}

// transition applies from r.Status to `to` with compare-and-set and emits the event.
func (s *service) transition(ctx context.Context, r *Reservation, to Status, payment PaymentStatus) (*Reservation, error) {
	if !CanTransition(r.Status, to) {
		return nil, ErrIllegalTransition
	}
	updated, err := s.store.Transition(ctx, r.ID, r.Status, to, payment)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, updated, r.Status, to, updated.UpdatedAt)
	return updated, nil
}

func (s *service) emit(ctx context.Context, r *Reservation, from, to Status, at time.Time) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, event.Transition{
		ReservationID: r.ID,
		ResourceID:    r.ResourceID,
		From:          string(from),
		To:            string(to),
		At:            at,
	})
}

func (s *service) Get(ctx context.Context, id string, actorID string, isAdmin bool) (*Reservation, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Other users' reservations are reported as missing.
	if !isAdmin && r.RequesterID != actorID {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *service) List(ctx context.Context, filter Filter, actorID string, isAdmin bool) ([]*Reservation, int, error) {
	if !isAdmin {
		filter.RequesterID = actorID
	}
	return s.store.List(ctx, filter)
}

func (s *service) QueryAvailability(ctx context.Context, resourceID, date string, start, end *string) (*Report, error) {
	d, err := timerange.ParseDate(date)
	if err != nil {
		return nil, validationError(apperror.FieldError{Field: "date", Message: err.Error()})
	}
	if (start == nil) != (end == nil) {
		return nil, validationError(apperror.FieldError{Field: "start_time", Message: "start and end must be given together"})
	}

	res, err := s.getResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	report, err := s.availability.Compute(ctx, res, d)
	if err != nil {
		return nil, err
	}

	if start != nil {
		rng, fields := parseRange(date, *start, *end)
		if len(fields) > 0 {
			return nil, validationError(fields...)
		}
		check, err := s.availability.CheckSlot(ctx, res, rng)
		if err != nil {
			return nil, err
		}
		report.Check = check
	}
	return report, nil
}

// ListStalePayments returns payment_pending reservations created more than olderThan ago.
func (s *service) ListStalePayments(ctx context.Context, olderThan time.Duration, limit int) ([]*Reservation, error) {
	return s.store.ListStale(ctx, StatusPaymentPending, s.now().Add(-olderThan), limit)
}
