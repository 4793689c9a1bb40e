package reservation

import (
	"context"

	"github.com/nekogravitycat/cowork-booking-backend/internal/resource"
	"github.com/nekogravitycat/cowork-booking-backend/internal/timerange"
)

// Slot is one cell of the availability grid.
type Slot struct {
	Range timerange.TimeRange
	Free  bool
}

// Report describes one resource's calendar for one date.
// Busy and Free partition Window exactly.
type Report struct {
	ResourceID string
	Date       timerange.Date
	Window     *timerange.TimeRange // nil when the opening hours are empty
	Busy       []timerange.TimeRange
	Free       []timerange.TimeRange
	Slots      []Slot
	Check      *SlotCheck // set when a specific range was asked about
}

// SlotCheck answers whether a specific range could be booked right now.
type SlotCheck struct {
	Range              timerange.TimeRange
	Available          bool
	WithinOpeningHours bool
	Conflicts          []ConflictDetail
}

// AvailabilityEngine derives availability from the occupying reservations of
// a resource. It classifies with the same predicate the store enforces on
// writes, so a slot shown free is one a create would not be rejected for.
type AvailabilityEngine struct {
	store        Reader
	detector     *ConflictDetector
	defaultHours resource.OpeningHours
	slotMinutes  int
}

func NewAvailabilityEngine(store Reader, defaultHours resource.OpeningHours, slotMinutes int) *AvailabilityEngine {
	return &AvailabilityEngine{
		store:        store,
		detector:     NewConflictDetector(store),
		defaultHours: defaultHours,
		slotMinutes:  slotMinutes,
	}
}

// Window returns the bookable window of res on date.
func (e *AvailabilityEngine) Window(res *resource.Resource, date timerange.Date) (timerange.TimeRange, bool) {
	return res.HoursOr(e.defaultHours).Window(date)
}

// Compute builds the day report for res on date.
func (e *AvailabilityEngine) Compute(ctx context.Context, res *resource.Resource, date timerange.Date) (*Report, error) {
	occupying, err := e.store.ListOccupying(ctx, res.ID, date)
	if err != nil {
		return nil, err
	}

	report := &Report{ResourceID: res.ID, Date: date}
	ranges := make([]timerange.TimeRange, len(occupying))
	for i, r := range occupying {
		ranges[i] = r.Range
	}

	window, ok := e.Window(res, date)
	if !ok {
		report.Busy = timerange.Merge(ranges)
		return report, nil
	}
	report.Window = &window
	report.Busy = timerange.Merge(timerange.Clip(window, ranges))
	report.Free = timerange.Gaps(window, report.Busy)

	for _, cell := range timerange.Split(window, e.slotMinutes) {
		slot := &Reservation{ResourceID: res.ID, Range: cell}
		report.Slots = append(report.Slots, Slot{
			Range: cell,
			Free:  len(Overlapping(slot, occupying)) == 0,
		})
	}
	return report, nil
}

// CheckSlot reports whether candidate collides with any occupying reservation.
// The answer is advisory; only the store's insert is authoritative.
func (e *AvailabilityEngine) CheckSlot(ctx context.Context, res *resource.Resource, candidate timerange.TimeRange) (*SlotCheck, error) {
	conflicts, err := e.detector.FindConflicts(ctx, res.ID, candidate, "")
	if err != nil {
		return nil, err
	}

	window, ok := e.Window(res, candidate.Date)
	return &SlotCheck{
		Range:              candidate,
		Available:          len(conflicts) == 0,
		WithinOpeningHours: ok && window.Contains(candidate),
		Conflicts:          conflictDetails(conflicts),
	}, nil
}
