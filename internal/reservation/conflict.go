package reservation

import (
	"context"

	"github.com/nekogravitycat/cowork-booking-backend/internal/timerange"
)

// ConflictPredicate returns the members of existing that collide with candidate.
// Stores evaluate it inside their atomic insert, so it must be pure.
type ConflictPredicate func(candidate *Reservation, existing []*Reservation) []*Reservation

// Overlapping is the conflict rule used for both writes and reads: same
// resource, occupying status, not the candidate itself, and overlapping ranges.
func Overlapping(candidate *Reservation, existing []*Reservation) []*Reservation {
	var out []*Reservation
	for _, e := range existing {
		if e.ID == candidate.ID || e.ResourceID != candidate.ResourceID || !e.Status.Occupies() {
			continue
		}
		if e.Range.Overlaps(candidate.Range) {
			out = append(out, e)
		}
	}
	return out
}

// ConflictDetector answers "would this range collide" from a read-only view of the store.
// Its answer is advisory; only Store.TryInsert is authoritative.
type ConflictDetector struct {
	store Reader
}

func NewConflictDetector(store Reader) *ConflictDetector {
	return &ConflictDetector{store: store}
}

// FindConflicts lists occupying reservations of resourceID that overlap candidate.
// excludeID, when set, drops that reservation from consideration (rescheduling).
func (d *ConflictDetector) FindConflicts(ctx context.Context, resourceID string, candidate timerange.TimeRange, excludeID string) ([]*Reservation, error) {
	existing, err := d.store.ListOccupying(ctx, resourceID, candidate.Date)
	if err != nil {
		return nil, err
	}
	want := &Reservation{ID: excludeID, ResourceID: resourceID, Range: candidate}
	return Overlapping(want, existing), nil
}
