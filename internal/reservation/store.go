package reservation

import (
	"context"
	"time"

	"github.com/nekogravitycat/cowork-booking-backend/internal/timerange"
)

// Reader is the read-only view used by conflict detection and availability.
type Reader interface {
	GetByID(ctx context.Context, id string) (*Reservation, error)
	// ListOccupying returns every reservation of the resource on date whose
	// status still holds the slot.
	ListOccupying(ctx context.Context, resourceID string, date timerange.Date) ([]*Reservation, error)
	List(ctx context.Context, filter Filter) ([]*Reservation, int, error)
	// ListStale returns reservations in status created before the cutoff, oldest first.
	ListStale(ctx context.Context, status Status, createdBefore time.Time, limit int) ([]*Reservation, error)
}

// Store is the only component that mutates reservations.
//
// TryInsert and TryReschedule evaluate conflicts against the resource's
// occupying reservations for the target date and write r in one atomic step:
// no other TryInsert or TryReschedule for the same resource and date can run
// between the check and the write. A non-empty predicate result aborts the
// write with ErrSlotConflict.
type Store interface {
	Reader

	// TryInsert persists a new reservation. It fills CreatedAt and UpdatedAt.
	TryInsert(ctx context.Context, r *Reservation, conflicts ConflictPredicate) error

	// TryReschedule moves an existing reservation to r.Range and r.TotalPrice.
	// r itself is excluded from the conflict set. Reservations that reached a
	// terminal status meanwhile are rejected with ErrIllegalTransition.
	TryReschedule(ctx context.Context, r *Reservation, conflicts ConflictPredicate) error

	// Transition sets status to `to` only if the stored status is still `from`.
	// A mismatch yields ErrIllegalTransition, so concurrent transitions of one
	// reservation cannot both apply.
	Transition(ctx context.Context, id string, from, to Status, payment PaymentStatus) (*Reservation, error)
}
