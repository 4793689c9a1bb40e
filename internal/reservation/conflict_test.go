package reservation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/cowork-booking-backend/internal/timerange"
)

func span(t *testing.T, date, start, end string) timerange.TimeRange {
	t.Helper()
	r, err := timerange.Parse(date, start, end)
	require.NoError(t, err)
	return r
}

// seed inserts a reservation directly into the store and returns it.
func seed(t *testing.T, store Store, resourceID string, rng timerange.TimeRange, status Status) *Reservation {
	t.Helper()
	r := &Reservation{
		ID:            "seed-" + resourceID + "-" + rng.String(),
		ResourceID:    resourceID,
		RequesterID:   "seeder",
		Range:         rng,
		Guests:        1,
		DurationType:  "hour",
		Duration:      1,
		TotalPrice:    1000,
		Status:        status,
		PaymentStatus: PaymentUnpaid,
		PaymentMethod: MethodOnsite,
	}
	require.NoError(t, store.TryInsert(context.Background(), r, Overlapping))
	return r
}

func TestOverlapping(t *testing.T) {
	candidate := &Reservation{ID: "c", ResourceID: "room", Range: span(t, "2024-12-25", "14:00", "16:00")}
	existing := []*Reservation{
		{ID: "hit", ResourceID: "room", Status: StatusConfirmed, Range: span(t, "2024-12-25", "15:00", "17:00")},
		{ID: "pending-payment", ResourceID: "room", Status: StatusPaymentPending, Range: span(t, "2024-12-25", "13:00", "14:30")},
		{ID: "cancelled", ResourceID: "room", Status: StatusCancelled, Range: span(t, "2024-12-25", "14:00", "16:00")},
		{ID: "adjacent", ResourceID: "room", Status: StatusPending, Range: span(t, "2024-12-25", "16:00", "18:00")},
		{ID: "other-room", ResourceID: "hall", Status: StatusPending, Range: span(t, "2024-12-25", "14:00", "16:00")},
		{ID: "c", ResourceID: "room", Status: StatusPending, Range: span(t, "2024-12-25", "14:00", "16:00")},
	}

	var ids []string
	for _, r := range Overlapping(candidate, existing) {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"hit", "pending-payment"}, ids)
}

func TestConflictDetectorFindConflicts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	booked := seed(t, store, "room", span(t, "2024-12-25", "14:00", "16:00"), StatusPending)
	seed(t, store, "room", span(t, "2024-12-26", "14:00", "16:00"), StatusPending)

	detector := NewConflictDetector(store)

	t.Run("overlap on same date", func(t *testing.T) {
		got, err := detector.FindConflicts(ctx, "room", span(t, "2024-12-25", "15:00", "17:00"), "")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, booked.ID, got[0].ID)
	})

	t.Run("excluded reservation is ignored", func(t *testing.T) {
		got, err := detector.FindConflicts(ctx, "room", span(t, "2024-12-25", "15:00", "17:00"), booked.ID)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("adjacent range is free", func(t *testing.T) {
		got, err := detector.FindConflicts(ctx, "room", span(t, "2024-12-25", "16:00", "18:00"), "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
