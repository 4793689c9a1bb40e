package reservation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/cowork-booking-backend/internal/event"
	"github.com/nekogravitycat/cowork-booking-backend/internal/idempotency"
	"github.com/nekogravitycat/cowork-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/cowork-booking-backend/internal/pricing"
	"github.com/nekogravitycat/cowork-booking-backend/internal/resource"
	"github.com/nekogravitycat/cowork-booking-backend/internal/timerange"
)

var testNow = time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *service
	store     *MemoryStore
	resources *resource.MemoryRepository
	res       *resource.Resource
	events    *event.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	resources := resource.NewMemoryRepository()
	res := &resource.Resource{
		Name:         "Focus Room",
		Capacity:     4,
		Rates:        pricing.RateTable{Hour: 1000, Week: 30000},
		OpeningHours: hours("08:00", "20:00"),
		Available:    true,
	}
	require.NoError(t, resources.Create(context.Background(), res))

	store := NewMemoryStore()
	store.SetClock(func() time.Time { return testNow })
	events := &event.Recorder{}

	svc := NewService(store, resources, events, idempotency.NewMemoryStore(), DefaultPolicy()).(*service)
	svc.now = func() time.Time { return testNow }

	return &fixture{svc: svc, store: store, resources: resources, res: res, events: events}
}

func (f *fixture) request(start, end string) CreateRequest {
	return CreateRequest{
		ResourceID:    f.res.ID,
		Date:          "2024-12-25",
		StartTime:     start,
		EndTime:       end,
		DurationType:  "hour",
		Duration:      2,
		Guests:        1,
		PaymentMethod: "onsite",
		RequesterID:   "user-1",
	}
}

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	require.ErrorIs(t, err, ErrValidation)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	details, ok := appErr.Details.([]apperror.FieldError)
	require.True(t, ok, "validation errors carry field details")
	var fields []string
	for _, d := range details {
		fields = append(fields, d.Field)
	}
	return fields
}

func TestBookingScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.Create(ctx, f.request("14:00", "16:00"))
	require.NoError(t, err)
	assert.Equal(t, pricing.Money(2000), first.TotalPrice)
	assert.Equal(t, StatusPending, first.Status)
	assert.Equal(t, PaymentUnpaid, first.PaymentStatus)

	_, err = f.svc.Create(ctx, f.request("15:00", "17:00"))
	require.ErrorIs(t, err, ErrSlotConflict)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, []ConflictDetail{{Date: "2024-12-25", StartTime: "14:00", EndTime: "16:00"}}, appErr.Details)

	_, err = f.svc.Create(ctx, f.request("16:00", "18:00"))
	require.NoError(t, err, "adjacent reservations do not overlap")

	report, err := f.svc.QueryAvailability(ctx, f.res.ID, "2024-12-25", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []timerange.TimeRange{
		span(t, "2024-12-25", "08:00", "14:00"),
		span(t, "2024-12-25", "18:00", "20:00"),
	}, report.Free)
	assert.Equal(t, []timerange.TimeRange{span(t, "2024-12-25", "14:00", "18:00")}, report.Busy)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name       string
		mutate     func(*CreateRequest)
		wantFields []string
	}{
		{name: "end before start", mutate: func(r *CreateRequest) { r.StartTime, r.EndTime = "16:00", "14:00" }, wantFields: []string{"end_time"}},
		{name: "malformed date and clock", mutate: func(r *CreateRequest) { r.Date, r.StartTime = "25/12/2024", "2pm" }, wantFields: []string{"date", "start_time"}},
		{name: "unknown duration type", mutate: func(r *CreateRequest) { r.DurationType = "year" }, wantFields: []string{"duration_type"}},
		{name: "unknown payment method", mutate: func(r *CreateRequest) { r.PaymentMethod = "cash" }, wantFields: []string{"payment_method"}},
		{name: "no guests", mutate: func(r *CreateRequest) { r.Guests = 0 }, wantFields: []string{"guests"}},
		{name: "too many guests", mutate: func(r *CreateRequest) { r.Guests = 5 }, wantFields: []string{"guests"}},
		{name: "outside opening hours", mutate: func(r *CreateRequest) { r.StartTime, r.EndTime = "19:00", "21:00" }, wantFields: []string{"start_time"}},
		{name: "too short", mutate: func(r *CreateRequest) { r.StartTime, r.EndTime = "14:00", "14:15" }, wantFields: []string{"end_time"}},
		{name: "past date", mutate: func(r *CreateRequest) { r.Date = "2024-11-30" }, wantFields: []string{"date"}},
		{name: "zero duration", mutate: func(r *CreateRequest) { r.Duration = 0 }, wantFields: []string{"duration"}},
		{name: "unit not offered", mutate: func(r *CreateRequest) { r.DurationType = "day" }, wantFields: []string{"duration_type"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request("14:00", "16:00")
			tt.mutate(&req)
			_, err := f.svc.Create(ctx, req)
			assert.Equal(t, tt.wantFields, fieldsOf(t, err))
		})
	}

	assert.Empty(t, f.events.Events(), "rejected requests emit nothing")
}

func TestCreateResourceChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := f.request("14:00", "16:00")
	req.ResourceID = "00000000-0000-0000-0000-000000000000"
	_, err := f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, ErrResourceNotFound)

	closed := false
	_, err = resource.NewService(f.resources).Update(ctx, f.res.ID, resource.UpdateRequest{Available: &closed})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.request("14:00", "16:00"))
	assert.ErrorIs(t, err, ErrResourceUnavailable)
}

func TestConcurrentCreateSameSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const n = 32
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := f.request("10:00", "12:00")
			req.RequesterID = fmt.Sprintf("user-%d", i)
			<-start
			_, err := f.svc.Create(ctx, req)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrSlotConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(n-1), conflicts.Load())
}

func TestConcurrentCreateRandomNeverOverlaps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rng := rand.New(rand.NewSource(1))

	type attempt struct{ start, end timerange.Clock }
	attempts := make([]attempt, 200)
	for i := range attempts {
		start := timerange.Clock(8*60 + 15*rng.Intn(44))
		attempts[i] = attempt{start: start, end: start + timerange.Clock(30+15*rng.Intn(8))}
		if attempts[i].end > timerange.MustClock("20:00") {
			attempts[i].end = timerange.MustClock("20:00")
		}
	}

	var wg sync.WaitGroup
	for i, a := range attempts {
		wg.Add(1)
		go func(i int, a attempt) {
			defer wg.Done()
			req := f.request(a.start.String(), a.end.String())
			req.RequesterID = fmt.Sprintf("user-%d", i)
			req.PaymentMethod = []string{"onsite", "card", "paypal"}[i%3]
			_, err := f.svc.Create(ctx, req)
			if err != nil && !errors.Is(err, ErrSlotConflict) && !errors.Is(err, ErrValidation) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i, a)
	}
	wg.Wait()

	accepted, err := f.store.ListOccupying(ctx, f.res.ID, "2024-12-25")
	require.NoError(t, err)
	require.NotEmpty(t, accepted)
	for i, a := range accepted {
		for _, b := range accepted[i+1:] {
			require.False(t, a.Range.Overlaps(b.Range), "%s overlaps %s", a.Range, b.Range)
		}
	}
}

func TestLifecycleOnsite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.svc.Create(ctx, f.request("14:00", "16:00"))
	require.NoError(t, err)

	confirmed, err := f.svc.Confirm(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	completed, err := f.svc.Complete(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	_, err = f.svc.Cancel(ctx, r.ID, "user-1", false)
	assert.ErrorIs(t, err, ErrIllegalTransition, "completed is terminal")

	var got []string
	for _, e := range f.events.Events() {
		got = append(got, e.From+">"+e.To)
		assert.Equal(t, r.ID, e.ReservationID)
	}
	assert.Equal(t, []string{">pending", "pending>confirmed", "confirmed>completed"}, got)
}

func TestLifecyclePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("settled payment confirms", func(t *testing.T) {
		f := newFixture(t)
		req := f.request("14:00", "16:00")
		req.PaymentMethod = "card"
		r, err := f.svc.Create(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, StatusPaymentPending, r.Status)
		assert.Equal(t, PaymentPending, r.PaymentStatus)

		_, err = f.svc.Confirm(ctx, r.ID)
		assert.ErrorIs(t, err, ErrIllegalTransition, "staff cannot confirm an unpaid card booking")

		settled, err := f.svc.MarkPaymentSettled(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, settled.Status)
		assert.Equal(t, PaymentPaid, settled.PaymentStatus)

		_, err = f.svc.MarkPaymentSettled(ctx, r.ID)
		assert.ErrorIs(t, err, ErrIllegalTransition)
	})

	t.Run("failed payment cancels and frees the slot", func(t *testing.T) {
		f := newFixture(t)
		req := f.request("14:00", "16:00")
		req.PaymentMethod = "paypal"
		r, err := f.svc.Create(ctx, req)
		require.NoError(t, err)

		_, err = f.svc.Create(ctx, f.request("14:00", "16:00"))
		require.ErrorIs(t, err, ErrSlotConflict, "payment_pending holds the slot")

		failed, err := f.svc.MarkPaymentFailed(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, failed.Status)
		assert.Equal(t, PaymentFailed, failed.PaymentStatus)

		_, err = f.svc.Create(ctx, f.request("14:00", "16:00"))
		assert.NoError(t, err)
	})

	t.Run("settle racing fail applies once", func(t *testing.T) {
		f := newFixture(t)
		req := f.request("14:00", "16:00")
		req.PaymentMethod = "card"
		r, err := f.svc.Create(ctx, req)
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() { defer wg.Done(); _, errs[0] = f.svc.MarkPaymentSettled(ctx, r.ID) }()
		go func() { defer wg.Done(); _, errs[1] = f.svc.MarkPaymentFailed(ctx, r.ID) }()
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
			} else {
				assert.ErrorIs(t, err, ErrIllegalTransition)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Len(t, f.events.Events(), 2)
	})

	t.Run("unknown reservation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.MarkPaymentSettled(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCancelPermissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.svc.Create(ctx, f.request("14:00", "16:00"))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, r.ID, "user-2", false)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	cancelled, err := f.svc.Cancel(ctx, r.ID, "admin-1", true)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = f.svc.Cancel(ctx, r.ID, "user-1", false)
	assert.ErrorIs(t, err, ErrIllegalTransition, "cancelled is terminal")
}

func TestModify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mine, err := f.svc.Create(ctx, f.request("14:00", "16:00"))
	require.NoError(t, err)
	other := f.request("18:00", "19:00")
	other.RequesterID = "user-2"
	_, err = f.svc.Create(ctx, other)
	require.NoError(t, err)

	str := func(s string) *string { return &s }

	t.Run("overlapping its own slot is allowed", func(t *testing.T) {
		moved, err := f.svc.Modify(ctx, mine.ID, ModifyRequest{ActorID: "user-1", StartTime: str("15:00"), EndTime: str("17:00")})
		require.NoError(t, err)
		assert.Equal(t, span(t, "2024-12-25", "15:00", "17:00"), moved.Range)
		assert.Equal(t, mine.TotalPrice, moved.TotalPrice)
	})

	t.Run("into another reservation conflicts", func(t *testing.T) {
		_, err := f.svc.Modify(ctx, mine.ID, ModifyRequest{ActorID: "user-1", EndTime: str("18:30")})
		assert.ErrorIs(t, err, ErrSlotConflict)
	})

	t.Run("to another date", func(t *testing.T) {
		moved, err := f.svc.Modify(ctx, mine.ID, ModifyRequest{ActorID: "user-1", Date: str("2024-12-26")})
		require.NoError(t, err)
		assert.Equal(t, timerange.Date("2024-12-26"), moved.Range.Date)

		report, err := f.svc.QueryAvailability(ctx, f.res.ID, "2024-12-25", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, []timerange.TimeRange{span(t, "2024-12-25", "18:00", "19:00")}, report.Busy)
	})

	t.Run("by someone else", func(t *testing.T) {
		_, err := f.svc.Modify(ctx, mine.ID, ModifyRequest{ActorID: "user-2", StartTime: str("09:00")})
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("nothing to change", func(t *testing.T) {
		_, err := f.svc.Modify(ctx, mine.ID, ModifyRequest{ActorID: "user-1"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("after cancellation", func(t *testing.T) {
		_, err := f.svc.Cancel(ctx, mine.ID, "user-1", false)
		require.NoError(t, err)
		_, err = f.svc.Modify(ctx, mine.ID, ModifyRequest{ActorID: "user-1", StartTime: str("09:00")})
		assert.ErrorIs(t, err, ErrIllegalTransition)
	})
}

func TestCreateIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := f.request("14:00", "16:00")
	req.IdempotencyKey = "retry-1"

	first, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.events.Events(), 1)

	t.Run("same key for a different request", func(t *testing.T) {
		changed := req
		changed.Date, changed.StartTime, changed.EndTime = "2024-12-31", "09:00", "10:00"
		_, err := f.svc.Create(ctx, changed)
		assert.ErrorIs(t, err, ErrIdempotencyMismatch)

		list, _, err := f.svc.List(ctx, Filter{Date: "2024-12-31"}, "user-1", false)
		require.NoError(t, err)
		assert.Empty(t, list, "nothing is booked for the changed request")
	})

	t.Run("keys are scoped per requester", func(t *testing.T) {
		other := req
		other.RequesterID = "user-2"
		_, err := f.svc.Create(ctx, other)
		assert.ErrorIs(t, err, ErrSlotConflict)
	})

	t.Run("failed request frees its key", func(t *testing.T) {
		bad := f.request("09:00", "10:00")
		bad.IdempotencyKey = "retry-2"
		bad.Guests = 0
		_, err := f.svc.Create(ctx, bad)
		require.ErrorIs(t, err, ErrValidation)

		bad.Guests = 1
		_, err = f.svc.Create(ctx, bad)
		assert.NoError(t, err)
	})
}

// stallingStore holds the first TryInsert open after it has been written,
// until proceed is closed.
type stallingStore struct {
	Store
	once      sync.Once
	committed chan struct{}
	proceed   chan struct{}
}

func (s *stallingStore) TryInsert(ctx context.Context, r *Reservation, conflicts ConflictPredicate) error {
	err := s.Store.TryInsert(ctx, r, conflicts)
	s.once.Do(func() {
		close(s.committed)
		<-s.proceed
	})
	return err
}

func TestCreateIdempotentRetryDuringInsert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stall := &stallingStore{Store: f.store, committed: make(chan struct{}), proceed: make(chan struct{})}
	svc := NewService(stall, f.resources, f.events, idempotency.NewMemoryStore(), DefaultPolicy()).(*service)
	svc.now = func() time.Time { return testNow }

	req := f.request("14:00", "16:00")
	req.IdempotencyKey = "slow"

	type result struct {
		r   *Reservation
		err error
	}
	done := make(chan result, 1)
	go func() {
		r, err := svc.Create(ctx, req)
		done <- result{r, err}
	}()

	<-stall.committed
	_, err := svc.Create(ctx, req)
	assert.ErrorIs(t, err, ErrRequestInProgress, "a retry while the original is in flight must not collide with it")
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 409, appErr.Code)

	close(stall.proceed)
	first := <-done
	require.NoError(t, first.err)

	retry, err := svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.r.ID, retry.ID)
}

func TestCreateUsesLocalDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// 20:00 on the 24th in a zone west of UTC is already the 25th in UTC.
	west := time.FixedZone("UTC-8", -8*60*60)
	f.svc.now = func() time.Time { return time.Date(2024, 12, 24, 20, 0, 0, 0, west) }

	req := f.request("18:00", "20:00")
	req.Date = "2024-12-24"
	_, err := f.svc.Create(ctx, req)
	assert.NoError(t, err, "tonight is not in the past")

	req.Date = "2024-12-23"
	_, err = f.svc.Create(ctx, req)
	assert.Equal(t, []string{"date"}, fieldsOf(t, err))
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mine, err := f.svc.Create(ctx, f.request("09:00", "10:00"))
	require.NoError(t, err)
	other := f.request("11:00", "12:00")
	other.RequesterID = "user-2"
	_, err = f.svc.Create(ctx, other)
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, mine.ID, "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)

	_, err = f.svc.Get(ctx, mine.ID, "user-2", false)
	assert.ErrorIs(t, err, ErrNotFound)

	list, total, err := f.svc.List(ctx, Filter{}, "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	_, total, err = f.svc.List(ctx, Filter{}, "admin-1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestQueryAvailabilityRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Create(ctx, f.request("14:00", "16:00"))
	require.NoError(t, err)

	start, end := "15:00", "17:00"
	report, err := f.svc.QueryAvailability(ctx, f.res.ID, "2024-12-25", &start, &end)
	require.NoError(t, err)
	require.NotNil(t, report.Check)
	assert.False(t, report.Check.Available)
	assert.Len(t, report.Check.Conflicts, 1)

	_, err = f.svc.QueryAvailability(ctx, f.res.ID, "2024-12-25", &start, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.QueryAvailability(ctx, "missing", "2024-12-25", nil, nil)
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestListStalePayments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.store.SetClock(func() time.Time { return testNow.Add(-time.Hour) })
	old := f.request("09:00", "10:00")
	old.PaymentMethod = "card"
	stale, err := f.svc.Create(ctx, old)
	require.NoError(t, err)

	f.store.SetClock(func() time.Time { return testNow })
	fresh := f.request("11:00", "12:00")
	fresh.PaymentMethod = "card"
	_, err = f.svc.Create(ctx, fresh)
	require.NoError(t, err)

	got, err := f.svc.ListStalePayments(ctx, 15*time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stale.ID, got[0].ID)
}
