package reservation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nekogravitycat/cowork-booking-backend/internal/timerange"
)

type slotKey struct {
	resourceID string
	date       timerange.Date
}

// MemoryStore keeps reservations in process memory behind one mutex, which
// makes every check-and-write atomic. It backs tests and single-process runs.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Reservation
	bySlot map[slotKey][]string
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Reservation),
		bySlot: make(map[slotKey][]string),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for CreatedAt and UpdatedAt.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func keyOf(r *Reservation) slotKey {
	return slotKey{resourceID: r.ResourceID, date: r.Range.Date}
}

func (m *MemoryStore) occupyingLocked(key slotKey) []*Reservation {
	var out []*Reservation
	for _, id := range m.bySlot[key] {
		if r := m.byID[id]; r.Status.Occupies() {
			out = append(out, r)
		}
	}
	return out
}

func cloneAll(rs []*Reservation) []*Reservation {
	out := make([]*Reservation, len(rs))
	for i, r := range rs {
		out[i] = r.clone()
	}
	return out
}

func (m *MemoryStore) TryInsert(ctx context.Context, r *Reservation, conflicts ConflictPredicate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[r.ID]; exists {
		return ErrSlotConflict
	}
	key := keyOf(r)
	if found := conflicts(r, m.occupyingLocked(key)); len(found) > 0 {
		return conflictError(found)
	}

	now := m.now()
	r.CreatedAt = now
	r.UpdatedAt = now
	m.byID[r.ID] = r.clone()
	m.bySlot[key] = append(m.bySlot[key], r.ID)
	return nil
}

func (m *MemoryStore) TryReschedule(ctx context.Context, r *Reservation, conflicts ConflictPredicate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.byID[r.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status.Terminal() {
		return ErrIllegalTransition
	}
	key := keyOf(r)
	if found := conflicts(r, m.occupyingLocked(key)); len(found) > 0 {
		return conflictError(found)
	}

	oldKey := keyOf(current)
	if oldKey != key {
		ids := m.bySlot[oldKey]
		for i, id := range ids {
			if id == r.ID {
				m.bySlot[oldKey] = append(ids[:i:i], ids[i+1:]...)
				break
			}
		}
		m.bySlot[key] = append(m.bySlot[key], r.ID)
	}

	current.Range = r.Range
	current.TotalPrice = r.TotalPrice
	current.UpdatedAt = m.now()
	*r = *current.clone()
	return nil
}

func (m *MemoryStore) Transition(ctx context.Context, id string, from, to Status, payment PaymentStatus) (*Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if current.Status != from {
		return nil, ErrIllegalTransition
	}
	current.Status = to
	current.PaymentStatus = payment
	current.UpdatedAt = m.now()
	return current.clone(), nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.clone(), nil
}

func (m *MemoryStore) ListOccupying(ctx context.Context, resourceID string, date timerange.Date) ([]*Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return cloneAll(m.occupyingLocked(slotKey{resourceID: resourceID, date: date})), nil
}

func (m *MemoryStore) List(ctx context.Context, filter Filter) ([]*Reservation, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	m.mu.RLock()
	var matched []*Reservation
	for _, r := range m.byID {
		if filter.RequesterID != "" && r.RequesterID != filter.RequesterID {
			continue
		}
		if filter.ResourceID != "" && r.ResourceID != filter.ResourceID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Date != "" && r.Range.Date != filter.Date {
			continue
		}
		matched = append(matched, r.clone())
	}
	m.mu.RUnlock()

	// Newest slot first, matching the SQL store.
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].Range, matched[j].Range
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		return a.Start > b.Start
	})

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	start := (filter.Page - 1) * filter.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

func (m *MemoryStore) ListStale(ctx context.Context, status Status, createdBefore time.Time, limit int) ([]*Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	var out []*Reservation
	for _, r := range m.byID {
		if r.Status == status && r.CreatedAt.Before(createdBefore) {
			out = append(out, r.clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
