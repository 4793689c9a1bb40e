package resource

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps resources in process memory. It backs tests and
// local runs without a database.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*Resource
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*Resource)}
}

func cloneResource(r *Resource) *Resource {
	c := *r
	if r.OpeningHours != nil {
		h := *r.OpeningHours
		c.OpeningHours = &h
	}
	return &c
}

func (m *MemoryRepository) Create(_ context.Context, res *Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	res.ID = uuid.NewString()
	res.CreatedAt = now
	res.UpdatedAt = now
	m.byID[res.ID] = cloneResource(res)
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id string) (*Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneResource(res), nil
}

func (m *MemoryRepository) List(_ context.Context, filter Filter) ([]*Resource, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []*Resource
	for _, res := range m.byID {
		if filter.AvailableOnly && !res.Available {
			continue
		}
		if res.Capacity < filter.MinCapacity {
			continue
		}
		all = append(all, cloneResource(res))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	start := (filter.Page - 1) * filter.PageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (m *MemoryRepository) Update(_ context.Context, res *Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[res.ID]; !ok {
		return ErrNotFound
	}
	res.UpdatedAt = time.Now().UTC()
	m.byID[res.ID] = cloneResource(res)
	return nil
}
