package resource

import (
	"context"
	"strings"

	"github.com/nekogravitycat/cowork-booking-backend/internal/pricing"
)

type CreateRequest struct {
	Name         string
	Description  string
	Capacity     int
	Rates        pricing.RateTable
	OpeningHours *OpeningHours
	Available    bool
}

type UpdateRequest struct {
	Name         *string
	Description  *string
	Capacity     *int
	Rates        *pricing.RateTable
	OpeningHours *OpeningHours
	ClearHours   bool
	Available    *bool
}

// Service is the administrative surface for resources. The reservation core
// only ever calls GetByID.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Resource, error)
	GetByID(ctx context.Context, id string) (*Resource, error)
	List(ctx context.Context, filter Filter) ([]*Resource, int, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Resource, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func validate(res *Resource) error {
	if strings.TrimSpace(res.Name) == "" {
		return ErrEmptyName
	}
	if res.Capacity < 1 {
		return ErrInvalidCapacity
	}
	if h := res.OpeningHours; h != nil && (!h.Open.Valid() || !h.Close.Valid() || h.Open > h.Close) {
		return ErrInvalidOpeningHours
	}
	return res.Rates.Validate()
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*Resource, error) {
	res := &Resource{
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Capacity:     req.Capacity,
		Rates:        req.Rates,
		OpeningHours: req.OpeningHours,
		Available:    req.Available,
	}
	if err := validate(res); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Resource, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Resource, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) Update(ctx context.Context, id string, req UpdateRequest) (*Resource, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		res.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		res.Description = *req.Description
	}
	if req.Capacity != nil {
		res.Capacity = *req.Capacity
	}
	if req.Rates != nil {
		res.Rates = *req.Rates
	}
	if req.ClearHours {
		res.OpeningHours = nil
	} else if req.OpeningHours != nil {
		res.OpeningHours = req.OpeningHours
	}
	if req.Available != nil {
		res.Available = *req.Available
	}

	if err := validate(res); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}
