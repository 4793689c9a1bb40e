package http

import (
	"time"

	"github.com/nekogravitycat/cowork-booking-backend/internal/pkg/request"
	"github.com/nekogravitycat/cowork-booking-backend/internal/pricing"
	"github.com/nekogravitycat/cowork-booking-backend/internal/resource"
)

// RatesBody carries prices in major currency units (e.g. 12.50).
type RatesBody struct {
	Hour  float64 `json:"hour" binding:"min=0"`
	Day   float64 `json:"day" binding:"min=0"`
	Week  float64 `json:"week" binding:"min=0"`
	Month float64 `json:"month" binding:"min=0"`
}

func (b RatesBody) Table() (pricing.RateTable, error) {
	var t pricing.RateTable
	for _, f := range []struct {
		dst    *pricing.Money
		amount float64
	}{
		{&t.Hour, b.Hour},
		{&t.Day, b.Day},
		{&t.Week, b.Week},
		{&t.Month, b.Month},
	} {
		m, err := pricing.FromMajor(f.amount)
		if err != nil {
			return pricing.RateTable{}, err
		}
		*f.dst = m
	}
	return t, nil
}

func NewRatesBody(t pricing.RateTable) RatesBody {
	return RatesBody{
		Hour:  t.Hour.Major(),
		Day:   t.Day.Major(),
		Week:  t.Week.Major(),
		Month: t.Month.Major(),
	}
}

type OpeningHoursBody struct {
	Open  string `json:"open" binding:"required"`
	Close string `json:"close" binding:"required"`
}

func (b *OpeningHoursBody) Parse() (*resource.OpeningHours, error) {
	if b == nil {
		return nil, nil
	}
	return resource.ParseOpeningHours(b.Open, b.Close)
}

// ResourceTag is the short form embedded in other responses.
type ResourceTag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Response struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Capacity     int               `json:"capacity"`
	Rates        RatesBody         `json:"rates"`
	OpeningHours *OpeningHoursBody `json:"opening_hours"`
	Available    bool              `json:"available"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func NewResponse(r *resource.Resource) Response {
	resp := Response{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Capacity:    r.Capacity,
		Rates:       NewRatesBody(r.Rates),
		Available:   r.Available,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if h := r.OpeningHours; h != nil {
		resp.OpeningHours = &OpeningHoursBody{Open: h.Open.String(), Close: h.Close.String()}
	}
	return resp
}

type ListRequest struct {
	request.ListParams
	AvailableOnly bool   `form:"available_only"`
	MinCapacity   int    `form:"min_capacity" binding:"omitempty,min=1"`
	SortBy        string `form:"sort_by" binding:"omitempty,oneof=name capacity created_at"`
	SortOrder     string `form:"sort_order" binding:"omitempty,oneof=asc desc ASC DESC"`
}

type CreateBody struct {
	Name         string            `json:"name" binding:"required"`
	Description  string            `json:"description"`
	Capacity     int               `json:"capacity" binding:"required,min=1"`
	Rates        RatesBody         `json:"rates"`
	OpeningHours *OpeningHoursBody `json:"opening_hours"`
	Available    *bool             `json:"available"`
}

type UpdateBody struct {
	Name         *string           `json:"name"`
	Description  *string           `json:"description"`
	Capacity     *int              `json:"capacity" binding:"omitempty,min=1"`
	Rates        *RatesBody        `json:"rates"`
	OpeningHours *OpeningHoursBody `json:"opening_hours"`
	ClearHours   bool              `json:"clear_opening_hours"`
	Available    *bool             `json:"available"`
}
