package resource

import (
	"net/http"
	"time"

	"github.com/nekogravitycat/cowork-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/cowork-booking-backend/internal/pricing"
	"github.com/nekogravitycat/cowork-booking-backend/internal/timerange"
)

var (
	ErrNotFound            = apperror.New(http.StatusNotFound, "resource not found")
	ErrEmptyName           = apperror.New(http.StatusBadRequest, "name cannot be empty")
	ErrInvalidCapacity     = apperror.New(http.StatusBadRequest, "capacity must be at least 1")
	ErrInvalidOpeningHours = apperror.New(http.StatusBadRequest, "opening hours must be HH:MM with open before close")
)

// Resource is a bookable coworking space (desk, meeting room, studio).
type Resource struct {
	ID           string
	Name         string
	Description  string
	Capacity     int
	Rates        pricing.RateTable
	OpeningHours *OpeningHours // nil means the service-wide default window applies
	Available    bool          // false blocks new reservations
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OpeningHours bounds the bookable part of each day.
type OpeningHours struct {
	Open  timerange.Clock
	Close timerange.Clock
}

// ParseOpeningHours parses an "HH:MM" pair. Open == Close is allowed and
// describes a resource that is never bookable.
func ParseOpeningHours(openAt, closeAt string) (*OpeningHours, error) {
	o, err := timerange.ParseClock(openAt)
	if err != nil {
		return nil, ErrInvalidOpeningHours
	}
	c, err := timerange.ParseClock(closeAt)
	if err != nil {
		return nil, ErrInvalidOpeningHours
	}
	if o > c {
		return nil, ErrInvalidOpeningHours
	}
	return &OpeningHours{Open: o, Close: c}, nil
}

// Window returns the bookable range on date, or false when the window is empty.
func (h OpeningHours) Window(date timerange.Date) (timerange.TimeRange, bool) {
	w, err := timerange.New(date, h.Open, h.Close)
	if err != nil {
		return timerange.TimeRange{}, false
	}
	return w, true
}

// HoursOr returns the resource's own opening hours, or fallback when unset.
func (r *Resource) HoursOr(fallback OpeningHours) OpeningHours {
	if r.OpeningHours != nil {
		return *r.OpeningHours
	}
	return fallback
}

// Filter defines parameters for listing resources.
type Filter struct {
	AvailableOnly bool
	MinCapacity   int
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
