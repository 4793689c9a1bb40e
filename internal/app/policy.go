package app

import (
	"github.com/nekogravitycat/cowork-booking-backend/internal/config"
	"github.com/nekogravitycat/cowork-booking-backend/internal/reservation"
	"github.com/nekogravitycat/cowork-booking-backend/internal/resource"
)

// PolicyFrom builds the scheduling policy from loaded configuration.
func PolicyFrom(cfg *config.Config) reservation.Policy {
	return reservation.Policy{
		DefaultHours:       resource.OpeningHours{Open: cfg.DefaultOpen, Close: cfg.DefaultClose},
		SlotMinutes:        cfg.SlotMinutes,
		MinDurationMinutes: cfg.MinDurationMinutes,
		MaxDurationMinutes: cfg.MaxDurationMinutes,
	}
}
