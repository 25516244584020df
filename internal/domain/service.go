package domain

import "time"

// Service is a bookable offering with a nominal duration used as the
// wait-estimation default until barber-specific statistics take over.
type Service struct {
	ID              string
	ShopID          string
	Name            string
	DurationMinutes int
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
