package domain

import "time"

// Barber is a server working a shop's queue. IsActive means the barber accepts
// queue work; IsPresent means they are physically available. Both must be true
// for the barber to count toward capacity.
type Barber struct {
	ID           string
	ShopID       string
	Name         string
	Email        string
	PasswordHash string
	IsActive     bool
	IsPresent    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AcceptsWork reports whether the barber contributes service capacity right now.
func (b *Barber) AcceptsWork() bool {
	return b.IsActive && b.IsPresent
}
