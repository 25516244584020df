package dto

import "time"

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse returns the issued bearer token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	BarberID  string    `json:"barber_id"`
	ShopID    string    `json:"shop_id"`
}

// PasswordChangeRequest replaces the caller's password.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// AvailabilityRequest toggles a barber's capacity flags.
type AvailabilityRequest struct {
	IsActive  bool `json:"is_active"`
	IsPresent bool `json:"is_present"`
}

// BarberResponse represents one barber.
type BarberResponse struct {
	ID        string `json:"id"`
	ShopID    string `json:"shop_id"`
	Name      string `json:"name"`
	IsActive  bool   `json:"is_active"`
	IsPresent bool   `json:"is_present"`
}
