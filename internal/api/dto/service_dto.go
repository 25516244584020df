package dto

// ServiceResponse represents one bookable service.
type ServiceResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
}
