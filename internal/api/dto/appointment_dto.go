package dto

import "time"

// CreateAppointmentRequest payload.
type CreateAppointmentRequest struct {
	ServiceID         string    `json:"service_id"`
	PreferredBarberID *string   `json:"preferred_barber_id"`
	CustomerName      string    `json:"customer_name"`
	CustomerPhone     string    `json:"customer_phone"`
	DeviceID          *string   `json:"device_id"`
	ScheduledTime     time.Time `json:"scheduled_time"`
}

// RescheduleRequest payload.
type RescheduleRequest struct {
	ScheduledTime time.Time `json:"scheduled_time"`
}
