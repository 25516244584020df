package domain

import "time"

// Shop identifies a storefront with its own queue.
type Shop struct {
	ID        string
	Slug      string
	Name      string
	Settings  ShopSettings
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShopSettings is the typed queue configuration consumed by the queue engine,
// ticket lifecycle and appointment scheduler.
type ShopSettings struct {
	MaxQueueSize            int
	DefaultServiceDuration  int
	AllowAppointments       bool
	MaxAppointmentsFraction float64
	DeviceDeduplication     bool
	AllowDuplicateNames     bool
}

// AppointmentCapacity returns the maximum number of concurrently active
// (pending or waiting) appointments the shop accepts.
func (s ShopSettings) AppointmentCapacity() int {
	return int(float64(s.MaxQueueSize) * s.MaxAppointmentsFraction)
}
