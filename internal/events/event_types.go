package events

import (
	"time"

	"github.com/spec-kit/barber-queue/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated        EventType = "ticket_created"
	EventTicketStatusChanged  EventType = "ticket_status_changed"
	EventQueueRecalculated    EventType = "queue_recalculated"
	EventAppointmentPromoted  EventType = "appointment_promoted"
	EventAppointmentDemoted   EventType = "appointment_demoted"
	EventBarberAvailability   EventType = "barber_availability_changed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type     domain.SubjectType `json:"type"`
	BarberID *string            `json:"barber_id,omitempty"`
}

// Event represents a domain event emitted by services. Position, wait-time and
// status changes all surface here so external notifiers (websocket broadcast,
// display boards) can react without the core knowing about them.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	ShopID    string      `json:"shop_id"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Type              domain.TicketType `json:"type"`
	ServiceID         string            `json:"service_id"`
	PreferredBarberID *string           `json:"preferred_barber_id,omitempty"`
	Position          int               `json:"position"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	BarberID  *string             `json:"barber_id,omitempty"`
}

// QueueRecalculatedPayload carries the refreshed board for one shop.
type QueueRecalculatedPayload struct {
	Entries []QueueEntry `json:"entries"`
}

// QueueEntry is one ticket's refreshed position and wait estimate.
type QueueEntry struct {
	TicketID      string `json:"ticket_id"`
	Position      int    `json:"position"`
	EstimatedWait int    `json:"estimated_wait"`
}

// AppointmentPromotedPayload payload.
type AppointmentPromotedPayload struct {
	ScheduledTime time.Time `json:"scheduled_time"`
	EstimatedWait int       `json:"estimated_wait"`
}

// AppointmentDemotedPayload payload.
type AppointmentDemotedPayload struct {
	ScheduledTime time.Time `json:"scheduled_time"`
	MinutesUntil  int       `json:"minutes_until"`
}

// BarberAvailabilityPayload payload.
type BarberAvailabilityPayload struct {
	BarberID  string `json:"barber_id"`
	IsActive  bool   `json:"is_active"`
	IsPresent bool   `json:"is_present"`
}
