package dto

import (
	"time"

	"github.com/spec-kit/barber-queue/internal/domain"
)

// CreateWalkInRequest payload.
type CreateWalkInRequest struct {
	ServiceID         string  `json:"service_id"`
	PreferredBarberID *string `json:"preferred_barber_id"`
	CustomerName      string  `json:"customer_name"`
	CustomerPhone     string  `json:"customer_phone"`
	DeviceID          *string `json:"device_id"`
}

// TransitionRequest payload for staff status changes.
type TransitionRequest struct {
	Status   domain.TicketStatus `json:"status"`
	BarberID *string             `json:"barber_id"`
}

// TicketResponse represents one ticket.
type TicketResponse struct {
	ID                string              `json:"id"`
	ExternalKey       string              `json:"external_key"`
	ShopID            string              `json:"shop_id"`
	ServiceID         string              `json:"service_id"`
	PreferredBarberID *string             `json:"preferred_barber_id,omitempty"`
	BarberID          *string             `json:"barber_id,omitempty"`
	CustomerName      string              `json:"customer_name"`
	Status            domain.TicketStatus `json:"status"`
	Type              domain.TicketType   `json:"type"`
	Position          int                 `json:"position"`
	EstimatedWait     *int                `json:"estimated_wait"`
	CreatedAt         time.Time           `json:"created_at"`
	CheckInTime       *time.Time          `json:"check_in_time,omitempty"`
	ScheduledTime     *time.Time          `json:"scheduled_time,omitempty"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:                t.ID,
		ExternalKey:       t.ExternalKey,
		ShopID:            t.ShopID,
		ServiceID:         t.ServiceID,
		PreferredBarberID: t.PreferredBarberID,
		BarberID:          t.BarberID,
		CustomerName:      t.CustomerName,
		Status:            t.Status,
		Type:              t.Type,
		Position:          t.Position,
		EstimatedWait:     t.EstimatedWait,
		CreatedAt:         t.CreatedAt,
		CheckInTime:       t.CheckInTime,
		ScheduledTime:     t.ScheduledTime,
	}
}

// QueueBoardEntry is one row of the public queue board.
type QueueBoardEntry struct {
	TicketID      string `json:"ticket_id"`
	Position      int    `json:"position"`
	EstimatedWait int    `json:"estimated_wait"`
}
