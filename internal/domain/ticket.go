package domain

import "time"

// TicketStatus enumerates lifecycle states for queue tickets.
type TicketStatus string

const (
	TicketStatusPending    TicketStatus = "PENDING"
	TicketStatusWaiting    TicketStatus = "WAITING"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusCompleted  TicketStatus = "COMPLETED"
	TicketStatusCancelled  TicketStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusCompleted || s == TicketStatusCancelled
}

// TicketType distinguishes walk-in customers from booked appointments.
type TicketType string

const (
	TicketTypeWalkIn      TicketType = "WALKIN"
	TicketTypeAppointment TicketType = "APPOINTMENT"
)

// Ticket is the aggregate for one customer's place in a shop's queue.
// Position is 1-based within the ticket's line while WAITING and 0 otherwise;
// EstimatedWait is minutes and nil whenever the ticket is not actively waiting.
type Ticket struct {
	ID                string
	ExternalKey       string
	ShopID            string
	ServiceID         string
	PreferredBarberID *string
	BarberID          *string
	CustomerName      string
	CustomerPhone     string
	DeviceID          *string
	Status            TicketStatus
	Type              TicketType
	Position          int
	EstimatedWait     *int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
	CancelledAt       *time.Time
	CheckInTime       *time.Time
	ScheduledTime     *time.Time
}

// IsActive reports whether the ticket still occupies a slot in the shop
// (anything that has not reached a terminal state).
func (t *Ticket) IsActive() bool {
	return !t.Status.IsTerminal()
}
