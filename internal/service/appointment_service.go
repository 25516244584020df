package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/barber-queue/internal/domain"
	"github.com/spec-kit/barber-queue/internal/events"
	"github.com/spec-kit/barber-queue/internal/queue"
	"github.com/spec-kit/barber-queue/internal/repository"
	apperrors "github.com/spec-kit/barber-queue/pkg/apperrors"
)

// AppointmentRules tunes when booked appointments move between PENDING and
// the live queue.
type AppointmentRules struct {
	// DemoteBufferMinutes: a waiting appointment whose slot is at least this
	// much later than its estimated wait goes back to PENDING.
	DemoteBufferMinutes int
	// PromoteWindowMinutes: a pending appointment is always promoted once its
	// slot is at most this close, regardless of the wait estimate.
	PromoteWindowMinutes int
}

// DefaultAppointmentRules mirror the shop-floor defaults: 15 minute demote
// buffer, 30 minute promote window.
func DefaultAppointmentRules() AppointmentRules {
	return AppointmentRules{DemoteBufferMinutes: 15, PromoteWindowMinutes: 30}
}

// AppointmentService converts pending appointments into live waiting tickets
// and back, using the queue engine's wait estimates.
type AppointmentService struct {
	tickets  repository.TicketRepository
	barbers  repository.BarberRepository
	services repository.ServiceRepository
	shops    repository.ShopRepository

	lifecycle  *TicketService
	recalc     *RecalcService
	engine     *queue.Engine
	dispatcher events.Dispatcher
	locker     *ShopLocker
	rules      AppointmentRules
	logger     *zap.Logger
	now        func() time.Time
}

// AppointmentDependencies bundles collaborators for the appointment service.
type AppointmentDependencies struct {
	TicketRepo  repository.TicketRepository
	BarberRepo  repository.BarberRepository
	ServiceRepo repository.ServiceRepository
	ShopRepo    repository.ShopRepository
	Lifecycle   *TicketService
	Recalc      *RecalcService
	Engine      *queue.Engine
	Dispatcher  events.Dispatcher
	Locker      *ShopLocker
	Rules       AppointmentRules
	Logger      *zap.Logger
	Now         func() time.Time
}

// AppointmentInput describes appointment creation payload.
type AppointmentInput struct {
	ServiceID         string
	PreferredBarberID *string
	CustomerName      string
	CustomerPhone     string
	DeviceID          *string
	ScheduledTime     time.Time
}

// NewAppointmentService constructs the service.
func NewAppointmentService(deps AppointmentDependencies) *AppointmentService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	locker := deps.Locker
	if locker == nil {
		locker = NewShopLocker()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rules := deps.Rules
	if rules.DemoteBufferMinutes <= 0 {
		rules.DemoteBufferMinutes = DefaultAppointmentRules().DemoteBufferMinutes
	}
	if rules.PromoteWindowMinutes <= 0 {
		rules.PromoteWindowMinutes = DefaultAppointmentRules().PromoteWindowMinutes
	}
	return &AppointmentService{
		tickets:    deps.TicketRepo,
		barbers:    deps.BarberRepo,
		services:   deps.ServiceRepo,
		shops:      deps.ShopRepo,
		lifecycle:  deps.Lifecycle,
		recalc:     deps.Recalc,
		engine:     deps.Engine,
		dispatcher: deps.Dispatcher,
		locker:     locker,
		rules:      rules,
		logger:     logger,
		now:        now,
	}
}

// CreateAppointment registers a PENDING appointment for a future slot,
// enforcing the shop's appointment capacity cap.
func (s *AppointmentService) CreateAppointment(ctx context.Context, shopID string, input AppointmentInput) (*domain.Ticket, error) {
	shop, err := s.shops.GetByID(ctx, shopID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("shop", map[string]any{"shop_id": shopID})
		}
		return nil, apperrors.MapError(err)
	}
	settings := shop.Settings
	if !settings.AllowAppointments {
		return nil, apperrors.NewConflict("shop does not accept appointments", nil)
	}

	input.CustomerName = strings.TrimSpace(input.CustomerName)
	if input.CustomerName == "" {
		return nil, apperrors.NewValidationError("customer_name required", nil)
	}
	if !input.ScheduledTime.After(s.now()) {
		return nil, apperrors.NewValidationError("scheduled_time must be in the future", nil)
	}

	unlock := s.locker.Lock(shopID)
	defer unlock()

	active, err := s.tickets.CountActiveAppointments(ctx, shopID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if active >= settings.AppointmentCapacity() {
		return nil, apperrors.NewConflict("appointment capacity reached", map[string]any{
			"capacity": settings.AppointmentCapacity(),
		})
	}

	if err := s.lifecycle.validateService(ctx, shopID, input.ServiceID); err != nil {
		return nil, err
	}
	if input.PreferredBarberID != nil {
		if err := s.lifecycle.validatePreferredBarber(ctx, shopID, *input.PreferredBarberID); err != nil {
			return nil, err
		}
	}

	scheduled := input.ScheduledTime
	ticket := &domain.Ticket{
		ExternalKey:       generateTicketKey(),
		ShopID:            shopID,
		ServiceID:         input.ServiceID,
		PreferredBarberID: input.PreferredBarberID,
		CustomerName:      input.CustomerName,
		CustomerPhone:     strings.TrimSpace(input.CustomerPhone),
		DeviceID:          input.DeviceID,
		Status:            domain.TicketStatusPending,
		Type:              domain.TicketTypeAppointment,
		ScheduledTime:     &scheduled,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.lifecycle.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		ShopID:   shopID,
		TicketID: ticket.ID,
		Actor:    events.Actor{Type: domain.SubjectTypeCustomer},
		Payload: events.TicketCreatedPayload{
			Type:              ticket.Type,
			ServiceID:         ticket.ServiceID,
			PreferredBarberID: ticket.PreferredBarberID,
		},
	})
	return ticket, nil
}

// CheckIn moves a PENDING appointment into the live queue on explicit staff
// or customer request, same effect as a scheduler promotion.
func (s *AppointmentService) CheckIn(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.getAppointment(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusPending {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusWaiting))
	}

	unlock := s.locker.Lock(ticket.ShopID)
	defer unlock()

	now := s.now()
	s.promoteLocked(ctx, ticket, now)
	if err := s.recalc.recalculateLocked(ctx, ticket.ShopID); err != nil {
		s.logger.Error("recompute after check-in failed", zap.String("shop_id", ticket.ShopID), zap.Error(err))
	}
	return s.tickets.GetByID(ctx, ticket.ID)
}

// Reschedule changes the appointment's slot; allowed only while PENDING.
func (s *AppointmentService) Reschedule(ctx context.Context, ticketID string, newTime time.Time) (*domain.Ticket, error) {
	ticket, err := s.getAppointment(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusPending {
		return nil, apperrors.NewConflict("only pending appointments can be rescheduled", map[string]any{
			"status": ticket.Status,
		})
	}
	if !newTime.After(s.now()) {
		return nil, apperrors.NewValidationError("scheduled_time must be in the future", nil)
	}
	ticket.ScheduledTime = &newTime
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// Tick runs the demotion pass then the promotion pass for one shop and
// returns how many appointments were promoted. Invoked from the periodic
// worker and safe to call repeatedly.
func (s *AppointmentService) Tick(ctx context.Context, shopID string) (int, error) {
	unlock := s.locker.Lock(shopID)
	defer unlock()

	if err := s.demotePass(ctx, shopID); err != nil {
		return 0, err
	}
	return s.promotePass(ctx, shopID)
}

// demotePass returns waiting appointments to PENDING when they would be
// served far earlier than their booked slot, recomputing the queue after
// each demotion so later decisions see fresh estimates.
func (s *AppointmentService) demotePass(ctx context.Context, shopID string) error {
	waiting, err := s.tickets.ListAppointments(ctx, shopID, []domain.TicketStatus{domain.TicketStatusWaiting})
	if err != nil {
		return apperrors.MapError(err)
	}
	now := s.now()
	for i := range waiting {
		ticket := &waiting[i]
		if ticket.ScheduledTime == nil || !ticket.ScheduledTime.After(now) || ticket.EstimatedWait == nil {
			continue
		}
		minutesUntil := ticket.ScheduledTime.Sub(now).Minutes()
		if minutesUntil-float64(*ticket.EstimatedWait) < float64(s.rules.DemoteBufferMinutes) {
			continue
		}

		scheduled := *ticket.ScheduledTime
		ticket.Status = domain.TicketStatusPending
		ticket.CheckInTime = nil
		ticket.Position = 0
		ticket.EstimatedWait = nil
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return apperrors.MapError(err)
		}
		s.lifecycle.publishEvent(ctx, events.Event{
			Type:     events.EventAppointmentDemoted,
			ShopID:   shopID,
			TicketID: ticket.ID,
			Actor:    events.Actor{Type: domain.SubjectTypeSystem},
			Payload: events.AppointmentDemotedPayload{
				ScheduledTime: scheduled,
				MinutesUntil:  int(minutesUntil),
			},
		})
		if err := s.recalc.recalculateLocked(ctx, shopID); err != nil {
			return err
		}
	}
	return nil
}

// promotePass moves pending appointments into the live queue once their slot
// is within reach of the wait they would face if promoted now. Appointments
// whose slot has already passed fall inside the promote window and catch up
// here as well.
func (s *AppointmentService) promotePass(ctx context.Context, shopID string) (int, error) {
	pending, err := s.tickets.ListAppointments(ctx, shopID, []domain.TicketStatus{domain.TicketStatusPending})
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	now := s.now()
	promoted := 0
	promotedIDs := make(map[string]bool, len(pending))

	for i := range pending {
		candidate := &pending[i]
		if candidate.ScheduledTime == nil {
			continue
		}
		minutesUntil := candidate.ScheduledTime.Sub(now).Minutes()

		estimated, err := s.waitIfPromotedNow(ctx, shopID, candidate, pending, promotedIDs)
		if err != nil {
			return promoted, err
		}

		if minutesUntil > float64(estimated) && minutesUntil > float64(s.rules.PromoteWindowMinutes) {
			continue
		}

		s.promoteLocked(ctx, candidate, now)
		promotedIDs[candidate.ID] = true
		promoted++

		scheduled := *candidate.ScheduledTime
		s.lifecycle.publishEvent(ctx, events.Event{
			Type:     events.EventAppointmentPromoted,
			ShopID:   shopID,
			TicketID: candidate.ID,
			Actor:    events.Actor{Type: domain.SubjectTypeSystem},
			Payload: events.AppointmentPromotedPayload{
				ScheduledTime: scheduled,
				EstimatedWait: estimated,
			},
		})
	}

	if promoted > 0 {
		if err := s.recalc.recalculateLocked(ctx, shopID); err != nil {
			return promoted, err
		}
	}
	return promoted, nil
}

// waitIfPromotedNow estimates the wait the candidate would face joining the
// queue right now. Preferred-barber appointments queue at the back of their
// barber's line; everyone else competes in the general line together with the
// other still-pending future appointments, so multiple bookings in the same
// hour contend for the same server time.
func (s *AppointmentService) waitIfPromotedNow(ctx context.Context, shopID string, candidate *domain.Ticket, pending []domain.Ticket, alreadyPromoted map[string]bool) (int, error) {
	others := make([]domain.Ticket, 0, len(pending))
	for i := range pending {
		t := pending[i]
		if t.ID == candidate.ID || alreadyPromoted[t.ID] {
			continue
		}
		if t.ScheduledTime == nil || !t.ScheduledTime.After(s.now()) {
			continue
		}
		t.Status = domain.TicketStatusWaiting
		others = append(others, t)
	}

	snap, err := s.recalc.Snapshot(ctx, shopID, append(others, *candidate)...)
	if err != nil {
		return 0, err
	}

	if barber := activeBarberIn(snap, candidate.PreferredBarberID); barber != nil {
		return s.engine.PreferredLineWait(snap, nil, barber), nil
	}
	snap.Waiting = append(snap.Waiting, others...)
	return s.engine.GeneralLineWait(snap, nil), nil
}

// promoteLocked flips a pending appointment to WAITING with a check-in stamp;
// callers hold the shop lock and trigger the recompute themselves.
func (s *AppointmentService) promoteLocked(ctx context.Context, ticket *domain.Ticket, now time.Time) {
	ticket.Status = domain.TicketStatusWaiting
	ticket.CheckInTime = &now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		s.logger.Error("appointment promotion failed",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

func (s *AppointmentService) getAppointment(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.Type != domain.TicketTypeAppointment {
		return nil, apperrors.NewValidationError("ticket is not an appointment", map[string]any{
			"ticket_id": ticketID,
		})
	}
	return ticket, nil
}

func activeBarberIn(snap *queue.Snapshot, barberID *string) *domain.Barber {
	if barberID == nil {
		return nil
	}
	for i := range snap.Barbers {
		if snap.Barbers[i].ID == *barberID && snap.Barbers[i].IsActive {
			return &snap.Barbers[i]
		}
	}
	return nil
}
