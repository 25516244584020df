package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/barber-queue/internal/domain"
	"github.com/spec-kit/barber-queue/internal/events"
	"github.com/spec-kit/barber-queue/internal/repository"
	apperrors "github.com/spec-kit/barber-queue/pkg/apperrors"
)

// maxPlausibleServiceMinutes caps the elapsed service time folded into the
// weekday averages. Anything longer is a forgotten ticket, not a haircut.
const maxPlausibleServiceMinutes = 120

// TicketService validates and applies ticket status transitions and walk-in
// creation rules, including the side effects required for position and wait
// accounting.
type TicketService struct {
	tickets  repository.TicketRepository
	barbers  repository.BarberRepository
	services repository.ServiceRepository
	shops    repository.ShopRepository
	stats    repository.StatRepository

	recalc     *RecalcService
	dispatcher events.Dispatcher
	locker     *ShopLocker
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	BarberRepo  repository.BarberRepository
	ServiceRepo repository.ServiceRepository
	ShopRepo    repository.ShopRepository
	StatRepo    repository.StatRepository
	Recalc      *RecalcService
	Dispatcher  events.Dispatcher
	Locker      *ShopLocker
	Logger      *zap.Logger
	Now         func() time.Time
}

// WalkInInput describes walk-in ticket creation payload.
type WalkInInput struct {
	ServiceID         string
	PreferredBarberID *string
	CustomerName      string
	CustomerPhone     string
	DeviceID          *string
}

// TransitionOptions carries per-transition parameters.
type TransitionOptions struct {
	BarberID *string // required when transitioning to IN_PROGRESS
	CheckIn  bool    // stamp CheckInTime when entering WAITING
	Actor    events.Actor
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
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
	return &TicketService{
		tickets:    deps.TicketRepo,
		barbers:    deps.BarberRepo,
		services:   deps.ServiceRepo,
		shops:      deps.ShopRepo,
		stats:      deps.StatRepo,
		recalc:     deps.Recalc,
		dispatcher: deps.Dispatcher,
		locker:     locker,
		logger:     logger,
		now:        now,
	}
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusPending:    {domain.TicketStatusWaiting, domain.TicketStatusCancelled},
	domain.TicketStatusWaiting:    {domain.TicketStatusInProgress, domain.TicketStatusCancelled},
	domain.TicketStatusInProgress: {domain.TicketStatusCompleted, domain.TicketStatusCancelled, domain.TicketStatusWaiting},
	domain.TicketStatusCompleted:  {},
	domain.TicketStatusCancelled:  {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// CreateWalkIn registers a walk-in customer as a WAITING ticket, enforcing the
// shop's queue size, duplicate-name and device-deduplication rules, then runs
// a full recompute so the returned ticket carries its position and wait.
func (s *TicketService) CreateWalkIn(ctx context.Context, shopID string, input WalkInInput) (*domain.Ticket, error) {
	shop, err := s.shops.GetByID(ctx, shopID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("shop", map[string]any{"shop_id": shopID})
		}
		return nil, apperrors.MapError(err)
	}
	settings := shop.Settings

	input.CustomerName = strings.TrimSpace(input.CustomerName)
	if input.CustomerName == "" {
		return nil, apperrors.NewValidationError("customer_name required", nil)
	}

	// Idempotent retry: an active ticket from the same device is returned
	// instead of creating a second one.
	if settings.DeviceDeduplication && input.DeviceID != nil && *input.DeviceID != "" {
		existing, err := s.tickets.FindActiveByDevice(ctx, shopID, *input.DeviceID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.MapError(err)
		}
	}

	unlock := s.locker.Lock(shopID)
	defer unlock()

	waiting, err := s.tickets.CountWaiting(ctx, shopID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if waiting >= settings.MaxQueueSize {
		return nil, apperrors.NewConflict("queue is full", map[string]any{
			"max_queue_size": settings.MaxQueueSize,
		})
	}

	if !settings.AllowDuplicateNames {
		_, err := s.tickets.FindActiveByCustomerName(ctx, shopID, input.CustomerName)
		if err == nil {
			return nil, apperrors.NewConflict("customer already has an active ticket", map[string]any{
				"customer_name": input.CustomerName,
			})
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.MapError(err)
		}
	}

	if err := s.validateService(ctx, shopID, input.ServiceID); err != nil {
		return nil, err
	}
	if input.PreferredBarberID != nil {
		if err := s.validatePreferredBarber(ctx, shopID, *input.PreferredBarberID); err != nil {
			return nil, err
		}
	}

	ticket := &domain.Ticket{
		ExternalKey:       generateTicketKey(),
		ShopID:            shopID,
		ServiceID:         input.ServiceID,
		PreferredBarberID: input.PreferredBarberID,
		CustomerName:      input.CustomerName,
		CustomerPhone:     strings.TrimSpace(input.CustomerPhone),
		DeviceID:          input.DeviceID,
		Status:            domain.TicketStatusWaiting,
		Type:              domain.TicketTypeWalkIn,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if err := s.recalc.recalculateLocked(ctx, shopID); err != nil {
		s.logger.Error("recompute after walk-in creation failed", zap.String("shop_id", shopID), zap.Error(err))
	} else if fresh, err := s.tickets.GetByID(ctx, ticket.ID); err == nil {
		ticket = fresh
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		ShopID:   shopID,
		TicketID: ticket.ID,
		Actor:    events.Actor{Type: domain.SubjectTypeCustomer},
		Payload: events.TicketCreatedPayload{
			Type:              ticket.Type,
			ServiceID:         ticket.ServiceID,
			PreferredBarberID: ticket.PreferredBarberID,
			Position:          ticket.Position,
		},
	})
	return ticket, nil
}

// Get fetches one ticket.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// Transition applies a validated status change with its side effects. Any
// transition that changes queue membership schedules a deferred full
// recompute of the shop's queue.
func (s *TicketService) Transition(ctx context.Context, ticketID string, newStatus domain.TicketStatus, opts TransitionOptions) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	unlock := s.locker.Lock(ticket.ShopID)
	defer unlock()

	// Re-read under the lock. Another transition may have committed between
	// the first read and lock acquisition, and a stale status here would let
	// a terminal ticket be overwritten.
	ticket, err = s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if !isValidTransition(ticket.Status, newStatus) {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(newStatus))
	}

	oldStatus := ticket.Status
	now := s.now()

	switch newStatus {
	case domain.TicketStatusWaiting:
		if oldStatus == domain.TicketStatusInProgress {
			// Barber became unavailable mid-service; the ticket re-enters
			// its line and gets recomputed.
			ticket.StartedAt = nil
			ticket.BarberID = nil
		}
		if opts.CheckIn {
			ticket.CheckInTime = &now
		}
	case domain.TicketStatusInProgress:
		if err := s.applyStartService(ctx, ticket, opts.BarberID, now); err != nil {
			return nil, err
		}
	case domain.TicketStatusCompleted:
		ticket.CompletedAt = &now
		ticket.Position = 0
		ticket.EstimatedWait = nil
		s.recordServiceDuration(ctx, ticket, now)
	case domain.TicketStatusCancelled:
		ticket.CancelledAt = &now
		ticket.Position = 0
		ticket.EstimatedWait = nil
	}
	ticket.Status = newStatus

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		ShopID:   ticket.ShopID,
		TicketID: ticket.ID,
		Actor:    opts.Actor,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
			BarberID:  ticket.BarberID,
		},
	})

	if oldStatus == domain.TicketStatusWaiting || newStatus == domain.TicketStatusWaiting {
		s.recalc.Enqueue(ticket.ShopID)
	}
	return ticket, nil
}

// applyStartService validates the barber and marks the ticket in progress.
// The shop lock held by Transition makes the one-ticket-per-barber check
// safe against concurrent assignments.
func (s *TicketService) applyStartService(ctx context.Context, ticket *domain.Ticket, barberID *string, now time.Time) error {
	if barberID == nil || *barberID == "" {
		return apperrors.NewValidationError("barber_id required to start service", nil)
	}
	barber, err := s.barbers.GetByID(ctx, *barberID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("barber", map[string]any{"barber_id": *barberID})
		}
		return apperrors.MapError(err)
	}
	if barber.ShopID != ticket.ShopID {
		return apperrors.NewNotFound("barber", map[string]any{"barber_id": *barberID})
	}
	if !barber.IsActive {
		return apperrors.NewConflict("barber inactive", map[string]any{"barber_id": barber.ID})
	}

	if existing, err := s.tickets.FindInProgressByBarber(ctx, barber.ID); err == nil {
		return apperrors.NewConflict("barber already serving a ticket", map[string]any{
			"barber_id": barber.ID,
			"ticket_id": existing.ID,
		})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return apperrors.MapError(err)
	}

	ticket.BarberID = &barber.ID
	ticket.StartedAt = &now
	ticket.Position = 0
	ticket.EstimatedWait = nil
	return nil
}

// recordServiceDuration folds a plausible elapsed service time into the
// (barber, service, weekday) running average. Stat failures are logged and do
// not block the completion itself.
func (s *TicketService) recordServiceDuration(ctx context.Context, ticket *domain.Ticket, completedAt time.Time) {
	if ticket.StartedAt == nil || ticket.BarberID == nil {
		return
	}
	elapsed := completedAt.Sub(*ticket.StartedAt).Minutes()
	if elapsed <= 0 || elapsed >= maxPlausibleServiceMinutes {
		return
	}

	weekday := completedAt.Weekday()
	stat, err := s.stats.Get(ctx, *ticket.BarberID, ticket.ServiceID, weekday)
	switch {
	case err == nil:
		stat.Observe(elapsed)
		err = s.stats.Update(ctx, stat)
	case errors.Is(err, pgx.ErrNoRows):
		stat = &domain.WeekdayServiceStat{
			BarberID:       *ticket.BarberID,
			ServiceID:      ticket.ServiceID,
			Weekday:        weekday,
			AvgDuration:    elapsed,
			CompletedCount: 1,
		}
		err = s.stats.Insert(ctx, stat)
	}
	if err != nil {
		s.logger.Warn("weekday stat update failed",
			zap.String("barber_id", *ticket.BarberID),
			zap.String("service_id", ticket.ServiceID),
			zap.Error(err))
	}
}

func (s *TicketService) validateService(ctx context.Context, shopID, serviceID string) error {
	if serviceID == "" {
		return apperrors.NewValidationError("service_id required", nil)
	}
	svc, err := s.services.GetByID(ctx, serviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("service", map[string]any{"service_id": serviceID})
		}
		return apperrors.MapError(err)
	}
	if svc.ShopID != shopID {
		return apperrors.NewNotFound("service", map[string]any{"service_id": serviceID})
	}
	if !svc.IsActive {
		return apperrors.NewConflict("service inactive", map[string]any{"service_id": serviceID})
	}
	return nil
}

func (s *TicketService) validatePreferredBarber(ctx context.Context, shopID, barberID string) error {
	barber, err := s.barbers.GetByID(ctx, barberID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("barber", map[string]any{"barber_id": barberID})
		}
		return apperrors.MapError(err)
	}
	if barber.ShopID != shopID {
		return apperrors.NewNotFound("barber", map[string]any{"barber_id": barberID})
	}
	if !barber.IsActive {
		return apperrors.NewConflict("preferred barber inactive", map[string]any{"barber_id": barberID})
	}
	return nil
}

func generateTicketKey() string {
	return "TKT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
