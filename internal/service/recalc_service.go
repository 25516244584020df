package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/barber-queue/internal/domain"
	"github.com/spec-kit/barber-queue/internal/events"
	"github.com/spec-kit/barber-queue/internal/queue"
	"github.com/spec-kit/barber-queue/internal/repository"
	apperrors "github.com/spec-kit/barber-queue/pkg/apperrors"
)

// BoardCache stores the latest computed queue board per shop for cheap
// polling reads. Failures are logged, never propagated: the database row
// values remain the source of truth.
type BoardCache interface {
	SetBoard(ctx context.Context, shopID string, entries []events.QueueEntry) error
}

// RecalcService is the single entry point for refreshing a shop's queue:
// it recomputes and persists positions and wait estimates for every waiting
// ticket. Recompute is always a full pass over the shop's ticket set, which
// is simple to reason about and adequate at the target scale of tens of
// tickets; incremental per-shop indices are a known future optimization.
type RecalcService struct {
	tickets  repository.TicketRepository
	barbers  repository.BarberRepository
	services repository.ServiceRepository
	shops    repository.ShopRepository
	stats    repository.StatRepository

	engine     *queue.Engine
	dispatcher events.Dispatcher
	cache      BoardCache
	locker     *ShopLocker
	logger     *zap.Logger
	jobs       chan string
	now        func() time.Time
}

// RecalcDependencies bundles collaborators for the recalc service.
type RecalcDependencies struct {
	TicketRepo  repository.TicketRepository
	BarberRepo  repository.BarberRepository
	ServiceRepo repository.ServiceRepository
	ShopRepo    repository.ShopRepository
	StatRepo    repository.StatRepository
	Engine      *queue.Engine
	Dispatcher  events.Dispatcher
	Cache       BoardCache
	Locker      *ShopLocker
	Logger      *zap.Logger
	Now         func() time.Time
}

const recalcQueueDepth = 256

// NewRecalcService constructs the service.
func NewRecalcService(deps RecalcDependencies) *RecalcService {
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
	return &RecalcService{
		tickets:    deps.TicketRepo,
		barbers:    deps.BarberRepo,
		services:   deps.ServiceRepo,
		shops:      deps.ShopRepo,
		stats:      deps.StatRepo,
		engine:     deps.Engine,
		dispatcher: deps.Dispatcher,
		cache:      deps.Cache,
		locker:     locker,
		logger:     logger,
		jobs:       make(chan string, recalcQueueDepth),
		now:        now,
	}
}

// Enqueue schedules a deferred full recompute for the shop. The triggering
// mutation has already been committed; callers must not assume position and
// wait values are authoritative until the job has been drained.
func (s *RecalcService) Enqueue(shopID string) {
	select {
	case s.jobs <- shopID:
	default:
		s.logger.Warn("recalc queue full, dropping job", zap.String("shop_id", shopID))
	}
}

// Jobs exposes the deferred recompute queue for the worker loop.
func (s *RecalcService) Jobs() <-chan string {
	return s.jobs
}

// RecalculateShopQueue recomputes and persists sequential positions and wait
// estimates for every waiting ticket of the shop. Safe to call repeatedly:
// tickets whose placement did not change are left untouched.
func (s *RecalcService) RecalculateShopQueue(ctx context.Context, shopID string) error {
	unlock := s.locker.Lock(shopID)
	defer unlock()
	return s.recalculateLocked(ctx, shopID)
}

// recalculateLocked runs the recompute pass assuming the shop lock is held.
func (s *RecalcService) recalculateLocked(ctx context.Context, shopID string) error {
	snap, err := s.Snapshot(ctx, shopID)
	if err != nil {
		return err
	}

	placements := s.engine.Board(snap)
	byID := make(map[string]*domain.Ticket, len(snap.Waiting))
	for i := range snap.Waiting {
		byID[snap.Waiting[i].ID] = &snap.Waiting[i]
	}

	changed := make([]events.QueueEntry, 0, len(placements))
	entries := make([]events.QueueEntry, 0, len(placements))
	for _, p := range placements {
		entries = append(entries, events.QueueEntry{
			TicketID:      p.TicketID,
			Position:      p.Position,
			EstimatedWait: p.EstimatedWait,
		})
		current := byID[p.TicketID]
		if current != nil && current.Position == p.Position &&
			current.EstimatedWait != nil && *current.EstimatedWait == p.EstimatedWait {
			continue
		}
		wait := p.EstimatedWait
		if err := s.tickets.UpdatePlacement(ctx, p.TicketID, p.Position, &wait); err != nil {
			return err
		}
		changed = append(changed, events.QueueEntry{
			TicketID:      p.TicketID,
			Position:      p.Position,
			EstimatedWait: p.EstimatedWait,
		})
	}

	if s.cache != nil {
		if err := s.cache.SetBoard(ctx, shopID, entries); err != nil {
			s.logger.Warn("queue board cache update failed", zap.String("shop_id", shopID), zap.Error(err))
		}
	}

	if len(changed) > 0 && s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventQueueRecalculated,
			ShopID:    shopID,
			Actor:     events.Actor{Type: domain.SubjectTypeSystem},
			Timestamp: s.now(),
			Payload:   events.QueueRecalculatedPayload{Entries: changed},
		})
	}
	return nil
}

// Snapshot assembles the immutable queue view the engine computes over.
// Extra tickets (e.g. pending appointments simulated as queue load) only
// contribute their service durations to the lookup table; they are not added
// to the waiting set.
func (s *RecalcService) Snapshot(ctx context.Context, shopID string, extra ...domain.Ticket) (*queue.Snapshot, error) {
	shop, err := s.shops.GetByID(ctx, shopID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("shop", map[string]any{"shop_id": shopID})
		}
		return nil, apperrors.MapError(err)
	}

	waiting, err := s.tickets.ListWaiting(ctx, shopID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	inProgress, err := s.tickets.ListInProgress(ctx, shopID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	barbers, err := s.barbers.ListByShop(ctx, shopID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	now := s.now()
	durations, err := s.buildDurations(ctx, shop, barbers, now.Weekday(), waiting, inProgress, extra)
	if err != nil {
		return nil, err
	}

	return &queue.Snapshot{
		Now:        now,
		Waiting:    waiting,
		Barbers:    barbers,
		InProgress: inProgress,
		Durations:  durations,
	}, nil
}

type statKey struct {
	barberID  string
	serviceID string
}

// durationTable is a materialized DurationSource: service durations and
// today's significant barber averages, resolved once per snapshot.
type durationTable struct {
	fallback float64
	services map[string]float64
	averages map[statKey]float64
}

func (d *durationTable) ServiceDuration(serviceID string) float64 {
	if dur, ok := d.services[serviceID]; ok {
		return dur
	}
	return d.fallback
}

func (d *durationTable) BarberAverage(barberID, serviceID string, _ time.Weekday) (float64, bool) {
	avg, ok := d.averages[statKey{barberID: barberID, serviceID: serviceID}]
	return avg, ok
}

func (s *RecalcService) buildDurations(ctx context.Context, shop *domain.Shop, barbers []domain.Barber, weekday time.Weekday, ticketSets ...[]domain.Ticket) (*durationTable, error) {
	table := &durationTable{
		fallback: float64(shop.Settings.DefaultServiceDuration),
		services: make(map[string]float64),
		averages: make(map[statKey]float64),
	}

	for _, set := range ticketSets {
		for i := range set {
			serviceID := set[i].ServiceID
			if _, ok := table.services[serviceID]; ok {
				continue
			}
			svc, err := s.services.GetByID(ctx, serviceID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					continue // fallback covers unknown services
				}
				return nil, apperrors.MapError(err)
			}
			table.services[serviceID] = float64(svc.DurationMinutes)
		}
	}

	if len(barbers) > 0 {
		ids := make([]string, 0, len(barbers))
		for i := range barbers {
			ids = append(ids, barbers[i].ID)
		}
		stats, err := s.stats.ListByBarbers(ctx, ids, weekday)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		for i := range stats {
			if stats[i].Significant() {
				table.averages[statKey{barberID: stats[i].BarberID, serviceID: stats[i].ServiceID}] = stats[i].AvgDuration
			}
		}
	}
	return table, nil
}
