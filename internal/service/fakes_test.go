package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/barber-queue/internal/domain"
	"github.com/spec-kit/barber-queue/internal/events"
	"github.com/spec-kit/barber-queue/internal/queue"
)

var testNow = time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC) // a Monday

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	seq     int
	clock   func() time.Time

	// afterGet, when set, runs once after the next GetByID returns its
	// clone. Tests use it to commit a concurrent write between a read and
	// the lock acquisition that follows it.
	afterGet func()
}

func newFakeTicketRepo(clock func() time.Time) *fakeTicketRepo {
	return &fakeTicketRepo{tickets: map[string]*domain.Ticket{}, clock: clock}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if ticket.ID == "" {
		ticket.ID = fmt.Sprintf("t%03d", r.seq)
	}
	if ticket.CreatedAt.IsZero() {
		// Spread creation times so ordering is deterministic.
		ticket.CreatedAt = r.clock().Add(time.Duration(r.seq) * time.Second)
	}
	ticket.UpdatedAt = r.clock()
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = r.clock()
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *fakeTicketRepo) UpdatePlacement(_ context.Context, ticketID string, position int, estimatedWait *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.Position = position
	ticket.EstimatedWait = estimatedWait
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	ticket, ok := r.tickets[id]
	if !ok {
		r.mu.Unlock()
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	hook := r.afterGet
	r.afterGet = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return &clone, nil
}

func (r *fakeTicketRepo) ListWaiting(_ context.Context, shopID string) ([]domain.Ticket, error) {
	return r.list(func(t *domain.Ticket) bool {
		return t.ShopID == shopID && t.Status == domain.TicketStatusWaiting
	}, byCreation), nil
}

func (r *fakeTicketRepo) ListInProgress(_ context.Context, shopID string) ([]domain.Ticket, error) {
	return r.list(func(t *domain.Ticket) bool {
		return t.ShopID == shopID && t.Status == domain.TicketStatusInProgress
	}, byCreation), nil
}

func (r *fakeTicketRepo) ListAppointments(_ context.Context, shopID string, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	allowed := map[domain.TicketStatus]bool{}
	for _, s := range statuses {
		allowed[s] = true
	}
	return r.list(func(t *domain.Ticket) bool {
		return t.ShopID == shopID && t.Type == domain.TicketTypeAppointment && allowed[t.Status]
	}, bySchedule), nil
}

func (r *fakeTicketRepo) FindInProgressByBarber(_ context.Context, barberID string) (*domain.Ticket, error) {
	matches := r.list(func(t *domain.Ticket) bool {
		return t.Status == domain.TicketStatusInProgress && t.BarberID != nil && *t.BarberID == barberID
	}, byCreation)
	if len(matches) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &matches[0], nil
}

func (r *fakeTicketRepo) FindActiveByCustomerName(_ context.Context, shopID, customerName string) (*domain.Ticket, error) {
	matches := r.list(func(t *domain.Ticket) bool {
		return t.ShopID == shopID && t.IsActive() &&
			strings.EqualFold(t.CustomerName, customerName)
	}, byCreation)
	if len(matches) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &matches[0], nil
}

func (r *fakeTicketRepo) FindActiveByDevice(_ context.Context, shopID, deviceID string) (*domain.Ticket, error) {
	matches := r.list(func(t *domain.Ticket) bool {
		return t.ShopID == shopID && t.IsActive() && t.DeviceID != nil && *t.DeviceID == deviceID
	}, byCreation)
	if len(matches) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &matches[0], nil
}

func (r *fakeTicketRepo) CountWaiting(ctx context.Context, shopID string) (int, error) {
	waiting, _ := r.ListWaiting(ctx, shopID)
	return len(waiting), nil
}

func (r *fakeTicketRepo) CountActiveAppointments(_ context.Context, shopID string) (int, error) {
	matches := r.list(func(t *domain.Ticket) bool {
		return t.ShopID == shopID && t.Type == domain.TicketTypeAppointment &&
			(t.Status == domain.TicketStatusPending || t.Status == domain.TicketStatusWaiting)
	}, byCreation)
	return len(matches), nil
}

func (r *fakeTicketRepo) list(match func(*domain.Ticket) bool, order func(a, b *domain.Ticket) bool) []domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, t := range r.tickets {
		if match(t) {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return order(&result[i], &result[j]) })
	return result
}

func byCreation(a, b *domain.Ticket) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func bySchedule(a, b *domain.Ticket) bool {
	at, bt := a.ScheduledTime, b.ScheduledTime
	if at == nil || bt == nil || at.Equal(*bt) {
		return a.ID < b.ID
	}
	return at.Before(*bt)
}

type fakeBarberRepo struct {
	mu      sync.Mutex
	barbers map[string]*domain.Barber
}

func newFakeBarberRepo() *fakeBarberRepo {
	return &fakeBarberRepo{barbers: map[string]*domain.Barber{}}
}

func (r *fakeBarberRepo) add(b domain.Barber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := b
	r.barbers[b.ID] = &clone
}

func (r *fakeBarberRepo) GetByID(_ context.Context, id string) (*domain.Barber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.barbers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *b
	return &clone, nil
}

func (r *fakeBarberRepo) GetByEmail(_ context.Context, email string) (*domain.Barber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.barbers {
		if strings.EqualFold(b.Email, email) {
			clone := *b
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeBarberRepo) ListByShop(_ context.Context, shopID string) ([]domain.Barber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Barber
	for _, b := range r.barbers {
		if b.ShopID == shopID {
			result = append(result, *b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *fakeBarberRepo) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.barbers[id]
	if !ok {
		return pgx.ErrNoRows
	}
	b.PasswordHash = passwordHash
	return nil
}

func (r *fakeBarberRepo) UpdateFlags(_ context.Context, id string, isActive, isPresent bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.barbers[id]
	if !ok {
		return pgx.ErrNoRows
	}
	b.IsActive = isActive
	b.IsPresent = isPresent
	return nil
}

type fakeServiceRepo struct {
	mu       sync.Mutex
	services map[string]*domain.Service
}

func newFakeServiceRepo() *fakeServiceRepo {
	return &fakeServiceRepo{services: map[string]*domain.Service{}}
}

func (r *fakeServiceRepo) add(s domain.Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := s
	r.services[s.ID] = &clone
}

func (r *fakeServiceRepo) GetByID(_ context.Context, id string) (*domain.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.services[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *s
	return &clone, nil
}

func (r *fakeServiceRepo) ListByShop(_ context.Context, shopID string) ([]domain.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Service
	for _, s := range r.services {
		if s.ShopID == shopID {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

type fakeShopRepo struct {
	mu    sync.Mutex
	shops map[string]*domain.Shop
}

func newFakeShopRepo() *fakeShopRepo {
	return &fakeShopRepo{shops: map[string]*domain.Shop{}}
}

func (r *fakeShopRepo) add(s domain.Shop) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := s
	r.shops[s.ID] = &clone
}

func (r *fakeShopRepo) GetByID(_ context.Context, id string) (*domain.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shops[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *s
	return &clone, nil
}

func (r *fakeShopRepo) GetBySlug(_ context.Context, slug string) (*domain.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shops {
		if s.Slug == slug {
			clone := *s
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeShopRepo) List(_ context.Context) ([]domain.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Shop
	for _, s := range r.shops {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Slug < result[j].Slug })
	return result, nil
}

type fakeStatRepo struct {
	mu    sync.Mutex
	stats map[string]*domain.WeekdayServiceStat
	seq   int
}

func newFakeStatRepo() *fakeStatRepo {
	return &fakeStatRepo{stats: map[string]*domain.WeekdayServiceStat{}}
}

func statKeyOf(barberID, serviceID string, weekday time.Weekday) string {
	return fmt.Sprintf("%s|%s|%d", barberID, serviceID, int(weekday))
}

func (r *fakeStatRepo) add(s domain.WeekdayServiceStat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if s.ID == "" {
		s.ID = fmt.Sprintf("st%d", r.seq)
	}
	clone := s
	r.stats[statKeyOf(s.BarberID, s.ServiceID, s.Weekday)] = &clone
}

func (r *fakeStatRepo) Get(_ context.Context, barberID, serviceID string, weekday time.Weekday) (*domain.WeekdayServiceStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[statKeyOf(barberID, serviceID, weekday)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *s
	return &clone, nil
}

func (r *fakeStatRepo) ListByBarbers(_ context.Context, barberIDs []string, weekday time.Weekday) ([]domain.WeekdayServiceStat, error) {
	ids := map[string]bool{}
	for _, id := range barberIDs {
		ids[id] = true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.WeekdayServiceStat
	for _, s := range r.stats {
		if ids[s.BarberID] && s.Weekday == weekday {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (r *fakeStatRepo) Insert(_ context.Context, stat *domain.WeekdayServiceStat) error {
	r.add(*stat)
	return nil
}

func (r *fakeStatRepo) Update(_ context.Context, stat *domain.WeekdayServiceStat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := statKeyOf(stat.BarberID, stat.ServiceID, stat.Weekday)
	if _, ok := r.stats[key]; !ok {
		return pgx.ErrNoRows
	}
	clone := *stat
	r.stats[key] = &clone
	return nil
}

type recordingCache struct {
	mu     sync.Mutex
	boards map[string][]events.QueueEntry
}

func newRecordingCache() *recordingCache {
	return &recordingCache{boards: map[string][]events.QueueEntry{}}
}

func (c *recordingCache) SetBoard(_ context.Context, shopID string, entries []events.QueueEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boards[shopID] = entries
	return nil
}

type recordingDispatcher struct {
	mu       sync.Mutex
	events   []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) byType(t events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []events.Event
	for _, e := range d.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// testEnv wires all services over the in-memory repositories with a
// controllable clock.
type testEnv struct {
	tickets    *fakeTicketRepo
	barbers    *fakeBarberRepo
	services   *fakeServiceRepo
	shops      *fakeShopRepo
	stats      *fakeStatRepo
	cache      *recordingCache
	dispatcher *recordingDispatcher

	recalc       *RecalcService
	lifecycle    *TicketService
	appointments *AppointmentService

	now time.Time
}

func newTestEnv() *testEnv {
	env := &testEnv{
		barbers:    newFakeBarberRepo(),
		services:   newFakeServiceRepo(),
		shops:      newFakeShopRepo(),
		stats:      newFakeStatRepo(),
		cache:      newRecordingCache(),
		dispatcher: &recordingDispatcher{},
		now:        testNow,
	}
	clock := func() time.Time { return env.now }
	env.tickets = newFakeTicketRepo(clock)

	engine := queue.NewEngine()
	locker := NewShopLocker()
	env.recalc = NewRecalcService(RecalcDependencies{
		TicketRepo:  env.tickets,
		BarberRepo:  env.barbers,
		ServiceRepo: env.services,
		ShopRepo:    env.shops,
		StatRepo:    env.stats,
		Engine:      engine,
		Dispatcher:  env.dispatcher,
		Cache:       env.cache,
		Locker:      locker,
		Now:         clock,
	})
	env.lifecycle = NewTicketService(TicketDependencies{
		TicketRepo:  env.tickets,
		BarberRepo:  env.barbers,
		ServiceRepo: env.services,
		ShopRepo:    env.shops,
		StatRepo:    env.stats,
		Recalc:      env.recalc,
		Dispatcher:  env.dispatcher,
		Locker:      locker,
		Now:         clock,
	})
	env.appointments = NewAppointmentService(AppointmentDependencies{
		TicketRepo:  env.tickets,
		BarberRepo:  env.barbers,
		ServiceRepo: env.services,
		ShopRepo:    env.shops,
		Lifecycle:   env.lifecycle,
		Recalc:      env.recalc,
		Engine:      engine,
		Dispatcher:  env.dispatcher,
		Locker:      locker,
		Now:         clock,
	})
	return env
}

// seedShop installs a shop with one active-present barber and one 20-minute
// service, the baseline most tests start from.
func (env *testEnv) seedShop() {
	env.shops.add(domain.Shop{
		ID:   "shop1",
		Slug: "main-street",
		Name: "Main Street Barbers",
		Settings: domain.ShopSettings{
			MaxQueueSize:            10,
			DefaultServiceDuration:  30,
			AllowAppointments:       true,
			MaxAppointmentsFraction: 0.5,
			DeviceDeduplication:     true,
			AllowDuplicateNames:     false,
		},
	})
	env.barbers.add(domain.Barber{
		ID:        "barber1",
		ShopID:    "shop1",
		Name:      "Sam",
		Email:     "sam@example.com",
		IsActive:  true,
		IsPresent: true,
	})
	env.services.add(domain.Service{
		ID:              "svc-cut",
		ShopID:          "shop1",
		Name:            "Haircut",
		DurationMinutes: 20,
		IsActive:        true,
	})
}

func (env *testEnv) updateShopSettings(mutate func(*domain.ShopSettings)) {
	shop, _ := env.shops.GetByID(context.Background(), "shop1")
	mutate(&shop.Settings)
	env.shops.add(*shop)
}

func strPtr(s string) *string { return &s }
