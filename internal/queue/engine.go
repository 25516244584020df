package queue

import (
	"math"
	"sort"
	"time"

	"github.com/spec-kit/barber-queue/internal/domain"
)

// DurationSource resolves service durations for wait estimation. BarberAverage
// reports ok only when the (barber, service, weekday) running average has
// enough completions behind it to be statistically trusted.
type DurationSource interface {
	ServiceDuration(serviceID string) float64
	BarberAverage(barberID, serviceID string, weekday time.Weekday) (float64, bool)
}

// Snapshot is an immutable point-in-time view of one shop's queue. The engine
// never mutates it; it only returns values for the caller to persist.
type Snapshot struct {
	Now        time.Time
	Waiting    []domain.Ticket // status WAITING, any order
	Barbers    []domain.Barber // the shop's barbers, active or not
	InProgress []domain.Ticket // status IN_PROGRESS with a barber assigned
	Durations  DurationSource
}

// Engine computes queue positions and wait-time estimates. It holds no state
// of its own so a single instance is safe to share across goroutines.
type Engine struct{}

// NewEngine constructs the engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Placement is one ticket's computed spot on the queue board.
type Placement struct {
	TicketID      string
	Position      int
	EstimatedWait int
}

// Position returns the subject's 1-based position within its line: the count
// of same-line tickets created strictly earlier, plus one. Equal creation
// times fall back to ascending id, so positions stay deterministic. Tickets
// that are not WAITING have position 0.
func (e *Engine) Position(snap *Snapshot, subject *domain.Ticket) int {
	if subject.Status != domain.TicketStatusWaiting {
		return 0
	}
	pos := 1
	subjectGeneral := e.inGeneralLine(snap, subject)
	for i := range snap.Waiting {
		t := &snap.Waiting[i]
		if t.ID == subject.ID || !aheadOf(t, subject) {
			continue
		}
		if e.sameLine(snap, subjectGeneral, subject, t) {
			pos++
		}
	}
	return pos
}

// EstimateWait returns the subject's estimated wait in whole minutes, or nil
// when the subject is not actively waiting.
func (e *Engine) EstimateWait(snap *Snapshot, subject *domain.Ticket) *int {
	if subject.Status != domain.TicketStatusWaiting {
		return nil
	}
	var wait int
	if barber := e.activePreferredBarber(snap, subject); barber != nil {
		wait = e.PreferredLineWait(snap, subject, barber)
	} else {
		wait = e.GeneralLineWait(snap, subject)
	}
	return &wait
}

// Board computes placements for every waiting ticket in the snapshot.
// Positions within each line form a contiguous 1..N sequence.
func (e *Engine) Board(snap *Snapshot) []Placement {
	placements := make([]Placement, 0, len(snap.Waiting))
	for i := range snap.Waiting {
		t := &snap.Waiting[i]
		wait := e.EstimateWait(snap, t)
		if wait == nil {
			continue
		}
		placements = append(placements, Placement{
			TicketID:      t.ID,
			Position:      e.Position(snap, t),
			EstimatedWait: *wait,
		})
	}
	return placements
}

// GeneralLineWait runs the multi-server wave simulation: every active and
// present barber starts with their current remaining busy time, each ticket
// ahead of the subject is assigned to the least-busy server (lowest index on
// ties) and extends that server's busy time by its resolved duration. The
// subject's wait is the minimum busy time left after all assignments. A nil
// subject simulates joining at the back of the line. With zero active-present
// barbers a single virtual server at time 0 keeps the answer defined.
func (e *Engine) GeneralLineWait(snap *Snapshot, subject *domain.Ticket) int {
	servers := activePresentBarbers(snap)
	avail := make([]float64, 0, len(servers))
	for i := range servers {
		avail = append(avail, e.remainingBusy(snap, servers[i].ID))
	}
	if len(avail) == 0 {
		avail = []float64{0}
	}

	for _, t := range e.generalLineAhead(snap, subject) {
		idx := minIndex(avail)
		var barberID *string
		if idx < len(servers) {
			barberID = &servers[idx].ID
		}
		avail[idx] += e.resolveDuration(snap, barberID, t.ServiceID)
	}
	return int(math.Ceil(minValue(avail)))
}

// PreferredLineWait runs a single-server simulation for a ticket bound to one
// barber: that barber clears the general line first (they cycle through
// unassigned customers), then the preferred-line tickets ahead of the subject,
// all on top of their own remaining busy time. A nil subject simulates joining
// at the back of the preferred line.
func (e *Engine) PreferredLineWait(snap *Snapshot, subject *domain.Ticket, barber *domain.Barber) int {
	avail := e.remainingBusy(snap, barber.ID)
	for _, t := range e.generalLineAhead(snap, subject) {
		avail += e.resolveDuration(snap, &barber.ID, t.ServiceID)
	}
	for i := range snap.Waiting {
		t := &snap.Waiting[i]
		if subject != nil && (t.ID == subject.ID || !aheadOf(t, subject)) {
			continue
		}
		if e.activePreferredBarber(snap, t) != nil && *t.PreferredBarberID == barber.ID {
			avail += e.resolveDuration(snap, &barber.ID, t.ServiceID)
		}
	}
	return int(math.Ceil(avail))
}

// resolveDuration picks the barber's significant weekday average when one
// exists, otherwise the service's nominal duration.
func (e *Engine) resolveDuration(snap *Snapshot, barberID *string, serviceID string) float64 {
	if barberID != nil {
		if avg, ok := snap.Durations.BarberAverage(*barberID, serviceID, snap.Now.Weekday()); ok {
			return avg
		}
	}
	return snap.Durations.ServiceDuration(serviceID)
}

// remainingBusy returns how many minutes of the barber's current service are
// still outstanding, or 0 when idle.
func (e *Engine) remainingBusy(snap *Snapshot, barberID string) float64 {
	for i := range snap.InProgress {
		t := &snap.InProgress[i]
		if t.BarberID == nil || *t.BarberID != barberID {
			continue
		}
		duration := e.resolveDuration(snap, &barberID, t.ServiceID)
		elapsed := 0.0
		if t.StartedAt != nil {
			elapsed = snap.Now.Sub(*t.StartedAt).Minutes()
		}
		remaining := duration - elapsed
		if remaining < 0 {
			return 0
		}
		return remaining
	}
	return 0
}

// generalLineAhead returns general-line tickets ahead of the subject ordered
// by creation time (id tie-break). A nil subject returns the whole line.
func (e *Engine) generalLineAhead(snap *Snapshot, subject *domain.Ticket) []domain.Ticket {
	var ahead []domain.Ticket
	for i := range snap.Waiting {
		t := snap.Waiting[i]
		if subject != nil && (t.ID == subject.ID || !aheadOf(&t, subject)) {
			continue
		}
		if e.inGeneralLine(snap, &t) {
			ahead = append(ahead, t)
		}
	}
	sort.Slice(ahead, func(i, j int) bool { return aheadOf(&ahead[i], &ahead[j]) })
	return ahead
}

// inGeneralLine reports whether t waits in the general line: no preferred
// barber, or a preferred barber that is currently inactive.
func (e *Engine) inGeneralLine(snap *Snapshot, t *domain.Ticket) bool {
	return e.activePreferredBarber(snap, t) == nil
}

// activePreferredBarber returns t's preferred barber when set and active.
func (e *Engine) activePreferredBarber(snap *Snapshot, t *domain.Ticket) *domain.Barber {
	if t.PreferredBarberID == nil {
		return nil
	}
	for i := range snap.Barbers {
		b := &snap.Barbers[i]
		if b.ID == *t.PreferredBarberID && b.IsActive {
			return b
		}
	}
	return nil
}

func (e *Engine) sameLine(snap *Snapshot, subjectGeneral bool, subject, other *domain.Ticket) bool {
	otherBarber := e.activePreferredBarber(snap, other)
	if subjectGeneral {
		return otherBarber == nil
	}
	return otherBarber != nil && *other.PreferredBarberID == *subject.PreferredBarberID
}

func activePresentBarbers(snap *Snapshot) []domain.Barber {
	var servers []domain.Barber
	for i := range snap.Barbers {
		if snap.Barbers[i].AcceptsWork() {
			servers = append(servers, snap.Barbers[i])
		}
	}
	return servers
}

// aheadOf reports whether a is served before b: strictly earlier creation
// time, with ascending id as the documented tie-break for equal timestamps.
func aheadOf(a, b *domain.Ticket) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func minIndex(values []float64) int {
	idx := 0
	for i, v := range values {
		if v < values[idx] {
			idx = i
		}
	}
	return idx
}

func minValue(values []float64) float64 {
	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}
