package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/spec-kit/barber-queue/internal/domain"
	"github.com/spec-kit/barber-queue/internal/events"
	apperrors "github.com/spec-kit/barber-queue/pkg/apperrors"
)

func TestCreateAppointmentPending(t *testing.T) {
	env := newTestEnv()
	env.seedShop()
	ctx := context.Background()

	slot := testNow.Add(2 * time.Hour)
	appt, err := env.appointments.CreateAppointment(ctx, "shop1", AppointmentInput{
		ServiceID:     "svc-cut",
		CustomerName:  "Alice",
		ScheduledTime: slot,
	})
	if err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}
	if appt.Status != domain.TicketStatusPending {
		t.Fatalf("status = %s, want PENDING", appt.Status)
	}
	if appt.Type != domain.TicketTypeAppointment {
		t.Fatalf("type = %s, want APPOINTMENT", appt.Type)
	}
	if appt.ScheduledTime == nil || !appt.ScheduledTime.Equal(slot) {
		t.Fatalf("scheduled time = %v, want %v", appt.ScheduledTime, slot)
	}
	if appt.Position != 0 || appt.EstimatedWait != nil {
		t.Fatalf("pending appointment carries placement (%d, %v)", appt.Position, appt.EstimatedWait)
	}
}

func TestCreateAppointmentValidation(t *testing.T) {
	env := newTestEnv()
	env.seedShop()
	ctx := context.Background()

	_, err := env.appointments.CreateAppointment(ctx, "shop1", AppointmentInput{
		ServiceID:     "svc-cut",
		CustomerName:  "Alice",
		ScheduledTime: testNow.Add(-time.Hour),
	})
	if !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("past slot: err = %v, want VALIDATION_FAILED", err)
	}

	env.updateShopSettings(func(s *domain.ShopSettings) { s.AllowAppointments = false })
	_, err = env.appointments.CreateAppointment(ctx, "shop1", AppointmentInput{
		ServiceID:     "svc-cut",
		CustomerName:  "Alice",
		ScheduledTime: testNow.Add(time.Hour),
	})
	if !apperrors.IsCode(err, "CONFLICT") {
		t.Fatalf("appointments disabled: err = %v, want CONFLICT", err)
	}
}

func TestAppointmentCapacityCap(t *testing.T) {
	env := newTestEnv()
	env.seedShop()
	ctx := context.Background()

	// MaxQueueSize 10 at fraction 0.5 caps active appointments at 5.
	for i := 0; i < 5; i++ {
		_, err := env.appointments.CreateAppointment(ctx, "shop1", AppointmentInput{
			ServiceID:     "svc-cut",
			CustomerName:  fmt.Sprintf("Customer %d", i),
			ScheduledTime: testNow.Add(time.Duration(i+1) * time.Hour),
		})
		if err != nil {
			t.Fatalf("appointment %d: %v", i, err)
		}
	}

	_, err := env.appointments.CreateAppointment(ctx, "shop1", AppointmentInput{
		ServiceID:     "svc-cut",
		CustomerName:  "One Too Many",
		ScheduledTime: testNow.Add(6 * time.Hour),
	})
	if !apperrors.IsCode(err, "CONFLICT") {
		t.Fatalf("over capacity: err = %v, want CONFLICT", err)
	}
}

func TestCheckInPromotesImmediately(t *testing.T) {
	env := newTestEnv()
	env.seedShop()
	ctx := context.Background()

	appt, err := env.appointments.CreateAppointment(ctx, "shop1", AppointmentInput{
		ServiceID:     "svc-cut",
		CustomerName:  "Alice",
		ScheduledTime: testNow.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}

	checked, err := env.appointments.CheckIn(ctx, appt.ID)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if checked.Status != domain.TicketStatusWaiting {
		t.Fatalf("status = %s, want WAITING", checked.Status)
	}
	if checked.CheckInTime == nil {
		t.Fatal("CheckInTime not stamped")
	}
	if checked.Position != 1 {
		t.Fatalf("position = %d, want 1", checked.Position)
	}

	// Only pending appointments can check in.
	if _, err := env.appointments.CheckIn(ctx, appt.ID); !apperrors.IsCode(err, "INVALID_TRANSITION") {
		t.Fatalf("double check-in: err = %v, want INVALID_TRANSITION", err)
	}
}

func TestCheckInRejectsWalkIn(t *testing.T) {
	env := newTestEnv()
	env.seedShop()
	ctx := context.Background()

	walkIn, _ := env.lifecycle.CreateWalkIn(ctx, "shop1", WalkInInput{ServiceID: "svc-cut", CustomerName: "Alice"})
	if _, err := env.appointments.CheckIn(ctx, walkIn.ID); !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
}

func TestReschedulePendingOnly(t *testing.T) {
	env := newTestEnv()
	env.seedShop()
	ctx := context.Background()

	appt, _ := env.appointments.CreateAppointment(ctx, "shop1", AppointmentInput{
		ServiceID:     "svc-cut",
		CustomerName:  "Alice",
		ScheduledTime: testNow.Add(time.Hour),
	})

	newSlot := testNow.Add(3 * time.Hour)
	moved, err := env.appointments.Reschedule(ctx, appt.ID, newSlot)
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if moved.ScheduledTime == nil || !moved.ScheduledTime.Equal(newSlot) {
		t.Fatalf("scheduled time = %v, want %v", moved.ScheduledTime, newSlot)
	}

	if _, err := env.appointments.Reschedule(ctx, appt.ID, testNow.Add(-time.Hour)); !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("past slot: err = %v, want VALIDATION_FAILED", err)
	}

	if _, err := env.appointments.CheckIn(ctx, appt.ID); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if _, err := env.appointments.Reschedule(ctx, appt.ID, testNow.Add(4*time.Hour)); !apperrors.IsCode(err, "CONFLICT") {
		t.Fatalf("reschedule after check-in: err = %v, want CONFLICT", err)
	}
}

func TestTickPromotesWithinWindow(t *testing.T) {
	env := newTestEnv()
	env.seedShop()
	ctx := context.Background()

	appt, _ := env.appointments.CreateAppointment(ctx, "shop1", AppointmentInput{
		ServiceID:     "svc-cut",
		CustomerName:  "Alice",
		ScheduledTime: testNow.Add(25 * time.Minute), // inside the 30 minute window
	})
	far, _ := env.appointments.CreateAppointment(ctx, "shop1", AppointmentInput{
		ServiceID:     "svc-cut",
		CustomerName:  "Bob",
		ScheduledTime: testNow.Add(3 * time.Hour),
	})

	promoted, err := env.appointments.Tick(ctx, "shop1")
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if promoted != 1 {
		t.Fatalf("promoted = %d, want 1", promoted)
	}

	fresh, _ := env.tickets.GetByID(ctx, appt.ID)
	if fresh.Status != domain.TicketStatusWaiting {
		t.Fatalf("near appointment status = %s, want WAITING", fresh.Status)
	}
	if fresh.Position != 1 {
		t.Fatalf("position = %d, want 1", fresh.Position)
	}

	untouched, _ := env.tickets.GetByID(ctx, far.ID)
	if untouched.Status != domain.TicketStatusPending {
		t.Fatalf("far appointment status = %s, want PENDING", untouched.Status)
	}

	if got := env.dispatcher.byType(events.EventAppointmentPromoted); len(got) != 1 {
		t.Fatalf("published %d promoted events, want 1", len(got))
	}
}

func TestTickPromotesWhenQueueCoversTheGap(t *testing.T) {
	env := newTestEnv()
	env.seedShop()
	ctx := context.Background()

	// Two 20-minute walk-ins put the back of the line 40 minutes out.
	if _, err := env.lifecycle.CreateWalkIn(ctx, "shop1", WalkInInput{ServiceID: "svc-cut", CustomerName: "W1"}); err != nil {
		t.Fatalf("walk-in: %v", err)
	}
	if _, err := env.lifecycle.CreateWalkIn(ctx, "shop1", WalkInInput{ServiceID: "svc-cut", CustomerName: "W2"}); err != nil {
		t.Fatalf("walk-in: %v", err)
	}

	// 35 minutes is outside the fixed window but within the 40 minute wait.
	appt, _ := env.appointments.CreateAppointment(ctx, "shop1", AppointmentInput{
		ServiceID:     "svc-cut",
		CustomerName:  "Alice",
		ScheduledTime: testNow.Add(35 * time.Minute),
	})

	promoted, err := env.appointments.Tick(ctx, "shop1")
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if promoted != 1 {
		t.Fatalf("promoted = %d, want 1", promoted)
	}
	fresh, _ := env.tickets.GetByID(ctx, appt.ID)
	if fresh.Status != domain.TicketStatusWaiting {
		t.Fatalf("status = %s, want WAITING", fresh.Status)
	}
	if fresh.Position != 3 {
		t.Fatalf("position = %d, want 3", fresh.Position)
	}
}

func TestTickPromotesOverdueAppointment(t *testing.T) {
	env := newTestEnv()
	env.seedShop()
	ctx := context.Background()

	// A no-show that finally arrived: slot already passed.
	past := testNow.Add(-10 * time.Minute)
	overdue := &domain.Ticket{
		ID:            "appt-late",
		ExternalKey:   "TKT-LATE",
		ShopID:        "shop1",
		ServiceID:     "svc-cut",
		CustomerName:  "Late Larry",
		Status:        domain.TicketStatusPending,
		Type:          domain.TicketTypeAppointment,
		ScheduledTime: &past,
	}
	if err := env.tickets.Create(ctx, overdue); err != nil {
		t.Fatalf("seed: %v", err)
	}

	promoted, err := env.appointments.Tick(ctx, "shop1")
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if promoted != 1 {
		t.Fatalf("promoted = %d, want 1", promoted)
	}
	fresh, _ := env.tickets.GetByID(ctx, "appt-late")
	if fresh.Status != domain.TicketStatusWaiting {
		t.Fatalf("status = %s, want WAITING", fresh.Status)
	}
}

func TestTickDemotesEarlyCheckIn(t *testing.T) {
	env := newTestEnv()
	env.seedShop()
	ctx := context.Background()

	// Checked in way ahead of a distant slot: the queue would serve them
	// immediately, 120 minutes before their booking.
	slot := testNow.Add(2 * time.Hour)
	wait := 0
	early := &domain.Ticket{
		ID:            "appt-early",
		ExternalKey:   "TKT-EARLY",
		ShopID:        "shop1",
		ServiceID:     "svc-cut",
		CustomerName:  "Eager Edna",
		Status:        domain.TicketStatusWaiting,
		Type:          domain.TicketTypeAppointment,
		Position:      1,
		EstimatedWait: &wait,
		ScheduledTime: &slot,
		CheckInTime:   &testNow,
	}
	if err := env.tickets.Create(ctx, early); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := env.appointments.Tick(ctx, "shop1"); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	fresh, _ := env.tickets.GetByID(ctx, "appt-early")
	if fresh.Status != domain.TicketStatusPending {
		t.Fatalf("status = %s, want PENDING", fresh.Status)
	}
	if fresh.CheckInTime != nil || fresh.Position != 0 || fresh.EstimatedWait != nil {
		t.Fatalf("demotion side effects missing: checkin=%v pos=%d wait=%v",
			fresh.CheckInTime, fresh.Position, fresh.EstimatedWait)
	}
	if got := env.dispatcher.byType(events.EventAppointmentDemoted); len(got) != 1 {
		t.Fatalf("published %d demoted events, want 1", len(got))
	}
}

func TestTickKeepsImminentWaitingAppointment(t *testing.T) {
	env := newTestEnv()
	env.seedShop()
	ctx := context.Background()

	// Slot 20 minutes out with a 10 minute wait: 10 minute slack stays under
	// the 15 minute demote buffer.
	slot := testNow.Add(20 * time.Minute)
	wait := 10
	imminent := &domain.Ticket{
		ID:            "appt-soon",
		ExternalKey:   "TKT-SOON",
		ShopID:        "shop1",
		ServiceID:     "svc-cut",
		CustomerName:  "On-Time Omar",
		Status:        domain.TicketStatusWaiting,
		Type:          domain.TicketTypeAppointment,
		Position:      1,
		EstimatedWait: &wait,
		ScheduledTime: &slot,
		CheckInTime:   &testNow,
	}
	if err := env.tickets.Create(ctx, imminent); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := env.appointments.Tick(ctx, "shop1"); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	fresh, _ := env.tickets.GetByID(ctx, "appt-soon")
	if fresh.Status != domain.TicketStatusWaiting {
		t.Fatalf("status = %s, want WAITING", fresh.Status)
	}
}

func TestPromotionContentionBetweenBookings(t *testing.T) {
	env := newTestEnv()
	env.seedShop()
	ctx := context.Background()

	// Two bookings in the same half hour compete for one barber. Both fall
	// inside the promote window, so both join the queue; the earlier one
	// lands ahead.
	first, _ := env.appointments.CreateAppointment(ctx, "shop1", AppointmentInput{
		ServiceID:     "svc-cut",
		CustomerName:  "Alice",
		ScheduledTime: testNow.Add(15 * time.Minute),
	})
	second, _ := env.appointments.CreateAppointment(ctx, "shop1", AppointmentInput{
		ServiceID:     "svc-cut",
		CustomerName:  "Bob",
		ScheduledTime: testNow.Add(25 * time.Minute),
	})

	promoted, err := env.appointments.Tick(ctx, "shop1")
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if promoted != 2 {
		t.Fatalf("promoted = %d, want 2", promoted)
	}

	a, _ := env.tickets.GetByID(ctx, first.ID)
	b, _ := env.tickets.GetByID(ctx, second.ID)
	if a.Status != domain.TicketStatusWaiting || b.Status != domain.TicketStatusWaiting {
		t.Fatalf("statuses = %s, %s, want WAITING, WAITING", a.Status, b.Status)
	}
	if a.Position == b.Position {
		t.Fatalf("both appointments got position %d", a.Position)
	}
}
