package service

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/barber-queue/internal/auth"
	"github.com/spec-kit/barber-queue/internal/domain"
	"github.com/spec-kit/barber-queue/internal/events"
	apperrors "github.com/spec-kit/barber-queue/pkg/apperrors"
)

func TestLogin(t *testing.T) {
	env := newTestEnv()
	env.seedShop()

	hashed, err := auth.HashPassword("trim-and-shave", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	barber, _ := env.barbers.GetByID(context.Background(), "barber1")
	barber.PasswordHash = hashed
	env.barbers.add(*barber)

	tokens := auth.NewTokenManager("test-secret", 60)
	svc := NewBarberService(BarberDependencies{
		BarberRepo: env.barbers,
		Recalc:     env.recalc,
		Dispatcher: env.dispatcher,
		Tokens:     tokens,
	})
	ctx := context.Background()

	token, expiresAt, logged, err := svc.Login(ctx, "sam@example.com", "trim-and-shave")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if logged.ID != "barber1" {
		t.Fatalf("logged in barber = %s, want barber1", logged.ID)
	}
	if expiresAt.IsZero() {
		t.Fatal("zero expiry")
	}
	claims, err := tokens.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.SubjectID != "barber1" || claims.Subject != domain.SubjectTypeBarber {
		t.Fatalf("claims = (%s, %s), want (barber1, BARBER)", claims.SubjectID, claims.Subject)
	}

	if _, _, _, err := svc.Login(ctx, "sam@example.com", "wrong"); !apperrors.IsCode(err, "UNAUTHORIZED") {
		t.Fatalf("bad password: err = %v, want UNAUTHORIZED", err)
	}
	if _, _, _, err := svc.Login(ctx, "nobody@example.com", "trim-and-shave"); !apperrors.IsCode(err, "UNAUTHORIZED") {
		t.Fatalf("unknown email: err = %v, want UNAUTHORIZED", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv()
	env.seedShop()

	hashed, err := auth.HashPassword("trim-and-shave", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	barber, _ := env.barbers.GetByID(context.Background(), "barber1")
	barber.PasswordHash = hashed
	env.barbers.add(*barber)

	svc := NewBarberService(BarberDependencies{
		BarberRepo: env.barbers,
		Recalc:     env.recalc,
		Dispatcher: env.dispatcher,
		Tokens:     auth.NewTokenManager("test-secret", 60),
		BcryptCost: bcrypt.MinCost,
	})
	ctx := context.Background()

	if err := svc.ChangePassword(ctx, "barber1", "wrong", "new-password-1"); !apperrors.IsCode(err, "UNAUTHORIZED") {
		t.Fatalf("wrong current password: err = %v, want UNAUTHORIZED", err)
	}
	if err := svc.ChangePassword(ctx, "barber1", "trim-and-shave", "short"); !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("short new password: err = %v, want VALIDATION_FAILED", err)
	}
	if err := svc.ChangePassword(ctx, "nobody", "trim-and-shave", "new-password-1"); !apperrors.IsCode(err, "NOT_FOUND") {
		t.Fatalf("unknown barber: err = %v, want NOT_FOUND", err)
	}

	if err := svc.ChangePassword(ctx, "barber1", "trim-and-shave", "new-password-1"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	stored, _ := env.barbers.GetByID(ctx, "barber1")
	if err := auth.ComparePassword(stored.PasswordHash, "new-password-1"); err != nil {
		t.Fatalf("new password does not verify: %v", err)
	}
	if err := auth.ComparePassword(stored.PasswordHash, "trim-and-shave"); err == nil {
		t.Fatal("old password still verifies")
	}
}

func TestHashPasswordClampsOutOfRangeCost(t *testing.T) {
	hashed, err := auth.HashPassword("trim-and-shave", -3)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hashed))
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if cost != bcrypt.DefaultCost {
		t.Fatalf("cost = %d, want %d", cost, bcrypt.DefaultCost)
	}
}

func TestSetAvailability(t *testing.T) {
	env := newTestEnv()
	env.seedShop()
	svc := NewBarberService(BarberDependencies{
		BarberRepo: env.barbers,
		Recalc:     env.recalc,
		Dispatcher: env.dispatcher,
		Tokens:     auth.NewTokenManager("test-secret", 60),
	})
	ctx := context.Background()

	updated, err := svc.SetAvailability(ctx, "barber1", true, false)
	if err != nil {
		t.Fatalf("SetAvailability: %v", err)
	}
	if updated.IsPresent {
		t.Fatal("IsPresent still set")
	}
	stored, _ := env.barbers.GetByID(ctx, "barber1")
	if stored.IsPresent {
		t.Fatal("flags not persisted")
	}
	if got := env.dispatcher.byType(events.EventBarberAvailability); len(got) != 1 {
		t.Fatalf("published %d availability events, want 1", len(got))
	}

	// Recompute was scheduled for the barber's shop.
	select {
	case shopID := <-env.recalc.Jobs():
		if shopID != "shop1" {
			t.Fatalf("queued recompute for %s, want shop1", shopID)
		}
	default:
		t.Fatal("no recompute job queued")
	}

	// Unchanged flags are a no-op: no extra event, no extra job.
	if _, err := svc.SetAvailability(ctx, "barber1", true, false); err != nil {
		t.Fatalf("no-op SetAvailability: %v", err)
	}
	if got := env.dispatcher.byType(events.EventBarberAvailability); len(got) != 1 {
		t.Fatalf("no-op published an event; have %d", len(got))
	}
}

func TestSetAvailabilityForShopCrossShop(t *testing.T) {
	env := newTestEnv()
	env.seedShop()
	env.barbers.add(domain.Barber{ID: "barber2", ShopID: "shop2", Name: "Rival", IsActive: true})
	svc := NewBarberService(BarberDependencies{
		BarberRepo: env.barbers,
		Recalc:     env.recalc,
		Dispatcher: env.dispatcher,
		Tokens:     auth.NewTokenManager("test-secret", 60),
	})
	ctx := context.Background()

	if _, err := svc.SetAvailabilityForShop(ctx, "shop1", "barber2", false, false); !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("cross-shop update: err = %v, want FORBIDDEN", err)
	}
	if _, err := svc.SetAvailabilityForShop(ctx, "shop1", "nobody", false, false); !apperrors.IsCode(err, "NOT_FOUND") {
		t.Fatalf("unknown barber: err = %v, want NOT_FOUND", err)
	}
}
