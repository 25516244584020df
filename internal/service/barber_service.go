package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/barber-queue/internal/auth"
	"github.com/spec-kit/barber-queue/internal/domain"
	"github.com/spec-kit/barber-queue/internal/events"
	"github.com/spec-kit/barber-queue/internal/repository"
	apperrors "github.com/spec-kit/barber-queue/pkg/apperrors"
)

// BarberService handles barber authentication, credentials and availability
// flags.
type BarberService struct {
	barbers    repository.BarberRepository
	recalc     *RecalcService
	dispatcher events.Dispatcher
	tokens     *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
	now        func() time.Time
}

// BarberDependencies bundles collaborators for the barber service.
type BarberDependencies struct {
	BarberRepo repository.BarberRepository
	Recalc     *RecalcService
	Dispatcher events.Dispatcher
	Tokens     *auth.TokenManager
	BcryptCost int
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewBarberService constructs the service.
func NewBarberService(deps BarberDependencies) *BarberService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BarberService{
		barbers:    deps.BarberRepo,
		recalc:     deps.Recalc,
		dispatcher: deps.Dispatcher,
		tokens:     deps.Tokens,
		bcryptCost: deps.BcryptCost,
		logger:     logger,
		now:        now,
	}
}

// TokenManager exposes the token manager for middleware wiring.
func (s *BarberService) TokenManager() *auth.TokenManager {
	return s.tokens
}

// Login verifies credentials and issues a bearer token.
func (s *BarberService) Login(ctx context.Context, email, password string) (string, time.Time, *domain.Barber, error) {
	barber, err := s.barbers.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", time.Time{}, nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return "", time.Time{}, nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(barber.PasswordHash, password); err != nil {
		return "", time.Time{}, nil, apperrors.NewUnauthorized("invalid credentials")
	}
	token, expiresAt, err := s.tokens.GenerateToken(barber.ID, domain.SubjectTypeBarber)
	if err != nil {
		return "", time.Time{}, nil, apperrors.MapError(err)
	}
	return token, expiresAt, barber, nil
}

// ChangePassword replaces the barber's credential after verifying the current
// one. The new hash is generated at the configured bcrypt cost.
func (s *BarberService) ChangePassword(ctx context.Context, barberID, currentPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return apperrors.NewValidationError("new password must be at least 8 characters", nil)
	}
	barber, err := s.barbers.GetByID(ctx, barberID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("barber", map[string]any{"barber_id": barberID})
		}
		return apperrors.MapError(err)
	}
	if err := auth.ComparePassword(barber.PasswordHash, currentPassword); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	hashed, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.MapError(err)
	}
	if err := s.barbers.UpdatePasswordHash(ctx, barberID, hashed); err != nil {
		return apperrors.MapError(err)
	}
	s.logger.Info("barber password changed", zap.String("barber_id", barberID))
	return nil
}

// SetAvailabilityForShop updates flags after verifying the target barber
// belongs to the caller's shop.
func (s *BarberService) SetAvailabilityForShop(ctx context.Context, callerShopID, barberID string, isActive, isPresent bool) (*domain.Barber, error) {
	target, err := s.barbers.GetByID(ctx, barberID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("barber", map[string]any{"barber_id": barberID})
		}
		return nil, apperrors.MapError(err)
	}
	if target.ShopID != callerShopID {
		return nil, apperrors.NewForbidden("barber belongs to a different shop")
	}
	return s.SetAvailability(ctx, barberID, isActive, isPresent)
}

// SetAvailability updates the barber's active/present flags and schedules a
// queue recompute, since capacity and line partitioning both depend on them.
func (s *BarberService) SetAvailability(ctx context.Context, barberID string, isActive, isPresent bool) (*domain.Barber, error) {
	barber, err := s.barbers.GetByID(ctx, barberID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("barber", map[string]any{"barber_id": barberID})
		}
		return nil, apperrors.MapError(err)
	}
	if barber.IsActive == isActive && barber.IsPresent == isPresent {
		return barber, nil
	}
	if err := s.barbers.UpdateFlags(ctx, barberID, isActive, isPresent); err != nil {
		return nil, apperrors.MapError(err)
	}
	barber.IsActive = isActive
	barber.IsPresent = isPresent

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventBarberAvailability,
			ShopID:    barber.ShopID,
			Actor:     events.Actor{Type: domain.SubjectTypeBarber, BarberID: &barber.ID},
			Timestamp: s.now(),
			Payload: events.BarberAvailabilityPayload{
				BarberID:  barber.ID,
				IsActive:  isActive,
				IsPresent: isPresent,
			},
		})
	}
	s.recalc.Enqueue(barber.ShopID)
	return barber, nil
}
