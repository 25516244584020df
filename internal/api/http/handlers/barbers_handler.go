package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/barber-queue/internal/api/dto"
	"github.com/spec-kit/barber-queue/internal/auth"
	"github.com/spec-kit/barber-queue/internal/service"
	apperrors "github.com/spec-kit/barber-queue/pkg/apperrors"
)

// BarbersHandler manages barber login and availability endpoints.
type BarbersHandler struct {
	barbers *service.BarberService
}

// NewBarbersHandler constructs handler.
func NewBarbersHandler(barbers *service.BarberService) *BarbersHandler {
	return &BarbersHandler{barbers: barbers}
}

// Login POST /auth/barbers/login.
func (h *BarbersHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}
	token, expiresAt, barber, err := h.barbers.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		BarberID:  barber.ID,
		ShopID:    barber.ShopID,
	}})
}

// ChangePassword POST /api/barbers/me/password. Barbers can only change their
// own credential.
func (h *BarbersHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Barber == nil {
		return apperrors.NewUnauthorized("barber required")
	}
	var req dto.PasswordChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.barbers.ChangePassword(c.Context(), principal.Barber.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SetAvailability POST /api/barbers/:id/availability. Barbers may only toggle
// barbers of their own shop.
func (h *BarbersHandler) SetAvailability(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Barber == nil {
		return apperrors.NewUnauthorized("barber required")
	}
	var req dto.AvailabilityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	targetID := c.Params("id")
	barber, err := h.barbers.SetAvailabilityForShop(c.Context(), principal.Barber.ShopID, targetID, req.IsActive, req.IsPresent)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.BarberResponse{
		ID:        barber.ID,
		ShopID:    barber.ShopID,
		Name:      barber.Name,
		IsActive:  barber.IsActive,
		IsPresent: barber.IsPresent,
	}})
}
