package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/barber-queue/internal/api/dto"
	"github.com/spec-kit/barber-queue/internal/auth"
	"github.com/spec-kit/barber-queue/internal/domain"
	"github.com/spec-kit/barber-queue/internal/events"
	"github.com/spec-kit/barber-queue/internal/repository"
	"github.com/spec-kit/barber-queue/internal/service"
	apperrors "github.com/spec-kit/barber-queue/pkg/apperrors"
)

// TicketsHandler manages customer ticket endpoints and staff transitions.
type TicketsHandler struct {
	tickets *service.TicketService
	shops   repository.ShopRepository
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, shops repository.ShopRepository) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, shops: shops}
}

// CreateWalkIn POST /api/shops/:slug/tickets.
func (h *TicketsHandler) CreateWalkIn(c *fiber.Ctx) error {
	shop, err := h.resolveShop(c)
	if err != nil {
		return err
	}
	var req dto.CreateWalkInRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ServiceID == "" || req.CustomerName == "" {
		return apperrors.NewValidationError("service_id and customer_name required", nil)
	}

	ticket, err := h.tickets.CreateWalkIn(c.Context(), shop.ID, service.WalkInInput{
		ServiceID:         req.ServiceID,
		PreferredBarberID: req.PreferredBarberID,
		CustomerName:      req.CustomerName,
		CustomerPhone:     req.CustomerPhone,
		DeviceID:          req.DeviceID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.tickets.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Transition POST /api/tickets/:id/transition (staff).
func (h *TicketsHandler) Transition(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Barber == nil {
		return apperrors.NewUnauthorized("barber required")
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}

	barberID := req.BarberID
	if req.Status == domain.TicketStatusInProgress && barberID == nil {
		barberID = &principal.Barber.ID
	}
	ticket, err := h.tickets.Transition(c.Context(), c.Params("id"), req.Status, service.TransitionOptions{
		BarberID: barberID,
		Actor:    events.Actor{Type: domain.SubjectTypeBarber, BarberID: &principal.Barber.ID},
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Cancel POST /api/tickets/:id/cancel (customer-facing).
func (h *TicketsHandler) Cancel(c *fiber.Ctx) error {
	ticket, err := h.tickets.Transition(c.Context(), c.Params("id"), domain.TicketStatusCancelled, service.TransitionOptions{
		Actor: events.Actor{Type: domain.SubjectTypeCustomer},
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

func (h *TicketsHandler) resolveShop(c *fiber.Ctx) (*domain.Shop, error) {
	slug := c.Params("slug")
	shop, err := h.shops.GetBySlug(c.Context(), slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("shop", map[string]any{"slug": slug})
		}
		return nil, apperrors.MapError(err)
	}
	return shop, nil
}
