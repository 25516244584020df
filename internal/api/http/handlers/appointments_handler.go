package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/barber-queue/internal/api/dto"
	"github.com/spec-kit/barber-queue/internal/repository"
	"github.com/spec-kit/barber-queue/internal/service"
	apperrors "github.com/spec-kit/barber-queue/pkg/apperrors"
)

// AppointmentsHandler manages appointment endpoints.
type AppointmentsHandler struct {
	appointments *service.AppointmentService
	shops        repository.ShopRepository
}

// NewAppointmentsHandler constructs handler.
func NewAppointmentsHandler(appointments *service.AppointmentService, shops repository.ShopRepository) *AppointmentsHandler {
	return &AppointmentsHandler{appointments: appointments, shops: shops}
}

// Create POST /api/shops/:slug/appointments.
func (h *AppointmentsHandler) Create(c *fiber.Ctx) error {
	slug := c.Params("slug")
	shop, err := h.shops.GetBySlug(c.Context(), slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("shop", map[string]any{"slug": slug})
		}
		return apperrors.MapError(err)
	}

	var req dto.CreateAppointmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ServiceID == "" || req.CustomerName == "" || req.ScheduledTime.IsZero() {
		return apperrors.NewValidationError("service_id, customer_name, scheduled_time required", nil)
	}

	ticket, err := h.appointments.CreateAppointment(c.Context(), shop.ID, service.AppointmentInput{
		ServiceID:         req.ServiceID,
		PreferredBarberID: req.PreferredBarberID,
		CustomerName:      req.CustomerName,
		CustomerPhone:     req.CustomerPhone,
		DeviceID:          req.DeviceID,
		ScheduledTime:     req.ScheduledTime,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// CheckIn POST /api/appointments/:id/checkin.
func (h *AppointmentsHandler) CheckIn(c *fiber.Ctx) error {
	ticket, err := h.appointments.CheckIn(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Reschedule POST /api/appointments/:id/reschedule.
func (h *AppointmentsHandler) Reschedule(c *fiber.Ctx) error {
	var req dto.RescheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ScheduledTime.IsZero() {
		return apperrors.NewValidationError("scheduled_time required", nil)
	}
	ticket, err := h.appointments.Reschedule(c.Context(), c.Params("id"), req.ScheduledTime)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}
