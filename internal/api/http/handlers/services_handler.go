package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/barber-queue/internal/api/dto"
	"github.com/spec-kit/barber-queue/internal/repository"
	apperrors "github.com/spec-kit/barber-queue/pkg/apperrors"
)

// ServicesHandler serves the public service catalog.
type ServicesHandler struct {
	shops    repository.ShopRepository
	services repository.ServiceRepository
}

// NewServicesHandler constructs handler.
func NewServicesHandler(shops repository.ShopRepository, services repository.ServiceRepository) *ServicesHandler {
	return &ServicesHandler{shops: shops, services: services}
}

// ListServices GET /api/shops/:slug/services. Walk-in customers pick a
// service before joining the queue; retired services are filtered out.
func (h *ServicesHandler) ListServices(c *fiber.Ctx) error {
	slug := c.Params("slug")
	shop, err := h.shops.GetBySlug(c.Context(), slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("shop", map[string]any{"slug": slug})
		}
		return apperrors.MapError(err)
	}

	services, err := h.services.ListByShop(c.Context(), shop.ID)
	if err != nil {
		return apperrors.MapError(err)
	}

	entries := make([]dto.ServiceResponse, 0, len(services))
	for _, svc := range services {
		if !svc.IsActive {
			continue
		}
		entries = append(entries, dto.ServiceResponse{
			ID:              svc.ID,
			Name:            svc.Name,
			DurationMinutes: svc.DurationMinutes,
		})
	}
	return c.JSON(fiber.Map{"data": entries})
}
