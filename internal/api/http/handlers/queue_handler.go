package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/barber-queue/internal/api/dto"
	"github.com/spec-kit/barber-queue/internal/cache"
	"github.com/spec-kit/barber-queue/internal/queue"
	"github.com/spec-kit/barber-queue/internal/repository"
	"github.com/spec-kit/barber-queue/internal/service"
	apperrors "github.com/spec-kit/barber-queue/pkg/apperrors"
)

// QueueHandler serves the public queue board.
type QueueHandler struct {
	shops  repository.ShopRepository
	boards *cache.QueueCache
	recalc *service.RecalcService
	engine *queue.Engine
}

// NewQueueHandler constructs handler.
func NewQueueHandler(shops repository.ShopRepository, boards *cache.QueueCache, recalc *service.RecalcService, engine *queue.Engine) *QueueHandler {
	return &QueueHandler{shops: shops, boards: boards, recalc: recalc, engine: engine}
}

// GetBoard GET /api/shops/:slug/queue. Serves the cached board when present
// and computes one live otherwise.
func (h *QueueHandler) GetBoard(c *fiber.Ctx) error {
	slug := c.Params("slug")
	shop, err := h.shops.GetBySlug(c.Context(), slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("shop", map[string]any{"slug": slug})
		}
		return apperrors.MapError(err)
	}

	if cached, ok, err := h.boards.GetBoard(c.Context(), shop.ID); err == nil && ok {
		entries := make([]dto.QueueBoardEntry, 0, len(cached))
		for _, e := range cached {
			entries = append(entries, dto.QueueBoardEntry{
				TicketID:      e.TicketID,
				Position:      e.Position,
				EstimatedWait: e.EstimatedWait,
			})
		}
		return c.JSON(fiber.Map{"data": entries})
	}

	snap, err := h.recalc.Snapshot(c.Context(), shop.ID)
	if err != nil {
		return err
	}
	placements := h.engine.Board(snap)
	entries := make([]dto.QueueBoardEntry, 0, len(placements))
	for _, p := range placements {
		entries = append(entries, dto.QueueBoardEntry{
			TicketID:      p.TicketID,
			Position:      p.Position,
			EstimatedWait: p.EstimatedWait,
		})
	}
	return c.JSON(fiber.Map{"data": entries})
}
