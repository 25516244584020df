package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/barber-queue/internal/observability"
	"github.com/spec-kit/barber-queue/internal/repository"
	"github.com/spec-kit/barber-queue/internal/service"
)

// RecalcWorker drains the deferred recompute queue and drives the periodic
// appointment tick. Mutations enqueue jobs instead of firing recomputes into
// the void; failures here are logged and counted, and the next tick repairs
// any shop whose recompute was missed.
type RecalcWorker struct {
	recalc       *service.RecalcService
	appointments *service.AppointmentService
	shops        repository.ShopRepository
	metrics      *observability.Metrics
	logger       *zap.Logger
	tickInterval time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// NewRecalcWorker constructs the worker.
func NewRecalcWorker(recalc *service.RecalcService, appointments *service.AppointmentService, shops repository.ShopRepository, metrics *observability.Metrics, logger *zap.Logger, tickInterval time.Duration) *RecalcWorker {
	if tickInterval <= 0 {
		tickInterval = time.Minute
	}
	return &RecalcWorker{
		recalc:       recalc,
		appointments: appointments,
		shops:        shops,
		metrics:      metrics,
		logger:       logger,
		tickInterval: tickInterval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start launches the worker loop.
func (w *RecalcWorker) Start() {
	go w.run()
}

// Stop signals the loop to exit and waits for it to drain.
func (w *RecalcWorker) Stop() {
	close(w.stopChan)
	<-w.doneChan
}

func (w *RecalcWorker) run() {
	defer close(w.doneChan)

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case shopID := <-w.recalc.Jobs():
			w.drain(shopID)
		case <-ticker.C:
			w.tickAll()
		case <-w.stopChan:
			return
		}
	}
}

func (w *RecalcWorker) drain(shopID string) {
	ctx := context.Background()
	err := w.recalc.RecalculateShopQueue(ctx, shopID)
	w.metrics.RecordRecalc(shopID, err != nil)
	if err != nil {
		w.logger.Error("deferred recompute failed", zap.String("shop_id", shopID), zap.Error(err))
		return
	}
	w.logger.Debug("deferred recompute done", zap.String("shop_id", shopID))
}

// tickAll runs the appointment scheduler and a full recompute for every shop.
func (w *RecalcWorker) tickAll() {
	ctx := context.Background()
	shops, err := w.shops.List(ctx)
	if err != nil {
		w.logger.Error("listing shops for tick failed", zap.Error(err))
		return
	}
	for i := range shops {
		shopID := shops[i].ID
		promoted, err := w.appointments.Tick(ctx, shopID)
		if err != nil {
			w.logger.Error("appointment tick failed", zap.String("shop_id", shopID), zap.Error(err))
			continue
		}
		if promoted > 0 {
			w.logger.Info("appointments promoted", zap.String("shop_id", shopID), zap.Int("count", promoted))
		}
		err = w.recalc.RecalculateShopQueue(ctx, shopID)
		w.metrics.RecordRecalc(shopID, err != nil)
		if err != nil {
			w.logger.Error("periodic recompute failed", zap.String("shop_id", shopID), zap.Error(err))
		}
	}
}
