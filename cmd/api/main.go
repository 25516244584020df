package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/barber-queue/internal/api/http"
	"github.com/spec-kit/barber-queue/internal/api/http/handlers"
	"github.com/spec-kit/barber-queue/internal/auth"
	"github.com/spec-kit/barber-queue/internal/cache"
	"github.com/spec-kit/barber-queue/internal/config"
	"github.com/spec-kit/barber-queue/internal/events"
	"github.com/spec-kit/barber-queue/internal/observability"
	"github.com/spec-kit/barber-queue/internal/persistence"
	"github.com/spec-kit/barber-queue/internal/queue"
	"github.com/spec-kit/barber-queue/internal/repository"
	"github.com/spec-kit/barber-queue/internal/service"
	"github.com/spec-kit/barber-queue/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	barberRepo := repository.NewBarberRepository(pool)
	serviceRepo := repository.NewServiceRepository(pool)
	shopRepo := repository.NewShopRepository(pool)
	statRepo := repository.NewStatRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	engine := queue.NewEngine()
	locker := service.NewShopLocker()
	boards := cache.NewQueueCache(redis.Client)

	recalcService := service.NewRecalcService(service.RecalcDependencies{
		TicketRepo:  ticketRepo,
		BarberRepo:  barberRepo,
		ServiceRepo: serviceRepo,
		ShopRepo:    shopRepo,
		StatRepo:    statRepo,
		Engine:      engine,
		Dispatcher:  dispatcher,
		Cache:       boards,
		Locker:      locker,
		Logger:      logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		BarberRepo:  barberRepo,
		ServiceRepo: serviceRepo,
		ShopRepo:    shopRepo,
		StatRepo:    statRepo,
		Recalc:      recalcService,
		Dispatcher:  dispatcher,
		Locker:      locker,
		Logger:      logger,
	})
	appointmentService := service.NewAppointmentService(service.AppointmentDependencies{
		TicketRepo:  ticketRepo,
		BarberRepo:  barberRepo,
		ServiceRepo: serviceRepo,
		ShopRepo:    shopRepo,
		Lifecycle:   ticketService,
		Recalc:      recalcService,
		Engine:      engine,
		Dispatcher:  dispatcher,
		Locker:      locker,
		Rules: service.AppointmentRules{
			DemoteBufferMinutes:  cfg.Queue.DemoteBufferMinutes,
			PromoteWindowMinutes: cfg.Queue.PromoteWindowMinutes,
		},
		Logger: logger,
	})
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	barberService := service.NewBarberService(service.BarberDependencies{
		BarberRepo: barberRepo,
		Recalc:     recalcService,
		Dispatcher: dispatcher,
		Tokens:     tokens,
		BcryptCost: cfg.Auth.BcryptCost,
		Logger:     logger,
	})

	recalcWorker := worker.NewRecalcWorker(recalcService, appointmentService, shopRepo, metrics, logger, cfg.Queue.TickInterval())
	recalcWorker.Start()
	defer recalcWorker.Stop()

	authMiddleware := auth.NewMiddleware(tokens, barberRepo)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(ticketService, shopRepo),
		Appointments:   handlers.NewAppointmentsHandler(appointmentService, shopRepo),
		Queue:          handlers.NewQueueHandler(shopRepo, boards, recalcService, engine),
		Services:       handlers.NewServicesHandler(shopRepo, serviceRepo),
		Barbers:        handlers.NewBarbersHandler(barberService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
