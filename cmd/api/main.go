package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/etu-nz/bmm-service/internal/api/http"
	"github.com/etu-nz/bmm-service/internal/api/http/handlers"
	"github.com/etu-nz/bmm-service/internal/auth"
	"github.com/etu-nz/bmm-service/internal/config"
	"github.com/etu-nz/bmm-service/internal/events"
	"github.com/etu-nz/bmm-service/internal/notify"
	"github.com/etu-nz/bmm-service/internal/observability"
	"github.com/etu-nz/bmm-service/internal/persistence"
	"github.com/etu-nz/bmm-service/internal/repository"
	"github.com/etu-nz/bmm-service/internal/service"
	"github.com/etu-nz/bmm-service/internal/worker"
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

	pool := pg.PoolHandle()
	if pool != nil && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var memberRepo repository.MemberRepository
	var venueRepo repository.VenueRepository
	var notificationRepo repository.NotificationRepository
	if pool != nil {
		memberRepo = repository.NewMemberRepository(pool)
		venueRepo = repository.NewVenueRepository(pool)
		notificationRepo = repository.NewNotificationRepository(pool)
	} else {
		logger.Warn("running with in-memory stores; data will not survive a restart")
		memberRepo = repository.NewInMemoryMemberRepository()
		venueRepo = repository.NewInMemoryVenueRepository()
		notificationRepo = repository.NewInMemoryNotificationRepository()
	}

	var redisConn *persistence.Redis
	var jobStore repository.JobStore
	if cfg.Redis.Addr != "" {
		redisConn = persistence.NewRedis(cfg.Redis, logger)
		defer redisConn.Close()
		jobStore = repository.NewRedisJobStore(redisConn.Client)
	} else {
		jobStore = repository.NewInMemoryJobStore()
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	runner := worker.NewRunner(jobStore, logger)

	providers := notify.NewRegistry()
	if cfg.Notify.ResendAPIKey != "" {
		providers.Register(notify.NewResendProvider(cfg.Notify.ResendAPIKey, cfg.Notify.EmailFrom, logger))
	}
	if cfg.Notify.GatewayURL != "" {
		providers.Register(notify.NewGatewayProvider(cfg.Notify.GatewayURL, cfg.Notify.EmailFrom, logger))
	}
	providers.Register(notify.NewSMSExportProvider(cfg.Notify.SMSExportDir, logger))

	stageService := service.NewStageService(memberRepo, dispatcher, logger)
	memberService := service.NewMemberService(memberRepo)
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		MemberRepo:        memberRepo,
		VenueRepo:         venueRepo,
		StageService:      stageService,
		Runner:            runner,
		Dispatcher:        dispatcher,
		Metrics:           metrics,
		Logger:            logger,
		RegionParallelism: cfg.Assign.RegionParallelism,
	})
	notificationService := service.NewNotificationService(service.NotificationDependencies{
		MemberRepo:       memberRepo,
		NotificationRepo: notificationRepo,
		Tickets:          service.NewTicketGenerator(),
		Providers:        providers,
		StageService:     stageService,
		Runner:           runner,
		Dispatcher:       dispatcher,
		Metrics:          metrics,
		Logger:           logger,
		Config:           cfg.Notify,
	})
	notificationService.RegisterHandlers()
	progressService := service.NewProgressService(jobStore)
	authService := service.NewAuthService(cfg.Auth)
	authMiddleware := auth.NewMiddleware(authService.TokenManager())

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redisConn),
		Auth:           handlers.NewAuthHandler(authService),
		Members:        handlers.NewMembersHandler(memberService, stageService, notificationService),
		Venues:         handlers.NewVenuesHandler(assignmentService),
		Assignments:    handlers.NewAssignmentsHandler(assignmentService),
		Notifications:  handlers.NewNotificationsHandler(notificationService, memberService),
		Progress:       handlers.NewProgressHandler(progressService),
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
