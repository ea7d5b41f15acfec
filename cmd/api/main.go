package main

import (
	"go.uber.org/zap"

	"thoughtcapture/config"
	"thoughtcapture/internal/handler"
	"thoughtcapture/internal/httpserver"
	"thoughtcapture/internal/repository"
	"thoughtcapture/internal/service"
	"thoughtcapture/internal/slack"
	"thoughtcapture/pkg/db"
	"thoughtcapture/pkg/logger"
	"thoughtcapture/pkg/outbox"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting api service...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("port", cfg.Server.Port),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	if err := db.Migrate(cfg.DB, log); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}

	// Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	thoughtRepo := repository.NewThoughtRepository(dbConn, outboxRepo)
	prefsRepo := repository.NewPrefsRepository(dbConn)
	deliveryRepo := repository.NewDeliveryRepository(dbConn)
	analyticsRepo := repository.NewAnalyticsRepository(dbConn)

	// Slack + services
	slackClient := slack.NewClient(cfg.Slack.BotToken, cfg.Slack.BaseURL)
	access := service.NewAccessChecker(cfg.Feature)

	captureSvc := service.NewCaptureService(thoughtRepo, prefsRepo, analyticsRepo, slackClient, access, log)
	overrideSvc := service.NewOverrideService(thoughtRepo, analyticsRepo, slackClient, log)
	scheduleSvc := service.NewScheduleService(prefsRepo, analyticsRepo, slackClient, log)
	statusSvc := service.NewStatusService(thoughtRepo, deliveryRepo, analyticsRepo, slackClient, log)
	retentionSvc := service.NewRetentionService(thoughtRepo, analyticsRepo, log)
	healthSvc := service.NewHealthService(thoughtRepo, analyticsRepo, deliveryRepo)

	// Handlers
	eventsHandler := handler.NewSlackEventsHandler(captureSvc, overrideSvc, scheduleSvc, access, log)
	interactionsHandler := handler.NewInteractionsHandler(statusSvc, log)
	healthHandler := handler.NewHealthHandler(healthSvc, log)
	adminHandler := handler.NewAdminHandler(retentionSvc, outboxRepo, cfg.Admin.JWTSecret, cfg.Admin.PasswordHash, log)

	router := httpserver.NewRouter(
		eventsHandler,
		interactionsHandler,
		healthHandler,
		adminHandler,
		cfg.Admin.JWTSecret,
		dbConn,
	)

	log.Info("API listening", zap.String("port", cfg.Server.Port))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatal("HTTP server crashed", zap.Error(err))
	}
}
