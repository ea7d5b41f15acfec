package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"thoughtcapture/config"
	"thoughtcapture/internal/repository"
	"thoughtcapture/internal/service"
	"thoughtcapture/pkg/db"
	"thoughtcapture/pkg/logger"
	"thoughtcapture/pkg/mq"
	"thoughtcapture/pkg/outbox"
)

// Tick cadences. The digest scan matches the 15-minute trigger window so
// every window is scanned exactly once.
const (
	digestScanInterval  = 15 * time.Minute
	catchUpScanInterval = 5 * time.Minute
	retentionInterval   = 24 * time.Hour
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting scheduler service...")

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}
	defer dbConn.Close()

	// MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	thoughtRepo := repository.NewThoughtRepository(dbConn, outboxRepo)
	prefsRepo := repository.NewPrefsRepository(dbConn)
	deliveryRepo := repository.NewDeliveryRepository(dbConn)
	analyticsRepo := repository.NewAnalyticsRepository(dbConn)

	access := service.NewAccessChecker(cfg.Feature)
	scheduler := service.NewSchedulerService(prefsRepo, deliveryRepo, thoughtRepo, publisher, access, log)
	retention := service.NewRetentionService(thoughtRepo, analyticsRepo, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Digest scan
	go func() {
		ticker := time.NewTicker(digestScanInterval)
		defer ticker.Stop()

		scheduler.ScanDueDigests(ctx)

		for {
			select {
			case <-ctx.Done():
				log.Info("Digest scan stopped")
				return
			case <-ticker.C:
				scheduler.ScanDueDigests(ctx)
			}
		}
	}()

	// Classification catch-up
	go func() {
		ticker := time.NewTicker(catchUpScanInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info("Catch-up scan stopped")
				return
			case <-ticker.C:
				scheduler.ScanStaleUnclassified(ctx)
			}
		}
	}()

	// Retention sweep
	go func() {
		ticker := time.NewTicker(retentionInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info("Retention sweep stopped")
				return
			case <-ticker.C:
				if _, err := retention.Run(ctx); err != nil {
					log.Error("Retention sweep failed", zap.Error(err))
				}
			}
		}
	}()

	log.Info("Scheduler running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Scheduler shutting down")
}
