package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"thoughtcapture/config"
	contracts "thoughtcapture/contracts/mq"
	"thoughtcapture/internal/mqhandler"
	"thoughtcapture/internal/repository"
	"thoughtcapture/internal/service"
	"thoughtcapture/internal/slack"
	"thoughtcapture/pkg/db"
	"thoughtcapture/pkg/logger"
	"thoughtcapture/pkg/mq"
	"thoughtcapture/pkg/outbox"
	"thoughtcapture/pkg/redis"
	"thoughtcapture/pkg/util"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting worker service...")

	// Redis
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, time.Hour, log)
	retryCounter := util.NewRetryCounter(rdb, time.Hour)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	thoughtRepo := repository.NewThoughtRepository(dbConn, outboxRepo)
	deliveryRepo := repository.NewDeliveryRepository(dbConn)
	analyticsRepo := repository.NewAnalyticsRepository(dbConn)

	// Slack + classifier
	slackClient := slack.NewClient(cfg.Slack.BotToken, cfg.Slack.BaseURL)
	classifier := service.NewClassifier(cfg.OpenAI.APIKey, cfg.OpenAI.Model, log)
	digestSvc := service.NewDigestService(thoughtRepo, deliveryRepo, analyticsRepo, slackClient, log)

	// Publisher feeds both the outbox dispatcher and the DLQ.
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	if err := publisher.SetupDLQ(contracts.RoutingKeyClassify, contracts.RoutingKeyDeliver); err != nil {
		log.Fatal("Failed to set up DLQ", zap.Error(err))
	}

	// Outbox dispatcher drains capture-time classification jobs.
	dispatcherCtx, dispatcherCancel := context.WithCancel(context.Background())
	defer dispatcherCancel()
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	go dispatcher.Start(dispatcherCtx)

	// Handlers
	classifyHandler := mqhandler.NewClassifyHandler(
		thoughtRepo, classifier, analyticsRepo, slackClient,
		publisher, deduper, retryCounter, log,
	)
	digestHandler := mqhandler.NewDigestHandler(digestSvc, publisher, retryCounter, log)

	// -------------------------
	// Classification Consumer
	// -------------------------
	log.Info("Init consumer: thought.classify.q")
	classifyConsumer, err := mq.NewConsumer(
		cfg.MQ.URL,
		"thought.classify.q",
		contracts.RoutingKeyClassify,
		log,
	)
	if err != nil {
		log.Fatal("Classify consumer init failed", zap.Error(err))
	}
	classifyConsumer.SetHandler(classifyHandler.Handle)
	go func() {
		if err := classifyConsumer.StartConsuming(); err != nil {
			log.Fatal("Classify consumer crashed", zap.Error(err))
		}
	}()
	defer classifyConsumer.Close()

	// -------------------------
	// Digest Delivery Consumer
	// -------------------------
	log.Info("Init consumer: digest.deliver.q")
	digestConsumer, err := mq.NewConsumer(
		cfg.MQ.URL,
		"digest.deliver.q",
		contracts.RoutingKeyDeliver,
		log,
	)
	if err != nil {
		log.Fatal("Digest consumer init failed", zap.Error(err))
	}
	digestConsumer.SetHandler(digestHandler.Handle)
	go func() {
		if err := digestConsumer.StartConsuming(); err != nil {
			log.Fatal("Digest consumer crashed", zap.Error(err))
		}
	}()
	defer digestConsumer.Close()

	log.Info("Worker running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Worker shutting down")
}
