package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shop-sync-service/config"
	"shop-sync-service/internal/api"
	"shop-sync-service/internal/broker"
	"shop-sync-service/internal/mailer"
	"shop-sync-service/internal/models"
	"shop-sync-service/internal/redisclient"
	"shop-sync-service/internal/scheduler"
	"shop-sync-service/internal/service"
	"shop-sync-service/internal/store"
	"shop-sync-service/internal/util"
	"shop-sync-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, util.LogFileConfig{
		Path:       cfg.Observ.LogFile,
		MaxSizeMB:  cfg.Observ.LogMaxSizeMB,
		MaxBackups: cfg.Observ.LogMaxBackups,
		MaxAgeDays: cfg.Observ.LogMaxAgeDays,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting shop sync service")

	tp, err := util.InitTracer(util.TracingConfig{
		ServiceName: "shop-sync-service",
		Environment: cfg.Server.Env,
		Endpoint:    cfg.Observ.JaegerEndpoint,
		SampleRatio: cfg.Observ.TraceSampleRatio,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	notificationProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
	defer notificationProducer.Close()
	refreshProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicFinanceRefresh)
	defer refreshProducer.Close()
	log.Println("Kafka producers initialized")

	notifier := service.NewNotifier(db, broker.NewNotificationPublisher(notificationProducer))
	alertOpts := mailer.Options{
		Host:     cfg.Alerts.SMTPHost,
		Port:     cfg.Alerts.SMTPPort,
		Username: cfg.Alerts.SMTPUsername,
		Password: cfg.Alerts.SMTPPassword,
		From:     cfg.Alerts.From,
		To:       cfg.Alerts.To,
	}
	if alertOpts.Enabled() {
		notifier.WithAlerts(mailer.NewAlertMailer(alertOpts), models.NotificationShopReauthRequired, models.NotificationSystemAlert)
		log.Printf("Alert emails enabled for %d recipient(s)", len(alertOpts.To))
	}

	syncFactory := service.NewOrderSyncFactory(db, db, notifier, redisClient, service.NewTikTokClient, service.SyncSettings{
		BatchSize:   cfg.Sync.BatchSize,
		IDBatchSize: cfg.Sync.IDBatchSize,
		PageSize:    cfg.Sync.PageSize,
		PageDelay:   cfg.Sync.PageDelay,
		Retry:       service.RetryPolicy{Attempts: cfg.Sync.RetryAttempts, Base: cfg.Sync.RetryBase},
		ShopLockTTL: cfg.Sync.ShopLockTTL,
		Channel:     cfg.TikTok.Channel,
		BaseURL:     cfg.TikTok.APIBaseURL,
		Timeout:     cfg.TikTok.Timeout,
	})

	webhookService := service.NewWebhookService(
		db,
		db,
		db,
		syncFactory,
		notifier,
		broker.NewRefreshRequestPublisher(refreshProducer),
		redisClient,
		service.WebhookOptions{
			VerificationToken: cfg.Webhook.VerificationToken,
			DedupTTL:          cfg.Webhook.DedupTTL,
		},
	)

	registry := scheduler.NewFunctionRegistry()
	executor := scheduler.NewExecutor(registry, db, db, cfg.Scheduler.HTTPCallTimeout)
	jobScheduler := scheduler.NewScheduler(scheduler.Config{
		RetentionDays: cfg.Scheduler.RetentionDays,
		RetentionCron: cfg.Scheduler.RetentionCron,
	}, db, executor)

	fanOut := service.NewShopFanOut(db, db, jobScheduler, cfg.Scheduler.FanOutStagger, cfg.TikTok.Channel)
	jobFunctions := service.NewJobFunctions(fanOut, syncFactory, db, db, service.ShopSyncParams{
		DaysToSync: cfg.Sync.DaysToSync,
		PageSize:   cfg.Sync.PageSize,
	})

	handlers := map[models.FunctionName]scheduler.Handler{
		models.FunctionSyncAllShops:         jobFunctions.SyncAllShops,
		models.FunctionSyncShopOrders:       jobFunctions.SyncShopOrders,
		models.FunctionCleanupNotifications: jobFunctions.CleanupNotifications,
		models.FunctionCleanupExecutions:    jobScheduler.CleanupExecutionsHandler,
		models.FunctionExpireStaleTokens:    jobFunctions.ExpireStaleTokens,
	}
	for name, handler := range handlers {
		if err := registry.Register(name, handler); err != nil {
			log.Fatalf("Failed to register function %s: %v", name, err)
		}
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if err := jobScheduler.Start(workerCtx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	webhookConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicWebhooks, cfg.Kafka.ConsumerGroup)
	ingestWorker := worker.NewWebhookIngestWorker(webhookConsumer, webhookService)
	go func() {
		if err := ingestWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Webhook ingest worker error: %v", err)
		}
	}()

	drainWorker := worker.NewDrainWorker(webhookService, cfg.Webhook.DrainInterval)
	drainWorker.Start(workerCtx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Webhooks:   webhookService,
		Syncer:     syncFactory,
		FanOut:     fanOut,
		Jobs:       jobScheduler,
		Executions: db,
		Orders:     db,
	}, map[string]api.Pinger{"database": db, "redis": redisClient}, cfg.Webhook.MaxBodyBytes).
		WithPushTimeout(cfg.Webhook.PushTimeout)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if err := jobScheduler.Stop(shutdownCtx); err != nil {
		log.Printf("Scheduler did not stop cleanly: %v", err)
	}
	if err := drainWorker.Stop(shutdownCtx); err != nil {
		log.Printf("Drain worker did not stop cleanly: %v", err)
	}

	workerCancel()
	if err := ingestWorker.Stop(); err != nil {
		log.Printf("Error closing webhook consumer: %v", err)
	}

	log.Println("Server exited")
}
