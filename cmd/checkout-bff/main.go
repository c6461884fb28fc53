package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_checkout/internal/cache"
	"github.com/fjod/go_checkout/internal/cart"
	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/config"
	"github.com/fjod/go_checkout/internal/consumer"
	"github.com/fjod/go_checkout/internal/gateway"
	h "github.com/fjod/go_checkout/internal/http"
	"github.com/fjod/go_checkout/internal/logger"
	"github.com/fjod/go_checkout/internal/outbox"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/publisher"
	"github.com/fjod/go_checkout/internal/repository"
	"github.com/fjod/go_checkout/internal/service"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	// trace context flows from the app through the BFF to the backend
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ctx := context.Background()
	var wg sync.WaitGroup

	// Redis cart cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		lg.Fatal("redis connection failed", zap.Error(err))
	}
	carts := cart.NewRegistry(cache.NewRedisCache(redisClient, cfg.CartCacheTTL), lg.Named("cart"))

	// MongoDB payment journal
	mongoClient, mongoDB, err := repository.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		lg.Fatal("mongodb connection failed", zap.Error(err))
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	journal := repository.NewMongoRepository(mongoDB)
	if err := repository.EnsureIndexes(ctx, journal); err != nil {
		lg.Fatal("failed to create journal indexes", zap.Error(err))
	}
	lg.Info("connected to mongodb", zap.String("database", cfg.MongoDBName))

	// Postgres outbox
	creds := &outbox.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	outboxRepo, err := outbox.NewRepository(ctx, creds)
	if err != nil {
		lg.Fatal("failed to connect to database", zap.Error(err))
	}
	defer outboxRepo.Close()
	if err := outboxRepo.RunMigrations(creds); err != nil {
		lg.Fatal("failed to run migrations", zap.Error(err))
	}
	lg.Info("database migrations completed")

	backend := gateway.NewClient(gateway.Config{
		BaseURL:         cfg.BackendBaseURL,
		Timeout:         cfg.BackendTimeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerTimeout:  cfg.BreakerTimeout,
	})

	svc := service.NewCheckoutService(
		carts,
		checkout.NewAssembler(cfg.TaxRate, cfg.DeliveryFee),
		func(token string) service.OrderGateway { return backend.WithToken(token) },
		journal,
		outboxRepo,
		service.Config{Payment: payment.Config{
			Detector: payment.RedirectDetector{
				PrimaryPrefix:  cfg.RedirectPrimaryPrefix,
				FallbackPrefix: cfg.RedirectFallbackPrefix,
				ResultMarker:   cfg.PaymentResultMarker,
			},
			PollDelay:       cfg.PaymentPollDelay,
			MaxPollAttempts: cfg.PaymentMaxPollAttempts,
		}},
		lg.Named("checkout"),
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())

	// Outbox -> Kafka
	poller := publisher.NewOutboxPoller(outboxRepo, publisher.NewKafkaWriter(cfg.OutboxTopic, cfg.KafkaBrokers...), lg.Named("outbox"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(workerCtx)
	}()

	// Kafka -> order reconciliation
	if cfg.BackendServiceToken == "" {
		lg.Warn("BACKEND_SERVICE_TOKEN is empty, reconciled orders will be sent unauthenticated")
	}
	reconciler := consumer.NewReconciler(
		journal,
		backend.WithToken(cfg.BackendServiceToken),
		consumer.NewKafkaReader(cfg.OutboxTopic, cfg.KafkaGroupID, cfg.KafkaBrokers...),
		lg.Named("reconciler"),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reconciler.Run(workerCtx)
	}()

	handler := h.NewHandler(svc, cfg.RequestTimeout, cfg.MaxRequestBodySize, lg.Named("http"))
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      h.NewRouter(handler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Info("checkout BFF starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("server forced to shutdown", zap.Error(err))
	}
	// confirmed payments finish writing their orders and outbox rows before
	// the outbox poller stops and the repositories close
	if err := svc.Shutdown(shutdownCtx); err != nil {
		lg.Warn("payments did not settle before the shutdown timeout", zap.Error(err))
	}
	workerCancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()
	select {
	case <-doneChan:
		lg.Info("workers stopped cleanly")
	case <-shutdownCtx.Done():
		lg.Warn("workers did not stop before the shutdown timeout")
	}

	if err := poller.Close(); err != nil {
		lg.Warn("failed to close kafka writer", zap.Error(err))
	}
	reconciler.Close()
	lg.Info("server exited")
}
