package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/fulfillment/pkg/config"
	"github.com/sakashimaa/fulfillment/pkg/db"
	"github.com/sakashimaa/fulfillment/pkg/kafka"
	"github.com/sakashimaa/fulfillment/pkg/metrics"
	outbox "github.com/sakashimaa/fulfillment/pkg/outbox/repository"
	"github.com/sakashimaa/fulfillment/pkg/outbox/worker"
	"github.com/sakashimaa/fulfillment/pkg/utils"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/repository"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/service"
	catalogHttp "github.com/sakashimaa/fulfillment/services/catalog/internal/transport/http"
	catalogKafka "github.com/sakashimaa/fulfillment/services/catalog/internal/transport/kafka"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "catalog-service"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := cfg.NewLogger(serviceName)
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, serviceName, cfg.Env, cfg.Tracing)
	if err != nil {
		logger.Fatal("Error init tracer", zap.Error(err))
	}

	if err := db.Migrate(cfg.Postgres.URL, cfg.Postgres.MigrationsPath); err != nil {
		logger.Fatal("Error applying migrations", zap.Error(err))
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("Error creating new postgres DB", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})

	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		logger.Fatal("Error creating kafka producer", zap.Error(err))
	}

	serviceMetrics := metrics.New("catalog")

	itemRepository := repository.NewItemRepository(pool, logger)
	reservationRepository := repository.NewReservationRepository(logger)
	outboxRepository := outbox.NewOutboxRepository(pool, logger)

	itemService := service.NewItemService(itemRepository, reservationRepository, outboxRepository, pool, logger)
	cachedItemService := service.NewCachedItemService(itemService, rdb, cfg.Redis.CacheTTL, logger)

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepository, kafkaProducer, serviceMetrics, cfg.Outbox, logger)
	consumer := catalogKafka.NewConsumer(cachedItemService, serviceMetrics, logger)

	app := catalogHttp.NewApp(
		catalogHttp.NewItemHandler(cachedItemService, logger, cfg.HTTP.Timeout),
		serviceMetrics,
		cfg.Limiter,
	)

	logger.Info("catalog service started!", zap.String("http_port", cfg.HTTP.Port))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return outboxProcessor.Start(gCtx)
	})

	g.Go(func() error {
		return consumer.Start(gCtx, cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup)
	})

	g.Go(func() error {
		logger.Info("HTTP catalog service listening", zap.String("port", cfg.HTTP.Port))
		return app.Listen(cfg.HTTP.Port)
	})

	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Catalog service stopped with error", zap.Error(err))
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := kafkaProducer.Close(); err != nil {
		logger.Warn("Error closing kafka producer", zap.Error(err))
	}

	if err := rdb.Close(); err != nil {
		logger.Warn("Error closing redis client", zap.Error(err))
	}

	pool.Close()
	logger.Info("Closed db pool successfully")

	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error stopping telemetry", zap.Error(err))
	}
}
