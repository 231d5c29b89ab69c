package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sakashimaa/fulfillment/pkg/config"
	"github.com/sakashimaa/fulfillment/pkg/db"
	"github.com/sakashimaa/fulfillment/pkg/kafka"
	"github.com/sakashimaa/fulfillment/pkg/metrics"
	outbox "github.com/sakashimaa/fulfillment/pkg/outbox/repository"
	"github.com/sakashimaa/fulfillment/pkg/outbox/worker"
	"github.com/sakashimaa/fulfillment/pkg/utils"
	"github.com/sakashimaa/fulfillment/services/order/internal/repository"
	"github.com/sakashimaa/fulfillment/services/order/internal/service"
	orderHttp "github.com/sakashimaa/fulfillment/services/order/internal/transport/http"
	orderKafka "github.com/sakashimaa/fulfillment/services/order/internal/transport/kafka"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "order-service"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := cfg.NewLogger(serviceName)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, serviceName, cfg.Env, cfg.Tracing)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}

	if err := db.Migrate(cfg.Postgres.URL, cfg.Postgres.MigrationsPath); err != nil {
		logger.Fatal("failed to apply migrations", zap.Error(err))
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to create pool", zap.Error(err))
	}

	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		logger.Fatal("error creating kafka producer", zap.Error(err))
	}

	serviceMetrics := metrics.New("order")

	orderRepo := repository.NewOrderRepository(pool, logger)
	outboxRepo := outbox.NewOutboxRepository(pool, logger)
	orderService := service.NewOrderService(pool, logger, orderRepo, outboxRepo)

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, kafkaProducer, serviceMetrics, cfg.Outbox, logger)
	consumer := orderKafka.NewConsumer(orderService, serviceMetrics, logger)

	app := orderHttp.NewApp(
		orderHttp.NewOrderHandler(orderService, logger, cfg.HTTP.Timeout),
		serviceMetrics,
		cfg.Limiter,
	)

	logger.Info("order service started!", zap.String("http_port", cfg.HTTP.Port))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return outboxProcessor.Start(gCtx)
	})

	g.Go(func() error {
		return consumer.Start(gCtx, cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup)
	})

	g.Go(func() error {
		logger.Info("HTTP order service listening", zap.String("port", cfg.HTTP.Port))
		return app.Listen(cfg.HTTP.Port)
	})

	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Order service stopped with error", zap.Error(err))
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := kafkaProducer.Close(); err != nil {
		logger.Warn("Error closing kafka producer", zap.Error(err))
	}

	pool.Close()
	logger.Info("Closed db pool successfully")

	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error stopping telemetry", zap.Error(err))
	}
}
