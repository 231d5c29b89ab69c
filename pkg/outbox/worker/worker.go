package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/fulfillment/pkg/config"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/pkg/outbox/domain"
	"github.com/sakashimaa/fulfillment/pkg/utils"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OutboxRepository interface {
	SaveOutboxEvents(ctx context.Context, tx pgx.Tx, events []*domain.OutboxEvent) error
	GetUnpublishedEvents(ctx context.Context, tx pgx.Tx, batchSize, maxAttempts int) ([]*domain.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, tx pgx.Tx, eventID int64) error
	MarkEventFailed(ctx context.Context, tx pgx.Tx, eventID int64, error string) error
}

type KafkaProducer interface {
	ProduceMessage(ctx context.Context, topic, key string, message any) error
}

type Recorder interface {
	OutboxPublished(topic string)
	OutboxFailed(topic string)
}

type OutboxProcessor struct {
	pool          *pgxpool.Pool
	repo          OutboxRepository
	kafkaProducer KafkaProducer
	recorder      Recorder
	logger        *zap.Logger
	batchSize     int
	maxAttempts   int
	interval      time.Duration
	tracer        trace.Tracer
	cb            *gobreaker.CircuitBreaker
}

func NewOutboxProcessor(
	pool *pgxpool.Pool,
	repo OutboxRepository,
	producer KafkaProducer,
	recorder Recorder,
	cfg config.Outbox,
	logger *zap.Logger,
) *OutboxProcessor {
	return &OutboxProcessor{
		pool:          pool,
		repo:          repo,
		kafkaProducer: producer,
		recorder:      recorder,
		logger:        logger,
		batchSize:     cfg.BatchSize,
		maxAttempts:   cfg.MaxAttempts,
		interval:      cfg.Interval,
		tracer:        otel.Tracer("outbox-worker"),
		cb:            utils.NewCircuitBreaker("OutboxKafka", logger),
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) error {
	mylogger.Info(
		ctx,
		p.logger,
		"Starting outbox processor",
		zap.Int("batch_size", p.batchSize),
		zap.Duration("interval", p.interval),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(
				ctx,
				p.logger,
				"Outbox processor stopping",
			)

			return nil
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil && ctx.Err() == nil {
				mylogger.Error(
					ctx,
					p.logger,
					"Error processing outbox batch",
					zap.Error(err),
				)
			}
		}
	}
}

// processBatch publishes one locked batch in id order. Once a row of an
// aggregate fails, later rows of the same aggregate wait for the next tick
// so consumers never see them out of order.
func (p *OutboxProcessor) processBatch(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.processBatch")
	defer span.End()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				cleanupCtx,
				p.logger,
				"Outbox worker failed to rollback transaction",
				zap.Error(err),
				zap.String("method_name", "processBatch"),
			)
		}
	}()

	events, err := p.repo.GetUnpublishedEvents(ctx, tx, p.batchSize, p.maxAttempts)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	span.SetAttributes(attribute.Int("outbox.batch_count", len(events)))

	blocked := make(map[string]struct{})

	for _, event := range events {
		aggregateKey := event.AggregateType + ":" + event.AggregateID
		if _, ok := blocked[aggregateKey]; ok {
			continue
		}

		if !json.Valid(event.Payload) {
			mylogger.Error(
				ctx,
				p.logger,
				"outbox worker found invalid payload",
				zap.Int64("id", event.Id),
			)

			blocked[aggregateKey] = struct{}{}
			if err := p.repo.MarkEventFailed(ctx, tx, event.Id, "invalid json payload"); err != nil {
				return err
			}
			continue
		}

		_, err := utils.ExecuteWithBreaker(p.cb, func() (struct{}, error) {
			return struct{}{}, p.kafkaProducer.ProduceMessage(
				ctx,
				event.Topic,
				event.AggregateID,
				json.RawMessage(event.Payload),
			)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			mylogger.Warn(ctx, p.logger, "Circuit breaker open, postponing outbox batch")
			break
		}

		if err != nil {
			p.recorder.OutboxFailed(event.Topic)
			blocked[aggregateKey] = struct{}{}

			level := mylogger.Warn
			if event.Attempts+1 >= int64(p.maxAttempts) {
				level = mylogger.Error
			}
			level(
				ctx,
				p.logger,
				"outbox worker produce message failed",
				zap.Int64("id", event.Id),
				zap.Int64("attempt", event.Attempts+1),
				zap.Error(err),
			)

			if dbErr := p.repo.MarkEventFailed(ctx, tx, event.Id, err.Error()); dbErr != nil {
				return fmt.Errorf("error marking event %d failed: %w", event.Id, dbErr)
			}
			continue
		}

		if err := p.repo.MarkEventPublished(ctx, tx, event.Id); err != nil {
			return fmt.Errorf("error marking event %d published: %w", event.Id, err)
		}
		p.recorder.OutboxPublished(event.Topic)

		mylogger.Debug(
			ctx,
			p.logger,
			"outbox worker event published successfully",
			zap.Int64("id", event.Id),
			zap.String("event_type", event.EventType),
		)
	}

	return tx.Commit(ctx)
}
