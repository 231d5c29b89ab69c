package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/kafka"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/fulfillment/pkg/outbox/domain"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/service"
	"go.uber.org/zap"
)

const ConsumerGroupID = "catalog-service-group"

type EventRecorder interface {
	EventConsumed(event, result string)
}

type Consumer struct {
	service  service.ItemService
	recorder EventRecorder
	logger   *zap.Logger
}

func NewConsumer(service service.ItemService, recorder EventRecorder, logger *zap.Logger) *Consumer {
	return &Consumer{
		service:  service,
		recorder: recorder,
		logger:   logger,
	}
}

func (c *Consumer) Start(ctx context.Context, brokers []string, groupID string) error {
	if groupID == "" {
		groupID = ConsumerGroupID
	}

	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		groupID,
		[]string{generalDomain.TopicOrderEvents},
		c.processMessage,
		c.logger,
	)

	return consumerGroup.Run(ctx)
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	mylogger.Debug(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", msg.Topic),
	)

	var wrapper outboxDomain.Envelope
	if err := json.Unmarshal(msg.Value, &wrapper); err != nil {
		mylogger.Error(ctx, c.logger, "Error unmarshalling wrapper", zap.Error(err))
		c.recorder.EventConsumed("unknown", "malformed")
		return nil
	}

	err := c.dispatch(ctx, wrapper)
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.recorder.EventConsumed(wrapper.Event, result)

	return err
}

func (c *Consumer) dispatch(ctx context.Context, wrapper outboxDomain.Envelope) error {
	switch wrapper.Event {
	case generalDomain.EventOrderCreated:
		var event generalDomain.OrderCreatedMessage
		if err := c.decode(ctx, wrapper, &event); err != nil {
			return nil
		}

		if _, err := c.service.ReserveForOrder(ctx, &event); err != nil {
			mylogger.Warn(ctx, c.logger, "Error processing order created", zap.Error(err))
			return err
		}
	case generalDomain.EventOrderCancelled:
		var event generalDomain.OrderCancelledMessage
		if err := c.decode(ctx, wrapper, &event); err != nil {
			return nil
		}

		if _, err := c.service.ReleaseForOrder(ctx, &event); err != nil {
			mylogger.Warn(ctx, c.logger, "Error processing order cancelled", zap.Error(err))
			return err
		}
	case generalDomain.EventOrderShipped:
		var event generalDomain.OrderShippedMessage
		if err := c.decode(ctx, wrapper, &event); err != nil {
			return nil
		}

		if _, err := c.service.CommitForOrder(ctx, &event); err != nil {
			mylogger.Warn(ctx, c.logger, "Error processing order shipped", zap.Error(err))
			return err
		}
	default:
		mylogger.Debug(ctx, c.logger, "Ignored event type", zap.String("event_type", wrapper.Event))
	}

	return nil
}

// decode logs and reports payloads that can never be processed; the
// caller acknowledges them so they do not block the partition.
func (c *Consumer) decode(ctx context.Context, wrapper outboxDomain.Envelope, target interface{ EventID() uuid.UUID }) error {
	if err := json.Unmarshal(wrapper.Payload, target); err != nil {
		mylogger.Error(ctx, c.logger, "Error unmarshalling event structure",
			zap.String("event_type", wrapper.Event),
			zap.Error(err),
		)
		return err
	}

	if target.EventID() == uuid.Nil {
		err := fmt.Errorf("%s event has no event_id", wrapper.Event)
		mylogger.Error(ctx, c.logger, "Event without id", zap.String("event_type", wrapper.Event))
		return err
	}

	return nil
}
