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
	"github.com/sakashimaa/fulfillment/services/order/internal/service"
	"go.uber.org/zap"
)

const ConsumerGroupID = "order-service-group"

type EventRecorder interface {
	EventConsumed(event, result string)
}

type Consumer struct {
	service  service.OrderService
	recorder EventRecorder
	logger   *zap.Logger
}

func NewConsumer(service service.OrderService, recorder EventRecorder, logger *zap.Logger) *Consumer {
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
		[]string{generalDomain.TopicInventoryEvents, generalDomain.TopicPaymentEvents},
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
	case generalDomain.EventInventoryReserved:
		var event generalDomain.InventoryReservedEvent
		if err := c.decode(ctx, wrapper, &event); err != nil {
			return nil
		}

		if err := c.service.HandleInventoryReserved(ctx, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to handle inventory reserved", zap.Error(err))
			return err
		}
	case generalDomain.EventInventoryReservationFailed:
		var event generalDomain.InventoryReservationFailedEvent
		if err := c.decode(ctx, wrapper, &event); err != nil {
			return nil
		}

		if err := c.service.HandleInventoryReservationFailed(ctx, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to handle inventory reservation failure", zap.Error(err))
			return err
		}
	case generalDomain.EventPaymentSucceeded:
		var event generalDomain.PaymentSucceededEvent
		if err := c.decode(ctx, wrapper, &event); err != nil {
			return nil
		}

		if err := c.service.HandlePaymentSucceeded(ctx, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to mark order paid", zap.Error(err))
			return err
		}
	case generalDomain.EventPaymentFailed:
		var event generalDomain.PaymentFailedEvent
		if err := c.decode(ctx, wrapper, &event); err != nil {
			return nil
		}

		if err := c.service.HandlePaymentFailed(ctx, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to cancel order", zap.Error(err))
			return err
		}
	default:
		mylogger.Warn(ctx, c.logger, "Ignored event type", zap.String("event_type", wrapper.Event))
	}

	return nil
}

// decode rejects payloads no redelivery can fix; the caller acknowledges
// them.
func (c *Consumer) decode(ctx context.Context, wrapper outboxDomain.Envelope, target interface{ EventID() uuid.UUID }) error {
	if err := json.Unmarshal(wrapper.Payload, target); err != nil {
		mylogger.Error(ctx, c.logger, "Failed to unmarshal payload",
			zap.String("event_type", wrapper.Event),
			zap.Error(err),
		)
		return err
	}

	if target.EventID() == uuid.Nil {
		mylogger.Error(ctx, c.logger, "Event without id", zap.String("event_type", wrapper.Event))
		return fmt.Errorf("%s event has no event_id", wrapper.Event)
	}

	return nil
}
