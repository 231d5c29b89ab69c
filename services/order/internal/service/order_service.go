package service

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/fulfillment/pkg/db"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/fulfillment/pkg/outbox/domain"
	outboxUtils "github.com/sakashimaa/fulfillment/pkg/outbox/utils"
	"github.com/sakashimaa/fulfillment/pkg/outbox/worker"
	"github.com/sakashimaa/fulfillment/services/order/internal/domain"
	"github.com/sakashimaa/fulfillment/services/order/internal/repository"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	aggregateOrder    = "Order"
	maxUpdateAttempts = 3

	reservationMismatchReason = "inventory reservation does not match order items"
)

type LineItemInput struct {
	ProductRef string
	Quantity   int
	UnitPrice  decimal.Decimal
}

type CreateOrderInput struct {
	CustomerID string
	Currency   string
	Items      []LineItemInput
}

type OrderService interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, customerID string, limit, offset int64) ([]*domain.Order, int64, error)
	ValidateOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	BeginPayment(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	Ship(ctx context.Context, id uuid.UUID, trackingNumber string) (*domain.Order, error)
	Deliver(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.Order, error)
	AddItem(ctx context.Context, id uuid.UUID, currency string, input LineItemInput) (*domain.Order, error)
	ClearItems(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	UpdateCustomer(ctx context.Context, id uuid.UUID, customerID string) (*domain.Order, error)

	HandleInventoryReserved(ctx context.Context, event *generalDomain.InventoryReservedEvent) error
	HandleInventoryReservationFailed(ctx context.Context, event *generalDomain.InventoryReservationFailedEvent) error
	HandlePaymentSucceeded(ctx context.Context, event *generalDomain.PaymentSucceededEvent) error
	HandlePaymentFailed(ctx context.Context, event *generalDomain.PaymentFailedEvent) error
}

type orderService struct {
	pool       *pgxpool.Pool
	logger     *zap.Logger
	orderRepo  repository.OrderRepository
	outboxRepo worker.OutboxRepository
	tracer     trace.Tracer
}

func NewOrderService(pool *pgxpool.Pool, logger *zap.Logger, orderRepo repository.OrderRepository, outboxRepo worker.OutboxRepository) OrderService {
	return &orderService{
		pool:       pool,
		logger:     logger,
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		tracer:     otel.Tracer("order_service"),
	}
}

func (s *orderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.String("customer_id", input.CustomerID),
		attribute.Int("items_count", len(input.Items)),
	)

	items := make([]domain.LineItem, 0, len(input.Items))
	for _, in := range input.Items {
		item, err := newLineItem(input.Currency, in)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	order, events, err := domain.NewOrder(input.CustomerID, items)
	if err != nil {
		mylogger.Warn(ctx, s.logger, "Invalid order", zap.String("customer_id", input.CustomerID), zap.Error(err))
		return nil, err
	}

	span.SetAttributes(attribute.String("order_id", order.ID().String()))

	err = db.WithTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return err
		}

		return s.saveEvents(ctx, tx, order.ID(), events)
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order created",
		zap.String("order_id", order.ID().String()),
		zap.String("total", order.Total().String()),
	)

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			mylogger.Warn(ctx, s.logger, "Order not found", zap.String("order_id", id.String()))
			return nil, err
		}

		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, customerID string, limit, offset int64) ([]*domain.Order, int64, error) {
	orders, total, err := s.orderRepo.ListByCustomer(ctx, customerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	return orders, total, nil
}

func (s *orderService) ValidateOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.mutate(ctx, "ValidateOrder", id, func(order *domain.Order) ([]generalDomain.Event, error) {
		return order.Validate()
	})
}

func (s *orderService) BeginPayment(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.mutate(ctx, "BeginPayment", id, func(order *domain.Order) ([]generalDomain.Event, error) {
		return nil, order.BeginPayment()
	})
}

func (s *orderService) MarkPaid(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.mutate(ctx, "MarkPaid", id, func(order *domain.Order) ([]generalDomain.Event, error) {
		return order.MarkPaid()
	})
}

func (s *orderService) Ship(ctx context.Context, id uuid.UUID, trackingNumber string) (*domain.Order, error) {
	return s.mutate(ctx, "Ship", id, func(order *domain.Order) ([]generalDomain.Event, error) {
		return order.Ship(trackingNumber)
	})
}

func (s *orderService) Deliver(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.mutate(ctx, "Deliver", id, func(order *domain.Order) ([]generalDomain.Event, error) {
		return order.Deliver()
	})
}

func (s *orderService) Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.Order, error) {
	return s.mutate(ctx, "Cancel", id, func(order *domain.Order) ([]generalDomain.Event, error) {
		return order.Cancel(reason)
	})
}

func (s *orderService) AddItem(ctx context.Context, id uuid.UUID, currency string, input LineItemInput) (*domain.Order, error) {
	return s.mutate(ctx, "AddItem", id, func(order *domain.Order) ([]generalDomain.Event, error) {
		if currency == "" {
			currency = order.Currency()
		}

		item, err := newLineItem(currency, input)
		if err != nil {
			return nil, err
		}

		return nil, order.AddItem(item)
	})
}

func (s *orderService) ClearItems(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.mutate(ctx, "ClearItems", id, func(order *domain.Order) ([]generalDomain.Event, error) {
		return nil, order.ClearItems()
	})
}

func (s *orderService) UpdateCustomer(ctx context.Context, id uuid.UUID, customerID string) (*domain.Order, error) {
	return s.mutate(ctx, "UpdateCustomer", id, func(order *domain.Order) ([]generalDomain.Event, error) {
		return nil, order.UpdateCustomer(customerID)
	})
}

// mutate loads the order, applies exactly one transition and stores the
// result together with its events. The whole unit is retried when the
// version check loses a race.
func (s *orderService) mutate(
	ctx context.Context,
	operation string,
	id uuid.UUID,
	apply func(order *domain.Order) ([]generalDomain.Event, error),
) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService."+operation)
	defer span.End()

	span.SetAttributes(attribute.String("order_id", id.String()))

	var result *domain.Order
	err := retryOnConflict(ctx, s.logger, operation, func() error {
		return db.WithTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
			order, err := s.applyAndPersist(ctx, tx, id, apply)
			if err != nil {
				return err
			}

			result = order
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)

		if isPermanent(err) {
			mylogger.Warn(
				ctx,
				s.logger,
				"Order operation rejected",
				zap.String("operation", operation),
				zap.String("order_id", id.String()),
				zap.Error(err),
			)

			return nil, err
		}

		mylogger.Error(
			ctx,
			s.logger,
			"Order operation failed",
			zap.String("operation", operation),
			zap.String("order_id", id.String()),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error during %s: %w", operation, err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order operation applied",
		zap.String("operation", operation),
		zap.String("order_id", id.String()),
		zap.String("status", string(result.Status())),
	)

	return result, nil
}

// applyAndPersist skips the write entirely when apply left the version
// unchanged.
func (s *orderService) applyAndPersist(
	ctx context.Context,
	tx pgx.Tx,
	id uuid.UUID,
	apply func(order *domain.Order) ([]generalDomain.Event, error),
) (*domain.Order, error) {
	order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	before := order.Version()

	events, err := apply(order)
	if err != nil {
		return nil, err
	}

	if order.Version() == before {
		return order, nil
	}

	if err := s.orderRepo.Update(ctx, tx, order, before); err != nil {
		return nil, err
	}

	if err := s.saveEvents(ctx, tx, order.ID(), events); err != nil {
		return nil, err
	}

	return order, nil
}

func (s *orderService) HandleInventoryReserved(ctx context.Context, event *generalDomain.InventoryReservedEvent) error {
	return s.handle(ctx, "HandleInventoryReserved", event.EventID(), event.OrderID,
		func(order *domain.Order) ([]generalDomain.Event, error) {
			// Lines may have changed while the reservation was in flight.
			// Cancelling releases the stale reservation on the catalog side.
			if order.Status() == domain.OrderStatusPending &&
				!maps.Equal(order.Quantities(), reservedQuantities(event.Items)) {
				mylogger.Warn(
					ctx,
					s.logger,
					"Reserved items differ from order items",
					zap.String("order_id", order.ID().String()),
					zap.Any("reserved", event.Items),
				)

				return order.Cancel(reservationMismatchReason)
			}

			return order.Validate()
		})
}

func (s *orderService) HandleInventoryReservationFailed(ctx context.Context, event *generalDomain.InventoryReservationFailedEvent) error {
	return s.handle(ctx, "HandleInventoryReservationFailed", event.EventID(), event.OrderID,
		func(order *domain.Order) ([]generalDomain.Event, error) {
			return order.Cancel("inventory reservation failed: " + event.Reason)
		})
}

func (s *orderService) HandlePaymentSucceeded(ctx context.Context, event *generalDomain.PaymentSucceededEvent) error {
	return s.handle(ctx, "HandlePaymentSucceeded", event.EventID(), event.OrderID,
		func(order *domain.Order) ([]generalDomain.Event, error) {
			if !event.Amount.IsZero() && !event.Amount.Equal(order.Total()) {
				mylogger.Warn(
					ctx,
					s.logger,
					"Payment amount differs from order total",
					zap.String("order_id", order.ID().String()),
					zap.String("paid", event.Amount.String()),
					zap.String("total", order.Total().String()),
				)
			}

			return order.MarkPaid()
		})
}

func (s *orderService) HandlePaymentFailed(ctx context.Context, event *generalDomain.PaymentFailedEvent) error {
	return s.handle(ctx, "HandlePaymentFailed", event.EventID(), event.OrderID,
		func(order *domain.Order) ([]generalDomain.Event, error) {
			reason := "payment failed"
			if event.Reason != "" {
				reason += ": " + event.Reason
			}

			return order.Cancel(reason)
		})
}

// handle applies one transition for a consumed event. Rejections that a
// redelivery cannot fix (unknown order, illegal transition) are logged and
// the event is still recorded as processed.
func (s *orderService) handle(
	ctx context.Context,
	operation string,
	eventID uuid.UUID,
	orderID uuid.UUID,
	apply func(order *domain.Order) ([]generalDomain.Event, error),
) error {
	ctx, span := s.tracer.Start(ctx, "OrderService."+operation)
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID.String()))

	err := outboxUtils.ProcessWithDeduplication(ctx, s.pool, s.logger, eventID, func(tx pgx.Tx) error {
		savepoint, err := tx.Begin(ctx)
		if err != nil {
			return fmt.Errorf("error creating savepoint: %w", err)
		}

		order, err := s.applyAndPersist(ctx, savepoint, orderID, apply)
		if err != nil {
			if rbErr := savepoint.Rollback(ctx); rbErr != nil {
				return fmt.Errorf("error rolling back savepoint: %w", rbErr)
			}

			if isPermanent(err) {
				mylogger.Warn(
					ctx,
					s.logger,
					"Event rejected by order",
					zap.String("operation", operation),
					zap.String("order_id", orderID.String()),
					zap.Error(err),
				)

				return nil
			}

			return err
		}

		if err := savepoint.Commit(ctx); err != nil {
			return fmt.Errorf("error releasing savepoint: %w", err)
		}

		mylogger.Info(
			ctx,
			s.logger,
			"Order updated from event",
			zap.String("operation", operation),
			zap.String("order_id", orderID.String()),
			zap.String("status", string(order.Status())),
		)

		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error during %s for order %s: %w", operation, orderID, err)
	}

	return nil
}

func (s *orderService) saveEvents(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, events []generalDomain.Event) error {
	rows, err := outboxDomain.FromDomainEvents(aggregateOrder, orderID.String(), generalDomain.TopicOrderEvents, events)
	if err != nil {
		return err
	}

	if err := s.outboxRepo.SaveOutboxEvents(ctx, tx, rows); err != nil {
		mylogger.Error(ctx, s.logger, "Error saving outbox events", zap.Error(err))
		return fmt.Errorf("failed to save outbox events: %w", err)
	}

	return nil
}

func newLineItem(currency string, input LineItemInput) (domain.LineItem, error) {
	if currency == "" {
		currency = generalDomain.DefaultCurrency
	}

	price, err := generalDomain.NewMoneyIn(input.UnitPrice, currency)
	if err != nil {
		return domain.LineItem{}, err
	}

	return domain.NewLineItem(input.ProductRef, input.Quantity, price)
}

func reservedQuantities(lines []generalDomain.OrderLine) map[string]int {
	quantities := make(map[string]int, len(lines))
	for _, line := range lines {
		quantities[line.ProductRef] += line.Quantity
	}

	return quantities
}

// isPermanent reports errors that no retry of the same request can fix.
func isPermanent(err error) bool {
	return generalDomain.IsDomainError(err) || errors.Is(err, repository.ErrOrderNotFound)
}
