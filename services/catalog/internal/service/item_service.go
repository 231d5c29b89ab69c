package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/fulfillment/pkg/db"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/fulfillment/pkg/outbox/domain"
	outboxUtils "github.com/sakashimaa/fulfillment/pkg/outbox/utils"
	"github.com/sakashimaa/fulfillment/pkg/outbox/worker"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/domain"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/repository"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	aggregateItem      = "Item"
	aggregateInventory = "Inventory"
	maxUpdateAttempts  = 3
)

type CreateItemInput struct {
	Code         string
	Name         string
	Description  string
	Price        decimal.Decimal
	Currency     string
	InitialStock int
	Category     string
}

type UpdateItemInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Currency    string
	Category    string
}

type ItemService interface {
	Create(ctx context.Context, input CreateItemInput) (*domain.Item, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Item, error)
	List(ctx context.Context, limit, offset int64, search string) ([]*domain.Item, int64, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateItemInput) (*domain.Item, error)
	AdjustStock(ctx context.Context, id uuid.UUID, newAvailable int) (*domain.Item, error)
	ReserveStock(ctx context.Context, id uuid.UUID, quantity int) (*domain.Item, error)
	ReleaseStock(ctx context.Context, id uuid.UUID, quantity int) (*domain.Item, error)
	CommitStock(ctx context.Context, id uuid.UUID, quantity int) (*domain.Item, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*domain.Item, error)
	Activate(ctx context.Context, id uuid.UUID) (*domain.Item, error)
	SettlePending(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)

	// The order handlers return the ids of every item whose stock changed.
	ReserveForOrder(ctx context.Context, msg *generalDomain.OrderCreatedMessage) ([]uuid.UUID, error)
	ReleaseForOrder(ctx context.Context, msg *generalDomain.OrderCancelledMessage) ([]uuid.UUID, error)
	CommitForOrder(ctx context.Context, msg *generalDomain.OrderShippedMessage) ([]uuid.UUID, error)
}

type itemService struct {
	itemRepo        repository.ItemRepository
	reservationRepo repository.ReservationRepository
	outboxRepo      worker.OutboxRepository
	pool            *pgxpool.Pool
	logger          *zap.Logger
	tracer          trace.Tracer
}

func NewItemService(
	itemRepo repository.ItemRepository,
	reservationRepo repository.ReservationRepository,
	outboxRepo worker.OutboxRepository,
	pool *pgxpool.Pool,
	logger *zap.Logger,
) ItemService {
	return &itemService{
		itemRepo:        itemRepo,
		reservationRepo: reservationRepo,
		outboxRepo:      outboxRepo,
		pool:            pool,
		logger:          logger,
		tracer:          otel.Tracer("catalog/item_service"),
	}
}

func (s *itemService) Create(ctx context.Context, input CreateItemInput) (*domain.Item, error) {
	ctx, span := s.tracer.Start(ctx, "ItemService.Create")
	defer span.End()

	code, err := generalDomain.NewProductCode(input.Code)
	if err != nil {
		return nil, err
	}

	price, err := generalDomain.NewMoneyIn(input.Price, currencyOrDefault(input.Currency))
	if err != nil {
		return nil, err
	}

	item, events, err := domain.NewItem(code, input.Name, input.Description, price, input.InitialStock, input.Category)
	if err != nil {
		mylogger.Warn(ctx, s.logger, "Invalid item", zap.String("code", input.Code), zap.Error(err))
		return nil, err
	}

	span.SetAttributes(attribute.String("item_id", item.ID().String()))

	err = db.WithTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		if err := s.itemRepo.Create(ctx, tx, item); err != nil {
			return err
		}

		return s.saveEvents(ctx, tx, aggregateItem, item.ID(), generalDomain.TopicItemEvents, events)
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error creating item: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Item created",
		zap.String("item_id", item.ID().String()),
		zap.String("code", item.Code().String()),
	)

	return item, nil
}

func (s *itemService) FindByID(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	item, err := s.itemRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			mylogger.Warn(ctx, s.logger, "Item not found", zap.String("item_id", id.String()))
			return nil, err
		}

		mylogger.Error(ctx, s.logger, "Error getting item", zap.Error(err))
		return nil, fmt.Errorf("error getting item by id: %w", err)
	}

	return item, nil
}

func (s *itemService) List(ctx context.Context, limit, offset int64, search string) ([]*domain.Item, int64, error) {
	items, total, err := s.itemRepo.List(ctx, limit, offset, search)
	if err != nil {
		mylogger.Error(ctx, s.logger, "List error", zap.Error(err))
		return nil, 0, fmt.Errorf("error listing items: %w", err)
	}

	return items, total, nil
}

func (s *itemService) Update(ctx context.Context, id uuid.UUID, input UpdateItemInput) (*domain.Item, error) {
	price, err := generalDomain.NewMoneyIn(input.Price, currencyOrDefault(input.Currency))
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, "Update", id, func(item *domain.Item) ([]generalDomain.Event, error) {
		return item.Update(input.Name, input.Description, price, input.Category)
	})
}

func (s *itemService) AdjustStock(ctx context.Context, id uuid.UUID, newAvailable int) (*domain.Item, error) {
	return s.mutate(ctx, "AdjustStock", id, func(item *domain.Item) ([]generalDomain.Event, error) {
		return item.AdjustStock(newAvailable)
	})
}

func (s *itemService) ReserveStock(ctx context.Context, id uuid.UUID, quantity int) (*domain.Item, error) {
	return s.mutate(ctx, "ReserveStock", id, func(item *domain.Item) ([]generalDomain.Event, error) {
		return item.ReserveStock(quantity)
	})
}

func (s *itemService) ReleaseStock(ctx context.Context, id uuid.UUID, quantity int) (*domain.Item, error) {
	return s.mutate(ctx, "ReleaseStock", id, func(item *domain.Item) ([]generalDomain.Event, error) {
		return item.ReleaseStock(quantity)
	})
}

func (s *itemService) CommitStock(ctx context.Context, id uuid.UUID, quantity int) (*domain.Item, error) {
	return s.mutate(ctx, "CommitStock", id, func(item *domain.Item) ([]generalDomain.Event, error) {
		return item.CommitStock(quantity)
	})
}

func (s *itemService) Deactivate(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return s.mutate(ctx, "Deactivate", id, func(item *domain.Item) ([]generalDomain.Event, error) {
		return item.Deactivate(), nil
	})
}

func (s *itemService) Activate(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return s.mutate(ctx, "Activate", id, func(item *domain.Item) ([]generalDomain.Event, error) {
		return item.Activate(), nil
	})
}

// mutate loads the item, applies exactly one domain operation and stores
// the result together with its events. The whole unit is retried when the
// version check loses a race.
func (s *itemService) mutate(
	ctx context.Context,
	operation string,
	id uuid.UUID,
	apply func(item *domain.Item) ([]generalDomain.Event, error),
) (*domain.Item, error) {
	ctx, span := s.tracer.Start(ctx, "ItemService."+operation)
	defer span.End()

	span.SetAttributes(attribute.String("item_id", id.String()))

	var result *domain.Item
	err := retryOnConflict(ctx, s.logger, operation, func() error {
		return db.WithTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
			item, err := s.itemRepo.GetByIDForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}

			if err := s.applyAndPersist(ctx, tx, item, apply); err != nil {
				return err
			}

			result = item
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)

		if generalDomain.IsDomainError(err) || errors.Is(err, repository.ErrItemNotFound) {
			mylogger.Warn(
				ctx,
				s.logger,
				"Item operation rejected",
				zap.String("operation", operation),
				zap.String("item_id", id.String()),
				zap.Error(err),
			)

			return nil, err
		}

		mylogger.Error(
			ctx,
			s.logger,
			"Item operation failed",
			zap.String("operation", operation),
			zap.String("item_id", id.String()),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error during %s: %w", operation, err)
	}

	return result, nil
}

// applyAndPersist skips the write entirely when apply left the version
// unchanged.
func (s *itemService) applyAndPersist(
	ctx context.Context,
	tx pgx.Tx,
	item *domain.Item,
	apply func(item *domain.Item) ([]generalDomain.Event, error),
) error {
	before := item.Version()

	events, err := apply(item)
	if err != nil {
		return err
	}

	if item.Version() == before {
		return nil
	}

	if err := s.itemRepo.Update(ctx, tx, item, before); err != nil {
		return err
	}

	return s.saveEvents(ctx, tx, aggregateItem, item.ID(), generalDomain.TopicItemEvents, events)
}

func (s *itemService) ReserveForOrder(ctx context.Context, msg *generalDomain.OrderCreatedMessage) ([]uuid.UUID, error) {
	ctx, span := s.tracer.Start(ctx, "ItemService.ReserveForOrder")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", msg.OrderID.String()))

	var touched []uuid.UUID
	err := outboxUtils.ProcessWithDeduplication(ctx, s.pool, s.logger, msg.EventID(), func(tx pgx.Tx) error {
		touched = nil

		_, err := s.reservationRepo.GetForUpdate(ctx, tx, msg.OrderID)
		if err == nil {
			mylogger.Info(ctx, s.logger, "Order already has a reservation", zap.String("order_id", msg.OrderID.String()))
			return nil
		}
		if !errors.Is(err, repository.ErrReservationNotFound) {
			return err
		}

		savepoint, err := tx.Begin(ctx)
		if err != nil {
			return fmt.Errorf("error creating savepoint: %w", err)
		}

		ids, reserveErr := s.reserveLines(ctx, savepoint, msg)
		if reserveErr == nil {
			reserveErr = s.reservationRepo.Create(ctx, savepoint, &domain.Reservation{
				OrderID: msg.OrderID,
				Lines:   msg.Items,
				State:   domain.ReservationReserved,
			})
		}

		var outcome generalDomain.Event
		switch {
		case reserveErr == nil:
			if err := savepoint.Commit(ctx); err != nil {
				return fmt.Errorf("error releasing savepoint: %w", err)
			}

			touched = ids
			outcome = generalDomain.InventoryReservedEvent{
				EventMeta: generalDomain.NewEventMeta(),
				OrderID:   msg.OrderID,
				Items:     msg.Items,
			}
		case isPermanent(reserveErr):
			if err := savepoint.Rollback(ctx); err != nil {
				return fmt.Errorf("error rolling back savepoint: %w", err)
			}

			mylogger.Warn(
				ctx,
				s.logger,
				"Inventory reservation failed",
				zap.String("order_id", msg.OrderID.String()),
				zap.Error(reserveErr),
			)

			outcome = generalDomain.InventoryReservationFailedEvent{
				EventMeta: generalDomain.NewEventMeta(),
				OrderID:   msg.OrderID,
				Reason:    reserveErr.Error(),
			}
		default:
			return reserveErr
		}

		return s.saveEvents(ctx, tx, aggregateInventory, msg.OrderID, generalDomain.TopicInventoryEvents, []generalDomain.Event{outcome})
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error reserving stock for order %s: %w", msg.OrderID, err)
	}

	mylogger.Info(ctx, s.logger, "Order reservation handled", zap.String("order_id", msg.OrderID.String()))
	return touched, nil
}

func (s *itemService) reserveLines(ctx context.Context, tx pgx.Tx, msg *generalDomain.OrderCreatedMessage) ([]uuid.UUID, error) {
	if len(msg.Items) == 0 {
		return nil, generalDomain.NewValidationError("order %s has no items to reserve", msg.OrderID)
	}

	return s.applyToLines(ctx, tx, msg.Items, func(item *domain.Item, quantity int) ([]generalDomain.Event, error) {
		return item.ReserveStock(quantity)
	})
}

func (s *itemService) ReleaseForOrder(ctx context.Context, msg *generalDomain.OrderCancelledMessage) ([]uuid.UUID, error) {
	return s.settle(ctx, "ReleaseForOrder", msg.EventID(), msg.OrderID, domain.ReservationReleased)
}

func (s *itemService) CommitForOrder(ctx context.Context, msg *generalDomain.OrderShippedMessage) ([]uuid.UUID, error) {
	return s.settle(ctx, "CommitForOrder", msg.EventID(), msg.OrderID, domain.ReservationCommitted)
}

func (s *itemService) settle(
	ctx context.Context,
	operation string,
	eventID uuid.UUID,
	orderID uuid.UUID,
	final domain.ReservationState,
) ([]uuid.UUID, error) {
	ctx, span := s.tracer.Start(ctx, "ItemService."+operation)
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID.String()))

	var touched []uuid.UUID
	err := outboxUtils.ProcessWithDeduplication(ctx, s.pool, s.logger, eventID, func(tx pgx.Tx) error {
		ids, err := s.settleReservation(ctx, tx, operation, orderID, final)
		touched = ids
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error during %s for order %s: %w", operation, orderID, err)
	}

	return touched, nil
}

// SettlePending retries settlements parked on reservations that include
// the item. Each reservation is settled in its own transaction.
func (s *itemService) SettlePending(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	ctx, span := s.tracer.Start(ctx, "ItemService.SettlePending")
	defer span.End()

	span.SetAttributes(attribute.String("item_id", id.String()))

	item, err := s.itemRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var orderIDs []uuid.UUID
	err = db.WithTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		orderIDs, err = s.reservationRepo.ListPendingByCode(ctx, tx, item.Code().String())
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error listing parked settlements: %w", err)
	}

	var touched []uuid.UUID
	for _, orderID := range orderIDs {
		err := db.WithTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
			ids, err := s.settleReservation(ctx, tx, "SettlePending", orderID, "")
			touched = append(touched, ids...)
			return err
		})
		if err != nil {
			span.RecordError(err)
			return touched, fmt.Errorf("error settling reservation for order %s: %w", orderID, err)
		}
	}

	return touched, nil
}

// settleReservation moves an open reservation to its final state. Orders
// without an open reservation are acknowledged without touching stock. A
// domain error leaves stock untouched and parks the settlement on the
// reservation, since redelivery cannot fix it.
func (s *itemService) settleReservation(
	ctx context.Context,
	tx pgx.Tx,
	operation string,
	orderID uuid.UUID,
	requested domain.ReservationState,
) ([]uuid.UUID, error) {
	reservation, err := s.reservationRepo.GetForUpdate(ctx, tx, orderID)
	if errors.Is(err, repository.ErrReservationNotFound) {
		mylogger.Info(ctx, s.logger, "No reservation for order", zap.String("order_id", orderID.String()))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !reservation.IsOpen() {
		mylogger.Info(
			ctx,
			s.logger,
			"Reservation already settled",
			zap.String("order_id", orderID.String()),
			zap.String("state", string(reservation.State)),
		)

		return nil, nil
	}

	final := reservation.Settlement(requested)
	if final == "" {
		return nil, nil
	}

	savepoint, err := tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating savepoint: %w", err)
	}

	ids, err := s.applyToLines(ctx, savepoint, reservation.Lines, stockSettlement(final))
	if err == nil {
		err = s.reservationRepo.UpdateState(ctx, savepoint, orderID, final)
	}

	if err != nil {
		if rbErr := savepoint.Rollback(ctx); rbErr != nil {
			return nil, fmt.Errorf("error rolling back savepoint: %w", rbErr)
		}

		if !isPermanent(err) {
			return nil, err
		}

		mylogger.Error(
			ctx,
			s.logger,
			"Reservation settlement parked until the item is active",
			zap.String("operation", operation),
			zap.String("order_id", orderID.String()),
			zap.String("pending_state", string(final)),
			zap.Error(err),
		)

		if err := s.reservationRepo.MarkPending(ctx, tx, orderID, final, err.Error()); err != nil {
			return nil, err
		}

		return nil, nil
	}

	if err := savepoint.Commit(ctx); err != nil {
		return nil, fmt.Errorf("error releasing savepoint: %w", err)
	}

	return ids, nil
}

func stockSettlement(final domain.ReservationState) func(item *domain.Item, quantity int) ([]generalDomain.Event, error) {
	if final == domain.ReservationCommitted {
		return func(item *domain.Item, quantity int) ([]generalDomain.Event, error) {
			return item.CommitStock(quantity)
		}
	}

	return func(item *domain.Item, quantity int) ([]generalDomain.Event, error) {
		return item.ReleaseStock(quantity)
	}
}

// applyToLines locks items in code order so concurrent orders sharing
// items cannot deadlock.
func (s *itemService) applyToLines(
	ctx context.Context,
	tx pgx.Tx,
	lines []generalDomain.OrderLine,
	apply func(item *domain.Item, quantity int) ([]generalDomain.Event, error),
) ([]uuid.UUID, error) {
	sorted := append([]generalDomain.OrderLine(nil), lines...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ProductRef < sorted[j].ProductRef
	})

	var ids []uuid.UUID
	for _, line := range sorted {
		item, err := s.itemRepo.GetByCodeForUpdate(ctx, tx, line.ProductRef)
		if err != nil {
			if errors.Is(err, repository.ErrItemNotFound) {
				return nil, fmt.Errorf("item %s: %w", line.ProductRef, err)
			}

			return nil, err
		}

		quantity := line.Quantity
		err = s.applyAndPersist(ctx, tx, item, func(item *domain.Item) ([]generalDomain.Event, error) {
			return apply(item, quantity)
		})
		if err != nil {
			return nil, err
		}

		ids = append(ids, item.ID())
	}

	return ids, nil
}

func (s *itemService) saveEvents(
	ctx context.Context,
	tx pgx.Tx,
	aggregateType string,
	aggregateID uuid.UUID,
	topic string,
	events []generalDomain.Event,
) error {
	rows, err := outboxDomain.FromDomainEvents(aggregateType, aggregateID.String(), topic, events)
	if err != nil {
		return err
	}

	if err := s.outboxRepo.SaveOutboxEvents(ctx, tx, rows); err != nil {
		mylogger.Error(ctx, s.logger, "Error saving outbox events", zap.Error(err))
		return fmt.Errorf("failed to save outbox events: %w", err)
	}

	return nil
}

// isPermanent reports errors that no retry of the same message can fix.
func isPermanent(err error) bool {
	return generalDomain.IsDomainError(err) || errors.Is(err, repository.ErrItemNotFound)
}

func currencyOrDefault(currency string) string {
	if currency == "" {
		return generalDomain.DefaultCurrency
	}

	return currency
}
