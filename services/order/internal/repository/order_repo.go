package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/order/internal/domain"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Order, error)
	ListByCustomer(ctx context.Context, customerID string, limit, offset int64) ([]*domain.Order, int64, error)
	Update(ctx context.Context, tx pgx.Tx, order *domain.Order, expectedVersion int64) error
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type orderRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("order_repository"),
	}
}

const orderColumns = `id, customer_id, status, currency, total::text, tracking_number,
		cancellation_reason, created_at, updated_at, version`

func (r *orderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	s := order.Snapshot()
	span.SetAttributes(
		attribute.String("order_id", s.ID.String()),
		attribute.Int("items_count", len(s.Items)),
	)

	query := `
		INSERT INTO orders (id, customer_id, status, currency, total, tracking_number,
			cancellation_reason, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10)
	`

	_, err := tx.Exec(
		ctx,
		query,
		s.ID,
		s.CustomerID,
		string(s.Status),
		s.Currency,
		s.Total.String(),
		s.TrackingNumber,
		s.CancellationReason,
		s.CreatedAt,
		s.UpdatedAt,
		s.Version,
	)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert order",
			zap.String("order_id", s.ID.String()),
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert order: %w", err)
	}

	return r.insertItems(ctx, tx, s)
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", id.String()))

	return r.get(ctx, span, r.pool, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *orderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByIDForUpdate")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", id.String()))

	return r.get(ctx, span, tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *orderRepo) ListByCustomer(ctx context.Context, customerID string, limit, offset int64) ([]*domain.Order, int64, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.ListByCustomer")
	defer span.End()

	span.SetAttributes(
		attribute.String("customer_id", customerID),
		attribute.Int64("limit", limit),
		attribute.Int64("offset", offset),
	)

	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, customerID, limit, offset)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(ctx, r.logger, "Failed to query orders", zap.String("customer_id", customerID), zap.Error(err))
		return nil, 0, fmt.Errorf("failed to query orders: %w", err)
	}

	snapshots, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderSnapshot, error) {
		return scanOrder(row)
	})
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("failed to scan orders: %w", err)
	}

	orders := make([]*domain.Order, 0, len(snapshots))
	for _, s := range snapshots {
		order, err := r.withItems(ctx, r.pool, s)
		if err != nil {
			span.RecordError(err)
			return nil, 0, err
		}
		orders = append(orders, order)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE customer_id = $1`, customerID).Scan(&total); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	return orders, total, nil
}

// Update writes order and replaces its lines only if the stored version
// still equals expectedVersion.
func (r *orderRepo) Update(ctx context.Context, tx pgx.Tx, order *domain.Order, expectedVersion int64) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Update")
	defer span.End()

	s := order.Snapshot()
	span.SetAttributes(
		attribute.String("order_id", s.ID.String()),
		attribute.String("status", string(s.Status)),
		attribute.Int64("expected_version", expectedVersion),
	)

	query := `
		UPDATE orders
		SET customer_id = $1, status = $2, total = $3::numeric, tracking_number = $4,
			cancellation_reason = $5, updated_at = $6, version = $7
		WHERE id = $8 AND version = $9
	`

	commandTag, err := tx.Exec(
		ctx,
		query,
		s.CustomerID,
		string(s.Status),
		s.Total.String(),
		s.TrackingNumber,
		s.CancellationReason,
		s.UpdatedAt,
		s.Version,
		s.ID,
		expectedVersion,
	)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to update order",
			zap.String("order_id", s.ID.String()),
			zap.Error(err),
		)

		return fmt.Errorf("failed to update order: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to check order existence: %w", err)
		}

		if !exists {
			mylogger.Warn(ctx, r.logger, "Order not found", zap.String("order_id", s.ID.String()))
			return ErrOrderNotFound
		}

		mylogger.Warn(
			ctx,
			r.logger,
			"Order version mismatch",
			zap.String("order_id", s.ID.String()),
			zap.Int64("expected_version", expectedVersion),
		)

		return ErrConcurrentUpdate
	}

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, s.ID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete order items: %w", err)
	}

	return r.insertItems(ctx, tx, s)
}

func (r *orderRepo) insertItems(ctx context.Context, tx pgx.Tx, s domain.OrderSnapshot) error {
	if len(s.Items) == 0 {
		return nil
	}

	query := `
		INSERT INTO order_items (order_id, position, product_ref, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5::numeric)
	`

	batch := &pgx.Batch{}
	for i, item := range s.Items {
		batch.Queue(query, s.ID, i, item.ProductRef, item.Quantity, item.UnitPrice.String())
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert order items",
			zap.String("order_id", s.ID.String()),
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert order items: %w", err)
	}

	return nil
}

func (r *orderRepo) get(ctx context.Context, span trace.Span, q querier, query string, id uuid.UUID) (*domain.Order, error) {
	s, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to get order",
			zap.String("order_id", id.String()),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	order, err := r.withItems(ctx, q, s)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return order, nil
}

func (r *orderRepo) withItems(ctx context.Context, q querier, s domain.OrderSnapshot) (*domain.Order, error) {
	query := `
		SELECT product_ref, quantity, unit_price::text
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`

	rows, err := q.Query(ctx, query, s.ID)
	if err != nil {
		mylogger.Error(ctx, r.logger, "Failed to query order_items", zap.Error(err))
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.LineItemSnapshot
		var unitPrice string

		if err := rows.Scan(&item.ProductRef, &item.Quantity, &unitPrice); err != nil {
			mylogger.Error(ctx, r.logger, "Failed to scan row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}

		item.UnitPrice, err = decimal.NewFromString(unitPrice)
		if err != nil {
			return nil, fmt.Errorf("error parsing stored unit price %q: %w", unitPrice, err)
		}

		s.Items = append(s.Items, item)
	}

	if err := rows.Err(); err != nil {
		mylogger.Error(ctx, r.logger, "Rows error", zap.Error(err))
		return nil, err
	}

	order, err := domain.RehydrateOrder(s)
	if err != nil {
		return nil, fmt.Errorf("stored order %s is invalid: %w", s.ID, err)
	}

	return order, nil
}

func scanOrder(row pgx.Row) (domain.OrderSnapshot, error) {
	var s domain.OrderSnapshot
	var status, total string

	if err := row.Scan(
		&s.ID,
		&s.CustomerID,
		&status,
		&s.Currency,
		&total,
		&s.TrackingNumber,
		&s.CancellationReason,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.Version,
	); err != nil {
		return domain.OrderSnapshot{}, err
	}

	amount, err := decimal.NewFromString(total)
	if err != nil {
		return domain.OrderSnapshot{}, fmt.Errorf("error parsing stored total %q: %w", total, err)
	}

	s.Status = domain.OrderStatus(status)
	s.Total = amount

	return s, nil
}
