package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/domain"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

type ItemRepository interface {
	Create(ctx context.Context, tx pgx.Tx, item *domain.Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Item, error)
	GetByCodeForUpdate(ctx context.Context, tx pgx.Tx, code string) (*domain.Item, error)
	List(ctx context.Context, limit, offset int64, search string) ([]*domain.Item, int64, error)
	Update(ctx context.Context, tx pgx.Tx, item *domain.Item, expectedVersion int64) error
}

type itemRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewItemRepository(pool *pgxpool.Pool, logger *zap.Logger) ItemRepository {
	return &itemRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("contract/item_repo"),
	}
}

const itemColumns = `id, code, name, description, price::text, currency, available, reserved,
		category, active, created_at, updated_at, version`

func (r *itemRepo) Create(ctx context.Context, tx pgx.Tx, item *domain.Item) error {
	ctx, span := r.tracer.Start(ctx, "ItemRepository.Create")
	defer span.End()

	s := item.Snapshot()
	span.SetAttributes(
		attribute.String("item_id", s.ID.String()),
		attribute.String("code", s.Code),
	)

	query := `
		INSERT INTO items (id, code, name, description, price, currency, available, reserved,
			category, active, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12, $13);
	`

	_, err := tx.Exec(
		ctx,
		query,
		s.ID,
		s.Code,
		s.Name,
		s.Description,
		s.Price.String(),
		s.Currency,
		s.Available,
		s.Reserved,
		s.Category,
		s.Active,
		s.CreatedAt,
		s.UpdatedAt,
		s.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			mylogger.Warn(ctx, r.logger, "Duplicate item code", zap.String("code", s.Code))
			return ErrDuplicateCode
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error creating item",
			zap.String("code", s.Code),
			zap.Error(err),
		)

		return fmt.Errorf("error creating item: %w", err)
	}

	return nil
}

func (r *itemRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	ctx, span := r.tracer.Start(ctx, "ItemRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.String("item_id", id.String()),
	)

	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`

	item, err := scanItem(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, r.wrapGetError(ctx, span, err, zap.String("item_id", id.String()))
	}

	return item, nil
}

func (r *itemRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Item, error) {
	ctx, span := r.tracer.Start(ctx, "ItemRepository.GetByIDForUpdate")
	defer span.End()

	span.SetAttributes(
		attribute.String("item_id", id.String()),
	)

	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1 FOR UPDATE`

	item, err := scanItem(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, r.wrapGetError(ctx, span, err, zap.String("item_id", id.String()))
	}

	return item, nil
}

func (r *itemRepo) GetByCodeForUpdate(ctx context.Context, tx pgx.Tx, code string) (*domain.Item, error) {
	ctx, span := r.tracer.Start(ctx, "ItemRepository.GetByCodeForUpdate")
	defer span.End()

	span.SetAttributes(
		attribute.String("code", code),
	)

	query := `SELECT ` + itemColumns + ` FROM items WHERE code = $1 FOR UPDATE`

	item, err := scanItem(tx.QueryRow(ctx, query, code))
	if err != nil {
		return nil, r.wrapGetError(ctx, span, err, zap.String("code", code))
	}

	return item, nil
}

func (r *itemRepo) List(ctx context.Context, limit, offset int64, search string) ([]*domain.Item, int64, error) {
	ctx, span := r.tracer.Start(ctx, "ItemRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("limit", limit),
		attribute.Int64("offset", offset),
		attribute.String("search", search),
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM items WHERE TRUE`
	countQuery := `SELECT COUNT(*) FROM items WHERE TRUE`

	var args []interface{}
	argId := 1

	if search != "" {
		filter := fmt.Sprintf(" AND (name ILIKE $%d OR code ILIKE $%d)", argId, argId)
		baseQuery += filter
		countQuery += filter

		args = append(args, "%"+search+"%")
		argId++
	}

	baseQuery += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", argId, argId+1)
	countArgs := append([]interface{}(nil), args...)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, baseQuery, args...)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error listing items",
			zap.String("search", search),
			zap.Int64("limit", limit),
			zap.Int64("offset", offset),
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("error selecting items: %w", err)
	}
	defer rows.Close()

	var items []*domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			span.RecordError(err)

			mylogger.Error(ctx, r.logger, "Failed to scan item row", zap.Error(err))
			return nil, 0, fmt.Errorf("error scanning rows: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)

		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	var totalCount int64
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&totalCount); err != nil {
		span.RecordError(err)

		mylogger.Error(ctx, r.logger, "Failed to count items", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count items: %w", err)
	}

	return items, totalCount, nil
}

// Update writes item only if the stored version still equals
// expectedVersion.
func (r *itemRepo) Update(ctx context.Context, tx pgx.Tx, item *domain.Item, expectedVersion int64) error {
	ctx, span := r.tracer.Start(ctx, "ItemRepository.Update")
	defer span.End()

	s := item.Snapshot()
	span.SetAttributes(
		attribute.String("item_id", s.ID.String()),
		attribute.Int64("expected_version", expectedVersion),
		attribute.Int64("version", s.Version),
	)

	query := `
		UPDATE items
		SET name = $1, description = $2, price = $3::numeric, currency = $4,
			available = $5, reserved = $6, category = $7, active = $8,
			updated_at = $9, version = $10
		WHERE id = $11 AND version = $12
	`

	commandTag, err := tx.Exec(
		ctx,
		query,
		s.Name,
		s.Description,
		s.Price.String(),
		s.Currency,
		s.Available,
		s.Reserved,
		s.Category,
		s.Active,
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
			"Failed to update item",
			zap.String("item_id", s.ID.String()),
			zap.Error(err),
		)

		return fmt.Errorf("error updating item: %w", err)
	}

	if commandTag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
		span.RecordError(err)
		return fmt.Errorf("error checking item existence: %w", err)
	}

	if !exists {
		return ErrItemNotFound
	}

	mylogger.Warn(
		ctx,
		r.logger,
		"Item version mismatch",
		zap.String("item_id", s.ID.String()),
		zap.Int64("expected_version", expectedVersion),
	)

	return ErrConcurrentUpdate
}

func (r *itemRepo) wrapGetError(ctx context.Context, span trace.Span, err error, fields ...zap.Field) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrItemNotFound
	}

	span.RecordError(err)

	mylogger.Error(
		ctx,
		r.logger,
		"Error getting item",
		append(fields, zap.Error(err))...,
	)

	return fmt.Errorf("error getting item: %w", err)
}

func scanItem(row pgx.Row) (*domain.Item, error) {
	var s domain.ItemSnapshot
	var price string

	if err := row.Scan(
		&s.ID,
		&s.Code,
		&s.Name,
		&s.Description,
		&price,
		&s.Currency,
		&s.Available,
		&s.Reserved,
		&s.Category,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.Version,
	); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("error parsing stored price %q: %w", price, err)
	}
	s.Price = amount

	item, err := domain.RehydrateItem(s)
	if err != nil {
		return nil, fmt.Errorf("stored item %s is invalid: %w", s.ID, err)
	}

	return item, nil
}
