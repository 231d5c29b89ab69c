package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ReservationRepository interface {
	Create(ctx context.Context, tx pgx.Tx, reservation *domain.Reservation) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*domain.Reservation, error)
	UpdateState(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, state domain.ReservationState) error
	MarkPending(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, state domain.ReservationState, reason string) error
	ListPendingByCode(ctx context.Context, tx pgx.Tx, code string) ([]uuid.UUID, error)
}

type reservationRepo struct {
	tracer trace.Tracer
	logger *zap.Logger
}

func NewReservationRepository(logger *zap.Logger) ReservationRepository {
	return &reservationRepo{
		logger: logger,
		tracer: otel.Tracer("contract/reservation_repo"),
	}
}

func (r *reservationRepo) Create(ctx context.Context, tx pgx.Tx, reservation *domain.Reservation) error {
	ctx, span := r.tracer.Start(ctx, "ReservationRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", reservation.OrderID.String()),
		attribute.Int("lines", len(reservation.Lines)),
	)

	lines, err := json.Marshal(reservation.Lines)
	if err != nil {
		return fmt.Errorf("error marshalling reservation lines: %w", err)
	}

	query := `
		INSERT INTO reservations (order_id, lines, state)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`

	err = tx.QueryRow(ctx, query, reservation.OrderID, lines, reservation.State).
		Scan(&reservation.CreatedAt, &reservation.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrReservationExists
		}

		span.RecordError(err)
		return fmt.Errorf("error creating reservation: %w", err)
	}

	return nil
}

func (r *reservationRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*domain.Reservation, error) {
	ctx, span := r.tracer.Start(ctx, "ReservationRepository.GetForUpdate")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID.String()),
	)

	query := `
		SELECT order_id, lines, state, pending_state, last_error, created_at, updated_at
		FROM reservations
		WHERE order_id = $1
		FOR UPDATE
	`

	var res domain.Reservation
	var lines []byte
	if err := tx.QueryRow(ctx, query, orderID).
		Scan(&res.OrderID, &lines, &res.State, &res.PendingState, &res.LastError, &res.CreatedAt, &res.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("error getting reservation: %w", err)
	}

	if err := json.Unmarshal(lines, &res.Lines); err != nil {
		return nil, fmt.Errorf("error unmarshalling reservation lines: %w", err)
	}

	return &res, nil
}

func (r *reservationRepo) UpdateState(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, state domain.ReservationState) error {
	ctx, span := r.tracer.Start(ctx, "ReservationRepository.UpdateState")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID.String()),
		attribute.String("state", string(state)),
	)

	query := `
		UPDATE reservations
		SET state = $1, pending_state = '', last_error = '', updated_at = NOW()
		WHERE order_id = $2
	`

	commandTag, err := tx.Exec(ctx, query, state, orderID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error updating reservation: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrReservationNotFound
	}

	return nil
}

func (r *reservationRepo) MarkPending(
	ctx context.Context,
	tx pgx.Tx,
	orderID uuid.UUID,
	state domain.ReservationState,
	reason string,
) error {
	ctx, span := r.tracer.Start(ctx, "ReservationRepository.MarkPending")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID.String()),
		attribute.String("pending_state", string(state)),
	)

	query := `
		UPDATE reservations
		SET pending_state = $1, last_error = $2, updated_at = NOW()
		WHERE order_id = $3
	`

	commandTag, err := tx.Exec(ctx, query, state, reason, orderID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error marking reservation pending: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrReservationNotFound
	}

	return nil
}

// ListPendingByCode returns open reservations with a parked settlement that
// include the given item.
func (r *reservationRepo) ListPendingByCode(ctx context.Context, tx pgx.Tx, code string) ([]uuid.UUID, error) {
	ctx, span := r.tracer.Start(ctx, "ReservationRepository.ListPendingByCode")
	defer span.End()

	span.SetAttributes(attribute.String("code", code))

	query := `
		SELECT order_id
		FROM reservations
		WHERE state = $1
			AND pending_state <> ''
			AND lines @> jsonb_build_array(jsonb_build_object('product_ref', $2::text))
		ORDER BY updated_at
	`

	rows, err := tx.Query(ctx, query, domain.ReservationReserved, code)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error listing pending reservations: %w", err)
	}

	orderIDs, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error scanning pending reservations: %w", err)
	}

	return orderIDs, nil
}
