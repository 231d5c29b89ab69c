package tests

import (
	"time"

	"github.com/google/uuid"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/services/order/internal/domain"
	"github.com/sakashimaa/fulfillment/services/order/internal/service"
	"github.com/shopspring/decimal"
)

func (s *IntegrationTestSuite) createOrder(customerID string) *domain.Order {
	order, err := s.OrderService.CreateOrder(s.Ctx, service.CreateOrderInput{
		CustomerID: customerID,
		Items: []service.LineItemInput{
			{ProductRef: "SKU-1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
			{ProductRef: "SKU-2", Quantity: 1, UnitPrice: decimal.RequireFromString("25.50")},
		},
	})
	s.Require().NoError(err)

	return order
}

// reservedEvent is what the catalog emits after reserving the order's
// current lines.
func (s *IntegrationTestSuite) reservedEvent(order *domain.Order) *generalDomain.InventoryReservedEvent {
	lines := make([]generalDomain.OrderLine, 0, len(order.Items()))
	for _, item := range order.Items() {
		lines = append(lines, generalDomain.OrderLine{ProductRef: item.ProductRef(), Quantity: item.Quantity()})
	}

	return &generalDomain.InventoryReservedEvent{
		EventMeta: generalDomain.NewEventMeta(),
		OrderID:   order.ID(),
		Items:     lines,
	}
}

// advance drives a fresh order to status through the HTTP-facing use cases.
func (s *IntegrationTestSuite) advance(order *domain.Order, status domain.OrderStatus) *domain.Order {
	steps := []struct {
		to domain.OrderStatus
		fn func() (*domain.Order, error)
	}{
		{to: domain.OrderStatusValidated, fn: func() (*domain.Order, error) { return s.OrderService.ValidateOrder(s.Ctx, order.ID()) }},
		{to: domain.OrderStatusPaymentProcessing, fn: func() (*domain.Order, error) { return s.OrderService.BeginPayment(s.Ctx, order.ID()) }},
		{to: domain.OrderStatusPaid, fn: func() (*domain.Order, error) { return s.OrderService.MarkPaid(s.Ctx, order.ID()) }},
		{to: domain.OrderStatusShipped, fn: func() (*domain.Order, error) { return s.OrderService.Ship(s.Ctx, order.ID(), "TRACK-1") }},
		{to: domain.OrderStatusDelivered, fn: func() (*domain.Order, error) { return s.OrderService.Deliver(s.Ctx, order.ID()) }},
	}

	current := order
	for _, step := range steps {
		if current.Status() == status {
			break
		}

		var err error
		current, err = step.fn()
		s.Require().NoError(err)
		s.Require().Equal(step.to, current.Status())
	}

	return current
}

func (s *IntegrationTestSuite) status(id uuid.UUID) string {
	var status string
	err := s.DbPool.QueryRow(s.Ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&status)
	s.Require().NoError(err)

	return status
}

func (s *IntegrationTestSuite) outboxEventTypes(aggregateID string) []string {
	rows, err := s.DbPool.Query(s.Ctx, `
		SELECT event_type
		FROM outbox
		WHERE aggregate_id = $1
		ORDER BY id
	`, aggregateID)
	s.Require().NoError(err)
	defer rows.Close()

	var types []string
	for rows.Next() {
		var eventType string
		s.Require().NoError(rows.Scan(&eventType))
		types = append(types, eventType)
	}
	s.Require().NoError(rows.Err())

	return types
}

func (s *IntegrationTestSuite) requirePublished(aggregateID, eventType string) {
	query := `
		SELECT published_at
		FROM outbox
		WHERE aggregate_id = $1 AND event_type = $2
		ORDER BY id DESC
		LIMIT 1
	`

	s.Require().Eventually(func() bool {
		var publishedAt *time.Time

		err := s.DbPool.QueryRow(s.Ctx, query, aggregateID, eventType).Scan(&publishedAt)
		return err == nil && publishedAt != nil
	}, 10*time.Second, 100*time.Millisecond)
}
