package tests

import (
	"github.com/google/uuid"
	"github.com/sakashimaa/fulfillment/pkg/domain"
	orderDomain "github.com/sakashimaa/fulfillment/services/order/internal/domain"
	"github.com/sakashimaa/fulfillment/services/order/internal/service"
	"github.com/shopspring/decimal"
)

func (s *IntegrationTestSuite) TestInventoryReserved_ValidatesOrder() {
	order := s.createOrder("CUST001")

	event := s.reservedEvent(order)
	s.Require().NoError(s.OrderService.HandleInventoryReserved(s.Ctx, event))
	s.Equal(string(orderDomain.OrderStatusValidated), s.status(order.ID()))

	// Redelivery is skipped rather than rejected by the state machine.
	s.Require().NoError(s.OrderService.HandleInventoryReserved(s.Ctx, event))

	var processed int
	err := s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM processed_events WHERE event_id = $1`, event.ID).Scan(&processed)
	s.Require().NoError(err)
	s.Equal(1, processed)

	s.Equal([]string{domain.EventOrderCreated, orderDomain.EventOrderValidated}, s.outboxEventTypes(order.ID().String()))
}

func (s *IntegrationTestSuite) TestInventoryReserved_ItemsChangedCancelsOrder() {
	order := s.createOrder("CUST001")
	event := s.reservedEvent(order)

	_, err := s.OrderService.ClearItems(s.Ctx, order.ID())
	s.Require().NoError(err)
	_, err = s.OrderService.AddItem(s.Ctx, order.ID(), "", service.LineItemInput{
		ProductRef: "SKU-3",
		Quantity:   5,
		UnitPrice:  decimal.RequireFromString("4.00"),
	})
	s.Require().NoError(err)

	s.Require().NoError(s.OrderService.HandleInventoryReserved(s.Ctx, event))

	stored, err := s.OrderService.GetOrder(s.Ctx, order.ID())
	s.Require().NoError(err)
	s.Equal(orderDomain.OrderStatusCancelled, stored.Status())
	s.Equal("inventory reservation does not match order items", stored.CancellationReason())
	s.Equal([]string{domain.EventOrderCreated, domain.EventOrderCancelled}, s.outboxEventTypes(order.ID().String()))
	s.requirePublished(order.ID().String(), domain.EventOrderCancelled)
}

func (s *IntegrationTestSuite) TestInventoryReserved_QuantityChangedCancelsOrder() {
	order := s.createOrder("CUST001")
	event := s.reservedEvent(order)

	_, err := s.OrderService.AddItem(s.Ctx, order.ID(), "", service.LineItemInput{
		ProductRef: "SKU-1",
		Quantity:   1,
		UnitPrice:  decimal.RequireFromString("10.00"),
	})
	s.Require().NoError(err)

	s.Require().NoError(s.OrderService.HandleInventoryReserved(s.Ctx, event))
	s.Equal(string(orderDomain.OrderStatusCancelled), s.status(order.ID()))
}

func (s *IntegrationTestSuite) TestInventoryReservationFailed_CancelsOrder() {
	order := s.createOrder("CUST001")

	err := s.OrderService.HandleInventoryReservationFailed(s.Ctx, &domain.InventoryReservationFailedEvent{
		EventMeta: domain.NewEventMeta(),
		OrderID:   order.ID(),
		Reason:    "cannot reserve 60 items. Only 50 available.",
	})
	s.Require().NoError(err)

	stored, err := s.OrderService.GetOrder(s.Ctx, order.ID())
	s.Require().NoError(err)
	s.Equal(orderDomain.OrderStatusCancelled, stored.Status())
	s.Contains(stored.CancellationReason(), "inventory reservation failed")
	s.requirePublished(order.ID().String(), domain.EventOrderCancelled)
}

func (s *IntegrationTestSuite) TestPaymentSucceeded_MarksPaid() {
	order := s.advance(s.createOrder("CUST001"), orderDomain.OrderStatusPaymentProcessing)

	err := s.OrderService.HandlePaymentSucceeded(s.Ctx, &domain.PaymentSucceededEvent{
		EventMeta: domain.NewEventMeta(),
		OrderID:   order.ID(),
		PaymentID: "pay-1",
		Amount:    order.Total(),
	})
	s.Require().NoError(err)
	s.Equal(string(orderDomain.OrderStatusPaid), s.status(order.ID()))
}

func (s *IntegrationTestSuite) TestPaymentSucceeded_WrongStateIsAcknowledged() {
	order := s.createOrder("CUST001")

	event := &domain.PaymentSucceededEvent{EventMeta: domain.NewEventMeta(), OrderID: order.ID(), PaymentID: "pay-1"}
	s.Require().NoError(s.OrderService.HandlePaymentSucceeded(s.Ctx, event))
	s.Equal(string(orderDomain.OrderStatusPending), s.status(order.ID()))

	var processed int
	err := s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM processed_events WHERE event_id = $1`, event.ID).Scan(&processed)
	s.Require().NoError(err)
	s.Equal(1, processed)
}

func (s *IntegrationTestSuite) TestPaymentFailed_CancelsOrder() {
	order := s.advance(s.createOrder("CUST001"), orderDomain.OrderStatusPaymentProcessing)

	err := s.OrderService.HandlePaymentFailed(s.Ctx, &domain.PaymentFailedEvent{
		EventMeta: domain.NewEventMeta(),
		OrderID:   order.ID(),
		PaymentID: "pay-1",
		Reason:    "card declined",
	})
	s.Require().NoError(err)

	stored, err := s.OrderService.GetOrder(s.Ctx, order.ID())
	s.Require().NoError(err)
	s.Equal(orderDomain.OrderStatusCancelled, stored.Status())
	s.Equal("payment failed: card declined", stored.CancellationReason())
}

func (s *IntegrationTestSuite) TestPaymentEvent_UnknownOrderIsAcknowledged() {
	err := s.OrderService.HandlePaymentFailed(s.Ctx, &domain.PaymentFailedEvent{
		EventMeta: domain.NewEventMeta(),
		OrderID:   uuid.New(),
		Reason:    "card declined",
	})
	s.Require().NoError(err)
}
