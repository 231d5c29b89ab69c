package tests

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/fulfillment/pkg/domain"
	orderDomain "github.com/sakashimaa/fulfillment/services/order/internal/domain"
	"github.com/sakashimaa/fulfillment/services/order/internal/repository"
	"github.com/sakashimaa/fulfillment/services/order/internal/service"
	"github.com/shopspring/decimal"
)

func (s *IntegrationTestSuite) TestCreateOrder_Success() {
	order := s.createOrder("CUST001")

	stored, err := s.OrderService.GetOrder(s.Ctx, order.ID())
	s.Require().NoError(err)

	s.Equal(orderDomain.OrderStatusPending, stored.Status())
	s.Equal("45.50 USD", stored.Total().String())
	s.Require().Len(stored.Items(), 2)
	s.Equal("SKU-1", stored.Items()[0].ProductRef())
	s.Equal(int64(1), stored.Version())

	var total string
	err = s.DbPool.QueryRow(s.Ctx, `SELECT total::text FROM orders WHERE id = $1`, order.ID()).Scan(&total)
	s.Require().NoError(err)
	s.Equal("45.50", total)

	s.Equal([]string{domain.EventOrderCreated}, s.outboxEventTypes(order.ID().String()))
	s.requirePublished(order.ID().String(), domain.EventOrderCreated)
}

func (s *IntegrationTestSuite) TestCreateOrder_Invalid() {
	_, err := s.OrderService.CreateOrder(s.Ctx, service.CreateOrderInput{CustomerID: "CUST001"})
	s.Require().ErrorIs(err, domain.ErrValidation)

	var count int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM orders`).Scan(&count))
	s.Zero(count)
}

func (s *IntegrationTestSuite) TestCreateOrder_Timeout() {
	ctx, cancel := context.WithTimeout(s.Ctx, time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := s.OrderService.CreateOrder(ctx, service.CreateOrderInput{
		CustomerID: "CUST001",
		Items: []service.LineItemInput{
			{ProductRef: "SKU-1", Quantity: 1, UnitPrice: decimal.NewFromInt(1)},
		},
	})
	s.Require().Error(err)
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *IntegrationTestSuite) TestForwardPath() {
	order := s.createOrder("CUST001")

	delivered := s.advance(order, orderDomain.OrderStatusDelivered)
	s.Equal("TRACK-1", delivered.TrackingNumber())
	s.Equal(int64(6), delivered.Version())
	s.Equal(string(orderDomain.OrderStatusDelivered), s.status(order.ID()))

	s.Equal([]string{
		domain.EventOrderCreated,
		orderDomain.EventOrderValidated,
		orderDomain.EventOrderPaid,
		domain.EventOrderShipped,
		orderDomain.EventOrderDelivered,
	}, s.outboxEventTypes(order.ID().String()))

	_, err := s.OrderService.Cancel(s.Ctx, order.ID(), "too late")
	s.Require().ErrorIs(err, domain.ErrState)
	s.Equal(string(orderDomain.OrderStatusDelivered), s.status(order.ID()))
}

func (s *IntegrationTestSuite) TestSkippingPaymentFails() {
	order := s.advance(s.createOrder("CUST001"), orderDomain.OrderStatusValidated)

	_, err := s.OrderService.MarkPaid(s.Ctx, order.ID())
	s.Require().ErrorIs(err, domain.ErrState)
	s.Equal(string(orderDomain.OrderStatusValidated), s.status(order.ID()))
}

func (s *IntegrationTestSuite) TestCancel_EmitsEvent() {
	order := s.createOrder("CUST001")

	cancelled, err := s.OrderService.Cancel(s.Ctx, order.ID(), "changed my mind")
	s.Require().NoError(err)
	s.Equal("changed my mind", cancelled.CancellationReason())

	stored, err := s.OrderService.GetOrder(s.Ctx, order.ID())
	s.Require().NoError(err)
	s.Equal(orderDomain.OrderStatusCancelled, stored.Status())
	s.Equal("changed my mind", stored.CancellationReason())

	s.requirePublished(order.ID().String(), domain.EventOrderCancelled)
}

func (s *IntegrationTestSuite) TestItemsAndCustomer() {
	order := s.createOrder("CUST001")

	updated, err := s.OrderService.AddItem(s.Ctx, order.ID(), "", service.LineItemInput{
		ProductRef: "SKU-3",
		Quantity:   3,
		UnitPrice:  decimal.RequireFromString("1.25"),
	})
	s.Require().NoError(err)
	s.Equal("49.25 USD", updated.Total().String())

	stored, err := s.OrderService.GetOrder(s.Ctx, order.ID())
	s.Require().NoError(err)
	s.Len(stored.Items(), 3)
	s.Equal("SKU-3", stored.Items()[2].ProductRef())

	_, err = s.OrderService.AddItem(s.Ctx, order.ID(), "EUR", service.LineItemInput{
		ProductRef: "SKU-4",
		Quantity:   1,
		UnitPrice:  decimal.NewFromInt(1),
	})
	s.Require().ErrorIs(err, domain.ErrValidation)

	cleared, err := s.OrderService.ClearItems(s.Ctx, order.ID())
	s.Require().NoError(err)
	s.True(cleared.Total().IsZero())

	_, err = s.OrderService.ValidateOrder(s.Ctx, order.ID())
	s.Require().ErrorIs(err, domain.ErrState)

	customer, err := s.OrderService.UpdateCustomer(s.Ctx, order.ID(), "CUST002")
	s.Require().NoError(err)
	s.Equal("CUST002", customer.CustomerID())

	orders, total, err := s.OrderService.ListOrders(s.Ctx, "CUST002", 10, 0)
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Require().Len(orders, 1)
	s.Empty(orders[0].Items())

	// Only OrderCreated: item and customer changes raise no events.
	s.Equal([]string{domain.EventOrderCreated}, s.outboxEventTypes(order.ID().String()))
}

func (s *IntegrationTestSuite) TestUpdateCustomer_NoOpKeepsVersion() {
	order := s.createOrder("CUST001")

	same, err := s.OrderService.UpdateCustomer(s.Ctx, order.ID(), "CUST001")
	s.Require().NoError(err)
	s.Equal(int64(1), same.Version())

	var version int64
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT version FROM orders WHERE id = $1`, order.ID()).Scan(&version))
	s.Equal(int64(1), version)
}

func (s *IntegrationTestSuite) TestUnknownOrder() {
	_, err := s.OrderService.GetOrder(s.Ctx, uuid.New())
	s.Require().ErrorIs(err, repository.ErrOrderNotFound)

	_, err = s.OrderService.ValidateOrder(s.Ctx, uuid.New())
	s.Require().ErrorIs(err, repository.ErrOrderNotFound)
}
