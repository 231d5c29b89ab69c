package tests

import (
	"github.com/google/uuid"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/domain"
)

func (s *IntegrationTestSuite) orderCreated(orderID uuid.UUID, lines ...generalDomain.OrderLine) *generalDomain.OrderCreatedMessage {
	return &generalDomain.OrderCreatedMessage{
		EventMeta: generalDomain.NewEventMeta(),
		OrderID:   orderID,
		Items:     lines,
	}
}

func (s *IntegrationTestSuite) reservationState(orderID uuid.UUID) domain.ReservationState {
	var state domain.ReservationState
	err := s.DbPool.QueryRow(s.Ctx, `SELECT state FROM reservations WHERE order_id = $1`, orderID).Scan(&state)
	s.Require().NoError(err)

	return state
}

func (s *IntegrationTestSuite) pendingState(orderID uuid.UUID) domain.ReservationState {
	var state domain.ReservationState
	err := s.DbPool.QueryRow(s.Ctx, `SELECT pending_state FROM reservations WHERE order_id = $1`, orderID).Scan(&state)
	s.Require().NoError(err)

	return state
}

func (s *IntegrationTestSuite) TestReserveForOrder_Success() {
	first := s.createItem("SKU-A", 10)
	second := s.createItem("SKU-B", 3)
	orderID := uuid.New()

	touched, err := s.ItemService.ReserveForOrder(s.Ctx, s.orderCreated(orderID,
		generalDomain.OrderLine{ProductRef: "SKU-B", Quantity: 3},
		generalDomain.OrderLine{ProductRef: "SKU-A", Quantity: 4},
	))
	s.Require().NoError(err)
	s.Require().ElementsMatch([]uuid.UUID{first.ID(), second.ID()}, touched)

	available, reserved := s.stock(first.ID())
	s.Require().Equal(6, available)
	s.Require().Equal(4, reserved)

	available, reserved = s.stock(second.ID())
	s.Require().Equal(0, available)
	s.Require().Equal(3, reserved)

	s.Require().Equal(domain.ReservationReserved, s.reservationState(orderID))
	s.Require().Equal([]string{generalDomain.EventInventoryReserved}, s.outboxEventTypes(orderID.String()))
	s.requirePublished(orderID.String(), generalDomain.EventInventoryReserved)
}

func (s *IntegrationTestSuite) TestReserveForOrder_InsufficientStockRollsBack() {
	first := s.createItem("SKU-A", 10)
	s.createItem("SKU-B", 1)
	orderID := uuid.New()

	_, err := s.ItemService.ReserveForOrder(s.Ctx, s.orderCreated(orderID,
		generalDomain.OrderLine{ProductRef: "SKU-A", Quantity: 4},
		generalDomain.OrderLine{ProductRef: "SKU-B", Quantity: 2},
	))
	s.Require().NoError(err)

	available, reserved := s.stock(first.ID())
	s.Require().Equal(10, available)
	s.Require().Equal(0, reserved)

	var count int
	err = s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM reservations WHERE order_id = $1`, orderID).Scan(&count)
	s.Require().NoError(err)
	s.Require().Zero(count)

	s.Require().Equal([]string{generalDomain.EventInventoryReservationFailed}, s.outboxEventTypes(orderID.String()))
	s.Require().Equal([]string{domain.EventItemCreated}, s.outboxEventTypes(first.ID().String()))
}

func (s *IntegrationTestSuite) TestReserveForOrder_UnknownItemFails() {
	orderID := uuid.New()

	_, err := s.ItemService.ReserveForOrder(s.Ctx, s.orderCreated(orderID,
		generalDomain.OrderLine{ProductRef: "MISSING-1", Quantity: 1},
	))
	s.Require().NoError(err)
	s.Require().Equal([]string{generalDomain.EventInventoryReservationFailed}, s.outboxEventTypes(orderID.String()))
}

func (s *IntegrationTestSuite) TestReserveForOrder_DuplicateMessageIsSkipped() {
	item := s.createItem("SKU-A", 10)
	msg := s.orderCreated(uuid.New(), generalDomain.OrderLine{ProductRef: "SKU-A", Quantity: 4})

	_, err := s.ItemService.ReserveForOrder(s.Ctx, msg)
	s.Require().NoError(err)
	_, err = s.ItemService.ReserveForOrder(s.Ctx, msg)
	s.Require().NoError(err)

	available, reserved := s.stock(item.ID())
	s.Require().Equal(6, available)
	s.Require().Equal(4, reserved)
	s.Require().Len(s.outboxEventTypes(msg.OrderID.String()), 1)
}

func (s *IntegrationTestSuite) TestReleaseForOrder_ReturnsReservedStock() {
	item := s.createItem("SKU-A", 10)
	orderID := uuid.New()

	_, err := s.ItemService.ReserveForOrder(s.Ctx, s.orderCreated(orderID,
		generalDomain.OrderLine{ProductRef: "SKU-A", Quantity: 4},
	))
	s.Require().NoError(err)

	cancelled := &generalDomain.OrderCancelledMessage{
		EventMeta: generalDomain.NewEventMeta(),
		OrderID:   orderID,
		Reason:    "customer request",
	}

	touched, err := s.ItemService.ReleaseForOrder(s.Ctx, cancelled)
	s.Require().NoError(err)
	s.Require().Equal([]uuid.UUID{item.ID()}, touched)

	available, reserved := s.stock(item.ID())
	s.Require().Equal(10, available)
	s.Require().Equal(0, reserved)
	s.Require().Equal(domain.ReservationReleased, s.reservationState(orderID))

	again := &generalDomain.OrderCancelledMessage{EventMeta: generalDomain.NewEventMeta(), OrderID: orderID}
	touched, err = s.ItemService.ReleaseForOrder(s.Ctx, again)
	s.Require().NoError(err)
	s.Require().Empty(touched)

	available, _ = s.stock(item.ID())
	s.Require().Equal(10, available)
}

func (s *IntegrationTestSuite) TestReleaseForOrder_WithoutReservation() {
	touched, err := s.ItemService.ReleaseForOrder(s.Ctx, &generalDomain.OrderCancelledMessage{
		EventMeta: generalDomain.NewEventMeta(),
		OrderID:   uuid.New(),
	})
	s.Require().NoError(err)
	s.Require().Empty(touched)
}

func (s *IntegrationTestSuite) TestCommitForOrder_ConsumesReservedStock() {
	item := s.createItem("SKU-A", 10)
	orderID := uuid.New()

	_, err := s.ItemService.ReserveForOrder(s.Ctx, s.orderCreated(orderID,
		generalDomain.OrderLine{ProductRef: "SKU-A", Quantity: 4},
	))
	s.Require().NoError(err)

	_, err = s.ItemService.CommitForOrder(s.Ctx, &generalDomain.OrderShippedMessage{
		EventMeta:      generalDomain.NewEventMeta(),
		OrderID:        orderID,
		TrackingNumber: "TRK-1",
	})
	s.Require().NoError(err)

	available, reserved := s.stock(item.ID())
	s.Require().Equal(6, available)
	s.Require().Equal(0, reserved)
	s.Require().Equal(domain.ReservationCommitted, s.reservationState(orderID))

	s.Require().Equal([]string{
		domain.EventItemCreated,
		domain.EventStockReserved,
		domain.EventStockCommitted,
	}, s.outboxEventTypes(item.ID().String()))
}

func (s *IntegrationTestSuite) TestReleaseForOrder_InactiveItemParksUntilActivated() {
	first := s.createItem("SKU-A", 10)
	second := s.createItem("SKU-B", 5)
	orderID := uuid.New()

	_, err := s.ItemService.ReserveForOrder(s.Ctx, s.orderCreated(orderID,
		generalDomain.OrderLine{ProductRef: "SKU-A", Quantity: 4},
		generalDomain.OrderLine{ProductRef: "SKU-B", Quantity: 2},
	))
	s.Require().NoError(err)

	_, err = s.ItemService.Deactivate(s.Ctx, second.ID())
	s.Require().NoError(err)

	touched, err := s.ItemService.ReleaseForOrder(s.Ctx, &generalDomain.OrderCancelledMessage{
		EventMeta: generalDomain.NewEventMeta(),
		OrderID:   orderID,
	})
	s.Require().NoError(err)
	s.Require().Empty(touched)

	available, reserved := s.stock(first.ID())
	s.Require().Equal(6, available)
	s.Require().Equal(4, reserved)
	s.Require().Equal(domain.ReservationReserved, s.reservationState(orderID))
	s.Require().Equal(domain.ReservationReleased, s.pendingState(orderID))

	// The other line's item is active, but SKU-B still blocks the release.
	touched, err = s.ItemService.SettlePending(s.Ctx, first.ID())
	s.Require().NoError(err)
	s.Require().Empty(touched)
	s.Require().Equal(domain.ReservationReleased, s.pendingState(orderID))

	_, err = s.ItemService.Activate(s.Ctx, second.ID())
	s.Require().NoError(err)

	touched, err = s.ItemService.SettlePending(s.Ctx, second.ID())
	s.Require().NoError(err)
	s.Require().ElementsMatch([]uuid.UUID{first.ID(), second.ID()}, touched)

	available, reserved = s.stock(first.ID())
	s.Require().Equal(10, available)
	s.Require().Zero(reserved)

	available, reserved = s.stock(second.ID())
	s.Require().Equal(5, available)
	s.Require().Zero(reserved)

	s.Require().Equal(domain.ReservationReleased, s.reservationState(orderID))
	s.Require().Empty(s.pendingState(orderID))

	found, err := s.ItemService.FindByID(s.Ctx, first.ID())
	s.Require().NoError(err)
	s.Require().Equal(10, found.Stock().Available())
}

func (s *IntegrationTestSuite) TestCommitForOrder_ParkedCommitIsNotReleased() {
	item := s.createItem("SKU-A", 10)
	orderID := uuid.New()

	_, err := s.ItemService.ReserveForOrder(s.Ctx, s.orderCreated(orderID,
		generalDomain.OrderLine{ProductRef: "SKU-A", Quantity: 2},
	))
	s.Require().NoError(err)

	_, err = s.ItemService.Deactivate(s.Ctx, item.ID())
	s.Require().NoError(err)

	_, err = s.ItemService.CommitForOrder(s.Ctx, &generalDomain.OrderShippedMessage{
		EventMeta: generalDomain.NewEventMeta(),
		OrderID:   orderID,
	})
	s.Require().NoError(err)
	s.Require().Equal(domain.ReservationCommitted, s.pendingState(orderID))

	_, err = s.ItemService.ReleaseForOrder(s.Ctx, &generalDomain.OrderCancelledMessage{
		EventMeta: generalDomain.NewEventMeta(),
		OrderID:   orderID,
	})
	s.Require().NoError(err)
	s.Require().Equal(domain.ReservationCommitted, s.pendingState(orderID))

	_, err = s.ItemService.Activate(s.Ctx, item.ID())
	s.Require().NoError(err)

	_, err = s.ItemService.SettlePending(s.Ctx, item.ID())
	s.Require().NoError(err)

	available, reserved := s.stock(item.ID())
	s.Require().Equal(8, available)
	s.Require().Zero(reserved)
	s.Require().Equal(domain.ReservationCommitted, s.reservationState(orderID))
}
