package domain

import (
	"github.com/google/uuid"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
)

const (
	EventOrderValidated = "OrderValidated"
	EventOrderPaid      = "OrderPaid"
	EventOrderDelivered = "OrderDelivered"
)

// OrderLine is the wire shape of a line. product_ref and quantity are what
// the catalog reads to reserve stock.
type OrderLine struct {
	ProductRef string              `json:"product_ref"`
	Quantity   int                 `json:"quantity"`
	UnitPrice  generalDomain.Money `json:"unit_price"`
}

type OrderCreated struct {
	generalDomain.EventMeta
	OrderID    uuid.UUID           `json:"order_id"`
	CustomerID string              `json:"customer_id"`
	Items      []OrderLine         `json:"items"`
	Total      generalDomain.Money `json:"total"`
}

func (OrderCreated) EventName() string { return generalDomain.EventOrderCreated }

type OrderValidated struct {
	generalDomain.EventMeta
	OrderID uuid.UUID `json:"order_id"`
}

func (OrderValidated) EventName() string { return EventOrderValidated }

type OrderPaid struct {
	generalDomain.EventMeta
	OrderID uuid.UUID           `json:"order_id"`
	Total   generalDomain.Money `json:"total"`
}

func (OrderPaid) EventName() string { return EventOrderPaid }

type OrderShipped struct {
	generalDomain.EventMeta
	OrderID        uuid.UUID `json:"order_id"`
	TrackingNumber string    `json:"tracking_number"`
}

func (OrderShipped) EventName() string { return generalDomain.EventOrderShipped }

type OrderDelivered struct {
	generalDomain.EventMeta
	OrderID uuid.UUID `json:"order_id"`
}

func (OrderDelivered) EventName() string { return EventOrderDelivered }

type OrderCancelled struct {
	generalDomain.EventMeta
	OrderID        uuid.UUID `json:"order_id"`
	Reason         string    `json:"reason"`
	PreviousStatus string    `json:"previous_status"`
}

func (OrderCancelled) EventName() string { return generalDomain.EventOrderCancelled }
