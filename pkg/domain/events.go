package domain

import "github.com/google/uuid"

const (
	TopicOrderEvents     = "order_events"
	TopicItemEvents      = "item_events"
	TopicInventoryEvents = "inventory_events"
	TopicPaymentEvents   = "payment_events"
)

const (
	EventOrderCreated               = "OrderCreated"
	EventOrderCancelled             = "OrderCancelled"
	EventOrderShipped               = "OrderShipped"
	EventInventoryReserved          = "InventoryReserved"
	EventInventoryReservationFailed = "InventoryReservationFailed"
	EventPaymentSucceeded           = "PaymentSucceeded"
	EventPaymentFailed              = "PaymentFailed"
)

// OrderLine is the part of an order line the catalog needs to reserve stock.
type OrderLine struct {
	ProductRef string `json:"product_ref"`
	Quantity   int    `json:"quantity"`
}

// OrderCreatedMessage is the catalog's view of an OrderCreated event.
type OrderCreatedMessage struct {
	EventMeta
	OrderID uuid.UUID   `json:"order_id"`
	Items   []OrderLine `json:"items"`
}

type OrderCancelledMessage struct {
	EventMeta
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

type OrderShippedMessage struct {
	EventMeta
	OrderID        uuid.UUID `json:"order_id"`
	TrackingNumber string    `json:"tracking_number"`
}

type InventoryReservedEvent struct {
	EventMeta
	OrderID uuid.UUID   `json:"order_id"`
	Items   []OrderLine `json:"items"`
}

func (InventoryReservedEvent) EventName() string { return EventInventoryReserved }

type InventoryReservationFailedEvent struct {
	EventMeta
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

func (InventoryReservationFailedEvent) EventName() string { return EventInventoryReservationFailed }

type PaymentSucceededEvent struct {
	EventMeta
	OrderID   uuid.UUID `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	Amount    Money     `json:"amount"`
}

func (PaymentSucceededEvent) EventName() string { return EventPaymentSucceeded }

type PaymentFailedEvent struct {
	EventMeta
	OrderID   uuid.UUID `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	Reason    string    `json:"reason"`
}

func (PaymentFailedEvent) EventName() string { return EventPaymentFailed }
