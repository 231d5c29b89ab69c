package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "pending"
	OrderStatusValidated         OrderStatus = "validated"
	OrderStatusPaymentProcessing OrderStatus = "payment_processing"
	OrderStatusPaid              OrderStatus = "paid"
	OrderStatusShipped           OrderStatus = "shipped"
	OrderStatusDelivered         OrderStatus = "delivered"
	OrderStatusCancelled         OrderStatus = "cancelled"
)

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusValidated, OrderStatusPaymentProcessing,
		OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}

	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Order is the aggregate root of the fulfillment pipeline. All lines share
// the currency of the first line the order was created with.
type Order struct {
	id                 uuid.UUID
	customerID         string
	items              []LineItem
	currency           string
	status             OrderStatus
	trackingNumber     string
	cancellationReason string
	createdAt          time.Time
	updatedAt          time.Time
	version            int64
}

func NewOrder(customerID string, items []LineItem) (*Order, []generalDomain.Event, error) {
	if err := validateCustomer(customerID); err != nil {
		return nil, nil, err
	}

	if len(items) == 0 {
		return nil, nil, generalDomain.NewValidationError("order must contain at least one item")
	}

	currency := items[0].UnitPrice().Currency()
	for _, item := range items {
		if err := checkLine(item, currency); err != nil {
			return nil, nil, err
		}
	}

	now := time.Now().UTC()
	order := &Order{
		id:         uuid.New(),
		customerID: customerID,
		items:      append([]LineItem(nil), items...),
		currency:   currency,
		status:     OrderStatusPending,
		createdAt:  now,
		updatedAt:  now,
		version:    1,
	}

	lines := make([]OrderLine, 0, len(order.items))
	for _, item := range order.items {
		lines = append(lines, OrderLine{
			ProductRef: item.ProductRef(),
			Quantity:   item.Quantity(),
			UnitPrice:  item.UnitPrice(),
		})
	}

	return order, []generalDomain.Event{OrderCreated{
		EventMeta:  generalDomain.NewEventMeta(),
		OrderID:    order.id,
		CustomerID: order.customerID,
		Items:      lines,
		Total:      order.Total(),
	}}, nil
}

func (o *Order) ID() uuid.UUID { return o.id }
func (o *Order) CustomerID() string { return o.customerID }
func (o *Order) Status() OrderStatus { return o.status }
func (o *Order) Currency() string { return o.currency }
func (o *Order) TrackingNumber() string { return o.trackingNumber }
func (o *Order) CancellationReason() string { return o.cancellationReason }
func (o *Order) CreatedAt() time.Time { return o.createdAt }
func (o *Order) UpdatedAt() time.Time { return o.updatedAt }
func (o *Order) Version() int64 { return o.version }

func (o *Order) Items() []LineItem {
	return append([]LineItem(nil), o.items...)
}

// Quantities sums the ordered quantity per product reference.
func (o *Order) Quantities() map[string]int {
	quantities := make(map[string]int, len(o.items))
	for _, item := range o.items {
		quantities[item.productRef] += item.quantity
	}

	return quantities
}

// Total is the sum of the current line subtotals.
func (o *Order) Total() generalDomain.Money {
	amount := decimal.Zero
	for _, item := range o.items {
		amount = amount.Add(item.Subtotal().Amount())
	}

	total, _ := generalDomain.NewMoneyIn(amount, o.currency)
	return total
}

func (o *Order) Validate() ([]generalDomain.Event, error) {
	if o.status != OrderStatusPending {
		return nil, generalDomain.NewStateError("only pending orders can be validated, order is %s", o.status)
	}

	if len(o.items) == 0 {
		return nil, generalDomain.NewStateError("cannot validate order without items")
	}

	o.status = OrderStatusValidated
	o.touch()

	return []generalDomain.Event{OrderValidated{
		EventMeta: generalDomain.NewEventMeta(),
		OrderID:   o.id,
	}}, nil
}

func (o *Order) BeginPayment() error {
	if o.status != OrderStatusValidated {
		return generalDomain.NewStateError("only validated orders can proceed to payment, order is %s", o.status)
	}

	o.status = OrderStatusPaymentProcessing
	o.touch()

	return nil
}

func (o *Order) MarkPaid() ([]generalDomain.Event, error) {
	if o.status != OrderStatusPaymentProcessing {
		return nil, generalDomain.NewStateError("only orders in payment processing can be marked as paid, order is %s", o.status)
	}

	o.status = OrderStatusPaid
	o.touch()

	return []generalDomain.Event{OrderPaid{
		EventMeta: generalDomain.NewEventMeta(),
		OrderID:   o.id,
		Total:     o.Total(),
	}}, nil
}

func (o *Order) Ship(trackingNumber string) ([]generalDomain.Event, error) {
	if o.status != OrderStatusPaid {
		return nil, generalDomain.NewStateError("only paid orders can be shipped, order is %s", o.status)
	}

	if strings.TrimSpace(trackingNumber) == "" {
		return nil, generalDomain.NewValidationError("tracking number is required")
	}

	o.status = OrderStatusShipped
	o.trackingNumber = trackingNumber
	o.touch()

	return []generalDomain.Event{OrderShipped{
		EventMeta:      generalDomain.NewEventMeta(),
		OrderID:        o.id,
		TrackingNumber: trackingNumber,
	}}, nil
}

func (o *Order) Deliver() ([]generalDomain.Event, error) {
	if o.status != OrderStatusShipped {
		return nil, generalDomain.NewStateError("only shipped orders can be delivered, order is %s", o.status)
	}

	o.status = OrderStatusDelivered
	o.touch()

	return []generalDomain.Event{OrderDelivered{
		EventMeta: generalDomain.NewEventMeta(),
		OrderID:   o.id,
	}}, nil
}

func (o *Order) Cancel(reason string) ([]generalDomain.Event, error) {
	if o.status.IsTerminal() {
		return nil, generalDomain.NewStateError("cannot cancel %s order, only orders that are not delivered or cancelled can be cancelled", o.status)
	}

	previous := o.status
	o.status = OrderStatusCancelled
	o.cancellationReason = strings.TrimSpace(reason)
	o.touch()

	return []generalDomain.Event{OrderCancelled{
		EventMeta:      generalDomain.NewEventMeta(),
		OrderID:        o.id,
		Reason:         o.cancellationReason,
		PreviousStatus: string(previous),
	}}, nil
}

func (o *Order) AddItem(item LineItem) error {
	if o.status != OrderStatusPending {
		return generalDomain.NewStateError("only pending orders can be modified, order is %s", o.status)
	}

	if err := checkLine(item, o.currency); err != nil {
		return err
	}

	o.items = append(o.items, item)
	o.touch()

	return nil
}

func (o *Order) ClearItems() error {
	if o.status != OrderStatusPending {
		return generalDomain.NewStateError("only pending orders can be modified, order is %s", o.status)
	}

	if len(o.items) == 0 {
		return nil
	}

	o.items = nil
	o.touch()

	return nil
}

// UpdateCustomer is allowed in every status.
func (o *Order) UpdateCustomer(customerID string) error {
	if err := validateCustomer(customerID); err != nil {
		return err
	}

	if customerID == o.customerID {
		return nil
	}

	o.customerID = customerID
	o.touch()

	return nil
}

func (o *Order) touch() {
	o.updatedAt = time.Now().UTC()
	o.version++
}

type LineItemSnapshot struct {
	ProductRef string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// OrderSnapshot is the persisted shape of an Order.
type OrderSnapshot struct {
	ID                 uuid.UUID
	CustomerID         string
	Status             OrderStatus
	Currency           string
	Total              decimal.Decimal
	TrackingNumber     string
	CancellationReason string
	Items              []LineItemSnapshot
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Version            int64
}

func (o *Order) Snapshot() OrderSnapshot {
	items := make([]LineItemSnapshot, 0, len(o.items))
	for _, item := range o.items {
		items = append(items, LineItemSnapshot{
			ProductRef: item.ProductRef(),
			Quantity:   item.Quantity(),
			UnitPrice:  item.UnitPrice().Amount(),
		})
	}

	return OrderSnapshot{
		ID:                 o.id,
		CustomerID:         o.customerID,
		Status:             o.status,
		Currency:           o.currency,
		Total:              o.Total().Amount(),
		TrackingNumber:     o.trackingNumber,
		CancellationReason: o.cancellationReason,
		Items:              items,
		CreatedAt:          o.createdAt,
		UpdatedAt:          o.updatedAt,
		Version:            o.version,
	}
}

// RehydrateOrder rebuilds an Order from stored state. The stored total is
// ignored and recomputed from the lines.
func RehydrateOrder(s OrderSnapshot) (*Order, error) {
	if s.ID == uuid.Nil {
		return nil, generalDomain.NewValidationError("order id is required")
	}

	if s.Version < 1 {
		return nil, generalDomain.NewValidationError("order version must be positive, got %d", s.Version)
	}

	if !s.Status.IsValid() {
		return nil, generalDomain.NewValidationError("unknown order status %q", s.Status)
	}

	if err := validateCustomer(s.CustomerID); err != nil {
		return nil, err
	}

	if _, err := generalDomain.ZeroIn(s.Currency); err != nil {
		return nil, err
	}

	items := make([]LineItem, 0, len(s.Items))
	for _, line := range s.Items {
		price, err := generalDomain.NewMoneyIn(line.UnitPrice, s.Currency)
		if err != nil {
			return nil, err
		}

		item, err := NewLineItem(line.ProductRef, line.Quantity, price)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	if s.Status == OrderStatusShipped || s.Status == OrderStatusDelivered {
		if strings.TrimSpace(s.TrackingNumber) == "" {
			return nil, generalDomain.NewValidationError("%s order has no tracking number", s.Status)
		}
	}

	return &Order{
		id:                 s.ID,
		customerID:         s.CustomerID,
		items:              items,
		currency:           strings.ToUpper(strings.TrimSpace(s.Currency)),
		status:             s.Status,
		trackingNumber:     s.TrackingNumber,
		cancellationReason: s.CancellationReason,
		createdAt:          s.CreatedAt,
		updatedAt:          s.UpdatedAt,
		version:            s.Version,
	}, nil
}

func validateCustomer(customerID string) error {
	if strings.TrimSpace(customerID) == "" {
		return generalDomain.NewValidationError("customer id is required")
	}

	return nil
}

func checkLine(item LineItem, currency string) error {
	if item.UnitPrice().Currency() == "" {
		return generalDomain.NewValidationError("line item is not initialized")
	}

	if item.UnitPrice().Currency() != currency {
		return generalDomain.NewValidationError(
			"line %s is priced in %s, order currency is %s",
			item.ProductRef(), item.UnitPrice().Currency(), currency,
		)
	}

	return nil
}
