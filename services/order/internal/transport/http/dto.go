package http

import (
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/fulfillment/services/order/internal/domain"
	"github.com/shopspring/decimal"
)

type LineItemInput struct {
	ProductRef string          `json:"product_ref" validate:"required,max=50"`
	Quantity   int             `json:"quantity" validate:"gt=0"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type CreateOrderInput struct {
	CustomerID string          `json:"customer_id" validate:"required,max=100"`
	Currency   string          `json:"currency" validate:"omitempty,min=3,max=8"`
	Items      []LineItemInput `json:"items" validate:"required,min=1,dive"`
}

type AddItemInput struct {
	LineItemInput
	Currency string `json:"currency" validate:"omitempty,min=3,max=8"`
}

type ShipInput struct {
	TrackingNumber string `json:"tracking_number" validate:"required,max=100"`
}

type CancelInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

type UpdateCustomerInput struct {
	CustomerID string `json:"customer_id" validate:"required,max=100"`
}

type MoneyResponse struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type LineItemResponse struct {
	ProductRef string        `json:"product_ref"`
	Quantity   int           `json:"quantity"`
	UnitPrice  MoneyResponse `json:"unit_price"`
	Subtotal   MoneyResponse `json:"subtotal"`
}

type OrderResponse struct {
	ID                 uuid.UUID          `json:"id"`
	CustomerID         string             `json:"customer_id"`
	Status             string             `json:"status"`
	Items              []LineItemResponse `json:"items"`
	Total              MoneyResponse      `json:"total"`
	TrackingNumber     string             `json:"tracking_number,omitempty"`
	CancellationReason string             `json:"cancellation_reason,omitempty"`
	Version            int64              `json:"version"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

type ListOrdersResponse struct {
	Orders     []OrderResponse `json:"orders"`
	TotalCount int64           `json:"total_count"`
}

func toOrderResponse(order *domain.Order) OrderResponse {
	items := order.Items()
	res := OrderResponse{
		ID:                 order.ID(),
		CustomerID:         order.CustomerID(),
		Status:             string(order.Status()),
		Items:              make([]LineItemResponse, 0, len(items)),
		Total:              toMoneyResponse(order.Total().Amount(), order.Total().Currency()),
		TrackingNumber:     order.TrackingNumber(),
		CancellationReason: order.CancellationReason(),
		Version:            order.Version(),
		CreatedAt:          order.CreatedAt(),
		UpdatedAt:          order.UpdatedAt(),
	}

	for _, item := range items {
		res.Items = append(res.Items, LineItemResponse{
			ProductRef: item.ProductRef(),
			Quantity:   item.Quantity(),
			UnitPrice:  toMoneyResponse(item.UnitPrice().Amount(), item.UnitPrice().Currency()),
			Subtotal:   toMoneyResponse(item.Subtotal().Amount(), item.Subtotal().Currency()),
		})
	}

	return res
}

func toMoneyResponse(amount decimal.Decimal, currency string) MoneyResponse {
	return MoneyResponse{Amount: amount.StringFixed(2), Currency: currency}
}
