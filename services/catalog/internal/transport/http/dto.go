package http

import (
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/domain"
	"github.com/shopspring/decimal"
)

type CreateItemInput struct {
	Code         string          `json:"code" validate:"required,max=50"`
	Name         string          `json:"name" validate:"required,max=200"`
	Description  string          `json:"description" validate:"max=2000"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency" validate:"omitempty,min=3,max=8"`
	InitialStock int             `json:"initial_stock" validate:"gte=0"`
	Category     string          `json:"category" validate:"required,max=100"`
}

type UpdateItemInput struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency" validate:"omitempty,min=3,max=8"`
	Category    string          `json:"category" validate:"required,max=100"`
}

type QuantityInput struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

type AdjustStockInput struct {
	Available *int `json:"available" validate:"required,gte=0"`
}

type PriceResponse struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type ItemResponse struct {
	ID          uuid.UUID     `json:"id"`
	Code        string        `json:"code"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Price       PriceResponse `json:"price"`
	Available   int           `json:"available"`
	Reserved    int           `json:"reserved"`
	Category    string        `json:"category"`
	Active      bool          `json:"active"`
	Version     int64         `json:"version"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type ListItemsResponse struct {
	Items      []ItemResponse `json:"items"`
	TotalCount int64          `json:"total_count"`
}

func toItemResponse(item *domain.Item) ItemResponse {
	return ItemResponse{
		ID:          item.ID(),
		Code:        item.Code().String(),
		Name:        item.Name(),
		Description: item.Description(),
		Price: PriceResponse{
			Amount:   item.Price().Amount().StringFixed(2),
			Currency: item.Price().Currency(),
		},
		Available: item.Stock().Available(),
		Reserved:  item.Stock().Reserved(),
		Category:  item.Category(),
		Active:    item.IsActive(),
		Version:   item.Version(),
		CreatedAt: item.CreatedAt(),
		UpdatedAt: item.UpdatedAt(),
	}
}
