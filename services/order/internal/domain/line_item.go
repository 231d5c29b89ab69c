package domain

import (
	"strings"

	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
)

// LineItem is an immutable order line. The product is referenced by code
// only; the order never holds a catalog item.
type LineItem struct {
	productRef string
	quantity   int
	unitPrice  generalDomain.Money
}

func NewLineItem(productRef string, quantity int, unitPrice generalDomain.Money) (LineItem, error) {
	if strings.TrimSpace(productRef) == "" {
		return LineItem{}, generalDomain.NewValidationError("product reference is required")
	}

	if quantity <= 0 {
		return LineItem{}, generalDomain.NewValidationError("quantity must be positive, got %d", quantity)
	}

	if unitPrice.Currency() == "" {
		return LineItem{}, generalDomain.NewValidationError("unit price is required for %s", productRef)
	}

	return LineItem{
		productRef: productRef,
		quantity:   quantity,
		unitPrice:  unitPrice,
	}, nil
}

func (l LineItem) ProductRef() string { return l.productRef }
func (l LineItem) Quantity() int { return l.quantity }
func (l LineItem) UnitPrice() generalDomain.Money { return l.unitPrice }

func (l LineItem) Subtotal() generalDomain.Money {
	// quantity is positive by construction.
	subtotal, _ := l.unitPrice.Multiply(l.quantity)
	return subtotal
}
