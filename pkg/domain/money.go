package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "USD"

var currencyPattern = regexp.MustCompile(`^[A-Z]{3,}$`)

// Money is an immutable non-negative amount in a single currency. The
// amount is always kept rounded half-up to two fractional digits.
type Money struct {
	amount   decimal.Decimal
	currency string
}

func NewMoney(amount decimal.Decimal) (Money, error) {
	return NewMoneyIn(amount, DefaultCurrency)
}

func NewMoneyIn(amount decimal.Decimal, currency string) (Money, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		return Money{}, NewValidationError("currency is required")
	}

	if !currencyPattern.MatchString(code) {
		return Money{}, NewValidationError("currency %q must be a code of at least 3 letters", currency)
	}

	if amount.IsNegative() {
		return Money{}, NewValidationError("amount cannot be negative, got %s", amount.String())
	}

	// decimal.Round rounds half away from zero, which is half-up for
	// the non-negative amounts accepted here.
	return Money{amount: amount.Round(2), currency: code}, nil
}

func ParseMoney(amount, currency string) (Money, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, NewValidationError("amount %q is not a valid number", amount)
	}

	return NewMoneyIn(value, currency)
}

func ZeroIn(currency string) (Money, error) {
	return NewMoneyIn(decimal.Zero, currency)
}

func (m Money) Amount() decimal.Decimal {
	return m.amount
}

func (m Money) Currency() string {
	return m.currency
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, NewValidationError("cannot add %s to %s", other.currency, m.currency)
	}

	return Money{amount: m.amount.Add(other.amount).Round(2), currency: m.currency}, nil
}

func (m Money) Multiply(quantity int) (Money, error) {
	if quantity < 0 {
		return Money{}, NewValidationError("cannot multiply money by negative quantity %d", quantity)
	}

	return Money{
		amount:   m.amount.Mul(decimal.NewFromInt(int64(quantity))).Round(2),
		currency: m.currency,
	}, nil
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), m.currency)
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{
		Amount:   m.amount.StringFixed(2),
		Currency: m.currency,
	})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	parsed, err := ParseMoney(raw.Amount, raw.Currency)
	if err != nil {
		return err
	}

	*m = parsed
	return nil
}
