package domain

import (
	"regexp"
	"strings"
)

const MaxProductCodeLength = 50

var productCodePattern = regexp.MustCompile(`^[A-Z0-9-]+$`)

// ProductCode is a catalog SKU. Upper-case letters, digits and hyphens only.
type ProductCode struct {
	value string
}

func NewProductCode(value string) (ProductCode, error) {
	if strings.TrimSpace(value) == "" {
		return ProductCode{}, NewValidationError("product code is required")
	}

	if len(value) > MaxProductCodeLength {
		return ProductCode{}, NewValidationError(
			"product code cannot exceed %d characters, got %d", MaxProductCodeLength, len(value),
		)
	}

	if !productCodePattern.MatchString(value) {
		return ProductCode{}, NewValidationError(
			"product code %q may only contain upper-case letters, digits and hyphens", value,
		)
	}

	return ProductCode{value: value}, nil
}

func (c ProductCode) String() string {
	return c.value
}

func (c ProductCode) IsZero() bool {
	return c.value == ""
}

func (c ProductCode) MarshalText() ([]byte, error) {
	return []byte(c.value), nil
}

func (c *ProductCode) UnmarshalText(text []byte) error {
	code, err := NewProductCode(string(text))
	if err != nil {
		return err
	}

	*c = code
	return nil
}
