package config

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Decimal lets envconfig populate shopspring decimals from plain strings.
type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) Decode(value string) error {
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", value, err)
	}
	d.Decimal = parsed
	return nil
}

// NewDecimal is a convenience for constructing config values in code and tests.
func NewDecimal(value string) Decimal {
	return Decimal{Decimal: decimal.RequireFromString(value)}
}
