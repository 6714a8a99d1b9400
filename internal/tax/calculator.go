package tax

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-core/pkg/config"
	"github.com/angelmondragon/marketplace-core/pkg/money"
)

// Breakdown splits tax into VAT and marketplace withholding. Each component is
// rounded to two places before Total is formed.
type Breakdown struct {
	VAT         decimal.Decimal `json:"vat_amount"`
	Withholding decimal.Decimal `json:"marketplace_withholding"`
	Total       decimal.Decimal `json:"total_tax"`
}

func (b Breakdown) Add(other Breakdown) Breakdown {
	return Breakdown{
		VAT:         b.VAT.Add(other.VAT),
		Withholding: b.Withholding.Add(other.Withholding),
		Total:       b.Total.Add(other.Total),
	}
}

type Calculator struct {
	vatRate         decimal.Decimal
	withholdingRate decimal.Decimal
}

func NewCalculator(vatRate, withholdingRate decimal.Decimal) (*Calculator, error) {
	one := decimal.NewFromInt(1)
	if vatRate.IsNegative() || vatRate.GreaterThanOrEqual(one) {
		return nil, fmt.Errorf("vat rate must be within [0, 1)")
	}
	if withholdingRate.IsNegative() || withholdingRate.GreaterThanOrEqual(one) {
		return nil, fmt.Errorf("withholding rate must be within [0, 1)")
	}
	return &Calculator{vatRate: vatRate, withholdingRate: withholdingRate}, nil
}

func NewCalculatorFromConfig(cfg config.MarketplaceConfig) (*Calculator, error) {
	return NewCalculator(cfg.VATRate.Decimal, cfg.WithholdingRate.Decimal)
}

func (c *Calculator) ForAmount(subtotal decimal.Decimal) Breakdown {
	vat := money.Mul(subtotal, c.vatRate)
	withholding := money.Mul(subtotal, c.withholdingRate)
	return Breakdown{VAT: vat, Withholding: withholding, Total: vat.Add(withholding)}
}

// ForItems taxes each subtotal independently and defines the order-level
// breakdown as the sum of the item breakdowns.
func (c *Calculator) ForItems(subtotals []decimal.Decimal) ([]Breakdown, Breakdown) {
	perItem := make([]Breakdown, len(subtotals))
	order := Breakdown{}
	for i, subtotal := range subtotals {
		perItem[i] = c.ForAmount(subtotal)
		order = order.Add(perItem[i])
	}
	return perItem, order
}

func (c *Calculator) VATRate() decimal.Decimal         { return c.vatRate }
func (c *Calculator) WithholdingRate() decimal.Decimal { return c.withholdingRate }

const npwpDigits = 15

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateNPWP reports whether value holds a 15 digit Indonesian tax id once
// separators are stripped.
func ValidateNPWP(value string) bool {
	return len(digitsOnly(value)) == npwpDigits
}

// FormatNPWP renders XX.XXX.XXX.X-XXX.XXX; invalid input is returned unchanged.
func FormatNPWP(value string) string {
	n := digitsOnly(value)
	if len(n) != npwpDigits {
		return value
	}
	return fmt.Sprintf("%s.%s.%s.%s-%s.%s", n[0:2], n[2:5], n[5:8], n[8:9], n[9:12], n[12:15])
}
