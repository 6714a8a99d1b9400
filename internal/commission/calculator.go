package commission

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-core/pkg/config"
	"github.com/angelmondragon/marketplace-core/pkg/money"
)

// Source records which override produced the applied rate.
type Source string

const (
	SourceVendor   Source = "vendor"
	SourceCategory Source = "category"
	SourceDefault  Source = "default"
)

// Breakdown is the per-item commission snapshot stored on the order item.
type Breakdown struct {
	Rate             decimal.Decimal
	Source           Source
	CommissionAmount decimal.Decimal
	VendorEarnings   decimal.Decimal
}

// Calculator applies vendor, then category, then platform default rates.
type Calculator struct {
	defaultRate decimal.Decimal
}

func NewCalculator(defaultRate decimal.Decimal) (*Calculator, error) {
	if defaultRate.IsNegative() || defaultRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("default commission rate must be within [0, 1)")
	}
	return &Calculator{defaultRate: defaultRate}, nil
}

func NewCalculatorFromConfig(cfg config.MarketplaceConfig) (*Calculator, error) {
	return NewCalculator(cfg.CommissionDefaultRate.Decimal)
}

func (c *Calculator) DefaultRate() decimal.Decimal {
	return c.defaultRate
}

// Rate resolves the applicable rate. A nil override is absent; a zero
// override is a valid zero-commission agreement.
func (c *Calculator) Rate(vendorOverride, categoryOverride *decimal.Decimal) (decimal.Decimal, Source) {
	switch {
	case vendorOverride != nil:
		return *vendorOverride, SourceVendor
	case categoryOverride != nil:
		return *categoryOverride, SourceCategory
	default:
		return c.defaultRate, SourceDefault
	}
}

func (c *Calculator) Calculate(subtotal decimal.Decimal, vendorOverride, categoryOverride *decimal.Decimal) Breakdown {
	rate, source := c.Rate(vendorOverride, categoryOverride)
	commission := money.Mul(subtotal, rate)
	return Breakdown{
		Rate:             rate,
		Source:           source,
		CommissionAmount: commission,
		VendorEarnings:   money.Round(subtotal.Sub(commission)),
	}
}

// Line is a settled order item used for reporting.
type Line struct {
	Category         string
	Subtotal         decimal.Decimal
	CommissionAmount decimal.Decimal
	VendorEarnings   decimal.Decimal
}

type Summary struct {
	TotalSales           decimal.Decimal `json:"total_sales"`
	TotalCommission      decimal.Decimal `json:"total_commission"`
	TotalVendorEarnings  decimal.Decimal `json:"total_vendor_earnings"`
	CommissionPercentage decimal.Decimal `json:"commission_percentage"`
}

type CategorySummary struct {
	Category        string          `json:"category"`
	TotalSales      decimal.Decimal `json:"total_sales"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	AverageRate     decimal.Decimal `json:"average_rate"`
}

// Summarize totals the stored snapshots; it never recomputes rates.
func Summarize(lines []Line) Summary {
	var s Summary
	for _, line := range lines {
		s.TotalSales = s.TotalSales.Add(line.Subtotal)
		s.TotalCommission = s.TotalCommission.Add(line.CommissionAmount)
		s.TotalVendorEarnings = s.TotalVendorEarnings.Add(line.VendorEarnings)
	}
	s.CommissionPercentage = money.Percent(s.TotalCommission, s.TotalSales)
	return s
}

// ByCategory groups lines per category name, sorted by name.
func ByCategory(lines []Line) []CategorySummary {
	index := map[string]*CategorySummary{}
	for _, line := range lines {
		entry, ok := index[line.Category]
		if !ok {
			entry = &CategorySummary{Category: line.Category}
			index[line.Category] = entry
		}
		entry.TotalSales = entry.TotalSales.Add(line.Subtotal)
		entry.TotalCommission = entry.TotalCommission.Add(line.CommissionAmount)
	}
	out := make([]CategorySummary, 0, len(index))
	for _, entry := range index {
		entry.AverageRate = money.Percent(entry.TotalCommission, entry.TotalSales)
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}
