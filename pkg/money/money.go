// Package money holds the rounding rules shared by every monetary computation.
// Amounts are rupiah values with two decimal places; rounding is half away
// from zero.
package money

import "github.com/shopspring/decimal"

const Places = 2

// Round rounds an amount to two decimal places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Mul returns round(amount * rate, 2).
func Mul(amount, rate decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(rate))
}

// LineTotal returns price * qty rounded to two places.
func LineTotal(price decimal.Decimal, qty int) decimal.Decimal {
	return Round(price.Mul(decimal.NewFromInt(int64(qty))))
}

func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// ToIDR converts an amount into whole rupiah for gateway payloads.
func ToIDR(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// Percent returns part/whole*100 rounded to two places, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return Round(part.Div(whole).Mul(decimal.NewFromInt(100)))
}
