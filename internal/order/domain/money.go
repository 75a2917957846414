package domain

import "github.com/shopspring/decimal"

// DefaultTaxRate is the fixed sales tax applied at order creation.
var DefaultTaxRate = decimal.RequireFromString("0.15")

type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals derives tax and total from an exact subtotal. Rounding to
// two decimals (half up) is applied once to tax and once to total, never by
// re-summing rounded line items.
func ComputeTotals(subtotal, taxRate decimal.Decimal) Totals {
	tax := subtotal.Mul(taxRate).Round(2)
	total := subtotal.Add(tax).Round(2)
	return Totals{Subtotal: subtotal, Tax: tax, Total: total}
}
