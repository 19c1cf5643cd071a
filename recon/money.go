/*
money.go - Currency-aware rounding

PURPOSE:
  Amounts are reconciled in the tree's own currency, and the result must be
  rounded to that currency's minor-unit precision - not a blanket 2-decimal
  assumption. JPY has no minor unit (round to whole yen); BHD has three.

DATA SOURCE:
  Minor-unit scale comes from golang.org/x/text/currency (ISO 4217 data).
  Unknown or malformed codes fall back to 2 decimal places, which matches
  the majority of currencies and keeps reconciliation total.

SEE ALSO:
  - reconcile.go: Rounds Net and per-split maxAmount
*/
package recon

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// MinorUnits returns the number of decimal places for an ISO 4217 currency
// code. Unknown codes default to 2.
func MinorUnits(code string) int32 {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// Round rounds an amount to the currency's minor-unit precision,
// half away from zero.
func Round(code string, amount decimal.Decimal) decimal.Decimal {
	return amount.Round(MinorUnits(code))
}

// IsZeroDecimal reports whether the currency has no minor unit (e.g. JPY).
func IsZeroDecimal(code string) bool {
	return MinorUnits(code) == 0
}
