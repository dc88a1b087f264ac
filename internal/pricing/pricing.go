// Package pricing holds the money arithmetic shared by checkout, payment and
// commission accounting. Prices are VAT-inclusive SAR amounts.
package pricing

import (
	"github.com/shopspring/decimal"
)

var (
	// VATRate is the Saudi VAT rate backed out of inclusive prices.
	VATRate = decimal.RequireFromString("0.15")

	hundred = decimal.NewFromInt(100)
)

// Round2 rounds half away from zero to two decimal places.
func Round2(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// Commission returns round(max(0, total-deliveryFee) * rate, 2).
func Commission(total, deliveryFee, rate decimal.Decimal) decimal.Decimal {
	base := decimal.Max(decimal.Zero, total.Sub(deliveryFee))
	return Round2(base.Mul(rate))
}

// ExtractVAT splits a VAT-inclusive amount into its net part and the VAT portion.
// The two parts always sum back to the rounded input.
func ExtractVAT(amount, rate decimal.Decimal) (exclVAT, vat decimal.Decimal) {
	gross := Round2(amount)
	exclVAT = Round2(gross.Div(decimal.NewFromInt(1).Add(rate)))
	return exclVAT, gross.Sub(exclVAT)
}

// ToMinorUnits converts a major-unit amount to halalas/cents, flooring any
// fractional remainder.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Floor().IntPart()
}

// ApplyMinimum raises minor to floor when it falls below it.
func ApplyMinimum(minor, floor int64) int64 {
	if minor < floor {
		return floor
	}
	return minor
}

// FromMinorUnits converts halalas/cents back to a major-unit amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}
