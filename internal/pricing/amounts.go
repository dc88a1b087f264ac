package pricing

import "github.com/shopspring/decimal"

// Line is a priced cart line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Amounts is the derived money breakdown shown at checkout.
type Amounts struct {
	Items               decimal.Decimal `json:"items"`
	DeliveryFee         decimal.Decimal `json:"deliveryFee"`
	SubtotalBeforePromo decimal.Decimal `json:"subtotalBeforePromo"`
	Discount            decimal.Decimal `json:"discount"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	AmountExclVAT       decimal.Decimal `json:"amountExclVAT"`
	VAT                 decimal.Decimal `json:"vatAmount"`
	Total               decimal.Decimal `json:"total"`
}

// Compute derives the breakdown. The discount is clipped into [0, subtotalBeforePromo].
func Compute(lines []Line, deliveryFee, discount decimal.Decimal) Amounts {
	items := decimal.Zero
	for _, line := range lines {
		items = items.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	before := Round2(items.Add(deliveryFee))
	clipped := Round2(decimal.Min(decimal.Max(discount, decimal.Zero), before))
	subtotal := before.Sub(clipped)
	excl, vat := ExtractVAT(subtotal, VATRate)

	return Amounts{
		Items:               Round2(items),
		DeliveryFee:         Round2(deliveryFee),
		SubtotalBeforePromo: before,
		Discount:            clipped,
		Subtotal:            subtotal,
		AmountExclVAT:       excl,
		VAT:                 vat,
		Total:               subtotal,
	}
}
