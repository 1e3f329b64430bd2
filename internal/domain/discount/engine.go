package discount

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Apply calculates the discount amount for a line subtotal. It is a pure
// pricing function: it does not check eligibility (see Code.Applicable)
// and it does not consume the code.
//
// Percentage codes truncate to 2 decimal places so no fractional currency
// unit below the smallest denomination is ever granted. Fixed codes are
// capped at the subtotal. The result is never negative.
func Apply(c *Code, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	if c.Percentage {
		amount = subtotal.Mul(c.Amount).Div(hundred).Truncate(2)
	} else {
		amount = decimal.Min(c.Amount, subtotal)
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}
