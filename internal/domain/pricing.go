package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PriceBreakdown is the authoritative total of a checkout.
type PriceBreakdown struct {
	Subtotal int64
	Shipping int64
	Discount int64
	Total    int64
}

// NewPriceBreakdown computes Total = Subtotal + Shipping - Discount, never below zero.
func NewPriceBreakdown(subtotal, shipping, discount int64) PriceBreakdown {
	total := subtotal + shipping - discount
	if total < 0 {
		total = 0
	}
	return PriceBreakdown{Subtotal: subtotal, Shipping: shipping, Discount: discount, Total: total}
}

// FormatMoney renders minor units as a 2dp decimal string ("1234.50").
func FormatMoney(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// ParseMoney parses a decimal amount into minor units, rounding half-up at the centavo.
func ParseMoney(raw string) (int64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	return ToMinor(amount), nil
}

// ToMinor converts a decimal major-unit amount to minor units, rounding half-up.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}
