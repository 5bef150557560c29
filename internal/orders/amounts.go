package orders

import "github.com/shopspring/decimal"

// Subtotal sums price*quantity over items. Negative prices or quantities count as zero.
func Subtotal(items []LineItem) float64 {
	return subtotal(items).InexactFloat64()
}

// Total is Subtotal plus the delivery charge.
func Total(items []LineItem, deliveryCharge float64) float64 {
	return subtotal(items).Add(nonNegative(deliveryCharge)).InexactFloat64()
}

func subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		sum = sum.Add(nonNegative(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

func nonNegative(v float64) decimal.Decimal {
	if v <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// AmountCheck is the outcome of CheckAmount.
type AmountCheck struct {
	Subtotal float64
	Total    float64
	// Calculated is true when the stored total was missing and Total was computed.
	Calculated bool
}

// CheckAmount recomputes the order's subtotal and returns the computed total when
// the stored total is zero or absent.
func CheckAmount(o Order) AmountCheck {
	sub := Subtotal(o.Items)
	if o.Total == 0 {
		return AmountCheck{Subtotal: sub, Total: Total(o.Items, o.DeliveryCharge), Calculated: true}
	}
	return AmountCheck{Subtotal: sub, Total: o.Total}
}

// ReconcileTotals refreshes Subtotal and makes Total and TotalAmount agree.
// Total is authoritative; a zero side is derived from the other, and when both
// are zero the computed subtotal plus delivery charge is used.
func ReconcileTotals(o *Order) {
	o.Subtotal = Subtotal(o.Items)
	switch {
	case o.Total != 0:
		o.TotalAmount = o.Total
	case o.TotalAmount != 0:
		o.Total = o.TotalAmount
	default:
		o.Total = Total(o.Items, o.DeliveryCharge)
		o.TotalAmount = o.Total
	}
}
