package pricing

import "github.com/shopspring/decimal"

// IsSoldOut reports whether the product has no inventory left. A nil max inventory is unlimited.
func IsSoldOut(p Product) bool {
	if p.MaxInventory == nil {
		return false
	}
	return p.CurrentSold >= *p.MaxInventory
}

// AvailableCount returns the units left, or nil when inventory is unlimited.
func AvailableCount(p Product) *int {
	if p.MaxInventory == nil {
		return nil
	}
	left := *p.MaxInventory - p.CurrentSold
	if left < 0 {
		left = 0
	}
	return &left
}

// HasPendingAction reports whether any attendee has something to confirm: a newly
// selected product, or a purchased day pass whose quantity went up.
func HasPendingAction(attendees []Attendee) bool {
	for _, a := range attendees {
		for _, p := range a.Products {
			if !p.Selected {
				continue
			}
			if !p.Purchased || (p.Kind() == KindDay && p.QtyDelta() > 0) {
				return true
			}
		}
	}
	return false
}

// CheckoutLabel is the label of the confirm button for the given total.
func CheckoutLabel(total decimal.Decimal) string {
	if total.IsPositive() {
		return "Confirm and Pay"
	}
	return "Confirm"
}
