package pricing

import "github.com/shopspring/decimal"

// IsDiscountExcluded reports products that never receive a discount, whatever the
// strategy or selection state: patron tiers, lodging and the portal-patron add-on.
func IsDiscountExcluded(p Product) bool {
	switch p.Kind() {
	case KindPatreon, KindSupporter, KindLodging:
		return true
	}
	return p.Slug == PortalPatronSlug
}

// OriginalTotal sums catalog prices of the selected products. Purchased products only
// count the quantity added on top of what was already bought.
func OriginalTotal(products []Product) decimal.Decimal {
	total := decimal.Zero
	for _, p := range products {
		if !p.Selected || p.Kind() == KindDonation {
			continue
		}
		if p.Purchased {
			total = total.Add(p.CatalogPrice().Mul(decimal.NewFromInt(int64(p.QtyDelta()))))
			continue
		}
		total = total.Add(p.CatalogLinePrice())
	}
	return total
}

// DiscountableTotal is the base a percentage discount applies to: selected,
// unpurchased products outside the excluded set.
func DiscountableTotal(products []Product) decimal.Decimal {
	total := decimal.Zero
	for _, p := range products {
		if !p.pending() || p.Kind() == KindDonation || IsDiscountExcluded(p) {
			continue
		}
		total = total.Add(p.LinePrice())
	}
	return total
}

func discountOn(base decimal.Decimal, d Discount, reference decimal.Decimal) decimal.Decimal {
	pct := EffectivePercent(d, reference)
	if !pct.IsPositive() || !base.IsPositive() {
		return decimal.Zero
	}
	return PercentOf(base, pct)
}

func newResult(total, original, discount decimal.Decimal) Result {
	return Result{
		Total:          nonNegative(total),
		OriginalTotal:  nonNegative(original),
		DiscountAmount: nonNegative(discount),
	}
}
