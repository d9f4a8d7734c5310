package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DiscountType is the representation of a discount value.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

var hundred = decimal.NewFromInt(100)

// Discount is an individual (application) or group discount.
type Discount struct {
	Type  DiscountType    `json:"discount_type" validate:"omitempty,oneof=percentage fixed"`
	Value decimal.Decimal `json:"discount_value"`
}

// Percentage builds a percentage discount.
func Percentage(v decimal.Decimal) Discount {
	return Discount{Type: DiscountPercentage, Value: v}
}

// Fixed builds a fixed-amount discount.
func Fixed(v decimal.Decimal) Discount {
	return Discount{Type: DiscountFixed, Value: v}
}

// Sanitize clamps the discount into its valid domain: negative values and unknown
// types become a zero discount, percentages are capped at 100.
func (d Discount) Sanitize() Discount {
	typ := DiscountType(strings.ToLower(strings.TrimSpace(string(d.Type))))
	switch typ {
	case "":
		typ = DiscountPercentage
	case DiscountPercentage, DiscountFixed:
	default:
		return Discount{Type: DiscountPercentage, Value: decimal.Zero}
	}
	value := nonNegative(d.Value)
	if typ == DiscountPercentage {
		value = ClampPercent(value)
	}
	return Discount{Type: typ, Value: value}
}

// IsZero reports a discount worth nothing.
func (d Discount) IsZero() bool {
	return !d.Sanitize().Value.IsPositive()
}

// ClampPercent bounds p to [0, 100].
func ClampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}

// EffectivePercent is the percentage the discount represents against base.
// A fixed discount on a zero base is worth nothing.
func EffectivePercent(d Discount, base decimal.Decimal) decimal.Decimal {
	d = d.Sanitize()
	if d.Type == DiscountPercentage {
		return d.Value
	}
	if !base.IsPositive() {
		return decimal.Zero
	}
	return ClampPercent(d.Value.Div(base).Mul(hundred))
}

// GetBestDiscount compares the application percentage with the current discount
// (percentage or fixed, normalised against price) and returns the larger one as a
// percentage. Ties keep the application discount.
func GetBestDiscount(price, applicationDiscount decimal.Decimal, current Discount) Discount {
	app := ClampPercent(applicationDiscount)
	cur := EffectivePercent(current, price)
	if cur.GreaterThan(app) {
		return Percentage(cur)
	}
	return Percentage(app)
}

// PercentOf returns amount × percent / 100.
func PercentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred)
}

// DisplayPrice is the line price shown in the product picker. Once a patron tier
// is purchased every other product is free; excluded products never show a discount.
func DisplayPrice(p Product, hasPatronPurchased bool, discountPercent decimal.Decimal) decimal.Decimal {
	if hasPatronPurchased && !p.Kind().IsPatron() {
		return decimal.Zero
	}
	line := p.CatalogLinePrice()
	pct := ClampPercent(discountPercent)
	if IsDiscountExcluded(p) || !pct.IsPositive() {
		return line
	}
	return line.Sub(PercentOf(line, pct))
}
