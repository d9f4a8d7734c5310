package pricing

import "github.com/shopspring/decimal"

// DiscountSource records which discount ended up in the final result.
type DiscountSource string

const (
	DiscountSourceNone       DiscountSource = "none"
	DiscountSourceIndividual DiscountSource = "individual"
	DiscountSourceGroup      DiscountSource = "group"
)

// AttendeeLine is the per-attendee part of a Breakdown.
type AttendeeLine struct {
	AttendeeID int    `json:"attendee_id"`
	Strategy   string `json:"strategy"`
	Result
	Donation decimal.Decimal `json:"donation"`
}

// Breakdown is the final result plus how it was reached.
type Breakdown struct {
	Result
	DonationTotal  decimal.Decimal `json:"donation_total"`
	DiscountSource DiscountSource  `json:"discount_source"`
	Attendees      []AttendeeLine  `json:"attendees"`
}

// TotalCalculator aggregates per-attendee strategy results into an order total.
// The zero value is ready to use.
type TotalCalculator struct {
	// Select overrides strategy selection. Defaults to SelectStrategy.
	Select func(products []Product) Strategy
}

// Calculate returns the order triple.
func (c TotalCalculator) Calculate(attendees []Attendee, discount Discount, groupPercent decimal.Decimal) Result {
	return c.Quote(attendees, discount, groupPercent).Result
}

// orderDiscount turns a fixed discount into the percentage it represents against the
// discountable total of the whole application, so it is granted once and not once per attendee.
func orderDiscount(attendees []Attendee, d Discount) Discount {
	if d.Type != DiscountFixed {
		return d
	}
	base := decimal.Zero
	for _, a := range attendees {
		base = base.Add(DiscountableTotal(a.Products))
	}
	return Percentage(EffectivePercent(d, base))
}

// Quote prices every attendee, folds in donations and keeps whichever of the
// individual or group discount is larger. The two are never combined.
func (c TotalCalculator) Quote(attendees []Attendee, discount Discount, groupPercent decimal.Decimal) Breakdown {
	sel := c.Select
	if sel == nil {
		sel = SelectStrategy
	}
	discount = orderDiscount(attendees, discount.Sanitize())

	base := Result{}
	donations := decimal.Zero
	lines := make([]AttendeeLine, 0, len(attendees))
	for _, a := range attendees {
		strategy := sel(a.Products)
		res := strategy.Calculate(a.Products, discount)
		donation := DonationStrategy{}.Calculate(a.Products, discount).Total
		base = base.Add(res)
		donations = donations.Add(donation)
		lines = append(lines, AttendeeLine{
			AttendeeID: a.ID,
			Strategy:   strategy.Name(),
			Result:     res,
			Donation:   donation,
		})
	}

	out := Breakdown{
		Result: Result{
			Total:          base.Total.Add(donations),
			OriginalTotal:  base.OriginalTotal.Add(donations),
			DiscountAmount: base.DiscountAmount,
		},
		DonationTotal:  donations,
		DiscountSource: DiscountSourceNone,
		Attendees:      lines,
	}
	if out.DiscountAmount.IsPositive() {
		out.DiscountSource = DiscountSourceIndividual
	}

	group := ClampPercent(groupPercent)
	if !group.IsPositive() {
		return out
	}
	groupAmount := PercentOf(base.OriginalTotal, group)
	if groupAmount.GreaterThan(base.DiscountAmount) {
		out.Total = nonNegative(base.OriginalTotal.Sub(groupAmount)).Add(donations)
		out.DiscountAmount = groupAmount
		out.DiscountSource = DiscountSourceGroup
	}
	return out
}
