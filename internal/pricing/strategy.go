package pricing

import "github.com/shopspring/decimal"

// Strategy prices the products of a single attendee.
type Strategy interface {
	Name() string
	Calculate(products []Product, discount Discount) Result
}

// Strategy names, also used as metric labels.
const (
	StrategyPatreon          = "patreon"
	StrategyMonthly          = "monthly"
	StrategyMonthlyPurchased = "monthly_purchased"
	StrategyWeekly           = "weekly"
	StrategyDay              = "day"
	StrategyDonation         = "donation"
)

// MonthlyStrategy prices an attendee who newly selects a month pass. Products already
// bought are credited against the month price unless a non-main attendee holds a patron tier.
type MonthlyStrategy struct{}

func (MonthlyStrategy) Name() string { return StrategyMonthly }

func (MonthlyStrategy) Calculate(products []Product, discount Discount) Result {
	var month *Product
	holdsPatron := false
	credit := decimal.Zero
	extras := decimal.Zero
	original := decimal.Zero
	for i := range products {
		p := products[i]
		kind := p.Kind()
		if kind.IsPatron() {
			holdsPatron = holdsPatron || p.Selected || p.Purchased
			continue
		}
		if kind == KindDonation {
			continue
		}
		if p.Purchased {
			credit = credit.Add(p.LinePrice())
		}
		if !p.pending() {
			continue
		}
		if kind.IsMonth() {
			if month == nil {
				month = &products[i]
			}
			continue
		}
		extras = extras.Add(p.LinePrice())
		original = original.Add(p.CatalogLinePrice())
	}

	monthPrice := decimal.Zero
	reference := DiscountableTotal(products)
	if month != nil {
		monthPrice = month.LinePrice()
		original = original.Add(month.CatalogLinePrice())
		reference = month.CatalogLinePrice()
	}
	if holdsPatron && (month == nil || month.AttendeeCategory != AttendeeCategoryMain) {
		credit = decimal.Zero
	}
	total := monthPrice.Add(extras).Sub(credit)
	return newResult(total, original, discountOn(DiscountableTotal(products), discount, reference))
}

// WeeklyStrategy is the default: week passes, day passes, lodging, the portal-patron
// add-on and any category the engine does not know, all at face value.
type WeeklyStrategy struct{}

func (WeeklyStrategy) Name() string { return StrategyWeekly }

func (WeeklyStrategy) Calculate(products []Product, discount Discount) Result {
	total := decimal.Zero
	for _, p := range products {
		if !p.Selected || !pricedWeekly(p) {
			continue
		}
		switch {
		case p.Kind() == KindDay:
			total = total.Add(dayCharge(p))
		case p.Purchased:
			total = total.Sub(p.LinePrice())
		default:
			total = total.Add(p.LinePrice())
		}
	}
	base := DiscountableTotal(products)
	return newResult(total, OriginalTotal(products), discountOn(base, discount, base))
}

func pricedWeekly(p Product) bool {
	if p.Slug == PortalPatronSlug {
		return true
	}
	switch p.Kind() {
	case KindWeek, KindLocalWeek, KindDay, KindLodging, KindUnknown:
		return true
	}
	return false
}

// dayCharge is the amount due for a selected day pass: the full line when new, only
// the added days when it was already bought.
func dayCharge(p Product) decimal.Decimal {
	if p.Purchased {
		return p.UnitPrice().Mul(decimal.NewFromInt(int64(p.QtyDelta())))
	}
	return p.LinePrice()
}

// PatreonStrategy charges the patron tier alone. Discount-eligible products selected
// alongside it are waived and reported in DiscountAmount as what they would have cost.
// Excluded products (lodging, portal-patron) are not charged either, but they only
// show up in OriginalTotal so they never count as a discount.
type PatreonStrategy struct{}

func (PatreonStrategy) Name() string { return StrategyPatreon }

func (PatreonStrategy) Calculate(products []Product, _ Discount) Result {
	total := decimal.Zero
	waived := decimal.Zero
	chargedPatron := false
	for _, p := range products {
		if !p.pending() || p.Kind() == KindDonation {
			continue
		}
		switch {
		case p.Kind().IsPatron():
			if !chargedPatron {
				total = total.Add(p.LinePrice())
				chargedPatron = true
			}
		case IsDiscountExcluded(p):
			// covered by the patron tier, never a discount
		default:
			waived = waived.Add(p.CatalogLinePrice())
		}
	}
	return newResult(total, OriginalTotal(products), waived)
}

// MonthlyPurchasedStrategy prices extras for an attendee who already owns a month
// pass. Already-purchased bundles are never discounted.
type MonthlyPurchasedStrategy struct{}

func (MonthlyPurchasedStrategy) Name() string { return StrategyMonthlyPurchased }

func (MonthlyPurchasedStrategy) Calculate(products []Product, _ Discount) Result {
	weekSelected := false
	lodging := decimal.Zero
	patron := decimal.Zero
	for _, p := range products {
		kind := p.Kind()
		if p.Selected && kind.IsWeek() {
			weekSelected = true
		}
		if !p.pending() {
			continue
		}
		switch {
		case kind == KindLodging:
			lodging = lodging.Add(p.LinePrice())
		case p.Slug == PortalPatronSlug:
			patron = patron.Add(p.LinePrice())
		}
	}
	extras := lodging.Add(patron)
	if !weekSelected {
		return newResult(extras, extras, decimal.Zero)
	}

	var month *Product
	weeks := decimal.Zero
	for i := range products {
		p := products[i]
		kind := p.Kind()
		if kind.IsMonth() && p.Purchased && month == nil {
			month = &products[i]
		}
		if kind.IsWeek() && p.Purchased && !p.Selected {
			weeks = weeks.Add(p.LinePrice())
		}
	}
	total := weeks.Add(extras)
	if month != nil {
		total = total.Sub(month.LinePrice())
	}
	return newResult(total, OriginalTotal(products), decimal.Zero)
}

// DayStrategy prices day passes in isolation. SelectStrategy never returns it; it is
// kept for callers that want day-only totals.
type DayStrategy struct{}

func (DayStrategy) Name() string { return StrategyDay }

func (DayStrategy) Calculate(products []Product, discount Discount) Result {
	days := make([]Product, 0, len(products))
	total := decimal.Zero
	for _, p := range products {
		if p.Kind() != KindDay {
			continue
		}
		days = append(days, p)
		if p.Selected {
			total = total.Add(dayCharge(p))
		}
	}
	base := DiscountableTotal(days)
	return newResult(total, OriginalTotal(days), discountOn(base, discount, base))
}

// DonationStrategy sums selected, unpurchased donations at their custom price.
// Donations are never discounted.
type DonationStrategy struct{}

func (DonationStrategy) Name() string { return StrategyDonation }

func (DonationStrategy) Calculate(products []Product, _ Discount) Result {
	total := decimal.Zero
	for _, p := range products {
		if p.Kind() == KindDonation && p.pending() {
			total = total.Add(p.DonationAmount())
		}
	}
	return newResult(total, total, decimal.Zero)
}
