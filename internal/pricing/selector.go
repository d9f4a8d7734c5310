package pricing

// Rule pairs a predicate over an attendee's products with the strategy to use when it matches.
type Rule struct {
	Name     string
	Matches  func(products []Product) bool
	Strategy Strategy
}

var fallbackStrategy Strategy = WeeklyStrategy{}

// Rules returns the strategy decision table in priority order. The first matching
// rule wins; the predicates overlap in real data, so order encodes intent.
func Rules() []Rule {
	return []Rule{
		{Name: "patron tier selected", Matches: anyProduct(func(p Product) bool {
			return p.Selected && p.Kind().IsPatron()
		}), Strategy: PatreonStrategy{}},
		{Name: "month pass selected", Matches: anyProduct(func(p Product) bool {
			return p.Selected && p.Kind().IsMonth()
		}), Strategy: MonthlyStrategy{}},
		{Name: "month pass purchased", Matches: anyProduct(func(p Product) bool {
			return p.Purchased && p.Kind().IsMonth()
		}), Strategy: MonthlyPurchasedStrategy{}},
	}
}

// SelectStrategy picks the strategy for one attendee. Anything not matched by a rule,
// unknown categories included, is priced by WeeklyStrategy.
func SelectStrategy(products []Product) Strategy {
	for _, rule := range Rules() {
		if rule.Matches(products) {
			return rule.Strategy
		}
	}
	return fallbackStrategy
}

func anyProduct(pred func(Product) bool) func([]Product) bool {
	return func(products []Product) bool {
		for _, p := range products {
			if pred(p) {
				return true
			}
		}
		return false
	}
}
