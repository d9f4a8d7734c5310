package pricing

import "strings"

// Category is the free-form product category reported by the portal API.
type Category string

// Kind is the closed classification of a Category.
type Kind int

const (
	// KindUnknown covers categories the engine has no rule for. They are priced at face value.
	KindUnknown Kind = iota
	KindWeek
	KindLocalWeek
	KindMonth
	KindLocalMonth
	KindDay
	KindLodging
	KindPatreon
	KindSupporter
	KindDonation
)

// Known category names.
const (
	CategoryWeek       Category = "week"
	CategoryLocalWeek  Category = "local week"
	CategoryMonth      Category = "month"
	CategoryLocalMonth Category = "local month"
	CategoryDay        Category = "day"
	CategoryLocalDay   Category = "local day"
	CategoryLodging    Category = "lodging"
	CategoryPatreon    Category = "patreon"
	CategorySupporter  Category = "supporter"
	CategoryDonation   Category = "donation"
)

// PortalPatronSlug identifies the premium patron add-on, which is never discounted.
const PortalPatronSlug = "portal-patron"

// AttendeeCategoryMain is the role of the application owner.
const AttendeeCategoryMain = "main"

var exactKinds = map[Category]Kind{
	CategoryWeek:       KindWeek,
	CategoryLocalWeek:  KindLocalWeek,
	CategoryMonth:      KindMonth,
	CategoryLocalMonth: KindLocalMonth,
	CategoryLodging:    KindLodging,
	CategoryPatreon:    KindPatreon,
	CategorySupporter:  KindSupporter,
	CategoryDonation:   KindDonation,
}

// Kind classifies the category. Exact names win; any other name containing "day" is a day pass.
func (c Category) Kind() Kind {
	if k, ok := exactKinds[c]; ok {
		return k
	}
	if IsDayCategory(c) {
		return KindDay
	}
	return KindUnknown
}

// IsDayCategory reports whether c is a per-day pass category ("day", "local day", ...).
func IsDayCategory(c Category) bool {
	return strings.Contains(string(c), "day")
}

// IsWeek reports week and local week passes.
func (k Kind) IsWeek() bool { return k == KindWeek || k == KindLocalWeek }

// IsMonth reports month and local month passes.
func (k Kind) IsMonth() bool { return k == KindMonth || k == KindLocalMonth }

// IsPatron reports the patreon and supporter tiers.
func (k Kind) IsPatron() bool { return k == KindPatreon || k == KindSupporter }

func (k Kind) String() string {
	switch k {
	case KindWeek:
		return "week"
	case KindLocalWeek:
		return "local_week"
	case KindMonth:
		return "month"
	case KindLocalMonth:
		return "local_month"
	case KindDay:
		return "day"
	case KindLodging:
		return "lodging"
	case KindPatreon:
		return "patreon"
	case KindSupporter:
		return "supporter"
	case KindDonation:
		return "donation"
	default:
		return "unknown"
	}
}
