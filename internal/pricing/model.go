package pricing

import "github.com/shopspring/decimal"

// Product is a purchasable line item held by one attendee.
type Product struct {
	ID               int                 `json:"id"`
	Name             string              `json:"name,omitempty"`
	Slug             string              `json:"slug,omitempty"`
	Category         Category            `json:"category"`
	Price            decimal.Decimal     `json:"price"`
	OriginalPrice    decimal.NullDecimal `json:"original_price"`
	Quantity         *int                `json:"quantity,omitempty"`
	OriginalQuantity *int                `json:"original_quantity,omitempty"`
	Selected         bool                `json:"selected"`
	Purchased        bool                `json:"purchased"`
	CustomPrice      decimal.NullDecimal `json:"custom_price"`
	AttendeeCategory string              `json:"attendee_category,omitempty"`
	MaxInventory     *int                `json:"max_inventory,omitempty"`
	CurrentSold      int                 `json:"current_sold,omitempty"`
}

// Attendee owns an ordered set of products. Products of different attendees never interact.
type Attendee struct {
	ID            int       `json:"id"`
	ApplicationID int       `json:"application_id,omitempty"`
	Name          string    `json:"name,omitempty"`
	Email         string    `json:"email,omitempty"`
	Category      string    `json:"category,omitempty"`
	Gender        string    `json:"gender,omitempty"`
	Products      []Product `json:"products" validate:"dive"`
}

// Result is the triple produced for an attendee or a whole order.
type Result struct {
	Total          decimal.Decimal `json:"total"`
	OriginalTotal  decimal.Decimal `json:"original_total"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

// Add returns the component-wise sum.
func (r Result) Add(o Result) Result {
	return Result{
		Total:          r.Total.Add(o.Total),
		OriginalTotal:  r.OriginalTotal.Add(o.OriginalTotal),
		DiscountAmount: r.DiscountAmount.Add(o.DiscountAmount),
	}
}

// Round rounds every component to the given number of decimal places.
func (r Result) Round(places int32) Result {
	return Result{
		Total:          r.Total.Round(places),
		OriginalTotal:  r.OriginalTotal.Round(places),
		DiscountAmount: r.DiscountAmount.Round(places),
	}
}

// Kind classifies the product category.
func (p Product) Kind() Kind { return p.Category.Kind() }

// Qty is the requested quantity, 1 when absent or not positive.
func (p Product) Qty() int {
	if p.Quantity == nil || *p.Quantity <= 0 {
		return 1
	}
	return *p.Quantity
}

// OriginalQty is the quantity bought before this edit, 1 when absent or not positive.
func (p Product) OriginalQty() int {
	if p.OriginalQuantity == nil || *p.OriginalQuantity <= 0 {
		return 1
	}
	return *p.OriginalQuantity
}

// QtyDelta is the quantity added on top of the purchased quantity, never negative.
func (p Product) QtyDelta() int {
	if d := p.Qty() - p.OriginalQty(); d > 0 {
		return d
	}
	return 0
}

// CatalogPrice is original_price, falling back to price.
func (p Product) CatalogPrice() decimal.Decimal {
	if p.OriginalPrice.Valid {
		return nonNegative(p.OriginalPrice.Decimal)
	}
	return p.UnitPrice()
}

// UnitPrice is the current price, never negative.
func (p Product) UnitPrice() decimal.Decimal {
	return nonNegative(p.Price)
}

// LinePrice is price × quantity.
func (p Product) LinePrice() decimal.Decimal {
	return p.UnitPrice().Mul(decimal.NewFromInt(int64(p.Qty())))
}

// CatalogLinePrice is catalog price × quantity.
func (p Product) CatalogLinePrice() decimal.Decimal {
	return p.CatalogPrice().Mul(decimal.NewFromInt(int64(p.Qty())))
}

// DonationAmount is the user-chosen donation, zero when absent or negative.
func (p Product) DonationAmount() decimal.Decimal {
	if !p.CustomPrice.Valid {
		return decimal.Zero
	}
	return nonNegative(p.CustomPrice.Decimal)
}

// pending reports products that are part of the current action and not yet bought.
func (p Product) pending() bool { return p.Selected && !p.Purchased }

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
