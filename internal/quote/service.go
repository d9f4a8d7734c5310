package quote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/portal-pricing/internal/cache"
	"github.com/noah-isme/portal-pricing/internal/common"
	"github.com/noah-isme/portal-pricing/internal/obs"
	"github.com/noah-isme/portal-pricing/internal/portal"
	"github.com/noah-isme/portal-pricing/internal/pricing"
	"github.com/noah-isme/portal-pricing/internal/resilience"
)

const moneyPlaces = 2

var (
	// ErrUnknownAttendee is returned when a selection names an attendee the application does not have.
	ErrUnknownAttendee = errors.New("quote: unknown attendee")
	// ErrUnknownProduct is returned when a selection names a product the attendee does not hold.
	ErrUnknownProduct = errors.New("quote: unknown product")
)

// PortalReader is the part of the portal API the quote service depends on.
type PortalReader interface {
	Application(ctx context.Context, id int) (portal.Application, error)
	ApplicationDiscount(ctx context.Context, applicationID int) (pricing.Discount, error)
	GroupDiscountPercent(ctx context.Context, groupID int) (decimal.Decimal, error)
}

// Request is a full pricing snapshot.
type Request struct {
	Attendees               []pricing.Attendee `json:"attendees" validate:"required,min=1,dive"`
	Discount                pricing.Discount   `json:"discount"`
	GroupDiscountPercentage decimal.Decimal    `json:"group_discount_percentage"`
}

// Response is a priced quote.
type Response struct {
	RequestID        string `json:"request_id"`
	Cached           bool   `json:"cached"`
	RequiresPayment  bool   `json:"requires_payment"`
	CheckoutLabel    string `json:"checkout_label"`
	HasPendingAction bool   `json:"has_pending_action"`
	pricing.Breakdown
}

// Selection is the pending choice of the user on top of an application loaded from the portal.
type Selection struct {
	Attendees []AttendeeSelection `json:"attendees" validate:"dive"`
}

// AttendeeSelection carries product choices for one attendee.
type AttendeeSelection struct {
	AttendeeID int                `json:"attendee_id" validate:"required"`
	Products   []ProductSelection `json:"products" validate:"dive"`
}

// ProductSelection overrides the state of one product. Nil fields keep the portal value.
type ProductSelection struct {
	ProductID   int                 `json:"product_id" validate:"required"`
	Selected    *bool               `json:"selected,omitempty"`
	Quantity    *int                `json:"quantity,omitempty" validate:"omitempty,min=0"`
	CustomPrice decimal.NullDecimal `json:"custom_price"`
}

// BestDiscountRequest asks which of two discounts is worth more on a price.
type BestDiscountRequest struct {
	Price               decimal.Decimal  `json:"price"`
	ApplicationDiscount decimal.Decimal  `json:"application_discount"`
	Current             pricing.Discount `json:"current"`
}

// DisplayPricesRequest lists the products of one attendee shown in the picker.
type DisplayPricesRequest struct {
	Products []pricing.Product `json:"products" validate:"required,min=1,dive"`
	Discount pricing.Discount  `json:"discount"`
}

// DisplayPrice is one row of the picker.
type DisplayPrice struct {
	ProductID      int             `json:"product_id"`
	Price          decimal.Decimal `json:"price"`
	CatalogPrice   decimal.Decimal `json:"catalog_price"`
	Excluded       bool            `json:"discount_excluded"`
	SoldOut        bool            `json:"sold_out"`
	AvailableCount *int            `json:"available_count"`
}

// ServiceConfig configures the quote service.
type ServiceConfig struct {
	Portal     PortalReader
	Cache      *cache.Cache
	Calculator pricing.TotalCalculator
	Validate   *validator.Validate
	Logger     zerolog.Logger
}

// Service prices quotes for inline snapshots and portal applications.
type Service struct {
	portal     PortalReader
	cache      *cache.Cache
	calculator pricing.TotalCalculator
	validate   *validator.Validate
	logger     zerolog.Logger
}

// NewService constructs a Service. Portal and Cache are optional.
func NewService(cfg ServiceConfig) *Service {
	v := cfg.Validate
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	return &Service{
		portal:     cfg.Portal,
		cache:      cfg.Cache,
		calculator: cfg.Calculator,
		validate:   v,
		logger:     cfg.Logger,
	}
}

type snapshotKey struct {
	Attendees []pricing.Attendee `json:"a"`
	Discount  pricing.Discount   `json:"d"`
	Group     string             `json:"g"`
}

// Quote prices an inline snapshot.
func (s *Service) Quote(ctx context.Context, req Request) (Response, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return Response{}, validationError(err)
	}
	return s.quote(ctx, req, "inline")
}

// QuoteApplication loads the application, its individual discount and its group
// discount from the portal, applies the selection and prices the result.
func (s *Service) QuoteApplication(ctx context.Context, applicationID int, sel Selection) (Response, error) {
	if s.portal == nil {
		return Response{}, common.NewAppError("PORTAL_UNAVAILABLE", "portal client not configured", http.StatusServiceUnavailable, nil)
	}
	if applicationID <= 0 {
		return Response{}, common.BadRequest("applicationID", "application id must be a positive integer", nil)
	}
	if err := s.validate.StructCtx(ctx, sel); err != nil {
		return Response{}, validationError(err)
	}

	ctx, span := obs.Tracer("quote").Start(ctx, "Service.QuoteApplication")
	defer span.End()
	span.SetAttributes(attribute.Int("portal.application_id", applicationID))

	var (
		app      portal.Application
		discount pricing.Discount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		app, err = s.portal.Application(gctx, applicationID)
		return err
	})
	g.Go(func() error {
		var err error
		discount, err = s.portal.ApplicationDiscount(gctx, applicationID)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "portal fetch failed")
		return Response{}, portalError(err)
	}

	groupPct := decimal.Zero
	if app.GroupID != nil {
		pct, err := s.portal.GroupDiscountPercent(ctx, *app.GroupID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "group fetch failed")
			return Response{}, portalError(err)
		}
		groupPct = pct
	}

	attendees, err := ApplySelection(app.Attendees, sel)
	if err != nil {
		return Response{}, common.BadRequest("attendees", err.Error(), err)
	}
	req := Request{Attendees: attendees, Discount: discount, GroupDiscountPercentage: groupPct}
	if len(req.Attendees) == 0 {
		return Response{}, common.NewAppError("UNPROCESSABLE", "application has no attendees", http.StatusUnprocessableEntity, nil)
	}
	return s.quote(ctx, req, "application")
}

// BestDiscount reconciles the application discount with the current one.
func (s *Service) BestDiscount(_ context.Context, req BestDiscountRequest) pricing.Discount {
	best := pricing.GetBestDiscount(req.Price, req.ApplicationDiscount, req.Current)
	best.Value = best.Value.Round(moneyPlaces)
	return best
}

// DisplayPrices computes picker prices and inventory flags for one attendee.
func (s *Service) DisplayPrices(ctx context.Context, req DisplayPricesRequest) ([]DisplayPrice, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, validationError(err)
	}
	discount := req.Discount.Sanitize()
	patronPurchased := false
	for _, p := range req.Products {
		if p.Purchased && p.Kind().IsPatron() {
			patronPurchased = true
			break
		}
	}
	out := make([]DisplayPrice, 0, len(req.Products))
	for _, p := range req.Products {
		pct := pricing.EffectivePercent(discount, p.CatalogPrice())
		out = append(out, DisplayPrice{
			ProductID:      p.ID,
			Price:          pricing.DisplayPrice(p, patronPurchased, pct).Round(moneyPlaces),
			CatalogPrice:   p.CatalogLinePrice().Round(moneyPlaces),
			Excluded:       pricing.IsDiscountExcluded(p),
			SoldOut:        pricing.IsSoldOut(p),
			AvailableCount: pricing.AvailableCount(p),
		})
	}
	return out, nil
}

func (s *Service) quote(ctx context.Context, req Request, source string) (Response, error) {
	ctx, span := obs.Tracer("quote").Start(ctx, "Service.Quote")
	defer span.End()
	span.SetAttributes(
		attribute.String("quote.source", source),
		attribute.Int("quote.attendees", len(req.Attendees)),
	)
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &s.logger
	}

	start := time.Now()
	key := ""
	if s.cache.Enabled() {
		k, err := cache.HashKey(snapshotKey{
			Attendees: req.Attendees,
			Discount:  req.Discount,
			Group:     req.GroupDiscountPercentage.String(),
		})
		if err != nil {
			logger.Warn().Err(err).Msg("quote cache key")
		}
		key = k
	}

	var breakdown pricing.Breakdown
	cached := false
	if key != "" {
		hit, err := s.cache.GetJSON(ctx, key, &breakdown)
		switch {
		case err != nil:
			obs.IncCounter(obs.QuoteCacheTotal, "error")
			logger.Warn().Err(err).Msg("quote cache lookup failed")
		case hit:
			obs.IncCounter(obs.QuoteCacheTotal, "hit")
			cached = true
		default:
			obs.IncCounter(obs.QuoteCacheTotal, "miss")
		}
	}

	if !cached {
		breakdown = roundBreakdown(s.calculator.Quote(req.Attendees, req.Discount, req.GroupDiscountPercentage))
		for _, line := range breakdown.Attendees {
			obs.IncCounter(obs.QuoteTotal, line.Strategy)
		}
		obs.IncCounter(obs.QuoteDiscountSource, string(breakdown.DiscountSource))
		if key != "" {
			if err := s.cache.SetJSON(ctx, key, breakdown); err != nil {
				logger.Warn().Err(err).Msg("quote cache store failed")
			}
		}
	}
	obs.ObserveMillis(obs.QuoteDuration, obs.DurationMillis(time.Since(start)), source)

	span.SetAttributes(
		attribute.Bool("quote.cached", cached),
		attribute.String("quote.total", breakdown.Total.String()),
		attribute.String("quote.discount_source", string(breakdown.DiscountSource)),
	)
	logger.Debug().
		Str("source", source).
		Bool("cached", cached).
		Str("total", breakdown.Total.String()).
		Str("discount_source", string(breakdown.DiscountSource)).
		Msg("quote computed")

	return Response{
		RequestID:        uuid.NewString(),
		Cached:           cached,
		RequiresPayment:  breakdown.Total.IsPositive(),
		CheckoutLabel:    pricing.CheckoutLabel(breakdown.Total),
		HasPendingAction: pricing.HasPendingAction(req.Attendees),
		Breakdown:        breakdown,
	}, nil
}

// ApplySelection overlays the selection on a copy of attendees. Purchased products keep
// their purchased quantity as the original quantity so that only increases are charged.
func ApplySelection(attendees []pricing.Attendee, sel Selection) ([]pricing.Attendee, error) {
	out := make([]pricing.Attendee, len(attendees))
	index := make(map[int]int, len(attendees))
	for i, a := range attendees {
		a.Products = append([]pricing.Product(nil), a.Products...)
		out[i] = a
		index[a.ID] = i
	}
	for _, as := range sel.Attendees {
		ai, ok := index[as.AttendeeID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownAttendee, as.AttendeeID)
		}
		products := out[ai].Products
		for _, ps := range as.Products {
			pi := -1
			for i := range products {
				if products[i].ID == ps.ProductID {
					pi = i
					break
				}
			}
			if pi < 0 {
				return nil, fmt.Errorf("%w: attendee %d product %d", ErrUnknownProduct, as.AttendeeID, ps.ProductID)
			}
			p := &products[pi]
			if p.Purchased && p.OriginalQuantity == nil && p.Quantity != nil {
				q := *p.Quantity
				p.OriginalQuantity = &q
			}
			if ps.Selected != nil {
				p.Selected = *ps.Selected
			}
			if ps.Quantity != nil {
				q := *ps.Quantity
				p.Quantity = &q
			}
			if ps.CustomPrice.Valid {
				p.CustomPrice = ps.CustomPrice
			}
		}
	}
	return out, nil
}

func roundBreakdown(b pricing.Breakdown) pricing.Breakdown {
	b.Result = b.Result.Round(moneyPlaces)
	b.DonationTotal = b.DonationTotal.Round(moneyPlaces)
	lines := make([]pricing.AttendeeLine, len(b.Attendees))
	for i, line := range b.Attendees {
		line.Result = line.Result.Round(moneyPlaces)
		line.Donation = line.Donation.Round(moneyPlaces)
		lines[i] = line
	}
	b.Attendees = lines
	return b
}

func portalError(err error) error {
	switch {
	case errors.Is(err, portal.ErrNotFound):
		return common.NewAppError("NOT_FOUND", "application not found", http.StatusNotFound, err)
	case errors.Is(err, resilience.ErrOpenCircuit):
		return common.NewAppError("PORTAL_UNAVAILABLE", "portal temporarily unavailable", http.StatusServiceUnavailable, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return common.NewAppError("PORTAL_TIMEOUT", "portal did not respond in time", http.StatusGatewayTimeout, err)
	default:
		return common.NewAppError("PORTAL_ERROR", "portal request failed", http.StatusBadGateway, err)
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return common.BadRequest("", "invalid request", err)
	}
	fields := make([]map[string]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, map[string]string{
			"field": fe.Namespace(),
			"rule":  fe.Tag(),
		})
	}
	return &common.AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "request validation failed",
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details:    map[string]any{"fields": fields},
	}
}
