package quote_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-pricing/internal/portal"
	"github.com/noah-isme/portal-pricing/internal/pricing"
	"github.com/noah-isme/portal-pricing/internal/quote"
)

type errorResponse struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func newRouter(svc *quote.Service) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", quote.NewHandler(quote.HandlerConfig{Service: svc}).Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQuoteHandler(t *testing.T) {
	router := newRouter(quote.NewService(quote.ServiceConfig{}))

	body := `{
		"attendees": [{
			"id": 1,
			"category": "main",
			"products": [
				{"id": 1, "category": "month", "price": 500, "original_price": 600, "selected": true},
				{"id": 2, "category": "lodging", "price": "100", "selected": true}
			]
		}],
		"discount": {"discount_type": "percentage", "discount_value": 10}
	}`
	rec := do(t, router, http.MethodPost, "/api/v1/quotes", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var payload struct {
		Data quote.Response `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	requireAmount(t, "600", payload.Data.Total)
	requireAmount(t, "700", payload.Data.OriginalTotal)
	requireAmount(t, "50", payload.Data.DiscountAmount)
	require.Equal(t, "Confirm and Pay", payload.Data.CheckoutLabel)
	require.Equal(t, pricing.StrategyMonthly, payload.Data.Attendees[0].Strategy)

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Equal(t, "600", raw["data"]["total"])
	require.Contains(t, raw["data"], "request_id")
}

func TestQuoteHandlerErrors(t *testing.T) {
	router := newRouter(quote.NewService(quote.ServiceConfig{}))

	rec := do(t, router, http.MethodPost, "/api/v1/quotes", `{"attendees": [`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var er errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	require.Equal(t, "BAD_REQUEST", er.Error.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/quotes", `{"attendees": []}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	er = errorResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	require.Equal(t, "VALIDATION_FAILED", er.Error.Code)
	require.NotEmpty(t, er.Error.Details["fields"])

	rec = do(t, router, http.MethodPost, "/api/v1/applications/abc/quote", ``)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/applications/3/quote", ``)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestQuoteHandlerRejectsOversizedBody(t *testing.T) {
	router := newRouter(quote.NewService(quote.ServiceConfig{}))
	limited := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 16)
		router.ServeHTTP(w, r)
	})
	rec := do(t, limited, http.MethodPost, "/api/v1/quotes", `{"attendees": [{"id": 1, "products": []}]}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestQuoteApplicationHandler(t *testing.T) {
	fp := &fakePortal{
		app: portal.Application{ID: 9, Attendees: []pricing.Attendee{{
			ID: 3,
			Products: []pricing.Product{
				{ID: 20, Category: pricing.CategoryMonth, Price: dec("500"), Purchased: true, Selected: true},
				{ID: 21, Category: pricing.CategoryLodging, Price: dec("120")},
			},
		}}},
	}
	router := newRouter(quote.NewService(quote.ServiceConfig{Portal: fp}))

	body := `{"attendees": [{"attendee_id": 3, "products": [{"product_id": 20, "selected": false}, {"product_id": 21, "selected": true}]}]}`
	rec := do(t, router, http.MethodPost, "/api/v1/applications/9/quote", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var payload struct {
		Data quote.Response `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	requireAmount(t, "120", payload.Data.Total)
	requireAmount(t, "0", payload.Data.DiscountAmount)
	require.Equal(t, pricing.StrategyMonthlyPurchased, payload.Data.Attendees[0].Strategy)

	rec = do(t, router, http.MethodPost, "/api/v1/applications/10/quote", ``)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/applications/9/quote", `{"attendees": [{"attendee_id": 3, "products": [{"product_id": 99}]}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBestDiscountHandler(t *testing.T) {
	router := newRouter(quote.NewService(quote.ServiceConfig{}))
	rec := do(t, router, http.MethodPost, "/api/v1/discounts/best",
		`{"price": 200, "application_discount": 15, "current": {"discount_type": "fixed", "discount_value": 20}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Data pricing.Discount `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, pricing.DiscountPercentage, payload.Data.Type)
	requireAmount(t, "15", payload.Data.Value)
}

func TestDisplayPricesHandler(t *testing.T) {
	router := newRouter(quote.NewService(quote.ServiceConfig{}))
	rec := do(t, router, http.MethodPost, "/api/v1/products/display-prices",
		`{"products": [{"id": 1, "category": "week", "price": 300, "max_inventory": 4, "current_sold": 1}], "discount": {"discount_type": "fixed", "discount_value": 30}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var payload struct {
		Data []quote.DisplayPrice `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Data, 1)
	requireAmount(t, "270", payload.Data[0].Price)
	require.False(t, payload.Data[0].SoldOut)
	require.Equal(t, 3, *payload.Data[0].AvailableCount)

	rec = do(t, router, http.MethodPost, "/api/v1/products/display-prices", `{"products": []}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerWithoutService(t *testing.T) {
	router := newRouter(nil)
	rec := do(t, router, http.MethodPost, "/api/v1/quotes", `{}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestQuoteHandlerAcceptsMissingCategory(t *testing.T) {
	router := newRouter(quote.NewService(quote.ServiceConfig{}))
	rec := do(t, router, http.MethodPost, "/api/v1/quotes",
		`{"attendees": [{"id": 1, "products": [{"id": 5, "price": 40, "selected": true}]}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var payload struct {
		Data quote.Response `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	requireAmount(t, "40", payload.Data.Total)
	require.Equal(t, pricing.StrategyWeekly, payload.Data.Attendees[0].Strategy)
}
