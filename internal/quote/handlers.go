package quote

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/portal-pricing/internal/common"
)

// Handler exposes the pricing endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Routes mounts the quote endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/quotes", h.Quote)
	r.Post("/applications/{applicationID}/quote", h.QuoteApplication)
	r.Post("/discounts/best", h.BestDiscount)
	r.Post("/products/display-prices", h.DisplayPrices)
}

// Quote handles POST /api/v1/quotes.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	var req Request
	if err := decode(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	resp, err := h.service.Quote(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": resp})
}

// QuoteApplication handles POST /api/v1/applications/{applicationID}/quote.
func (h *Handler) QuoteApplication(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "applicationID"))
	if err != nil {
		common.WriteError(w, common.BadRequest("applicationID", "application id must be a positive integer", err))
		return
	}
	var sel Selection
	if err := decode(r, &sel); err != nil && !errors.Is(err, io.EOF) {
		common.WriteError(w, err)
		return
	}
	resp, err := h.service.QuoteApplication(r.Context(), id, sel)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": resp})
}

// BestDiscount handles POST /api/v1/discounts/best.
func (h *Handler) BestDiscount(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	var req BestDiscountRequest
	if err := decode(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.service.BestDiscount(r.Context(), req)})
}

// DisplayPrices handles POST /api/v1/products/display-prices.
func (h *Handler) DisplayPrices(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	var req DisplayPricesRequest
	if err := decode(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	rows, err := h.service.DisplayPrices(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return common.NewAppError("PAYLOAD_TOO_LARGE", "request body too large", http.StatusRequestEntityTooLarge, err)
		}
		return common.BadRequest("", "invalid payload", err)
	}
	return nil
}
