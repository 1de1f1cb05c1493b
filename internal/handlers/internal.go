package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/malistore/api/internal/platform/auth"
	"github.com/malistore/api/internal/platform/httpx"
	"github.com/malistore/api/internal/services"
)

// StockSweeper runs one low-stock check.
type StockSweeper interface {
	Sweep(ctx context.Context) (services.StockAlertReport, error)
}

// InternalHandlers serves scheduler-triggered maintenance endpoints. Authentication is applied by
// the router's internal middleware group.
type InternalHandlers struct {
	stock StockSweeper
}

// NewInternalHandlers constructs InternalHandlers.
func NewInternalHandlers(stock StockSweeper) *InternalHandlers {
	return &InternalHandlers{stock: stock}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stock-alerts:sweep", h.sweepStock)
}

type stockSweepResponse struct {
	Threshold   int              `json:"threshold"`
	Recipient   string           `json:"recipient"`
	Count       int              `json:"count"`
	Products    []productPayload `json:"products"`
	Message     string           `json:"message,omitempty"`
	CheckedAt   string           `json:"checkedAt"`
	TriggeredBy string           `json:"triggeredBy,omitempty"`
}

func (h *InternalHandlers) sweepStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		writeServiceUnavailable(ctx, w, "stock_alert")
		return
	}
	report, err := h.stock.Sweep(ctx)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInventoryUnavailable), errors.Is(err, context.DeadlineExceeded):
			httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory storage unavailable", http.StatusServiceUnavailable))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("stock_sweep_failed", "stock alert sweep failed", http.StatusInternalServerError))
		}
		return
	}

	products := make([]productPayload, 0, len(report.Products))
	for _, product := range report.Products {
		products = append(products, buildProductPayload(product))
	}
	resp := stockSweepResponse{
		Threshold: report.Threshold,
		Recipient: report.Recipient,
		Count:     len(products),
		Products:  products,
		Message:   report.Message,
		CheckedAt: formatTime(report.CheckedAt),
	}
	if caller, ok := auth.ServiceIdentityFromContext(ctx); ok {
		resp.TriggeredBy = caller.Email
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
