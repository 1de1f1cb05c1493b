package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/platform/auth"
	"github.com/malistore/api/internal/platform/httpx"
	"github.com/malistore/api/internal/services"
)

type createPaymentSessionRequest struct {
	OrderID    string `json:"orderId"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

type paymentSessionResponse struct {
	SessionID  string `json:"sessionId"`
	SessionURL string `json:"sessionUrl"`
	PublicKey  string `json:"publicKey"`
	OrderID    string `json:"orderId"`
	PaymentID  string `json:"paymentId,omitempty"`
}

// PaymentHandlersOption customises PaymentHandlers.
type PaymentHandlersOption func(*PaymentHandlers)

// WithPaymentIdempotency wraps session creation with an Idempotency-Key middleware.
func WithPaymentIdempotency(mw func(http.Handler) http.Handler) PaymentHandlersOption {
	return func(h *PaymentHandlers) {
		h.idempotency = mw
	}
}

// PaymentHandlers exposes checkout session creation and payment history for customers.
type PaymentHandlers struct {
	authn       *auth.Authenticator
	payments    services.PaymentService
	idempotency func(http.Handler) http.Handler
}

// NewPaymentHandlers constructs PaymentHandlers.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, opts ...PaymentHandlersOption) *PaymentHandlers {
	h := &PaymentHandlers{
		authn:    authn,
		payments: payments,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the authenticated /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	create := http.Handler(http.HandlerFunc(h.createSession))
	if h.idempotency != nil {
		create = h.idempotency(create)
	}
	r.Method(http.MethodPost, "/sessions", create)
	r.Get("/", h.listPayments)
	r.Get("/{paymentID}", h.getPayment)
}

func (h *PaymentHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeServiceUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createPaymentSessionRequest
	if err := httpx.DecodeJSON(r, maxJSONBodySize, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderId is required", http.StatusBadRequest))
		return
	}

	session, err := h.payments.CreateSession(ctx, services.CreatePaymentSessionCommand{
		OrderID:    orderID,
		UserID:     strings.TrimSpace(identity.UID),
		SuccessURL: strings.TrimSpace(req.SuccessURL),
		CancelURL:  strings.TrimSpace(req.CancelURL),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentSessionResponse{
		SessionID:  session.SessionID,
		SessionURL: session.SessionURL,
		PublicKey:  session.PublicKey,
		OrderID:    session.OrderID,
		PaymentID:  session.PaymentID,
	})
}

func (h *PaymentHandlers) listPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeServiceUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	statuses, err := parsePaymentStatuses(r.URL.Query()["status"])
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	page, ok := parsePage(w, r)
	if !ok {
		return
	}

	result, err := h.payments.ListPayments(ctx, services.PaymentListFilter{
		UserID:     strings.TrimSpace(identity.UID),
		Status:     statuses,
		Pagination: page,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildPaymentListResponse(result))
}

// getPayment lets admins read any payment; customers only see their own.
func (h *PaymentHandlers) getPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeServiceUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	paymentID := strings.TrimSpace(chi.URLParam(r, "paymentID"))

	opts := services.PaymentReadOptions{}
	if !identity.IsAdmin() {
		opts.UserID = strings.TrimSpace(identity.UID)
	}
	payment, err := h.payments.GetPayment(ctx, paymentID, opts)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentResponse{Payment: buildPaymentPayload(payment)})
}

type paymentResponse struct {
	Payment paymentPayload `json:"payment"`
}

type paymentListResponse struct {
	Items         []paymentPayload `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

type paymentPayload struct {
	ID                string `json:"id"`
	OrderID           string `json:"orderId"`
	UserID            string `json:"userId"`
	Provider          string `json:"provider"`
	Status            string `json:"status"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Method            string `json:"method,omitempty"`
	Description       string `json:"description,omitempty"`
	SessionID         string `json:"sessionId,omitempty"`
	PaymentIntentID   string `json:"paymentIntentId,omitempty"`
	TransactionID     string `json:"transactionId,omitempty"`
	FailureReason     string `json:"failureReason,omitempty"`
	WebhookReceivedAt string `json:"webhookReceivedAt,omitempty"`
	CreatedAt         string `json:"createdAt"`
	UpdatedAt         string `json:"updatedAt,omitempty"`
}

func buildPaymentListResponse(page domain.CursorPage[services.Payment]) paymentListResponse {
	items := make([]paymentPayload, 0, len(page.Items))
	for _, payment := range page.Items {
		items = append(items, buildPaymentPayload(payment))
	}
	return paymentListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	}
}

func buildPaymentPayload(payment services.Payment) paymentPayload {
	return paymentPayload{
		ID:                payment.ID,
		OrderID:           payment.OrderID,
		UserID:            payment.UserID,
		Provider:          payment.Provider,
		Status:            string(payment.Status),
		Amount:            formatAmount(payment.Amount),
		Currency:          strings.ToUpper(payment.Currency),
		Method:            string(payment.Method),
		Description:       payment.Description,
		SessionID:         payment.SessionID,
		PaymentIntentID:   payment.PaymentIntentID,
		TransactionID:     payment.TransactionID,
		FailureReason:     payment.FailureReason,
		WebhookReceivedAt: formatTimePtr(payment.WebhookReceivedAt),
		CreatedAt:         formatTime(payment.CreatedAt),
		UpdatedAt:         formatTime(payment.UpdatedAt),
	}
}
