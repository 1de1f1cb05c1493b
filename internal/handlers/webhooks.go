package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/malistore/api/internal/payments"
	"github.com/malistore/api/internal/platform/httpx"
	"github.com/malistore/api/internal/services"
)

const (
	maxWebhookBodySize     = 256 * 1024
	stripeSignatureHeader  = "Stripe-Signature"
	simulatedFailureReason = "Mock payment failure for testing"
	simulationSource       = "simulation"
)

// WebhookVerifier authenticates provider notifications.
type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (payments.WebhookEvent, error)
}

// WebhookHandlersOption customises WebhookHandlers.
type WebhookHandlersOption func(*WebhookHandlers)

// WithPaymentSimulation exposes the simulate-success and simulate-failure endpoints.
func WithPaymentSimulation(enabled bool) WebhookHandlersOption {
	return func(h *WebhookHandlers) {
		h.simulation = enabled
	}
}

// WithWebhookRateLimit caps webhook deliveries per remote address and minute.
func WithWebhookRateLimit(perMinute int) WebhookHandlersOption {
	return func(h *WebhookHandlers) {
		h.perMinute = perMinute
	}
}

// WithWebhookClock overrides the clock used by the rate limiter.
func WithWebhookClock(clock func() time.Time) WebhookHandlersOption {
	return func(h *WebhookHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WebhookHandlers receives provider notifications and, outside production, simulated outcomes.
// The provider signature is the only authentication on these routes.
type WebhookHandlers struct {
	verifier   WebhookVerifier
	reconciler services.ReconciliationService
	simulation bool
	perMinute  int
	limiter    rateLimiter
	clock      func() time.Time
}

// NewWebhookHandlers constructs WebhookHandlers.
func NewWebhookHandlers(verifier WebhookVerifier, reconciler services.ReconciliationService, opts ...WebhookHandlersOption) *WebhookHandlers {
	h := &WebhookHandlers{
		verifier:   verifier,
		reconciler: reconciler,
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.limiter = newKeyedRateLimiter(h.perMinute, h.clock)
	return h
}

// Routes registers the unauthenticated /payments endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(webhooks chi.Router) {
		webhooks.Use(rateLimitMiddleware(h.limiter))
		webhooks.Post("/webhook", h.handleStripe)
		webhooks.Post("/webhook/stripe", h.handleStripe)
	})
	if h.simulation {
		r.Post("/simulate-success/{sessionID}", h.simulateSuccess)
		r.Post("/simulate-failure/{sessionID}", h.simulateFailure)
	}
}

type webhookResponse struct {
	Received         bool   `json:"received"`
	EventType        string `json:"eventType,omitempty"`
	Result           string `json:"result"`
	PaymentID        string `json:"paymentId,omitempty"`
	OrderPaid        bool   `json:"orderPaid,omitempty"`
	StockDecremented bool   `json:"stockDecremented,omitempty"`
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.verifier == nil || h.reconciler == nil {
		writeServiceUnavailable(ctx, w, "webhook")
		return
	}

	payload, err := httpx.ReadBody(r, maxWebhookBodySize)
	if err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	event, err := h.verifier.Verify(payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		if errors.Is(err, payments.ErrSignatureVerification) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_webhook", err.Error(), http.StatusBadRequest))
		return
	}

	response := webhookResponse{Received: true, EventType: event.Type}
	if event.Outcome == payments.OutcomeNone {
		response.Result = "ignored"
		httpx.WriteJSON(w, http.StatusOK, response)
		return
	}

	result, err := h.reconciler.Reconcile(ctx, services.ReconcileCommand{
		SessionID:       event.SessionID,
		PaymentIntentID: event.PaymentIntentID,
		Outcome:         services.PaymentOutcome(event.Outcome),
		FailureReason:   event.FailureReason,
		Source:          event.Type,
	})
	switch {
	case err == nil:
		response.Result = reconcileResultLabel(result)
		response.PaymentID = result.Payment.ID
		response.OrderPaid = result.OrderPaid
		response.StockDecremented = result.StockDecremented
	case errors.Is(err, services.ErrPaymentNotFound):
		// acknowledged so the provider stops redelivering
		response.Result = services.ReconcileResultUnmatched
	case errors.Is(err, services.ErrPaymentInvalidState),
		errors.Is(err, services.ErrPaymentDuplicate),
		errors.Is(err, services.ErrPaymentInvalidInput):
		response.Result = services.ReconcileResultRejected
	default:
		writePaymentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

func (h *WebhookHandlers) simulateSuccess(w http.ResponseWriter, r *http.Request) {
	h.simulate(w, r, services.PaymentOutcomeSucceeded, "")
}

func (h *WebhookHandlers) simulateFailure(w http.ResponseWriter, r *http.Request) {
	h.simulate(w, r, services.PaymentOutcomeFailed, simulatedFailureReason)
}

type simulationResponse struct {
	Result           string         `json:"result"`
	Payment          paymentPayload `json:"payment"`
	OrderPaid        bool           `json:"orderPaid"`
	StockDecremented bool           `json:"stockDecremented"`
	DecrementError   string         `json:"decrementError,omitempty"`
}

func (h *WebhookHandlers) simulate(w http.ResponseWriter, r *http.Request, outcome services.PaymentOutcome, reason string) {
	ctx := r.Context()
	if h.reconciler == nil {
		writeServiceUnavailable(ctx, w, "webhook")
		return
	}
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "session id is required", http.StatusBadRequest))
		return
	}

	result, err := h.reconcile(ctx, sessionID, outcome, reason)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	response := simulationResponse{
		Result:           reconcileResultLabel(result),
		Payment:          buildPaymentPayload(result.Payment),
		OrderPaid:        result.OrderPaid,
		StockDecremented: result.StockDecremented,
	}
	if result.DecrementError != nil {
		response.DecrementError = result.DecrementError.Error()
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

func (h *WebhookHandlers) reconcile(ctx context.Context, sessionID string, outcome services.PaymentOutcome, reason string) (services.ReconcileResult, error) {
	return h.reconciler.Reconcile(ctx, services.ReconcileCommand{
		SessionID:     sessionID,
		Outcome:       outcome,
		FailureReason: reason,
		Source:        simulationSource,
	})
}

func reconcileResultLabel(result services.ReconcileResult) string {
	if result.Applied {
		return services.ReconcileResultApplied
	}
	return services.ReconcileResultNoop
}
