package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// ErrSignatureVerification indicates a webhook payload failed authenticity checks.
var ErrSignatureVerification = errors.New("payments: webhook signature verification failed")

// Outcome is the payment result carried by a webhook event.
type Outcome string

const (
	// OutcomeNone marks events that are acknowledged without changing state.
	OutcomeNone      Outcome = ""
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventPaymentIntentFailed      = "payment_intent.payment_failed"
	EventPaymentIntentCanceled    = "payment_intent.canceled"

	defaultFailureReason = "Payment failed"
)

// WebhookEvent is a verified provider notification reduced to the fields reconciliation needs.
type WebhookEvent struct {
	ID              string
	Type            string
	SessionID       string
	PaymentIntentID string
	Outcome         Outcome
	FailureReason   string
	CreatedAt       time.Time
}

// WebhookVerifier authenticates Stripe webhook payloads against the endpoint signing secret.
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

// NewWebhookVerifier constructs a verifier. A zero tolerance uses Stripe's default of five minutes.
func NewWebhookVerifier(secret string, tolerance time.Duration) (*WebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("payments: webhook secret is required")
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &WebhookVerifier{secret: secret, tolerance: tolerance}, nil
}

// Verify checks the Stripe-Signature header and decodes the event. Signature failures wrap
// ErrSignatureVerification; nothing in the payload is interpreted before the check passes.
func (v *WebhookVerifier) Verify(payload []byte, signatureHeader string) (WebhookEvent, error) {
	if v == nil {
		return WebhookEvent{}, errors.New("payments: webhook verifier is nil")
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing signature header", ErrSignatureVerification)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrSignatureVerification, err)
	}
	return DecodeEvent(event)
}

// DecodeEvent maps a Stripe event onto a WebhookEvent. Unhandled types decode with OutcomeNone.
func DecodeEvent(event stripe.Event) (WebhookEvent, error) {
	result := WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}
	if event.Created != 0 {
		result.CreatedAt = time.Unix(event.Created, 0).UTC()
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		if isHandledEvent(result.Type) {
			return WebhookEvent{}, fmt.Errorf("payments: event %s has no data object", event.ID)
		}
		return result, nil
	}

	switch result.Type {
	case EventCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return WebhookEvent{}, fmt.Errorf("payments: decode checkout session: %w", err)
		}
		result.SessionID = session.ID
		if session.PaymentIntent != nil {
			result.PaymentIntentID = session.PaymentIntent.ID
		}
		// asynchronous payment methods complete the session before funds arrive
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusUnpaid {
			result.Outcome = OutcomeSucceeded
		}
	case EventPaymentIntentSucceeded, EventPaymentIntentFailed, EventPaymentIntentCanceled:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return WebhookEvent{}, fmt.Errorf("payments: decode payment intent: %w", err)
		}
		result.PaymentIntentID = intent.ID
		switch result.Type {
		case EventPaymentIntentSucceeded:
			result.Outcome = OutcomeSucceeded
		case EventPaymentIntentFailed:
			result.Outcome = OutcomeFailed
			result.FailureReason = defaultFailureReason
			if intent.LastPaymentError != nil && strings.TrimSpace(intent.LastPaymentError.Msg) != "" {
				result.FailureReason = intent.LastPaymentError.Msg
			}
		case EventPaymentIntentCanceled:
			result.Outcome = OutcomeCancelled
		}
	}
	return result, nil
}

func isHandledEvent(eventType string) bool {
	switch eventType {
	case EventCheckoutSessionCompleted, EventPaymentIntentSucceeded, EventPaymentIntentFailed, EventPaymentIntentCanceled:
		return true
	}
	return false
}
