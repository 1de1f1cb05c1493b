package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/payments"
)

func TestPaymentServiceCreateSession(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)

	order, session := env.checkout(t, "user-1", "7", 3)

	if session.SessionID != "cs_test_1" || session.SessionURL != "https://checkout.example/cs_test_1" {
		t.Fatalf("unexpected session %#v", session)
	}
	if session.PublicKey != "pk_test_123" || session.OrderID != order.ID {
		t.Fatalf("unexpected session metadata %#v", session)
	}

	req := env.gateway.lastReq
	if req.Amount != 3000 || req.Currency != "EUR" {
		t.Fatalf("expected 3000 EUR minor units, got %d %s", req.Amount, req.Currency)
	}
	if req.IdempotencyKey != session.PaymentID {
		t.Fatalf("expected idempotency key %s, got %s", session.PaymentID, req.IdempotencyKey)
	}
	if req.SuccessURL != "https://shop.example/success" || req.CancelURL != "https://shop.example/cancel" {
		t.Fatalf("expected default redirect urls, got %s %s", req.SuccessURL, req.CancelURL)
	}
	if len(req.Items) != 1 || req.Items[0].Amount != 1000 || req.Items[0].Quantity != 3 || req.Items[0].Description != "Ceramic Mug x3" {
		t.Fatalf("unexpected line items %#v", req.Items)
	}

	payment, err := env.payments.GetPayment(context.Background(), session.PaymentID, PaymentReadOptions{UserID: "user-1"})
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if payment.Status != domain.PaymentStatusPending || payment.SessionID != "cs_test_1" {
		t.Fatalf("unexpected payment %#v", payment)
	}
	if !payment.Amount.Equal(price("30.00")) || payment.Method != domain.PaymentMethodCard {
		t.Fatalf("unexpected payment amount or method %#v", payment)
	}
	if payment.Description != "Payment for order "+order.OrderNumber {
		t.Fatalf("unexpected description %q", payment.Description)
	}
	if env.events.count(paymentEventSessionCreated) != 1 {
		t.Fatalf("expected session created event, got %v", env.events.types())
	}
}

func TestPaymentServiceCreateSessionUsesCallerURLs(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)
	env.putCart("user-1", domain.CartItem{ProductID: "7", Quantity: 1})
	order, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	_, err = env.payments.CreateSession(context.Background(), CreatePaymentSessionCommand{
		OrderID:    order.ID,
		UserID:     "user-1",
		SuccessURL: "https://app.example/ok",
		CancelURL:  "https://app.example/back",
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if env.gateway.lastReq.SuccessURL != "https://app.example/ok" || env.gateway.lastReq.CancelURL != "https://app.example/back" {
		t.Fatalf("expected caller urls, got %#v", env.gateway.lastReq)
	}
}

func TestPaymentServiceCreateSessionAllowsRetryAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)
	order, first := env.checkout(t, "user-1", "7", 1)

	if _, err := env.recon.Reconcile(context.Background(), ReconcileCommand{SessionID: first.SessionID, Outcome: PaymentOutcomeFailed}); err != nil {
		t.Fatalf("reconcile failure: %v", err)
	}

	second, err := env.payments.CreateSession(context.Background(), CreatePaymentSessionCommand{OrderID: order.ID, UserID: "user-1"})
	if err != nil {
		t.Fatalf("expected new attempt after failure, got %v", err)
	}
	if second.PaymentID == first.PaymentID {
		t.Fatalf("expected a new payment row")
	}
	list, err := env.payments.ListOrderPayments(context.Background(), order.ID, PaymentReadOptions{UserID: "user-1"})
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected two payment attempts, got %d", len(list))
	}
}

func TestPaymentServiceCreateSessionRejectsPaidOrder(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)
	order, session := env.checkout(t, "user-1", "7", 1)

	if _, err := env.recon.Reconcile(context.Background(), ReconcileCommand{SessionID: session.SessionID, Outcome: PaymentOutcomeSucceeded}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	calls := env.gateway.calls
	_, err := env.payments.CreateSession(context.Background(), CreatePaymentSessionCommand{OrderID: order.ID, UserID: "user-1"})
	if !errors.Is(err, ErrPaymentDuplicate) {
		t.Fatalf("expected ErrPaymentDuplicate, got %v", err)
	}
	if env.gateway.calls != calls {
		t.Fatalf("provider must not be called for a paid order")
	}
}

func TestPaymentServiceCreateSessionRejectsNonPendingOrder(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)
	env.putCart("user-1", domain.CartItem{ProductID: "7", Quantity: 1})
	order, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := env.orders.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, UserID: "user-1"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err = env.payments.CreateSession(context.Background(), CreatePaymentSessionCommand{OrderID: order.ID, UserID: "user-1"})
	if !errors.Is(err, ErrPaymentInvalidState) {
		t.Fatalf("expected ErrPaymentInvalidState, got %v", err)
	}
}

func TestPaymentServiceCreateSessionNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)
	env.putCart("user-1", domain.CartItem{ProductID: "7", Quantity: 1})
	order, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := env.payments.CreateSession(context.Background(), CreatePaymentSessionCommand{OrderID: "ord_missing"}); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected not found for missing order, got %v", err)
	}
	if _, err := env.payments.CreateSession(context.Background(), CreatePaymentSessionCommand{OrderID: order.ID, UserID: "user-2"}); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected not found for foreign order, got %v", err)
	}
	if env.gateway.calls != 0 {
		t.Fatalf("provider must not be called, got %d calls", env.gateway.calls)
	}
}

func TestPaymentServiceProviderFailureLeavesNoPayment(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)
	env.putCart("user-1", domain.CartItem{ProductID: "7", Quantity: 1})
	order, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	env.gateway.createFn = func(context.Context, payments.PaymentContext, payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
		return payments.CheckoutSession{}, errors.New("stripe: connection reset")
	}

	_, err = env.payments.CreateSession(context.Background(), CreatePaymentSessionCommand{OrderID: order.ID, UserID: "user-1"})
	if !errors.Is(err, ErrPaymentProviderUnavailable) {
		t.Fatalf("expected ErrPaymentProviderUnavailable, got %v", err)
	}
	list, _ := env.payments.ListOrderPayments(context.Background(), order.ID, PaymentReadOptions{})
	if len(list) != 0 {
		t.Fatalf("expected no payment rows, got %d", len(list))
	}
	if env.order(t, order.ID).Status != domain.OrderStatusPending {
		t.Fatalf("order must stay pending")
	}
	if !env.logger.has("payment.session.provider_failed") {
		t.Fatalf("expected provider failure to be logged")
	}
}

func TestPaymentServiceProviderRejectsRequest(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)
	env.putCart("user-1", domain.CartItem{ProductID: "7", Quantity: 1})
	order, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	env.gateway.createFn = func(context.Context, payments.PaymentContext, payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
		return payments.CheckoutSession{}, payments.ErrInvalidRequest
	}

	_, err = env.payments.CreateSession(context.Background(), CreatePaymentSessionCommand{OrderID: order.ID, UserID: "user-1"})
	if !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected ErrPaymentInvalidInput, got %v", err)
	}
}

func TestPaymentServiceOrderChangedDuringProviderCall(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)
	env.putCart("user-1", domain.CartItem{ProductID: "7", Quantity: 1})
	order, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	env.gateway.createFn = func(ctx context.Context, _ payments.PaymentContext, _ payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
		if _, err := env.orders.Cancel(ctx, CancelOrderCommand{OrderID: order.ID, UserID: "user-1"}); err != nil {
			t.Errorf("cancel during provider call: %v", err)
		}
		return payments.CheckoutSession{ID: "cs_late", Provider: "mock"}, nil
	}

	_, err = env.payments.CreateSession(context.Background(), CreatePaymentSessionCommand{OrderID: order.ID, UserID: "user-1"})
	if !errors.Is(err, ErrPaymentInvalidState) {
		t.Fatalf("expected ErrPaymentInvalidState, got %v", err)
	}
	list, _ := env.payments.ListOrderPayments(context.Background(), order.ID, PaymentReadOptions{})
	if len(list) != 0 {
		t.Fatalf("expected no orphan payment, got %d", len(list))
	}
}

func TestPaymentServiceReadsRestrictOwner(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)
	order, session := env.checkout(t, "user-1", "7", 1)

	if _, err := env.payments.GetPayment(context.Background(), session.PaymentID, PaymentReadOptions{UserID: "user-2"}); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
	if _, err := env.payments.ListOrderPayments(context.Background(), order.ID, PaymentReadOptions{UserID: "user-2"}); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
	page, err := env.payments.ListPayments(context.Background(), PaymentListFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != session.PaymentID {
		t.Fatalf("unexpected payments page %#v", page)
	}
}
