package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/platform/auth"
	"github.com/malistore/api/internal/platform/pagination"
	"github.com/malistore/api/internal/services"
)

func TestOrderHandlersCreateOrderSuccess(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	var captured services.CreateOrderFromCartCommand
	service := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderFromCartCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder(now)
			order.Status = domain.OrderStatusPending
			order.PaidAt = nil
			return order, nil
		},
	}
	handler := NewOrderHandlers(nil, service, nil)

	body := `{"shippingAddressId":" addr-1 ","billingAddress":{"recipient":"Ada","line1":"1 Analytical St","city":"London","postalCode":"N1","country":"GB"},"notes":"leave at door"}`
	rr := serve(t, "/orders", handler.Routes, newRequest(http.MethodPost, "/orders", body, &auth.Identity{UID: "user-1"}))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" || captured.ShippingAddressID != "addr-1" {
		t.Fatalf("unexpected command: %#v", captured)
	}
	if captured.BillingAddress == nil || captured.BillingAddress.City != "London" {
		t.Fatalf("expected billing address to be forwarded, got %#v", captured.BillingAddress)
	}
	if captured.ShippingAddress != nil {
		t.Fatalf("expected no inline shipping address, got %#v", captured.ShippingAddress)
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Order.Status != "PENDING" || resp.Order.TotalAmount != "30.00" || resp.Order.Currency != "EUR" {
		t.Fatalf("unexpected order payload: %#v", resp.Order)
	}
	if len(resp.Order.Lines) != 1 || resp.Order.Lines[0].UnitPrice != "10.00" || resp.Order.Lines[0].Quantity != 3 {
		t.Fatalf("unexpected lines: %#v", resp.Order.Lines)
	}
	if resp.Order.ShippingAddress == nil || resp.Order.ShippingAddress.Formatted != "Ada Lovelace, 1 Analytical St, N1, London, GB" {
		t.Fatalf("unexpected shipping address: %#v", resp.Order.ShippingAddress)
	}
}

func TestOrderHandlersCreateOrderErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "empty cart", err: fmt.Errorf("%w: user-1", services.ErrOrderEmptyCart), wantStatus: http.StatusBadRequest, wantCode: "empty_cart"},
		{name: "insufficient stock", err: &services.InsufficientStockError{ProductID: "prod-7", ProductName: "Widget", Available: 0, Requested: 2}, wantStatus: http.StatusBadRequest, wantCode: "insufficient_stock"},
		{name: "address not found", err: services.ErrOrderAddressNotFound, wantStatus: http.StatusNotFound, wantCode: "address_not_found"},
		{name: "conflict", err: services.ErrOrderConflict, wantStatus: http.StatusConflict, wantCode: "order_conflict"},
		{name: "unexpected", err: fmt.Errorf("boom"), wantStatus: http.StatusInternalServerError, wantCode: "order_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubOrderService{
				createFn: func(context.Context, services.CreateOrderFromCartCommand) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			handler := NewOrderHandlers(nil, service, nil)
			rr := serve(t, "/orders", handler.Routes, newRequest(http.MethodPost, "/orders", "", &auth.Identity{UID: "user-1"}))

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rr.Code, rr.Body.String())
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body["error"] != tc.wantCode {
				t.Fatalf("expected error code %s, got %v", tc.wantCode, body["error"])
			}
			if tc.wantCode == "insufficient_stock" && body["productId"] != "prod-7" {
				t.Fatalf("expected product id detail, got %v", body)
			}
		})
	}
}

func TestOrderHandlersRequireIdentity(t *testing.T) {
	handler := NewOrderHandlers(nil, &stubOrderService{}, nil)
	rr := serve(t, "/orders", handler.Routes, newRequest(http.MethodPost, "/orders", `{}`, nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestOrderHandlersCreateOrderRejectsMalformedJSON(t *testing.T) {
	called := false
	service := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderFromCartCommand) (services.Order, error) {
			called = true
			return services.Order{}, nil
		},
	}
	handler := NewOrderHandlers(nil, service, nil)
	rr := serve(t, "/orders", handler.Routes, newRequest(http.MethodPost, "/orders", `{"notes":`, &auth.Identity{UID: "user-1"}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if called {
		t.Fatalf("service must not be called for malformed input")
	}
}

func TestOrderHandlersCreateOrderUsesIdempotencyMiddleware(t *testing.T) {
	wrapped := false
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped = true
			next.ServeHTTP(w, r)
		})
	}
	service := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderFromCartCommand) (services.Order, error) {
			return sampleOrder(time.Now()), nil
		},
	}
	handler := NewOrderHandlers(nil, service, nil, WithOrderIdempotency(mw))
	rr := serve(t, "/orders", handler.Routes, newRequest(http.MethodPost, "/orders", `{}`, &auth.Identity{UID: "user-1"}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if !wrapped {
		t.Fatalf("expected idempotency middleware to wrap order creation")
	}

	wrapped = false
	serve(t, "/orders", handler.Routes, newRequest(http.MethodGet, "/orders", "", &auth.Identity{UID: "user-1"}))
	if wrapped {
		t.Fatalf("idempotency middleware must only wrap POST /orders")
	}
}

func TestOrderHandlersListOrders(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: now, ID: "ord_9"})
	if err != nil {
		t.Fatalf("encode token: %v", err)
	}

	var captured services.OrderListFilter
	service := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{
				Items:         []services.Order{sampleOrder(now)},
				NextPageToken: "next",
			}, nil
		},
	}
	handler := NewOrderHandlers(nil, service, nil)
	target := "/orders?status=paid,shipped&status=PAID&page_size=10&page_token=" + token
	rr := serve(t, "/orders", handler.Routes, newRequest(http.MethodGet, target, "", &auth.Identity{UID: "user-1"}))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected list scoped to caller, got %q", captured.UserID)
	}
	if len(captured.Status) != 2 || captured.Status[0] != domain.OrderStatusPaid || captured.Status[1] != domain.OrderStatusShipped {
		t.Fatalf("unexpected status filter: %v", captured.Status)
	}
	if captured.Pagination.PageSize != 10 || captured.Pagination.PageToken != token {
		t.Fatalf("unexpected pagination: %#v", captured.Pagination)
	}

	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].OrderNumber != "ORD-1700000000000-ABCDEFGH" || resp.Items[0].LineCount != 1 {
		t.Fatalf("unexpected items: %#v", resp.Items)
	}
	if resp.NextPageToken != "next" {
		t.Fatalf("expected next page token, got %q", resp.NextPageToken)
	}
}

func TestOrderHandlersListOrdersRejectsBadQuery(t *testing.T) {
	handler := NewOrderHandlers(nil, &stubOrderService{}, nil)
	for _, target := range []string{"/orders?status=lost", "/orders?page_size=abc", "/orders?page_token=not-a-token"} {
		rr := serve(t, "/orders", handler.Routes, newRequest(http.MethodGet, target, "", &auth.Identity{UID: "user-1"}))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rr.Code)
		}
	}
}

func TestOrderHandlersGetOrderScopesToOwner(t *testing.T) {
	var captured services.OrderReadOptions
	service := &stubOrderService{
		getFn: func(_ context.Context, id string, opts services.OrderReadOptions) (services.Order, error) {
			captured = opts
			if id != "ord_1" {
				return services.Order{}, services.ErrOrderNotFound
			}
			return services.Order{}, fmt.Errorf("%w: owned by someone else", services.ErrOrderNotFound)
		},
	}
	handler := NewOrderHandlers(nil, service, nil)
	rr := serve(t, "/orders", handler.Routes, newRequest(http.MethodGet, "/orders/ord_1", "", &auth.Identity{UID: "user-2"}))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if captured.UserID != "user-2" {
		t.Fatalf("expected read scoped to caller, got %q", captured.UserID)
	}
}

func TestOrderHandlersCancelOrder(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	var captured services.CancelOrderCommand
	service := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder(now)
			order.Status = domain.OrderStatusCancelled
			order.CancelledAt = &now
			return order, nil
		},
	}
	handler := NewOrderHandlers(nil, service, nil)
	rr := serve(t, "/orders", handler.Routes, newRequest(http.MethodPost, "/orders/ord_1:cancel", `{"reason":" changed my mind "}`, &auth.Identity{UID: "user-1"}))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.UserID != "user-1" || captured.Reason != "changed my mind" {
		t.Fatalf("unexpected command: %#v", captured)
	}
	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Order.Status != "CANCELLED" || resp.Order.CancelledAt == "" {
		t.Fatalf("unexpected order: %#v", resp.Order)
	}
}

func TestOrderHandlersCancelPaidOrderConflicts(t *testing.T) {
	service := &stubOrderService{
		cancelFn: func(context.Context, services.CancelOrderCommand) (services.Order, error) {
			return services.Order{}, &services.InvalidTransitionError{From: domain.OrderStatusShipped, To: domain.OrderStatusCancelled}
		},
	}
	handler := NewOrderHandlers(nil, service, nil)
	rr := serve(t, "/orders", handler.Routes, newRequest(http.MethodPost, "/orders/ord_1:cancel", "", &auth.Identity{UID: "user-1"}))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["currentStatus"] != "SHIPPED" || body["requestedStatus"] != "CANCELLED" {
		t.Fatalf("expected transition details, got %v", body)
	}
}

func TestOrderHandlersListOrderPayments(t *testing.T) {
	var capturedOrder string
	var capturedOpts services.PaymentReadOptions
	paymentsSvc := &stubPaymentService{
		listOrderFn: func(_ context.Context, orderID string, opts services.PaymentReadOptions) ([]services.Payment, error) {
			capturedOrder = orderID
			capturedOpts = opts
			return []services.Payment{{ID: "pay_1", OrderID: orderID, Status: domain.PaymentStatusFailed, FailureReason: "card declined"}}, nil
		},
	}
	handler := NewOrderHandlers(nil, &stubOrderService{}, paymentsSvc)
	rr := serve(t, "/orders", handler.Routes, newRequest(http.MethodGet, "/orders/ord_1/payments", "", &auth.Identity{UID: "user-1"}))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedOrder != "ord_1" || capturedOpts.UserID != "user-1" {
		t.Fatalf("unexpected arguments: %s %#v", capturedOrder, capturedOpts)
	}
	var resp paymentListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].FailureReason != "card declined" {
		t.Fatalf("unexpected payments: %#v", resp.Items)
	}
}
