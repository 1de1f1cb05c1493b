package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/payments"
	"github.com/malistore/api/internal/platform/auth"
	"github.com/malistore/api/internal/services"
)

type stubOrderService struct {
	createFn     func(context.Context, services.CreateOrderFromCartCommand) (services.Order, error)
	listFn       func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	getFn        func(context.Context, string, services.OrderReadOptions) (services.Order, error)
	transitionFn func(context.Context, services.OrderStatusTransitionCommand) (services.Order, error)
	cancelFn     func(context.Context, services.CancelOrderCommand) (services.Order, error)
}

func (s *stubOrderService) CreateFromCart(ctx context.Context, cmd services.CreateOrderFromCartCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, opts)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

type stubPaymentService struct {
	createFn    func(context.Context, services.CreatePaymentSessionCommand) (services.PaymentSession, error)
	getFn       func(context.Context, string, services.PaymentReadOptions) (services.Payment, error)
	listOrderFn func(context.Context, string, services.PaymentReadOptions) ([]services.Payment, error)
	listFn      func(context.Context, services.PaymentListFilter) (domain.CursorPage[services.Payment], error)
}

func (s *stubPaymentService) CreateSession(ctx context.Context, cmd services.CreatePaymentSessionCommand) (services.PaymentSession, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.PaymentSession{}, errors.New("not implemented")
}

func (s *stubPaymentService) GetPayment(ctx context.Context, paymentID string, opts services.PaymentReadOptions) (services.Payment, error) {
	if s.getFn != nil {
		return s.getFn(ctx, paymentID, opts)
	}
	return services.Payment{}, errors.New("not implemented")
}

func (s *stubPaymentService) ListOrderPayments(ctx context.Context, orderID string, opts services.PaymentReadOptions) ([]services.Payment, error) {
	if s.listOrderFn != nil {
		return s.listOrderFn(ctx, orderID, opts)
	}
	return nil, nil
}

func (s *stubPaymentService) ListPayments(ctx context.Context, filter services.PaymentListFilter) (domain.CursorPage[services.Payment], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Payment]{}, nil
}

type stubReconciler struct {
	calls       []services.ReconcileCommand
	reconcileFn func(context.Context, services.ReconcileCommand) (services.ReconcileResult, error)
}

func (s *stubReconciler) Reconcile(ctx context.Context, cmd services.ReconcileCommand) (services.ReconcileResult, error) {
	s.calls = append(s.calls, cmd)
	if s.reconcileFn != nil {
		return s.reconcileFn(ctx, cmd)
	}
	return services.ReconcileResult{}, errors.New("not implemented")
}

type stubInventoryService struct {
	decrementFn func(context.Context, string) (bool, error)
	setStockFn  func(context.Context, services.SetProductStockCommand) (services.Product, error)
	lowStockFn  func(context.Context, int) ([]services.Product, error)
}

func (s *stubInventoryService) DecrementStockForPaidOrder(ctx context.Context, orderID string) (bool, error) {
	if s.decrementFn != nil {
		return s.decrementFn(ctx, orderID)
	}
	return false, errors.New("not implemented")
}

func (s *stubInventoryService) SetProductStock(ctx context.Context, cmd services.SetProductStockCommand) (services.Product, error) {
	if s.setStockFn != nil {
		return s.setStockFn(ctx, cmd)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubInventoryService) ListLowStock(ctx context.Context, threshold int) ([]services.Product, error) {
	if s.lowStockFn != nil {
		return s.lowStockFn(ctx, threshold)
	}
	return nil, nil
}

type stubVerifier struct {
	event payments.WebhookEvent
	err   error

	payload   []byte
	signature string
}

func (s *stubVerifier) Verify(payload []byte, signatureHeader string) (payments.WebhookEvent, error) {
	s.payload = payload
	s.signature = signatureHeader
	return s.event, s.err
}

type stubHealthService struct {
	report domain.HealthReport
	err    error
}

func (s *stubHealthService) Report(context.Context) (domain.HealthReport, error) {
	return s.report, s.err
}

type stubSweeper struct {
	report services.StockAlertReport
	err    error
	calls  int
}

func (s *stubSweeper) Sweep(context.Context) (services.StockAlertReport, error) {
	s.calls++
	return s.report, s.err
}

var (
	_ services.OrderService          = (*stubOrderService)(nil)
	_ services.PaymentService        = (*stubPaymentService)(nil)
	_ services.ReconciliationService = (*stubReconciler)(nil)
	_ services.InventoryService      = (*stubInventoryService)(nil)
	_ services.HealthService         = (*stubHealthService)(nil)
	_ WebhookVerifier                = (*stubVerifier)(nil)
	_ StockSweeper                   = (*stubSweeper)(nil)
)

func serve(t *testing.T, mount string, routes RouteRegistrar, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Route(mount, func(r chi.Router) { routes(r) })
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func newRequest(method, target, body string, identity *auth.Identity) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	return req
}

func sampleOrder(now time.Time) services.Order {
	paidAt := now.Add(time.Minute)
	return services.Order{
		ID:          "ord_1",
		OrderNumber: "ORD-1700000000000-ABCDEFGH",
		UserID:      "user-1",
		Status:      domain.OrderStatusPaid,
		TotalAmount: decimal.RequireFromString("30"),
		Currency:    "eur",
		ShippingAddress: &domain.Address{
			Recipient:  "Ada Lovelace",
			Line1:      "1 Analytical St",
			City:       "London",
			PostalCode: "N1",
			Country:    "GB",
		},
		Lines: []domain.OrderLine{{
			OrderID:     "ord_1",
			Position:    1,
			ProductID:   "prod-7",
			ProductName: "Widget",
			Quantity:    3,
			UnitPrice:   decimal.RequireFromString("10"),
			Total:       decimal.RequireFromString("30"),
		}},
		PaidAt:    &paidAt,
		CreatedAt: now,
		UpdatedAt: paidAt,
	}
}
