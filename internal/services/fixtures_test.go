package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/payments"
	"github.com/malistore/api/internal/repositories/memory"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time {
	return testNow
}

func price(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []DomainEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, event DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]string, 0, len(p.events))
	for _, e := range p.events {
		result = append(result, e.Type)
	}
	return result
}

func (p *recordingPublisher) count(eventType string) int {
	n := 0
	for _, t := range p.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLogger) log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}

type stubGateway struct {
	mu       sync.Mutex
	calls    int
	lastReq  payments.CheckoutSessionRequest
	createFn func(context.Context, payments.PaymentContext, payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

func (g *stubGateway) CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	g.mu.Lock()
	g.calls++
	g.lastReq = req
	n := g.calls
	g.mu.Unlock()
	if g.createFn != nil {
		return g.createFn(ctx, paymentCtx, req)
	}
	return payments.CheckoutSession{
		ID:          fmt.Sprintf("cs_test_%d", n),
		Provider:    "mock",
		RedirectURL: fmt.Sprintf("https://checkout.example/cs_test_%d", n),
	}, nil
}

type stubReconciliationMetrics struct {
	mu               sync.Mutex
	results          []string
	decrementFailure int
}

func (m *stubReconciliationMetrics) ObserveReconciliation(outcome string, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, outcome+":"+result)
}

func (m *stubReconciliationMetrics) ObserveDecrementFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decrementFailure++
}

// testEnv wires every core service over one memory store.
type testEnv struct {
	store     *memory.Store
	events    *recordingPublisher
	logger    *recordingLogger
	gateway   *stubGateway
	metrics   *stubReconciliationMetrics
	orders    OrderService
	payments  PaymentService
	recon     ReconciliationService
	inventory InventoryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	env := &testEnv{
		store:   store,
		events:  &recordingPublisher{},
		logger:  &recordingLogger{},
		gateway: &stubGateway{},
		metrics: &stubReconciliationMetrics{},
	}

	var seq int
	var seqMu sync.Mutex
	ids := func() string {
		seqMu.Lock()
		defer seqMu.Unlock()
		seq++
		return fmt.Sprintf("%04d", seq)
	}

	var err error
	env.orders, err = NewOrderService(OrderServiceDeps{
		Orders:      store.Orders(),
		Products:    store.Products(),
		Carts:       store.Carts(),
		Addresses:   store.Addresses(),
		UnitOfWork:  store,
		Clock:       fixedClock,
		IDGenerator: ids,
		Events:      env.events,
		Logger:      env.logger.log,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	env.inventory, err = NewInventoryService(InventoryServiceDeps{
		Orders:     store.Orders(),
		Products:   store.Products(),
		UnitOfWork: store,
		Clock:      fixedClock,
		Events:     env.events,
		Logger:     env.logger.log,
	})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}
	env.payments, err = NewPaymentService(PaymentServiceDeps{
		Orders:            store.Orders(),
		Payments:          store.Payments(),
		UnitOfWork:        store,
		Gateway:           env.gateway,
		PublishableKey:    "pk_test_123",
		DefaultSuccessURL: "https://shop.example/success",
		DefaultCancelURL:  "https://shop.example/cancel",
		Clock:             fixedClock,
		IDGenerator:       ids,
		Events:            env.events,
		Logger:            env.logger.log,
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}
	env.recon, err = NewReconciliationService(ReconciliationServiceDeps{
		Orders:     store.Orders(),
		Payments:   store.Payments(),
		Inventory:  env.inventory,
		UnitOfWork: store,
		Clock:      fixedClock,
		Events:     env.events,
		Metrics:    env.metrics,
		Logger:     env.logger.log,
	})
	if err != nil {
		t.Fatalf("new reconciliation service: %v", err)
	}
	return env
}

func (e *testEnv) putProduct(id, name, unitPrice string, stock int) {
	e.store.PutProduct(domain.Product{
		ID:        id,
		Name:      name,
		Price:     price(unitPrice),
		Stock:     stock,
		Active:    true,
		UpdatedAt: testNow,
	})
}

func (e *testEnv) putCart(userID string, items ...domain.CartItem) {
	e.store.PutCart(domain.Cart{UserID: userID, Items: items, UpdatedAt: testNow})
}

func (e *testEnv) stock(t *testing.T, productID string) int {
	t.Helper()
	product, err := e.store.Products().FindByID(context.Background(), productID)
	if err != nil {
		t.Fatalf("find product %s: %v", productID, err)
	}
	return product.Stock
}

func (e *testEnv) order(t *testing.T, orderID string) domain.Order {
	t.Helper()
	order, err := e.store.Orders().FindByID(context.Background(), orderID)
	if err != nil {
		t.Fatalf("find order %s: %v", orderID, err)
	}
	return order
}

// checkout creates an order from a single-line cart and opens a payment session for it.
func (e *testEnv) checkout(t *testing.T, userID, productID string, qty int) (domain.Order, PaymentSession) {
	t.Helper()
	ctx := context.Background()
	e.putCart(userID, domain.CartItem{ProductID: productID, Quantity: qty})
	order, err := e.orders.CreateFromCart(ctx, CreateOrderFromCartCommand{UserID: userID})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	session, err := e.payments.CreateSession(ctx, CreatePaymentSessionCommand{OrderID: order.ID, UserID: userID})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return order, session
}
