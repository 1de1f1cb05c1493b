package services

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/repositories"
)

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{13}-[0-9A-F]{8}$`)

func TestOrderServiceCreateFromCart(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)
	env.putProduct("8", "Tea Towel", "4.35", 3)
	env.putCart("user-1",
		domain.CartItem{ProductID: "7", Quantity: 3, UnitPrice: price("9.00")},
		domain.CartItem{ProductID: "8", Quantity: 2, UnitPrice: price("4.35")},
	)

	order, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{
		UserID: "user-1",
		Notes:  "<b>Leave</b> at the door",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected PENDING, got %s", order.Status)
	}
	if !order.TotalAmount.Equal(price("38.70")) {
		t.Fatalf("expected total 38.70, got %s", order.TotalAmount)
	}
	if !order.TotalAmount.Equal(order.LinesTotal()) {
		t.Fatalf("total %s does not match lines %s", order.TotalAmount, order.LinesTotal())
	}
	if len(order.Lines) != 2 || !order.Lines[0].UnitPrice.Equal(price("10.00")) {
		t.Fatalf("expected current product price on lines, got %#v", order.Lines)
	}
	if order.Lines[0].Position != 1 || order.Lines[1].Position != 2 {
		t.Fatalf("expected ordered line positions, got %#v", order.Lines)
	}
	if !orderNumberPattern.MatchString(order.OrderNumber) {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	if order.Currency != "EUR" {
		t.Fatalf("expected EUR currency, got %q", order.Currency)
	}
	if order.Notes != "Leave at the door" {
		t.Fatalf("expected sanitised notes, got %q", order.Notes)
	}
	if order.StockDecrementedAt != nil {
		t.Fatalf("order creation must not decrement stock")
	}
	if got := env.stock(t, "7"); got != 10 {
		t.Fatalf("expected stock untouched at 10, got %d", got)
	}

	cart, err := env.store.Carts().GetCart(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if !cart.IsEmpty() {
		t.Fatalf("expected cart to be cleared")
	}
	if env.events.count(orderEventCreated) != 1 {
		t.Fatalf("expected order.created event, got %v", env.events.types())
	}
}

func TestOrderServiceCreateFromCartEmptyCart(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if !errors.Is(err, ErrOrderEmptyCart) {
		t.Fatalf("expected ErrOrderEmptyCart, got %v", err)
	}
	if len(env.events.types()) != 0 {
		t.Fatalf("expected no events, got %v", env.events.types())
	}
}

func TestOrderServiceCreateFromCartInsufficientStockRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("A", "Lamp", "25.00", 0)
	env.putProduct("B", "Bulb", "3.00", 50)
	env.putCart("user-1",
		domain.CartItem{ProductID: "B", Quantity: 2},
		domain.CartItem{ProductID: "A", Quantity: 1},
	)

	_, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected error to match ErrInsufficientStock")
	}
	if stockErr.ProductID != "A" || stockErr.Available != 0 || stockErr.Requested != 1 {
		t.Fatalf("unexpected stock error %#v", stockErr)
	}
	if got := err.Error(); got != "Insufficient stock for product 'Lamp'. Available: 0, Requested: 1" {
		t.Fatalf("unexpected message %q", got)
	}

	page, err := env.store.Orders().List(context.Background(), repositories.OrderListFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("expected no orders, got %d", len(page.Items))
	}
	cart, _ := env.store.Carts().GetCart(context.Background(), "user-1")
	if len(cart.Items) != 2 {
		t.Fatalf("expected cart to remain unchanged, got %#v", cart.Items)
	}
}

func TestOrderServiceCreateFromCartRejectsUnavailableProducts(t *testing.T) {
	env := newTestEnv(t)
	env.store.PutProduct(domain.Product{ID: "retired", Name: "Old", Price: price("1.00"), Stock: 5, Active: false})
	env.putCart("user-1", domain.CartItem{ProductID: "retired", Quantity: 1})

	_, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput for inactive product, got %v", err)
	}

	env.putCart("user-2", domain.CartItem{ProductID: "missing", Quantity: 1})
	_, err = env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-2"})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput for missing product, got %v", err)
	}
}

func TestOrderServiceLinePricesAreSnapshots(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)
	env.putCart("user-1", domain.CartItem{ProductID: "7", Quantity: 2})

	order, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	env.putProduct("7", "Ceramic Mug", "99.99", 10)

	reloaded, err := env.orders.GetOrder(context.Background(), order.ID, OrderReadOptions{})
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if !reloaded.Lines[0].UnitPrice.Equal(price("10.00")) || !reloaded.TotalAmount.Equal(price("20.00")) {
		t.Fatalf("expected price snapshot to survive product changes, got %#v", reloaded)
	}
}

func TestOrderServiceCreateFromCartUsesSavedAddress(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)
	env.putCart("user-1", domain.CartItem{ProductID: "7", Quantity: 1})
	env.store.PutAddress(domain.Address{ID: "addr-1", UserID: "user-1", Recipient: "Ada", Line1: "1 Main St", City: "Paris", Country: "FR"})

	_, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1", ShippingAddressID: "addr-9"})
	if !errors.Is(err, ErrOrderAddressNotFound) {
		t.Fatalf("expected ErrOrderAddressNotFound, got %v", err)
	}

	order, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{
		UserID:            "user-1",
		ShippingAddressID: "addr-1",
		BillingAddress:    &domain.Address{Recipient: "Ada Billing"},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ShippingAddress == nil || order.ShippingAddress.Line1 != "1 Main St" {
		t.Fatalf("expected saved shipping address, got %#v", order.ShippingAddress)
	}
	if order.BillingAddress == nil || order.BillingAddress.Recipient != "Ada Billing" {
		t.Fatalf("expected billing address, got %#v", order.BillingAddress)
	}
}

func TestOrderServiceRetriesOrderNumberCollisions(t *testing.T) {
	store := newTestEnv(t).store
	store.PutProduct(domain.Product{ID: "7", Name: "Mug", Price: price("10.00"), Stock: 10, Active: true})
	store.PutCart(domain.Cart{UserID: "user-1", Items: []domain.CartItem{{ProductID: "7", Quantity: 1}}})
	store.PutCart(domain.Cart{UserID: "user-2", Items: []domain.CartItem{{ProductID: "7", Quantity: 1}}})

	numbers := []string{"ORD-1", "ORD-1", "ORD-1", "ORD-2"}
	var idx int
	logger := &recordingLogger{}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:     store.Orders(),
		Products:   store.Products(),
		Carts:      store.Carts(),
		UnitOfWork: store,
		Clock:      fixedClock,
		OrderNumbers: func(time.Time) string {
			n := numbers[idx]
			idx++
			return n
		},
		Logger: logger.log,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	first, err := svc.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if err != nil || first.OrderNumber != "ORD-1" {
		t.Fatalf("expected first order ORD-1, got %q (%v)", first.OrderNumber, err)
	}
	second, err := svc.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-2"})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if second.OrderNumber != "ORD-2" || idx != 4 {
		t.Fatalf("expected ORD-2 after two collisions, got %q after %d attempts", second.OrderNumber, idx)
	}
	if !logger.has("order.number.collision") {
		t.Fatalf("expected collision to be logged")
	}
}

func TestOrderServiceGivesUpAfterRepeatedCollisions(t *testing.T) {
	store := newTestEnv(t).store
	store.PutProduct(domain.Product{ID: "7", Name: "Mug", Price: price("10.00"), Stock: 10, Active: true})
	store.PutCart(domain.Cart{UserID: "user-1", Items: []domain.CartItem{{ProductID: "7", Quantity: 1}}})
	store.PutCart(domain.Cart{UserID: "user-2", Items: []domain.CartItem{{ProductID: "7", Quantity: 1}}})

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:       store.Orders(),
		Products:     store.Products(),
		Carts:        store.Carts(),
		UnitOfWork:   store,
		OrderNumbers: func(time.Time) string { return "ORD-SAME" },
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	if _, err := svc.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"}); err != nil {
		t.Fatalf("first order: %v", err)
	}
	_, err = svc.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-2"})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
	cart, _ := store.Carts().GetCart(context.Background(), "user-2")
	if cart.IsEmpty() {
		t.Fatalf("expected cart to survive failed checkout")
	}
}

func TestOrderServiceConcurrentCheckoutSameCart(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 100)
	env.putCart("user-1", domain.CartItem{ProductID: "7", Quantity: 2})

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		empty     int
	)
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrOrderEmptyCart):
				empty++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || empty != attempts-1 {
		t.Fatalf("expected exactly one checkout to succeed, got %d succeeded and %d empty", succeeded, empty)
	}
}

func TestOrderServiceTransitionStatus(t *testing.T) {
	statuses := domain.OrderStatuses
	for _, from := range statuses {
		for _, to := range statuses {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				env := newTestEnv(t)
				seed := domain.Order{
					ID:          "ord_seed",
					OrderNumber: "ORD-SEED",
					UserID:      "user-1",
					Status:      from,
					TotalAmount: price("10.00"),
					CreatedAt:   testNow,
					UpdatedAt:   testNow,
				}
				if err := env.store.Orders().Insert(context.Background(), seed); err != nil {
					t.Fatalf("seed order: %v", err)
				}

				updated, err := env.orders.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
					OrderID:      seed.ID,
					TargetStatus: to,
					ActorID:      "admin-1",
				})
				allowed := canTransition(from, to)
				if allowed {
					if err != nil {
						t.Fatalf("expected transition to succeed: %v", err)
					}
					if updated.Status != to || env.order(t, seed.ID).Status != to {
						t.Fatalf("expected status %s", to)
					}
					if env.events.count(orderEventStatusChanged) != 1 {
						t.Fatalf("expected status change event")
					}
					return
				}

				var transitionErr *InvalidTransitionError
				if !errors.As(err, &transitionErr) || !errors.Is(err, ErrOrderInvalidState) {
					t.Fatalf("expected InvalidTransitionError, got %v", err)
				}
				if transitionErr.From != from || transitionErr.To != to {
					t.Fatalf("unexpected transition error %#v", transitionErr)
				}
				if env.order(t, seed.ID).Status != from {
					t.Fatalf("status must remain %s", from)
				}
			})
		}
	}
}

func TestOrderServiceTransitionStampsTimestamps(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)
	env.putCart("user-1", domain.CartItem{ProductID: "7", Quantity: 1})
	order, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	for _, target := range []domain.OrderStatus{domain.OrderStatusPaid, domain.OrderStatusShipped, domain.OrderStatusDelivered} {
		if _, err := env.orders.TransitionStatus(context.Background(), OrderStatusTransitionCommand{OrderID: order.ID, TargetStatus: target}); err != nil {
			t.Fatalf("transition to %s: %v", target, err)
		}
	}
	final := env.order(t, order.ID)
	if final.PaidAt == nil || final.ShippedAt == nil || final.DeliveredAt == nil || final.CancelledAt != nil {
		t.Fatalf("unexpected lifecycle timestamps %#v", final)
	}
	if final.StockDecrementedAt != nil || env.stock(t, "7") != 10 {
		t.Fatalf("administrative transitions must not touch stock")
	}
}

func TestOrderServiceTransitionStatusValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.orders.TransitionStatus(context.Background(), OrderStatusTransitionCommand{OrderID: "ord_1", TargetStatus: "LOST"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}
	if _, err := env.orders.TransitionStatus(context.Background(), OrderStatusTransitionCommand{OrderID: "ord_missing", TargetStatus: domain.OrderStatusPaid}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderServiceCancel(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)
	env.putCart("user-1", domain.CartItem{ProductID: "7", Quantity: 1})
	order, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := env.orders.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, UserID: "user-2"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected other users to get not found, got %v", err)
	}

	cancelled, err := env.orders.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, UserID: "user-1", Reason: "changed my mind"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("expected cancelled order, got %#v", cancelled)
	}

	if _, err := env.orders.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, UserID: "user-1"}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state on second cancel, got %v", err)
	}
}

func TestOrderServiceGetOrderRestrictsOwner(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)
	env.putCart("user-1", domain.CartItem{ProductID: "7", Quantity: 1})
	order, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := env.orders.GetOrder(context.Background(), order.ID, OrderReadOptions{UserID: "user-2"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
	if _, err := env.orders.GetOrder(context.Background(), order.ID, OrderReadOptions{UserID: "user-1"}); err != nil {
		t.Fatalf("owner read: %v", err)
	}

	page, err := env.orders.ListOrders(context.Background(), OrderListFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != order.ID {
		t.Fatalf("unexpected page %#v", page)
	}
}

func TestNewOrderServiceRequiresRepositories(t *testing.T) {
	if _, err := NewOrderService(OrderServiceDeps{}); err == nil {
		t.Fatalf("expected error without repositories")
	}
}
