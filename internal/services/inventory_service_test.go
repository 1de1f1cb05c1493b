package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/malistore/api/internal/domain"
)

func seedPaidOrder(t *testing.T, env *testEnv, id string, lines ...domain.OrderLine) {
	t.Helper()
	paidAt := testNow
	order := domain.Order{
		ID:          id,
		OrderNumber: "ORD-" + id,
		UserID:      "user-1",
		Status:      domain.OrderStatusPaid,
		Lines:       lines,
		PaidAt:      &paidAt,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
	if err := env.store.Orders().Insert(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func TestInventoryDecrementAggregatesDuplicateLines(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("A", "Lamp", "25.00", 5)
	env.putProduct("B", "Bulb", "3.00", 10)
	seedPaidOrder(t, env, "ord_1",
		domain.OrderLine{Position: 1, ProductID: "A", Quantity: 2},
		domain.OrderLine{Position: 2, ProductID: "B", Quantity: 4},
		domain.OrderLine{Position: 3, ProductID: "A", Quantity: 3},
	)

	applied, err := env.inventory.DecrementStockForPaidOrder(context.Background(), "ord_1")
	if err != nil || !applied {
		t.Fatalf("expected decrement to apply, got %v %v", applied, err)
	}
	if env.stock(t, "A") != 0 || env.stock(t, "B") != 6 {
		t.Fatalf("unexpected stock A=%d B=%d", env.stock(t, "A"), env.stock(t, "B"))
	}
	if env.order(t, "ord_1").StockDecrementedAt == nil {
		t.Fatalf("expected stock marker to be set")
	}

	applied, err = env.inventory.DecrementStockForPaidOrder(context.Background(), "ord_1")
	if err != nil || applied {
		t.Fatalf("expected second decrement to be skipped, got %v %v", applied, err)
	}
	if env.stock(t, "A") != 0 || env.stock(t, "B") != 6 {
		t.Fatalf("stock changed on second decrement")
	}
	if env.events.count(inventoryEventDecremented) != 1 {
		t.Fatalf("expected one decrement event, got %v", env.events.types())
	}
}

func TestInventoryDecrementIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("A", "Lamp", "25.00", 5)
	env.putProduct("B", "Bulb", "3.00", 1)
	seedPaidOrder(t, env, "ord_1",
		domain.OrderLine{Position: 1, ProductID: "A", Quantity: 2},
		domain.OrderLine{Position: 2, ProductID: "B", Quantity: 4},
	)

	applied, err := env.inventory.DecrementStockForPaidOrder(context.Background(), "ord_1")
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) || applied {
		t.Fatalf("expected InsufficientStockError, got %v %v", applied, err)
	}
	if stockErr.ProductID != "B" || stockErr.ProductName != "Bulb" {
		t.Fatalf("unexpected stock error %#v", stockErr)
	}
	if env.stock(t, "A") != 5 || env.stock(t, "B") != 1 {
		t.Fatalf("expected no partial decrement, got A=%d B=%d", env.stock(t, "A"), env.stock(t, "B"))
	}
	if env.order(t, "ord_1").StockDecrementedAt != nil {
		t.Fatalf("stock marker must not be set on failure")
	}
}

func TestInventoryDecrementSkipsUnpaidOrders(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)
	env.putCart("user-1", domain.CartItem{ProductID: "7", Quantity: 2})
	order, err := env.orders.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	applied, err := env.inventory.DecrementStockForPaidOrder(context.Background(), order.ID)
	if err != nil || applied {
		t.Fatalf("expected pending order to be skipped, got %v %v", applied, err)
	}
	if env.stock(t, "7") != 10 {
		t.Fatalf("stock must not change for pending orders")
	}
}

func TestInventoryDecrementErrors(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.inventory.DecrementStockForPaidOrder(context.Background(), " "); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := env.inventory.DecrementStockForPaidOrder(context.Background(), "ord_missing"); !errors.Is(err, ErrInventoryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	seedPaidOrder(t, env, "ord_ghost", domain.OrderLine{Position: 1, ProductID: "ghost", Quantity: 1})
	if _, err := env.inventory.DecrementStockForPaidOrder(context.Background(), "ord_ghost"); !errors.Is(err, ErrInventoryNotFound) {
		t.Fatalf("expected not found for deleted product, got %v", err)
	}
}

func TestInventorySetProductStock(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("7", "Ceramic Mug", "10.00", 10)

	product, err := env.inventory.SetProductStock(context.Background(), SetProductStockCommand{ProductID: "7", Stock: 42, ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("set stock: %v", err)
	}
	if product.Stock != 42 || env.stock(t, "7") != 42 {
		t.Fatalf("expected stock 42, got %d", product.Stock)
	}
	if !env.logger.has("inventory.stock.set") {
		t.Fatalf("expected stock change to be logged")
	}

	if _, err := env.inventory.SetProductStock(context.Background(), SetProductStockCommand{ProductID: "7", Stock: -1}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected invalid input for negative stock, got %v", err)
	}
	if _, err := env.inventory.SetProductStock(context.Background(), SetProductStockCommand{ProductID: "nope", Stock: 1}); !errors.Is(err, ErrInventoryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInventoryListLowStock(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("A", "Lamp", "25.00", 2)
	env.putProduct("B", "Bulb", "3.00", 5)
	env.putProduct("C", "Shade", "8.00", 6)
	env.store.PutProduct(domain.Product{ID: "D", Name: "Retired", Price: price("1.00"), Stock: 0, Active: false})

	products, err := env.inventory.ListLowStock(context.Background(), 5)
	if err != nil {
		t.Fatalf("list low stock: %v", err)
	}
	if len(products) != 2 || products[0].ID != "A" || products[1].ID != "B" {
		t.Fatalf("expected active products at or below 5 ordered by stock, got %#v", products)
	}

	if _, err := env.inventory.ListLowStock(context.Background(), -1); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected invalid input for negative threshold, got %v", err)
	}
}
