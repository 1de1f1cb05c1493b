package repositories

import (
	"context"
	"time"

	domain "github.com/malistore/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	Orders() OrderRepository
	Payments() PaymentRepository
	Products() ProductRepository
	Carts() CartRepository
	Addresses() AddressRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary. Repository calls made
// with the context passed to fn participate in the transaction; fn returning an error rolls
// every write back.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists orders together with their lines. Inside a transaction FindByID
// takes a row lock where the backend supports it.
type OrderRepository interface {
	// Insert stores the order and its lines. A duplicate order number yields a conflict error.
	Insert(ctx context.Context, order domain.Order) error
	// Update persists status, timestamps and the stock marker. Lines are never rewritten.
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// PaymentRepository persists payment attempts.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	FindBySessionID(ctx context.Context, sessionID string) (domain.Payment, error)
	FindByIntentID(ctx context.Context, intentID string) (domain.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
	List(ctx context.Context, filter PaymentListFilter) (domain.CursorPage[domain.Payment], error)
}

// ProductRepository exposes the stock-relevant product fields. Inside a transaction FindByID
// takes a row lock where the backend supports it.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	UpdateStock(ctx context.Context, productID string, stock int, updatedAt time.Time) error
	ListLowStock(ctx context.Context, threshold int) ([]domain.Product, error)
}

// CartRepository reads and clears customer carts.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// AddressRepository resolves saved customer addresses.
type AddressRepository interface {
	FindByID(ctx context.Context, userID string, addressID string) (domain.Address, error)
}

// OrderListFilter narrows order listings. Results are ordered newest first.
type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}

// PaymentListFilter narrows payment listings. Results are ordered newest first.
type PaymentListFilter struct {
	UserID     string
	Status     []domain.PaymentStatus
	Pagination domain.Pagination
}
