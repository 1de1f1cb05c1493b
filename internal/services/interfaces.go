package services

import (
	"context"
	"time"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination    = domain.Pagination
	Order         = domain.Order
	OrderLine     = domain.OrderLine
	OrderStatus   = domain.OrderStatus
	Address       = domain.Address
	Payment       = domain.Payment
	PaymentStatus = domain.PaymentStatus
	Product       = domain.Product
	Cart          = domain.Cart
	CartItem      = domain.CartItem

	OrderListFilter   = repositories.OrderListFilter
	PaymentListFilter = repositories.PaymentListFilter
)

// OrderService converts carts into orders and owns the order status state machine.
type OrderService interface {
	CreateFromCart(ctx context.Context, cmd CreateOrderFromCartCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// PaymentService creates provider checkout sessions and exposes payment history.
type PaymentService interface {
	CreateSession(ctx context.Context, cmd CreatePaymentSessionCommand) (PaymentSession, error)
	GetPayment(ctx context.Context, paymentID string, opts PaymentReadOptions) (Payment, error)
	ListOrderPayments(ctx context.Context, orderID string, opts PaymentReadOptions) ([]Payment, error)
	ListPayments(ctx context.Context, filter PaymentListFilter) (domain.CursorPage[Payment], error)
}

// ReconciliationService applies provider outcomes to local payment and order state.
type ReconciliationService interface {
	Reconcile(ctx context.Context, cmd ReconcileCommand) (ReconcileResult, error)
}

// InventoryService is the only writer of product stock.
type InventoryService interface {
	DecrementStockForPaidOrder(ctx context.Context, orderID string) (bool, error)
	SetProductStock(ctx context.Context, cmd SetProductStockCommand) (Product, error)
	ListLowStock(ctx context.Context, threshold int) ([]Product, error)
}

// EventPublisher publishes domain events for downstream consumers.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event DomainEvent) error
}

// DomainEvent is the envelope published after a state change commits.
type DomainEvent struct {
	Type       string
	OrderID    string
	PaymentID  string
	ActorID    string
	OccurredAt time.Time
	Data       map[string]any
}

// CreateOrderFromCartCommand captures the checkout inputs for a customer's cart.
type CreateOrderFromCartCommand struct {
	UserID string
	// ShippingAddressID references a saved address owned by the user. When set it takes
	// precedence over ShippingAddress.
	ShippingAddressID string
	ShippingAddress   *Address
	BillingAddress    *Address
	Notes             string
}

// OrderReadOptions restricts reads to orders owned by UserID when set.
type OrderReadOptions struct {
	UserID string
}

// OrderStatusTransitionCommand moves an order along the status state machine.
type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorID      string
}

// CancelOrderCommand cancels a pending order on behalf of its owner.
type CancelOrderCommand struct {
	OrderID string
	UserID  string
	Reason  string
}

// CreatePaymentSessionCommand requests a provider checkout session for an order.
type CreatePaymentSessionCommand struct {
	OrderID string
	// UserID restricts the session to orders owned by the caller when set.
	UserID     string
	SuccessURL string
	CancelURL  string
}

// PaymentSession is the handle returned to the client to continue checkout.
type PaymentSession struct {
	SessionID  string
	SessionURL string
	PublicKey  string
	OrderID    string
	PaymentID  string
}

// PaymentReadOptions restricts reads to payments owned by UserID when set.
type PaymentReadOptions struct {
	UserID string
}

// PaymentOutcome is the provider-reported result of a payment attempt.
type PaymentOutcome string

const (
	PaymentOutcomeSucceeded PaymentOutcome = "succeeded"
	PaymentOutcomeFailed    PaymentOutcome = "failed"
	PaymentOutcomeCancelled PaymentOutcome = "cancelled"
)

// ReconcileCommand identifies the payment by session id (preferred) or payment intent id.
type ReconcileCommand struct {
	SessionID       string
	PaymentIntentID string
	Outcome         PaymentOutcome
	FailureReason   string
	// Source labels the trigger (webhook event type or simulation) for logs and events.
	Source string
}

// ReconcileResult reports what a reconciliation changed.
type ReconcileResult struct {
	Payment Payment
	// Applied is false when the payment already carried the requested outcome.
	Applied bool
	// OrderPaid is true when this call moved the order to PAID.
	OrderPaid bool
	// StockDecremented is true when inventory was decremented as part of this call.
	StockDecremented bool
	// DecrementError carries the inventory failure that was recorded without rolling back.
	DecrementError error
}

// SetProductStockCommand overrides a product's stock level.
type SetProductStockCommand struct {
	ProductID string
	Stock     int
	ActorID   string
}
