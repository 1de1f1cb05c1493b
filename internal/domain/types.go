package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits payment.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusPaid indicates a payment for the order succeeded.
	OrderStatusPaid OrderStatus = "PAID"
	// OrderStatusShipped indicates the order has been handed to the carrier.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered indicates the order reached the customer. Terminal.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled indicates the order was cancelled. Terminal.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderStatuses lists every order status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ParseOrderStatus normalises raw input into a known order status.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	candidate := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if candidate == "CANCELED" {
		candidate = OrderStatusCancelled
	}
	for _, status := range OrderStatuses {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

// Order is a customer's confirmed intent to purchase a snapshot of cart contents.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Status          OrderStatus
	TotalAmount     decimal.Decimal
	Currency        string
	ShippingAddress *Address
	BillingAddress  *Address
	Notes           string
	Lines           []OrderLine
	// StockDecrementedAt marks that inventory was decremented for this order.
	StockDecrementedAt *time.Time
	PaidAt             *time.Time
	ShippedAt          *time.Time
	DeliveredAt        *time.Time
	CancelledAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// OrderLine is one product/quantity/price snapshot inside an order. Immutable after creation.
type OrderLine struct {
	OrderID     string
	Position    int
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
}

// LinesTotal sums the line totals of the order.
func (o Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Total)
	}
	return total
}

// Address is a snapshot of a customer's shipping or billing address.
type Address struct {
	ID         string
	UserID     string
	Recipient  string
	Line1      string
	Line2      string
	City       string
	PostalCode string
	Country    string
	Phone      string
}

// Format renders the address on a single line.
func (a Address) Format() string {
	parts := make([]string, 0, 6)
	for _, part := range []string{a.Recipient, a.Line1, a.Line2, a.PostalCode, a.City, a.Country} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, ", ")
}

// PaymentStatus enumerates payment lifecycle states.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusProcessing        PaymentStatus = "PROCESSING"
	PaymentStatusSucceeded         PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusCancelled         PaymentStatus = "CANCELLED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// ParsePaymentStatus normalises raw input into a known payment status.
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	candidate := PaymentStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch candidate {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusSucceeded, PaymentStatusFailed,
		PaymentStatusCancelled, PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return candidate, true
	case "CANCELED":
		return PaymentStatusCancelled, true
	}
	return "", false
}

// IsSettled reports whether the provider has reported a final outcome for the attempt.
func (s PaymentStatus) IsSettled() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing:
		return false
	default:
		return true
	}
}

// PaymentMethod enumerates instruments used for a payment attempt.
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodPayPal       PaymentMethod = "PAYPAL"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
)

// Payment is one attempt to collect funds for an order via an external provider.
type Payment struct {
	ID              string
	OrderID         string
	UserID          string
	Provider        string
	Status          PaymentStatus
	Amount          decimal.Decimal
	Currency        string
	Method          PaymentMethod
	Description     string
	SessionID       string
	PaymentIntentID string
	TransactionID   string
	FailureReason   string
	// WebhookReceivedAt stamps the last provider notification applied to the payment.
	WebhookReceivedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Product carries the catalogue fields the order core depends on.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Stock     int
	Active    bool
	UpdatedAt time.Time
}

// Cart holds a customer's pending line items.
type Cart struct {
	UserID    string
	Items     []CartItem
	UpdatedAt time.Time
}

// IsEmpty reports whether the cart holds no items.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// CartItem is a product reference with a requested quantity and price snapshot.
type CartItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Health statuses reported by readiness checks.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// HealthCheck describes the outcome of an individual dependency probe.
type HealthCheck struct {
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency status for the readiness endpoint.
type HealthReport struct {
	Status      string
	Checks      map[string]HealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
