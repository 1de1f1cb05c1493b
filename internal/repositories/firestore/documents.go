package firestore

import (
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/malistore/api/internal/domain"
)

// Amounts are stored as decimal strings so no precision is lost to float64.

type orderDocument struct {
	ID                 string              `firestore:"id"`
	OrderNumber        string              `firestore:"orderNumber"`
	UserID             string              `firestore:"userId"`
	Status             string              `firestore:"status"`
	TotalAmount        string              `firestore:"totalAmount"`
	Currency           string              `firestore:"currency"`
	ShippingAddress    *addressDocument    `firestore:"shippingAddress,omitempty"`
	BillingAddress     *addressDocument    `firestore:"billingAddress,omitempty"`
	Notes              string              `firestore:"notes,omitempty"`
	Lines              []orderLineDocument `firestore:"lines"`
	StockDecrementedAt *time.Time          `firestore:"stockDecrementedAt,omitempty"`
	PaidAt             *time.Time          `firestore:"paidAt,omitempty"`
	ShippedAt          *time.Time          `firestore:"shippedAt,omitempty"`
	DeliveredAt        *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt        *time.Time          `firestore:"cancelledAt,omitempty"`
	CreatedAt          time.Time           `firestore:"createdAt"`
	UpdatedAt          time.Time           `firestore:"updatedAt"`
}

type orderLineDocument struct {
	Position    int    `firestore:"position"`
	ProductID   string `firestore:"productId"`
	ProductName string `firestore:"productName"`
	Quantity    int    `firestore:"quantity"`
	UnitPrice   string `firestore:"unitPrice"`
	Total       string `firestore:"total"`
}

type addressDocument struct {
	ID         string `firestore:"id,omitempty"`
	UserID     string `firestore:"userId,omitempty"`
	Recipient  string `firestore:"recipient"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
	Phone      string `firestore:"phone,omitempty"`
}

type paymentDocument struct {
	ID                string     `firestore:"id"`
	OrderID           string     `firestore:"orderId"`
	UserID            string     `firestore:"userId"`
	Provider          string     `firestore:"provider"`
	Status            string     `firestore:"status"`
	Amount            string     `firestore:"amount"`
	Currency          string     `firestore:"currency"`
	Method            string     `firestore:"method"`
	Description       string     `firestore:"description,omitempty"`
	SessionID         string     `firestore:"sessionId,omitempty"`
	PaymentIntentID   string     `firestore:"paymentIntentId,omitempty"`
	TransactionID     string     `firestore:"transactionId,omitempty"`
	FailureReason     string     `firestore:"failureReason,omitempty"`
	WebhookReceivedAt *time.Time `firestore:"webhookReceivedAt,omitempty"`
	CreatedAt         time.Time  `firestore:"createdAt"`
	UpdatedAt         time.Time  `firestore:"updatedAt"`
}

type productDocument struct {
	ID        string    `firestore:"id"`
	Name      string    `firestore:"name"`
	Price     string    `firestore:"price"`
	Stock     int       `firestore:"stock"`
	Active    bool      `firestore:"active"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type cartDocument struct {
	UserID    string             `firestore:"userId"`
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice string `firestore:"unitPrice"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		UserID:             order.UserID,
		Status:             string(order.Status),
		TotalAmount:        order.TotalAmount.String(),
		Currency:           order.Currency,
		ShippingAddress:    newAddressDocument(order.ShippingAddress),
		BillingAddress:     newAddressDocument(order.BillingAddress),
		Notes:              order.Notes,
		Lines:              make([]orderLineDocument, 0, len(order.Lines)),
		StockDecrementedAt: order.StockDecrementedAt,
		PaidAt:             order.PaidAt,
		ShippedAt:          order.ShippedAt,
		DeliveredAt:        order.DeliveredAt,
		CancelledAt:        order.CancelledAt,
		CreatedAt:          order.CreatedAt.UTC(),
		UpdatedAt:          order.UpdatedAt.UTC(),
	}
	for _, line := range order.Lines {
		doc.Lines = append(doc.Lines, orderLineDocument{
			Position:    line.Position,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice.String(),
			Total:       line.Total.String(),
		})
	}
	return doc
}

func (d orderDocument) toDomain() domain.Order {
	order := domain.Order{
		ID:                 d.ID,
		OrderNumber:        d.OrderNumber,
		UserID:             d.UserID,
		Status:             domain.OrderStatus(d.Status),
		TotalAmount:        parseAmount(d.TotalAmount),
		Currency:           d.Currency,
		ShippingAddress:    d.ShippingAddress.toDomain(),
		BillingAddress:     d.BillingAddress.toDomain(),
		Notes:              d.Notes,
		Lines:              make([]domain.OrderLine, 0, len(d.Lines)),
		StockDecrementedAt: utcPtr(d.StockDecrementedAt),
		PaidAt:             utcPtr(d.PaidAt),
		ShippedAt:          utcPtr(d.ShippedAt),
		DeliveredAt:        utcPtr(d.DeliveredAt),
		CancelledAt:        utcPtr(d.CancelledAt),
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
	for _, line := range d.Lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			OrderID:     d.ID,
			Position:    line.Position,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   parseAmount(line.UnitPrice),
			Total:       parseAmount(line.Total),
		})
	}
	return order
}

func newAddressDocument(address *domain.Address) *addressDocument {
	if address == nil {
		return nil
	}
	return &addressDocument{
		ID:         address.ID,
		UserID:     address.UserID,
		Recipient:  address.Recipient,
		Line1:      address.Line1,
		Line2:      address.Line2,
		City:       address.City,
		PostalCode: address.PostalCode,
		Country:    address.Country,
		Phone:      address.Phone,
	}
}

func (d *addressDocument) toDomain() *domain.Address {
	if d == nil {
		return nil
	}
	return &domain.Address{
		ID:         d.ID,
		UserID:     d.UserID,
		Recipient:  d.Recipient,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		PostalCode: d.PostalCode,
		Country:    d.Country,
		Phone:      d.Phone,
	}
}

func newPaymentDocument(p domain.Payment) paymentDocument {
	return paymentDocument{
		ID:                p.ID,
		OrderID:           p.OrderID,
		UserID:            p.UserID,
		Provider:          p.Provider,
		Status:            string(p.Status),
		Amount:            p.Amount.String(),
		Currency:          p.Currency,
		Method:            string(p.Method),
		Description:       p.Description,
		SessionID:         p.SessionID,
		PaymentIntentID:   p.PaymentIntentID,
		TransactionID:     p.TransactionID,
		FailureReason:     p.FailureReason,
		WebhookReceivedAt: p.WebhookReceivedAt,
		CreatedAt:         p.CreatedAt.UTC(),
		UpdatedAt:         p.UpdatedAt.UTC(),
	}
}

func (d paymentDocument) toDomain() domain.Payment {
	return domain.Payment{
		ID:                d.ID,
		OrderID:           d.OrderID,
		UserID:            d.UserID,
		Provider:          d.Provider,
		Status:            domain.PaymentStatus(d.Status),
		Amount:            parseAmount(d.Amount),
		Currency:          d.Currency,
		Method:            domain.PaymentMethod(d.Method),
		Description:       d.Description,
		SessionID:         d.SessionID,
		PaymentIntentID:   d.PaymentIntentID,
		TransactionID:     d.TransactionID,
		FailureReason:     d.FailureReason,
		WebhookReceivedAt: utcPtr(d.WebhookReceivedAt),
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain() domain.Product {
	return domain.Product{
		ID:        d.ID,
		Name:      d.Name,
		Price:     parseAmount(d.Price),
		Stock:     d.Stock,
		Active:    d.Active,
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func (d cartDocument) toDomain() domain.Cart {
	cart := domain.Cart{UserID: d.UserID, UpdatedAt: d.UpdatedAt.UTC()}
	for _, item := range d.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: parseAmount(item.UnitPrice),
		})
	}
	return cart
}

// parseAmount treats malformed stored amounts as zero.
func parseAmount(raw string) decimal.Decimal {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return value
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
