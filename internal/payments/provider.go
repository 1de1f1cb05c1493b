package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrInvalidRequest indicates the checkout request is incomplete.
	ErrInvalidRequest = errors.New("payments: invalid request")
)

// CheckoutLineItem describes a single line item to include in a checkout session. Amount is the
// unit price in minor currency units.
type CheckoutLineItem struct {
	Name        string
	Description string
	Quantity    int64
	Amount      int64
	Currency    string
}

// CheckoutSessionRequest captures the payload required to create a checkout session.
type CheckoutSessionRequest struct {
	// OrderID is forwarded to the provider as the client reference.
	OrderID        string
	Amount         int64
	Currency       string
	Description    string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
	Items          []CheckoutLineItem
}

// CheckoutSession represents the PSP session returned to the client.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	IntentID    string
	ExpiresAt   time.Time
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
}

// Manager picks the provider for a checkout: the caller's preference when registered, then the
// default, then the only registered provider.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider sets the provider used when the caller states no usable preference.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = providerKey(provider)
	}
}

// NewManager constructs a Manager over providers keyed by name ("stripe", "mock").
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	m := &Manager{providers: make(map[string]Provider, len(providers))}
	for name, provider := range providers {
		key := providerKey(name)
		if key == "" || provider == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", name)
		}
		m.providers[key] = provider
	}
	if _, ok := m.providers["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext carries provider selection hints.
type PaymentContext struct {
	PreferredProvider string
}

func (m *Manager) resolve(hint PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	for _, key := range []string{providerKey(hint.PreferredProvider), m.defaultProvider} {
		if p, ok := m.providers[key]; ok && key != "" {
			return key, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CreateCheckoutSession validates the request and delegates to the resolved provider.
func (m *Manager) CreateCheckoutSession(ctx context.Context, paymentCtx PaymentContext, req CheckoutSessionRequest) (CheckoutSession, error) {
	if err := validateCheckoutRequest(req); err != nil {
		return CheckoutSession{}, err
	}
	key, provider, err := m.resolve(paymentCtx)
	if err != nil {
		return CheckoutSession{}, err
	}
	session, err := provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		return CheckoutSession{}, err
	}
	session.Provider = key
	return session, nil
}

func validateCheckoutRequest(req CheckoutSessionRequest) error {
	switch {
	case strings.TrimSpace(req.OrderID) == "":
		return fmt.Errorf("%w: order id is required", ErrInvalidRequest)
	case strings.TrimSpace(req.Currency) == "":
		return fmt.Errorf("%w: currency is required", ErrInvalidRequest)
	case req.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	case strings.TrimSpace(req.SuccessURL) == "" || strings.TrimSpace(req.CancelURL) == "":
		return fmt.Errorf("%w: success and cancel urls are required", ErrInvalidRequest)
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 || item.Amount < 0 {
			return fmt.Errorf("%w: invalid line item %q", ErrInvalidRequest, item.Name)
		}
	}
	return nil
}
