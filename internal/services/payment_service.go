package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/payments"
	"github.com/malistore/api/internal/repositories"
)

const (
	paymentEventSessionCreated = "payment.session_created"

	paymentIDPrefix        = "pay_"
	defaultProviderTimeout = 10 * time.Second
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotFound indicates the payment, or the order it targets, could not be located.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentInvalidState indicates the order or payment status does not permit the operation.
	ErrPaymentInvalidState = errors.New("payment: invalid state")
	// ErrPaymentDuplicate indicates the order already has a succeeded payment.
	ErrPaymentDuplicate = errors.New("payment: order already paid")
	// ErrPaymentProviderUnavailable indicates the payment provider failed or timed out.
	ErrPaymentProviderUnavailable = errors.New("payment: provider unavailable")
	// ErrPaymentConflict indicates a provider identifier collided with an existing payment.
	ErrPaymentConflict = errors.New("payment: conflict")
)

// PaymentGateway creates provider checkout sessions.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders     repositories.OrderRepository
	Payments   repositories.PaymentRepository
	UnitOfWork repositories.UnitOfWork
	Gateway    PaymentGateway
	// PreferredProvider selects the gateway provider (stripe or mock).
	PreferredProvider string
	PublishableKey    string
	DefaultSuccessURL string
	DefaultCancelURL  string
	// ProviderTimeout bounds the provider call. Defaults to 10s.
	ProviderTimeout time.Duration
	Clock           func() time.Time
	IDGenerator     func() string
	Events          EventPublisher
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders          repositories.OrderRepository
	payments        repositories.PaymentRepository
	unitOfWork      repositories.UnitOfWork
	gateway         PaymentGateway
	provider        string
	publishableKey  string
	successURL      string
	cancelURL       string
	providerTimeout time.Duration
	clock           func() time.Time
	newID           func() string
	events          EventPublisher
	logger          logFunc
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	timeout := deps.ProviderTimeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}

	return &paymentService{
		orders:          deps.Orders,
		payments:        deps.Payments,
		unitOfWork:      unit,
		gateway:         deps.Gateway,
		provider:        strings.TrimSpace(deps.PreferredProvider),
		publishableKey:  strings.TrimSpace(deps.PublishableKey),
		successURL:      strings.TrimSpace(deps.DefaultSuccessURL),
		cancelURL:       strings.TrimSpace(deps.DefaultCancelURL),
		providerTimeout: timeout,
		clock:           utcClock(deps.Clock),
		newID:           idGen,
		events:          deps.Events,
		logger:          logger,
	}, nil
}

// CreateSession validates the order, opens a provider checkout session and records a PENDING
// payment for it. The payment row is only written once the provider call succeeded.
func (s *paymentService) CreateSession(ctx context.Context, cmd CreatePaymentSessionCommand) (PaymentSession, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentSession{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	userID := strings.TrimSpace(cmd.UserID)
	successURL := firstNonEmpty(cmd.SuccessURL, s.successURL)
	cancelURL := firstNonEmpty(cmd.CancelURL, s.cancelURL)
	if successURL == "" || cancelURL == "" {
		return PaymentSession{}, fmt.Errorf("%w: success and cancel urls are required", ErrPaymentInvalidInput)
	}

	var order Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.payableOrder(txCtx, orderID, userID)
		if err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		return PaymentSession{}, s.mapRepositoryError(err)
	}

	paymentID := paymentIDPrefix + s.newID()
	description := "Payment for order " + order.OrderNumber
	req := payments.CheckoutSessionRequest{
		OrderID:        order.ID,
		Amount:         domain.MinorUnits(order.TotalAmount),
		Currency:       order.Currency,
		Description:    description,
		SuccessURL:     successURL,
		CancelURL:      cancelURL,
		IdempotencyKey: paymentID,
		Metadata: map[string]string{
			"paymentId":   paymentID,
			"orderNumber": order.OrderNumber,
		},
		Items: checkoutItems(order),
	}

	providerCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	session, err := s.gateway.CreateCheckoutSession(providerCtx, payments.PaymentContext{PreferredProvider: s.provider}, req)
	cancel()
	if err != nil {
		s.logger(ctx, "payment.session.provider_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		if errors.Is(err, payments.ErrInvalidRequest) {
			return PaymentSession{}, fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
		}
		return PaymentSession{}, fmt.Errorf("%w: %v", ErrPaymentProviderUnavailable, err)
	}

	now := s.clock()
	payment := Payment{
		ID:              paymentID,
		OrderID:         order.ID,
		UserID:          order.UserID,
		Provider:        session.Provider,
		Status:          domain.PaymentStatusPending,
		Amount:          order.TotalAmount,
		Currency:        order.Currency,
		Method:          domain.PaymentMethodCard,
		Description:     description,
		SessionID:       session.ID,
		PaymentIntentID: session.IntentID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		// the order may have been paid or cancelled while the provider was called
		if _, err := s.payableOrder(txCtx, orderID, userID); err != nil {
			return err
		}
		return s.payments.Insert(txCtx, payment)
	})
	if err != nil {
		return PaymentSession{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "payment.session.created", map[string]any{
		"paymentId": payment.ID,
		"orderId":   order.ID,
		"sessionId": session.ID,
		"provider":  session.Provider,
		"amount":    payment.Amount.StringFixed(2),
	})
	publish(ctx, s.events, s.logger, DomainEvent{
		Type:       paymentEventSessionCreated,
		OrderID:    order.ID,
		PaymentID:  payment.ID,
		ActorID:    userID,
		OccurredAt: now,
		Data: map[string]any{
			"sessionId": session.ID,
			"provider":  session.Provider,
			"amount":    payment.Amount.StringFixed(2),
			"currency":  payment.Currency,
		},
	})

	return PaymentSession{
		SessionID:  session.ID,
		SessionURL: session.RedirectURL,
		PublicKey:  s.publishableKey,
		OrderID:    order.ID,
		PaymentID:  payment.ID,
	}, nil
}

// payableOrder loads the order and checks it can accept a new payment attempt.
func (s *paymentService) payableOrder(ctx context.Context, orderID, userID string) (Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Order{}, fmt.Errorf("%w: order %s", ErrPaymentNotFound, orderID)
		}
		return Order{}, err
	}
	if userID != "" && order.UserID != userID {
		return Order{}, fmt.Errorf("%w: order %s", ErrPaymentNotFound, orderID)
	}
	existing, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	for _, payment := range existing {
		if payment.Status == domain.PaymentStatusSucceeded {
			return Order{}, fmt.Errorf("%w: order %s already has a successful payment", ErrPaymentDuplicate, orderID)
		}
	}
	if order.Status != domain.OrderStatusPending {
		return Order{}, fmt.Errorf("%w: order %s is %s, expected %s", ErrPaymentInvalidState, orderID, order.Status, domain.OrderStatusPending)
	}
	return order, nil
}

func (s *paymentService) GetPayment(ctx context.Context, paymentID string, opts PaymentReadOptions) (Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Payment{}, fmt.Errorf("%w: payment id is required", ErrPaymentInvalidInput)
	}
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}
	if userID := strings.TrimSpace(opts.UserID); userID != "" && payment.UserID != userID {
		return Payment{}, fmt.Errorf("%w: payment %s", ErrPaymentNotFound, paymentID)
	}
	return payment, nil
}

func (s *paymentService) ListOrderPayments(ctx context.Context, orderID string, opts PaymentReadOptions) ([]Payment, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if userID := strings.TrimSpace(opts.UserID); userID != "" && order.UserID != userID {
		return nil, fmt.Errorf("%w: order %s", ErrPaymentNotFound, orderID)
	}
	result, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return result, nil
}

func (s *paymentService) ListPayments(ctx context.Context, filter PaymentListFilter) (domain.CursorPage[Payment], error) {
	filter.UserID = strings.TrimSpace(filter.UserID)
	page, err := s.payments.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Payment]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *paymentService) mapRepositoryError(err error) error {
	return mapPaymentRepositoryError(err)
}

func mapPaymentRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPaymentConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}
	return err
}

func checkoutItems(order Order) []payments.CheckoutLineItem {
	items := make([]payments.CheckoutLineItem, 0, len(order.Lines))
	for _, line := range order.Lines {
		items = append(items, payments.CheckoutLineItem{
			Name:        line.ProductName,
			Description: fmt.Sprintf("%s x%d", line.ProductName, line.Quantity),
			Quantity:    int64(line.Quantity),
			Amount:      domain.MinorUnits(line.UnitPrice),
			Currency:    order.Currency,
		})
	}
	return items
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
