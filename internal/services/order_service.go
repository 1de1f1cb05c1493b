package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/platform/textutil"
	"github.com/malistore/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status_changed"

	orderIDPrefix   = "ord_"
	defaultCurrency = "EUR"

	maxOrderNumberAttempts = 3
	maxOrderNotesLength    = 1000
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderEmptyCart indicates checkout was attempted with an empty cart.
	ErrOrderEmptyCart = errors.New("order: cart is empty")
	// ErrOrderAddressNotFound indicates the referenced saved address does not exist for the user.
	ErrOrderAddressNotFound = errors.New("order: shipping address not found")
)

// orderStateTransitions lists every permitted status change. Anything absent is rejected.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending: {domain.OrderStatusPaid, domain.OrderStatusCancelled},
	domain.OrderStatusPaid:    {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped: {domain.OrderStatusDelivered},
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Carts       repositories.CartRepository
	Addresses   repositories.AddressRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	// OrderNumbers generates human-readable order numbers. Uniqueness is enforced by storage.
	OrderNumbers func(now time.Time) string
	// Currency is the ISO 4217 code stamped on new orders. Defaults to EUR.
	Currency string
	Events   EventPublisher
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders       repositories.OrderRepository
	products     repositories.ProductRepository
	carts        repositories.CartRepository
	addresses    repositories.AddressRepository
	unitOfWork   repositories.UnitOfWork
	clock        func() time.Time
	newID        func() string
	orderNumbers func(time.Time) string
	currency     string
	events       EventPublisher
	logger       logFunc
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
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

	numbers := deps.OrderNumbers
	if numbers == nil {
		numbers = GenerateOrderNumber
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}

	return &orderService{
		orders:       deps.Orders,
		products:     deps.Products,
		carts:        deps.Carts,
		addresses:    deps.Addresses,
		unitOfWork:   unit,
		clock:        utcClock(deps.Clock),
		newID:        idGen,
		orderNumbers: numbers,
		currency:     currency,
		events:       deps.Events,
		logger:       logger,
	}, nil
}

// GenerateOrderNumber renders ORD-<unix millis>-<8 uppercase characters>.
func GenerateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), suffix)
}

func (s *orderService) CreateFromCart(ctx context.Context, cmd CreateOrderFromCartCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	notes := textutil.PlainText(cmd.Notes, maxOrderNotesLength)

	var created Order
	for attempt := 1; ; attempt++ {
		now := s.now()
		number := s.orderNumbers(now)

		err := s.runInTx(ctx, func(txCtx context.Context) error {
			order, err := s.buildOrderFromCart(txCtx, userID, cmd, number, notes, now)
			if err != nil {
				return err
			}
			if err := s.orders.Insert(txCtx, order); err != nil {
				return err
			}
			if err := s.carts.Clear(txCtx, userID); err != nil {
				return err
			}
			created = order
			return nil
		})
		if err == nil {
			break
		}
		if repositories.IsConflict(err) && attempt < maxOrderNumberAttempts {
			s.logger(ctx, "order.number.collision", map[string]any{
				"orderNumber": number,
				"attempt":     attempt,
			})
			continue
		}
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderId":     created.ID,
		"orderNumber": created.OrderNumber,
		"userId":      created.UserID,
		"total":       created.TotalAmount.StringFixed(2),
		"lines":       len(created.Lines),
	})
	publish(ctx, s.events, s.logger, DomainEvent{
		Type:       orderEventCreated,
		OrderID:    created.ID,
		ActorID:    created.UserID,
		OccurredAt: created.CreatedAt,
		Data: map[string]any{
			"orderNumber": created.OrderNumber,
			"status":      string(created.Status),
			"total":       created.TotalAmount.StringFixed(2),
		},
	})
	return created, nil
}

// buildOrderFromCart performs every read of the checkout before any write happens.
func (s *orderService) buildOrderFromCart(ctx context.Context, userID string, cmd CreateOrderFromCartCommand, number string, notes string, now time.Time) (Order, error) {
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return Order{}, err
	}
	if cart.IsEmpty() {
		return Order{}, fmt.Errorf("%w: cannot create order from an empty cart", ErrOrderEmptyCart)
	}

	shipping := cloneAddress(cmd.ShippingAddress)
	if addressID := strings.TrimSpace(cmd.ShippingAddressID); addressID != "" {
		if s.addresses == nil {
			return Order{}, fmt.Errorf("%w: saved addresses are not available", ErrOrderInvalidInput)
		}
		saved, err := s.addresses.FindByID(ctx, userID, addressID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return Order{}, fmt.Errorf("%w: %s", ErrOrderAddressNotFound, addressID)
			}
			return Order{}, err
		}
		shipping = &saved
	}

	order := Order{
		ID:              orderIDPrefix + s.newID(),
		OrderNumber:     number,
		UserID:          userID,
		Status:          domain.OrderStatusPending,
		Currency:        s.currency,
		ShippingAddress: shipping,
		BillingAddress:  cloneAddress(cmd.BillingAddress),
		Notes:           notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	total := decimal.Zero
	lines := make([]OrderLine, 0, len(cart.Items))
	for i, item := range cart.Items {
		if item.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: cart item %s has invalid quantity %d", ErrOrderInvalidInput, item.ProductID, item.Quantity)
		}
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return Order{}, fmt.Errorf("%w: product %s is no longer available", ErrOrderInvalidInput, item.ProductID)
			}
			return Order{}, err
		}
		if !product.Active {
			return Order{}, fmt.Errorf("%w: product %s is no longer available", ErrOrderInvalidInput, item.ProductID)
		}
		if product.Stock < item.Quantity {
			return Order{}, &InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   product.Stock,
				Requested:   item.Quantity,
			}
		}
		lineTotal := domain.LineTotal(product.Price, item.Quantity)
		lines = append(lines, OrderLine{
			OrderID:     order.ID,
			Position:    i + 1,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
			Total:       lineTotal,
		})
		total = total.Add(lineTotal)
	}

	order.Lines = lines
	order.TotalAmount = total
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if userID := strings.TrimSpace(opts.UserID); userID != "" && order.UserID != userID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	filter.UserID = strings.TrimSpace(filter.UserID)
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target, ok := domain.ParseOrderStatus(string(cmd.TargetStatus))
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	var (
		updated Order
		prev    domain.OrderStatus
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		prev = order.Status
		if err := applyStatusTransition(&order, target, s.now()); err != nil {
			return err
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.statusChanged(ctx, updated, prev, strings.TrimSpace(cmd.ActorID), "")
	return updated, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	userID := strings.TrimSpace(cmd.UserID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	var updated Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
		}
		if order.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: only pending orders can be cancelled, order is %s", ErrOrderInvalidState, order.Status)
		}
		if err := applyStatusTransition(&order, domain.OrderStatusCancelled, s.now()); err != nil {
			return err
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.statusChanged(ctx, updated, domain.OrderStatusPending, userID, textutil.PlainText(cmd.Reason, 200))
	return updated, nil
}

func (s *orderService) statusChanged(ctx context.Context, order Order, prev domain.OrderStatus, actorID string, reason string) {
	s.logger(ctx, "order.status.changed", map[string]any{
		"orderId": order.ID,
		"from":    string(prev),
		"to":      string(order.Status),
		"actorId": actorID,
	})
	data := map[string]any{
		"orderNumber":    order.OrderNumber,
		"previousStatus": string(prev),
		"status":         string(order.Status),
	}
	if reason != "" {
		data["reason"] = reason
	}
	publish(ctx, s.events, s.logger, DomainEvent{
		Type:       orderEventStatusChanged,
		OrderID:    order.ID,
		ActorID:    actorID,
		OccurredAt: order.UpdatedAt,
		Data:       data,
	})
}

func (s *orderService) mapRepositoryError(err error) error {
	return mapOrderRepositoryError(err)
}

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

// canTransition reports whether the state machine permits moving from current to target.
// Self-transitions are not permitted.
func canTransition(current, target domain.OrderStatus) bool {
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

// applyStatusTransition moves the order to target and stamps the matching lifecycle timestamp.
func applyStatusTransition(order *Order, target domain.OrderStatus, now time.Time) error {
	if !canTransition(order.Status, target) {
		return &InvalidTransitionError{From: order.Status, To: target}
	}
	order.Status = target
	order.UpdatedAt = now
	switch target {
	case domain.OrderStatusPaid:
		order.PaidAt = &now
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
	}
	return nil
}

func cloneAddress(addr *Address) *Address {
	if addr == nil {
		return nil
	}
	cloned := *addr
	return &cloned
}
