package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/repositories"
)

const (
	inventoryEventDecremented = "inventory.decremented"
)

var (
	// ErrInventoryInvalidInput indicates validation failures for inventory operations.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryNotFound indicates the referenced product or order could not be found.
	ErrInventoryNotFound = errors.New("inventory: not found")
	// ErrInventoryUnavailable indicates the backing store could not be reached.
	ErrInventoryUnavailable = errors.New("inventory: unavailable")
)

// InventoryServiceDeps wires repositories and helpers required by the inventory service.
type InventoryServiceDeps struct {
	Orders     repositories.OrderRepository
	Products   repositories.ProductRepository
	UnitOfWork repositories.UnitOfWork
	Clock      func() time.Time
	Events     EventPublisher
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	events     EventPublisher
	logger     logFunc
}

// NewInventoryService constructs an InventoryService.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Orders == nil {
		return nil, errors.New("inventory service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("inventory service: product repository is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &inventoryService{
		orders:     deps.Orders,
		products:   deps.Products,
		unitOfWork: unit,
		clock:      utcClock(deps.Clock),
		events:     deps.Events,
		logger:     logger,
	}, nil
}

type stockDecrement struct {
	product  domain.Product
	quantity int
}

// DecrementStockForPaidOrder removes the order's quantities from stock exactly once. It returns
// false without error when the order is not PAID or was already decremented. Either every line
// is decremented or none is.
func (s *inventoryService) DecrementStockForPaidOrder(ctx context.Context, orderID string) (bool, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false, fmt.Errorf("%w: order id is required", ErrInventoryInvalidInput)
	}

	var (
		applied    bool
		decrements []stockDecrement
		now        = s.clock()
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		applied = false
		decrements = nil

		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPaid || order.StockDecrementedAt != nil {
			return nil
		}

		quantities := make(map[string]int, len(order.Lines))
		for _, line := range order.Lines {
			quantities[line.ProductID] += line.Quantity
		}
		productIDs := make([]string, 0, len(quantities))
		for id := range quantities {
			productIDs = append(productIDs, id)
		}
		// stable lock order across concurrent decrements
		slices.Sort(productIDs)

		for _, id := range productIDs {
			product, err := s.products.FindByID(txCtx, id)
			if err != nil {
				return err
			}
			requested := quantities[id]
			if product.Stock < requested {
				return &InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Available:   product.Stock,
					Requested:   requested,
				}
			}
			decrements = append(decrements, stockDecrement{product: product, quantity: requested})
		}

		for _, d := range decrements {
			if err := s.products.UpdateStock(txCtx, d.product.ID, d.product.Stock-d.quantity, now); err != nil {
				return err
			}
		}

		order.StockDecrementedAt = &now
		order.UpdatedAt = now
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, s.mapRepositoryError(err)
	}
	if !applied {
		return false, nil
	}

	items := make([]map[string]any, 0, len(decrements))
	for _, d := range decrements {
		items = append(items, map[string]any{
			"productId": d.product.ID,
			"quantity":  d.quantity,
			"stock":     d.product.Stock - d.quantity,
		})
	}
	s.logger(ctx, "inventory.decremented", map[string]any{
		"orderId":  orderID,
		"products": len(decrements),
	})
	publish(ctx, s.events, s.logger, DomainEvent{
		Type:       inventoryEventDecremented,
		OrderID:    orderID,
		OccurredAt: now,
		Data:       map[string]any{"items": items},
	})
	return true, nil
}

func (s *inventoryService) SetProductStock(ctx context.Context, cmd SetProductStockCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}
	if cmd.Stock < 0 {
		return Product{}, fmt.Errorf("%w: stock must be zero or greater", ErrInventoryInvalidInput)
	}

	var (
		product  Product
		previous int
	)
	now := s.clock()
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.products.FindByID(txCtx, productID)
		if err != nil {
			return err
		}
		if err := s.products.UpdateStock(txCtx, productID, cmd.Stock, now); err != nil {
			return err
		}
		previous = current.Stock
		current.Stock = cmd.Stock
		current.UpdatedAt = now
		product = current
		return nil
	})
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "inventory.stock.set", map[string]any{
		"productId": productID,
		"previous":  previous,
		"stock":     cmd.Stock,
		"actorId":   strings.TrimSpace(cmd.ActorID),
	})
	return product, nil
}

func (s *inventoryService) ListLowStock(ctx context.Context, threshold int) ([]Product, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("%w: threshold must be zero or greater", ErrInventoryInvalidInput)
	}
	products, err := s.products.ListLowStock(ctx, threshold)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return products, nil
}

func (s *inventoryService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrInventoryNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrInventoryUnavailable, err)
		}
	}
	return err
}
