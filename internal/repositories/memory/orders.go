package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/platform/pagination"
	"github.com/malistore/api/internal/repositories"
)

type orderRepository struct {
	store *Store
}

func (r orderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.store.do(ctx, func() error {
		if _, exists := r.store.orders[order.ID]; exists {
			return repositories.NewConflict("orders.insert", fmt.Errorf("order %s already exists", order.ID))
		}
		if _, exists := r.store.orderNumbers[order.OrderNumber]; exists {
			return repositories.NewConflict("orders.insert", fmt.Errorf("order number %s already exists", order.OrderNumber))
		}
		r.store.orders[order.ID] = cloneOrder(order)
		r.store.orderNumbers[order.OrderNumber] = order.ID
		return nil
	})
}

func (r orderRepository) Update(ctx context.Context, order domain.Order) error {
	return r.store.do(ctx, func() error {
		current, ok := r.store.orders[order.ID]
		if !ok {
			return repositories.NewNotFound("orders.update", "order %s not found", order.ID)
		}
		updated := cloneOrder(order)
		updated.Lines = current.Lines
		updated.OrderNumber = current.OrderNumber
		r.store.orders[order.ID] = updated
		return nil
	})
}

func (r orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	err := r.store.do(ctx, func() error {
		stored, ok := r.store.orders[orderID]
		if !ok {
			return repositories.NewNotFound("orders.get", "order %s not found", orderID)
		}
		order = cloneOrder(stored)
		return nil
	})
	return order, err
}

func (r orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	var matched []domain.Order
	_ = r.store.do(ctx, func() error {
		for _, order := range r.store.orders {
			if filter.UserID != "" && order.UserID != strings.TrimSpace(filter.UserID) {
				continue
			}
			if len(filter.Status) > 0 && !slices.Contains(filter.Status, order.Status) {
				continue
			}
			matched = append(matched, cloneOrder(order))
		}
		return nil
	})
	sortNewestFirst(matched, orderKey)
	return pagination.Slice(matched, orderKey, filter.Pagination)
}

func orderKey(o domain.Order) (time.Time, string) { return o.CreatedAt, o.ID }

func cloneOrder(order domain.Order) domain.Order {
	cloned := order
	cloned.Lines = slices.Clone(order.Lines)
	cloned.ShippingAddress = clonePtr(order.ShippingAddress)
	cloned.BillingAddress = clonePtr(order.BillingAddress)
	cloned.StockDecrementedAt = clonePtr(order.StockDecrementedAt)
	cloned.PaidAt = clonePtr(order.PaidAt)
	cloned.ShippedAt = clonePtr(order.ShippedAt)
	cloned.DeliveredAt = clonePtr(order.DeliveredAt)
	cloned.CancelledAt = clonePtr(order.CancelledAt)
	return cloned
}

func clonePtr[T any](value *T) *T {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func sortNewestFirst[T any](items []T, key func(T) (time.Time, string)) {
	sort.Slice(items, func(i, j int) bool {
		ai, idi := key(items[i])
		aj, idj := key(items[j])
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return idi > idj
	})
}
