package memory

import (
	"context"
	"sort"
	"time"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/repositories"
)

type productRepository struct {
	store *Store
}

func (r productRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	var product domain.Product
	err := r.store.do(ctx, func() error {
		stored, ok := r.store.products[productID]
		if !ok {
			return repositories.NewNotFound("products.get", "product %s not found", productID)
		}
		product = stored
		return nil
	})
	return product, err
}

func (r productRepository) UpdateStock(ctx context.Context, productID string, stock int, updatedAt time.Time) error {
	return r.store.do(ctx, func() error {
		product, ok := r.store.products[productID]
		if !ok {
			return repositories.NewNotFound("products.update_stock", "product %s not found", productID)
		}
		product.Stock = stock
		product.UpdatedAt = updatedAt
		r.store.products[productID] = product
		return nil
	})
}

func (r productRepository) ListLowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	var result []domain.Product
	_ = r.store.do(ctx, func() error {
		for _, product := range r.store.products {
			if product.Active && product.Stock <= threshold {
				result = append(result, product)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool {
		if result[i].Stock != result[j].Stock {
			return result[i].Stock < result[j].Stock
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}
