package firestore

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/malistore/api/internal/domain"
	pfirestore "github.com/malistore/api/internal/platform/firestore"
)

type productRepository struct {
	docs *pfirestore.Collection[productDocument]
}

func (r productRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.docs.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.toDomain(), nil
}

func (r productRepository) UpdateStock(ctx context.Context, productID string, stock int, updatedAt time.Time) error {
	return r.docs.Provider().RunInTx(ctx, func(ctx context.Context) error {
		doc, err := r.docs.Get(ctx, productID)
		if err != nil {
			return err
		}
		doc.Stock = stock
		doc.UpdatedAt = updatedAt.UTC()
		return r.docs.Set(ctx, productID, doc)
	})
}

// ListLowStock orders by stock ascending then id.
func (r productRepository) ListLowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	docs, err := r.docs.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("active", "==", true).Where("stock", "<=", threshold).OrderBy("stock", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.toDomain())
	}
	sort.SliceStable(products, func(i, j int) bool {
		if products[i].Stock != products[j].Stock {
			return products[i].Stock < products[j].Stock
		}
		return products[i].ID < products[j].ID
	})
	return products, nil
}
