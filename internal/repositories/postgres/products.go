package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/repositories"
)

type productRepository struct {
	r *Registry
}

func (p productRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	db, inTx := p.r.db(ctx)
	product, err := scanProduct(db.QueryRow(ctx,
		`SELECT id, name, price::text, stock, active, updated_at FROM products WHERE id = $1`+lockClause(inTx), productID))
	if err != nil {
		return domain.Product{}, wrapError("products.get", err)
	}
	return product, nil
}

// UpdateStock relies on the CHECK (stock >= 0) constraint as a last line of defence.
func (p productRepository) UpdateStock(ctx context.Context, productID string, stock int, updatedAt time.Time) error {
	db, _ := p.r.db(ctx)
	tag, err := db.Exec(ctx, `UPDATE products SET stock = $2, updated_at = $3 WHERE id = $1`,
		productID, stock, updatedAt.UTC())
	if err != nil {
		return wrapError("products.update_stock", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFound("products.update_stock", "product %s not found", productID)
	}
	return nil
}

func (p productRepository) ListLowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	db, _ := p.r.db(ctx)
	rows, err := db.Query(ctx, `SELECT id, name, price::text, stock, active, updated_at FROM products
		WHERE active AND stock <= $1 ORDER BY stock ASC, id ASC`, threshold)
	if err != nil {
		return nil, wrapError("products.low_stock", err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Product, error) {
		return scanProduct(row)
	})
	return products, wrapError("products.low_stock", err)
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		product domain.Product
		price   string
	)
	if err := row.Scan(&product.ID, &product.Name, &price, &product.Stock, &product.Active, &product.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	value, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s price: %w", product.ID, err)
	}
	product.Price = value
	product.UpdatedAt = product.UpdatedAt.UTC()
	return product, nil
}
