package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	domain "github.com/malistore/api/internal/domain"
)

type cartRepository struct {
	r *Registry
}

// GetCart returns an empty cart when the customer has none. Inside a transaction the cart row
// is locked so concurrent checkouts of the same cart serialise.
func (c cartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	db, inTx := c.r.db(ctx)
	cart := domain.Cart{UserID: userID}

	rows, err := db.Query(ctx, `SELECT updated_at FROM carts WHERE user_id = $1`+lockClause(inTx), userID)
	if err != nil {
		return domain.Cart{}, wrapError("carts.get", err)
	}
	found := false
	for rows.Next() {
		if err := rows.Scan(&cart.UpdatedAt); err != nil {
			rows.Close()
			return domain.Cart{}, wrapError("carts.get", err)
		}
		found = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.Cart{}, wrapError("carts.get", err)
	}
	if !found {
		return cart, nil
	}
	cart.UpdatedAt = cart.UpdatedAt.UTC()

	itemRows, err := db.Query(ctx, `SELECT product_id, quantity, unit_price::text FROM cart_items
		WHERE user_id = $1 ORDER BY product_id`, userID)
	if err != nil {
		return domain.Cart{}, wrapError("carts.items", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var (
			item  domain.CartItem
			price string
		)
		if err := itemRows.Scan(&item.ProductID, &item.Quantity, &price); err != nil {
			return domain.Cart{}, wrapError("carts.items", err)
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return domain.Cart{}, fmt.Errorf("cart item %s price: %w", item.ProductID, err)
		}
		cart.Items = append(cart.Items, item)
	}
	return cart, wrapError("carts.items", itemRows.Err())
}

func (c cartRepository) Clear(ctx context.Context, userID string) error {
	db, _ := c.r.db(ctx)
	_, err := db.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return wrapError("carts.clear", err)
}

type addressRepository struct {
	r *Registry
}

func (a addressRepository) FindByID(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	db, _ := a.r.db(ctx)
	var address domain.Address
	err := db.QueryRow(ctx, `
		SELECT id, user_id, recipient, line1, line2, city, postal_code, country, phone
		FROM addresses WHERE user_id = $1 AND id = $2`, userID, addressID).
		Scan(&address.ID, &address.UserID, &address.Recipient, &address.Line1, &address.Line2,
			&address.City, &address.PostalCode, &address.Country, &address.Phone)
	if err != nil {
		return domain.Address{}, wrapError("addresses.get", err)
	}
	return address, nil
}
