package memory

import (
	"context"
	"slices"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/repositories"
)

type cartRepository struct {
	store *Store
}

// GetCart returns an empty cart when the customer has none.
func (r cartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	cart := domain.Cart{UserID: userID}
	_ = r.store.do(ctx, func() error {
		if stored, ok := r.store.carts[userID]; ok {
			cart = stored
			cart.Items = slices.Clone(stored.Items)
		}
		return nil
	})
	return cart, nil
}

func (r cartRepository) Clear(ctx context.Context, userID string) error {
	return r.store.do(ctx, func() error {
		delete(r.store.carts, userID)
		return nil
	})
}

type addressRepository struct {
	store *Store
}

func (r addressRepository) FindByID(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	var address domain.Address
	err := r.store.do(ctx, func() error {
		stored, ok := r.store.addresses[addressKey(userID, addressID)]
		if !ok {
			return repositories.NewNotFound("addresses.get", "address %s not found", addressID)
		}
		address = stored
		return nil
	})
	return address, err
}

func addressKey(userID, addressID string) string {
	return userID + "/" + addressID
}
