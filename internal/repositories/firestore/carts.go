package firestore

import (
	"context"
	"time"

	domain "github.com/malistore/api/internal/domain"
	pfirestore "github.com/malistore/api/internal/platform/firestore"
	"github.com/malistore/api/internal/repositories"
)

type cartRepository struct {
	docs *pfirestore.Collection[cartDocument]
}

// GetCart returns an empty cart when the customer has none.
func (r cartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	doc, err := r.docs.Get(ctx, userID)
	if repositories.IsNotFound(err) {
		return domain.Cart{UserID: userID}, nil
	}
	if err != nil {
		return domain.Cart{}, err
	}
	cart := doc.toDomain()
	cart.UserID = userID
	return cart, nil
}

// Clear empties the cart in place so a buffered transaction write stays a plain Set.
func (r cartRepository) Clear(ctx context.Context, userID string) error {
	return r.docs.Set(ctx, userID, cartDocument{
		UserID:    userID,
		Items:     []cartItemDocument{},
		UpdatedAt: time.Now().UTC(),
	})
}

type addressRepository struct {
	provider *pfirestore.Provider
}

// FindByID reads users/{userID}/addresses/{addressID}.
func (r addressRepository) FindByID(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	if userID == "" {
		return domain.Address{}, pfirestore.NotFound("addresses.get", "address %s not found", addressID)
	}
	coll := pfirestore.NewCollection[addressDocument](r.provider, usersCollection+"/"+userID+"/"+addressesCollection)
	doc, err := coll.Get(ctx, addressID)
	if err != nil {
		return domain.Address{}, err
	}
	address := doc.toDomain()
	address.ID = addressID
	address.UserID = userID
	return *address, nil
}
