package memory

import (
	"slices"

	domain "github.com/malistore/api/internal/domain"
)

// PutProduct creates or replaces a product.
func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
}

// PutCart replaces the customer's cart.
func (s *Store) PutCart(cart domain.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart.Items = slices.Clone(cart.Items)
	s.carts[cart.UserID] = cart
}

// PutAddress creates or replaces a saved address.
func (s *Store) PutAddress(address domain.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses[addressKey(address.UserID, address.ID)] = address
}
