package memory

import (
	"context"
	"maps"
	"sync"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/repositories"
)

type txKey struct{}

// Store is an in-memory repository registry for tests and local development. A transaction
// holds the store lock for its whole duration and restores a snapshot when it fails.
type Store struct {
	mu sync.Mutex

	orders       map[string]domain.Order
	orderNumbers map[string]string
	payments     map[string]domain.Payment
	products     map[string]domain.Product
	carts        map[string]domain.Cart
	addresses    map[string]domain.Address
}

var _ repositories.Registry = (*Store)(nil)

// NewStore constructs an empty memory store.
func NewStore() *Store {
	return &Store{
		orders:       make(map[string]domain.Order),
		orderNumbers: make(map[string]string),
		payments:     make(map[string]domain.Payment),
		products:     make(map[string]domain.Product),
		carts:        make(map[string]domain.Cart),
		addresses:    make(map[string]domain.Address),
	}
}

// Close implements repositories.Registry.
func (s *Store) Close(context.Context) error { return nil }

// Ping implements repositories.Registry.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Orders() repositories.OrderRepository       { return orderRepository{store: s} }
func (s *Store) Payments() repositories.PaymentRepository   { return paymentRepository{store: s} }
func (s *Store) Products() repositories.ProductRepository   { return productRepository{store: s} }
func (s *Store) Carts() repositories.CartRepository         { return cartRepository{store: s} }
func (s *Store) Addresses() repositories.AddressRepository { return addressRepository{store: s} }

// RunInTx implements repositories.UnitOfWork. Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// do runs fn under the store lock unless the context already holds it.
func (s *Store) do(ctx context.Context, fn func() error) error {
	if s.inTx(ctx) {
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

type snapshot struct {
	orders       map[string]domain.Order
	orderNumbers map[string]string
	payments     map[string]domain.Payment
	products     map[string]domain.Product
	carts        map[string]domain.Cart
	addresses    map[string]domain.Address
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		orders:       maps.Clone(s.orders),
		orderNumbers: maps.Clone(s.orderNumbers),
		payments:     maps.Clone(s.payments),
		products:     maps.Clone(s.products),
		carts:        maps.Clone(s.carts),
		addresses:    maps.Clone(s.addresses),
	}
}

func (s *Store) restore(snap snapshot) {
	s.orders = snap.orders
	s.orderNumbers = snap.orderNumbers
	s.payments = snap.payments
	s.products = snap.products
	s.carts = snap.carts
	s.addresses = snap.addresses
}
