// Package firestore implements the repository registry on Cloud Firestore. Orders embed their
// lines; uniqueness of order numbers and provider references is enforced with marker documents
// created in the same transaction.
package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/malistore/api/internal/platform/firestore"
	"github.com/malistore/api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	orderNumbersCollection = "orderNumbers"
	paymentsCollection     = "payments"
	paymentRefsCollection  = "paymentRefs"
	productsCollection     = "products"
	cartsCollection        = "carts"
	usersCollection        = "users"
	addressesCollection    = "addresses"
)

// Registry bundles the Firestore repositories behind a shared provider.
type Registry struct {
	provider *pfirestore.Provider
	orders   orderRepository
	payments paymentRepository
	products productRepository
	carts    cartRepository
	address  addressRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the Firestore registry. The provider is closed with the registry.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	return &Registry{
		provider: provider,
		orders: orderRepository{
			docs:    pfirestore.NewCollection[orderDocument](provider, ordersCollection),
			numbers: pfirestore.NewCollection[markerDocument](provider, orderNumbersCollection),
		},
		payments: paymentRepository{
			docs: pfirestore.NewCollection[paymentDocument](provider, paymentsCollection),
			refs: pfirestore.NewCollection[markerDocument](provider, paymentRefsCollection),
		},
		products: productRepository{docs: pfirestore.NewCollection[productDocument](provider, productsCollection)},
		carts:    cartRepository{docs: pfirestore.NewCollection[cartDocument](provider, cartsCollection)},
		address:  addressRepository{provider: provider},
	}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }
func (r *Registry) Ping(ctx context.Context) error  { return r.provider.Ping(ctx) }

func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunInTx(ctx, fn)
}

func (r *Registry) Orders() repositories.OrderRepository       { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository   { return r.payments }
func (r *Registry) Products() repositories.ProductRepository   { return r.products }
func (r *Registry) Carts() repositories.CartRepository         { return r.carts }
func (r *Registry) Addresses() repositories.AddressRepository { return r.address }

// markerDocument reserves a unique value for the owning document.
type markerDocument struct {
	OwnerID string `firestore:"ownerId"`
}
