package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/malistore/api/internal/domain"
	pfirestore "github.com/malistore/api/internal/platform/firestore"
	"github.com/malistore/api/internal/platform/pagination"
	"github.com/malistore/api/internal/repositories"
)

type orderRepository struct {
	docs    *pfirestore.Collection[orderDocument]
	numbers *pfirestore.Collection[markerDocument]
}

func (r orderRepository) Insert(ctx context.Context, order domain.Order) error {
	insert := func(ctx context.Context) error {
		if err := r.docs.Create(ctx, order.ID, newOrderDocument(order)); err != nil {
			return err
		}
		return r.numbers.Create(ctx, order.OrderNumber, markerDocument{OwnerID: order.ID})
	}
	// both documents must land together
	return r.docs.Provider().RunInTx(ctx, insert)
}

// Update keeps the stored lines and order number.
func (r orderRepository) Update(ctx context.Context, order domain.Order) error {
	current, err := r.docs.Get(ctx, order.ID)
	if err != nil {
		return err
	}
	doc := newOrderDocument(order)
	doc.Lines = current.Lines
	doc.OrderNumber = current.OrderNumber
	return r.docs.Set(ctx, order.ID, doc)
}

func (r orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.docs.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(), nil
}

func (r orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	statuses := make([]string, 0, len(filter.Status))
	for _, status := range filter.Status {
		statuses = append(statuses, string(status))
	}
	return listPage(ctx, r.docs, filter.UserID, statuses, filter.Pagination,
		func(d orderDocument) domain.Order { return d.toDomain() },
		func(o domain.Order) (time.Time, string) { return o.CreatedAt, o.ID },
	)
}

// listPage runs a keyset query ordered by (createdAt, id) descending.
func listPage[D any, T any](
	ctx context.Context,
	docs *pfirestore.Collection[D],
	userID string,
	statuses []string,
	pager domain.Pagination,
	convert func(D) T,
	key pagination.KeyFunc[T],
) (domain.CursorPage[T], error) {
	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[T]{}, err
	}
	size := pagination.NormalizePageSize(pager.PageSize)

	found, err := docs.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if len(statuses) > 0 {
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy("id", firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.CursorPage[T]{}, err
	}

	page := domain.CursorPage[T]{Items: make([]T, 0, min(len(found), size))}
	for i, doc := range found {
		if i == size {
			createdAt, id := key(page.Items[size-1])
			token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: createdAt, ID: id})
			if err != nil {
				return domain.CursorPage[T]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, convert(doc))
	}
	return page, nil
}
