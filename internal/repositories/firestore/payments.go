package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/malistore/api/internal/domain"
	pfirestore "github.com/malistore/api/internal/platform/firestore"
	"github.com/malistore/api/internal/repositories"
)

type paymentRepository struct {
	docs *pfirestore.Collection[paymentDocument]
	refs *pfirestore.Collection[markerDocument]
}

// Insert stores the payment and reserves its provider references.
func (r paymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	return r.docs.Provider().RunInTx(ctx, func(ctx context.Context) error {
		if err := r.reserveRefs(ctx, domain.Payment{}, payment); err != nil {
			return err
		}
		return r.docs.Create(ctx, payment.ID, newPaymentDocument(payment))
	})
}

func (r paymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	return r.docs.Provider().RunInTx(ctx, func(ctx context.Context) error {
		current, err := r.docs.Get(ctx, payment.ID)
		if err != nil {
			return err
		}
		if err := r.reserveRefs(ctx, current.toDomain(), payment); err != nil {
			return err
		}
		return r.docs.Set(ctx, payment.ID, newPaymentDocument(payment))
	})
}

// reserveRefs creates a marker for every provider reference that is new on next. A reference
// already owned by another payment fails the transaction with a conflict.
func (r paymentRepository) reserveRefs(ctx context.Context, previous, next domain.Payment) error {
	refs := []struct {
		kind      string
		old, curr string
	}{
		{"session", previous.SessionID, next.SessionID},
		{"intent", previous.PaymentIntentID, next.PaymentIntentID},
		{"transaction", previous.TransactionID, next.TransactionID},
	}
	for _, ref := range refs {
		if ref.curr == "" || ref.curr == ref.old {
			continue
		}
		if err := r.refs.Create(ctx, ref.kind+":"+ref.curr, markerDocument{OwnerID: next.ID}); err != nil {
			return err
		}
	}
	return nil
}

func (r paymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	doc, err := r.docs.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	return doc.toDomain(), nil
}

func (r paymentRepository) FindBySessionID(ctx context.Context, sessionID string) (domain.Payment, error) {
	return r.findBy(ctx, "sessionId", sessionID)
}

func (r paymentRepository) FindByIntentID(ctx context.Context, intentID string) (domain.Payment, error) {
	return r.findBy(ctx, "paymentIntentId", intentID)
}

func (r paymentRepository) findBy(ctx context.Context, field, value string) (domain.Payment, error) {
	if value == "" {
		return domain.Payment{}, pfirestore.NotFound("payments.find", "payment with empty %s", field)
	}
	docs, err := r.docs.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value).Limit(1)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if len(docs) == 0 {
		return domain.Payment{}, pfirestore.NotFound("payments.find", "payment with %s %s not found", field, value)
	}
	return docs[0].toDomain(), nil
}

func (r paymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	docs, err := r.docs.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("createdAt", firestore.Desc).OrderBy("id", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	payments := make([]domain.Payment, 0, len(docs))
	for _, doc := range docs {
		payments = append(payments, doc.toDomain())
	}
	return payments, nil
}

func (r paymentRepository) List(ctx context.Context, filter repositories.PaymentListFilter) (domain.CursorPage[domain.Payment], error) {
	statuses := make([]string, 0, len(filter.Status))
	for _, status := range filter.Status {
		statuses = append(statuses, string(status))
	}
	return listPage(ctx, r.docs, filter.UserID, statuses, filter.Pagination,
		func(d paymentDocument) domain.Payment { return d.toDomain() },
		func(p domain.Payment) (time.Time, string) { return p.CreatedAt, p.ID },
	)
}
