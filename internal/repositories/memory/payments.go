package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/platform/pagination"
	"github.com/malistore/api/internal/repositories"
)

type paymentRepository struct {
	store *Store
}

func (r paymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	return r.store.do(ctx, func() error {
		if _, exists := r.store.payments[payment.ID]; exists {
			return repositories.NewConflict("payments.insert", fmt.Errorf("payment %s already exists", payment.ID))
		}
		if err := r.checkUniqueRefs(payment); err != nil {
			return err
		}
		r.store.payments[payment.ID] = clonePayment(payment)
		return nil
	})
}

func (r paymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	return r.store.do(ctx, func() error {
		if _, ok := r.store.payments[payment.ID]; !ok {
			return repositories.NewNotFound("payments.update", "payment %s not found", payment.ID)
		}
		if err := r.checkUniqueRefs(payment); err != nil {
			return err
		}
		r.store.payments[payment.ID] = clonePayment(payment)
		return nil
	})
}

// checkUniqueRefs enforces global uniqueness of provider identifiers. Callers hold the lock.
func (r paymentRepository) checkUniqueRefs(payment domain.Payment) error {
	for id, existing := range r.store.payments {
		if id == payment.ID {
			continue
		}
		if payment.SessionID != "" && existing.SessionID == payment.SessionID {
			return repositories.NewConflict("payments.unique", fmt.Errorf("session id %s already recorded", payment.SessionID))
		}
		if payment.PaymentIntentID != "" && existing.PaymentIntentID == payment.PaymentIntentID {
			return repositories.NewConflict("payments.unique", fmt.Errorf("payment intent %s already recorded", payment.PaymentIntentID))
		}
		if payment.TransactionID != "" && existing.TransactionID == payment.TransactionID {
			return repositories.NewConflict("payments.unique", fmt.Errorf("transaction %s already recorded", payment.TransactionID))
		}
	}
	return nil
}

func (r paymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	return r.findOne(ctx, "payments.get", func(p domain.Payment) bool { return p.ID == paymentID }, "payment %s not found", paymentID)
}

func (r paymentRepository) FindBySessionID(ctx context.Context, sessionID string) (domain.Payment, error) {
	sessionID = strings.TrimSpace(sessionID)
	return r.findOne(ctx, "payments.get_by_session", func(p domain.Payment) bool {
		return sessionID != "" && p.SessionID == sessionID
	}, "payment with session %s not found", sessionID)
}

func (r paymentRepository) FindByIntentID(ctx context.Context, intentID string) (domain.Payment, error) {
	intentID = strings.TrimSpace(intentID)
	return r.findOne(ctx, "payments.get_by_intent", func(p domain.Payment) bool {
		return intentID != "" && p.PaymentIntentID == intentID
	}, "payment with intent %s not found", intentID)
}

func (r paymentRepository) findOne(ctx context.Context, op string, match func(domain.Payment) bool, format string, args ...any) (domain.Payment, error) {
	var found domain.Payment
	err := r.store.do(ctx, func() error {
		for _, payment := range r.store.payments {
			if match(payment) {
				found = clonePayment(payment)
				return nil
			}
		}
		return repositories.NewNotFound(op, format, args...)
	})
	return found, err
}

func (r paymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	var result []domain.Payment
	_ = r.store.do(ctx, func() error {
		for _, payment := range r.store.payments {
			if payment.OrderID == orderID {
				result = append(result, clonePayment(payment))
			}
		}
		return nil
	})
	sortNewestFirst(result, paymentKey)
	return result, nil
}

func (r paymentRepository) List(ctx context.Context, filter repositories.PaymentListFilter) (domain.CursorPage[domain.Payment], error) {
	var matched []domain.Payment
	_ = r.store.do(ctx, func() error {
		for _, payment := range r.store.payments {
			if filter.UserID != "" && payment.UserID != filter.UserID {
				continue
			}
			if len(filter.Status) > 0 && !slices.Contains(filter.Status, payment.Status) {
				continue
			}
			matched = append(matched, clonePayment(payment))
		}
		return nil
	})
	sortNewestFirst(matched, paymentKey)
	return pagination.Slice(matched, paymentKey, filter.Pagination)
}

func paymentKey(p domain.Payment) (time.Time, string) { return p.CreatedAt, p.ID }

func clonePayment(payment domain.Payment) domain.Payment {
	cloned := payment
	cloned.WebhookReceivedAt = clonePtr(payment.WebhookReceivedAt)
	return cloned
}
