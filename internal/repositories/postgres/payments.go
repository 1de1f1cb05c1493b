package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/platform/pagination"
	"github.com/malistore/api/internal/repositories"
)

const paymentColumns = `id, order_id, user_id, provider, status, amount::text, currency, method, description,
	COALESCE(session_id, ''), COALESCE(payment_intent_id, ''), COALESCE(transaction_id, ''), failure_reason,
	webhook_received_at, created_at, updated_at`

type paymentRepository struct {
	r *Registry
}

// Provider references are unique when present; empty strings are stored as NULL.
func (p paymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	db, _ := p.r.db(ctx)
	_, err := db.Exec(ctx, `
		INSERT INTO payments (id, order_id, user_id, provider, status, amount, currency, method, description,
			session_id, payment_intent_id, transaction_id, failure_reason, webhook_received_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''),
			$13, $14, $15, $16)`,
		payment.ID, payment.OrderID, payment.UserID, payment.Provider, string(payment.Status),
		payment.Amount.String(), payment.Currency, string(payment.Method), payment.Description,
		payment.SessionID, payment.PaymentIntentID, payment.TransactionID, payment.FailureReason,
		payment.WebhookReceivedAt, payment.CreatedAt.UTC(), payment.UpdatedAt.UTC())
	return wrapError("payments.insert", err)
}

func (p paymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	db, _ := p.r.db(ctx)
	tag, err := db.Exec(ctx, `
		UPDATE payments SET status = $2, session_id = NULLIF($3, ''), payment_intent_id = NULLIF($4, ''),
			transaction_id = NULLIF($5, ''), failure_reason = $6, webhook_received_at = $7, updated_at = $8
		WHERE id = $1`,
		payment.ID, string(payment.Status), payment.SessionID, payment.PaymentIntentID, payment.TransactionID,
		payment.FailureReason, payment.WebhookReceivedAt, payment.UpdatedAt.UTC())
	if err != nil {
		return wrapError("payments.update", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFound("payments.update", "payment %s not found", payment.ID)
	}
	return nil
}

func (p paymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	return p.findOne(ctx, "payments.get", "id", paymentID)
}

func (p paymentRepository) FindBySessionID(ctx context.Context, sessionID string) (domain.Payment, error) {
	return p.findOne(ctx, "payments.get_by_session", "session_id", sessionID)
}

func (p paymentRepository) FindByIntentID(ctx context.Context, intentID string) (domain.Payment, error) {
	return p.findOne(ctx, "payments.get_by_intent", "payment_intent_id", intentID)
}

// findOne locks the payment row inside transactions. column is one of a fixed set of names.
func (p paymentRepository) findOne(ctx context.Context, op, column, value string) (domain.Payment, error) {
	if value == "" {
		return domain.Payment{}, repositories.NewNotFound(op, "empty %s", column)
	}
	db, inTx := p.r.db(ctx)
	payment, err := scanPayment(db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE `+column+` = $1`+lockClause(inTx), value))
	if err != nil {
		return domain.Payment{}, wrapError(op, err)
	}
	return payment, nil
}

func (p paymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	db, _ := p.r.db(ctx)
	rows, err := db.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1
		ORDER BY created_at DESC, id DESC`, orderID)
	if err != nil {
		return nil, wrapError("payments.list_by_order", err)
	}
	payments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Payment, error) {
		return scanPayment(row)
	})
	return payments, wrapError("payments.list_by_order", err)
}

func (p paymentRepository) List(ctx context.Context, filter repositories.PaymentListFilter) (domain.CursorPage[domain.Payment], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Payment]{}, err
	}
	size := pagination.NormalizePageSize(filter.Pagination.PageSize)
	statuses := make([]string, 0, len(filter.Status))
	for _, status := range filter.Status {
		statuses = append(statuses, string(status))
	}

	db, _ := p.r.db(ctx)
	rows, err := db.Query(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE ($1 = '' OR user_id = $1)
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		  AND ($3::text = '' OR (created_at, id) < ($4, $3))
		ORDER BY created_at DESC, id DESC
		LIMIT $5`,
		filter.UserID, statuses, cursor.ID, cursor.CreatedAt, size+1)
	if err != nil {
		return domain.CursorPage[domain.Payment]{}, wrapError("payments.list", err)
	}
	payments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Payment, error) {
		return scanPayment(row)
	})
	if err != nil {
		return domain.CursorPage[domain.Payment]{}, wrapError("payments.list", err)
	}
	return keysetPage(payments, size, func(p domain.Payment) (time.Time, string) { return p.CreatedAt, p.ID })
}

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var (
		payment                domain.Payment
		status, amount, method string
	)
	err := row.Scan(&payment.ID, &payment.OrderID, &payment.UserID, &payment.Provider, &status, &amount,
		&payment.Currency, &method, &payment.Description, &payment.SessionID, &payment.PaymentIntentID,
		&payment.TransactionID, &payment.FailureReason, &payment.WebhookReceivedAt, &payment.CreatedAt,
		&payment.UpdatedAt)
	if err != nil {
		return domain.Payment{}, err
	}
	payment.Status = domain.PaymentStatus(status)
	payment.Method = domain.PaymentMethod(method)
	if payment.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Payment{}, fmt.Errorf("payment %s amount: %w", payment.ID, err)
	}
	if payment.WebhookReceivedAt != nil {
		utc := payment.WebhookReceivedAt.UTC()
		payment.WebhookReceivedAt = &utc
	}
	payment.CreatedAt = payment.CreatedAt.UTC()
	payment.UpdatedAt = payment.UpdatedAt.UTC()
	return payment, nil
}
