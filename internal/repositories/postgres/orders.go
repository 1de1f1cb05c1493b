package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/platform/pagination"
	"github.com/malistore/api/internal/repositories"
)

const orderColumns = `id, order_number, user_id, status, total_amount::text, currency, shipping_address,
	billing_address, notes, stock_decremented_at, paid_at, shipped_at, delivered_at, cancelled_at,
	created_at, updated_at`

type orderRepository struct {
	r *Registry
}

func (o orderRepository) Insert(ctx context.Context, order domain.Order) error {
	shipping, err := marshalAddress(order.ShippingAddress)
	if err != nil {
		return err
	}
	billing, err := marshalAddress(order.BillingAddress)
	if err != nil {
		return err
	}
	return o.r.RunInTx(ctx, func(ctx context.Context) error {
		db, _ := o.r.db(ctx)
		_, err := db.Exec(ctx, `
			INSERT INTO orders (id, order_number, user_id, status, total_amount, currency, shipping_address,
				billing_address, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11)`,
			order.ID, order.OrderNumber, order.UserID, string(order.Status), order.TotalAmount.String(),
			order.Currency, shipping, billing, order.Notes, order.CreatedAt.UTC(), order.UpdatedAt.UTC())
		if err != nil {
			return wrapError("orders.insert", err)
		}

		batch := &pgx.Batch{}
		for _, line := range order.Lines {
			batch.Queue(`
				INSERT INTO order_lines (order_id, position, product_id, product_name, quantity, unit_price, total)
				VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric)`,
				order.ID, line.Position, line.ProductID, line.ProductName, line.Quantity,
				line.UnitPrice.String(), line.Total.String())
		}
		if batch.Len() == 0 {
			return nil
		}
		tx := db.(pgx.Tx)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return wrapError("orders.insert_lines", err)
		}
		return nil
	})
}

// Update persists status, timestamps and the stock marker. Lines and the order number are
// immutable.
func (o orderRepository) Update(ctx context.Context, order domain.Order) error {
	db, _ := o.r.db(ctx)
	tag, err := db.Exec(ctx, `
		UPDATE orders SET status = $2, notes = $3, stock_decremented_at = $4, paid_at = $5, shipped_at = $6,
			delivered_at = $7, cancelled_at = $8, updated_at = $9
		WHERE id = $1`,
		order.ID, string(order.Status), order.Notes, order.StockDecrementedAt, order.PaidAt, order.ShippedAt,
		order.DeliveredAt, order.CancelledAt, order.UpdatedAt.UTC())
	if err != nil {
		return wrapError("orders.update", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFound("orders.update", "order %s not found", order.ID)
	}
	return nil
}

func (o orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	db, inTx := o.r.db(ctx)
	order, err := scanOrder(db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`+lockClause(inTx), orderID))
	if err != nil {
		return domain.Order{}, wrapError("orders.get", err)
	}
	lines, err := o.lines(ctx, db, []string{orderID})
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines[orderID]
	return order, nil
}

func (o orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	size := pagination.NormalizePageSize(filter.Pagination.PageSize)
	statuses := make([]string, 0, len(filter.Status))
	for _, status := range filter.Status {
		statuses = append(statuses, string(status))
	}

	db, _ := o.r.db(ctx)
	rows, err := db.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR user_id = $1)
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		  AND ($3::text = '' OR (created_at, id) < ($4, $3))
		ORDER BY created_at DESC, id DESC
		LIMIT $5`,
		filter.UserID, statuses, cursor.ID, cursor.CreatedAt, size+1)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, wrapError("orders.list", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, wrapError("orders.list", err)
	}

	page, err := keysetPage(orders, size, func(o domain.Order) (time.Time, string) { return o.CreatedAt, o.ID })
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	ids := make([]string, 0, len(page.Items))
	for _, order := range page.Items {
		ids = append(ids, order.ID)
	}
	lines, err := o.lines(ctx, db, ids)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	for i := range page.Items {
		page.Items[i].Lines = lines[page.Items[i].ID]
	}
	return page, nil
}

func (o orderRepository) lines(ctx context.Context, db querier, orderIDs []string) (map[string][]domain.OrderLine, error) {
	result := make(map[string][]domain.OrderLine, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}
	rows, err := db.Query(ctx, `
		SELECT order_id, position, product_id, product_name, quantity, unit_price::text, total::text
		FROM order_lines WHERE order_id = ANY($1) ORDER BY order_id, position`, orderIDs)
	if err != nil {
		return nil, wrapError("orders.lines", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			line             domain.OrderLine
			unitPrice, total string
		)
		if err := rows.Scan(&line.OrderID, &line.Position, &line.ProductID, &line.ProductName, &line.Quantity, &unitPrice, &total); err != nil {
			return nil, wrapError("orders.lines", err)
		}
		if line.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, fmt.Errorf("orders.lines: unit price: %w", err)
		}
		if line.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("orders.lines: total: %w", err)
		}
		result[line.OrderID] = append(result[line.OrderID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("orders.lines", err)
	}
	return result, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		order             domain.Order
		status, total     string
		shipping, billing []byte
	)
	err := row.Scan(&order.ID, &order.OrderNumber, &order.UserID, &status, &total, &order.Currency,
		&shipping, &billing, &order.Notes, &order.StockDecrementedAt, &order.PaidAt, &order.ShippedAt,
		&order.DeliveredAt, &order.CancelledAt, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	if order.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return domain.Order{}, fmt.Errorf("order %s total: %w", order.ID, err)
	}
	if order.ShippingAddress, err = unmarshalAddress(shipping); err != nil {
		return domain.Order{}, err
	}
	if order.BillingAddress, err = unmarshalAddress(billing); err != nil {
		return domain.Order{}, err
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	for _, ts := range []**time.Time{&order.StockDecrementedAt, &order.PaidAt, &order.ShippedAt, &order.DeliveredAt, &order.CancelledAt} {
		if *ts != nil {
			utc := (*ts).UTC()
			*ts = &utc
		}
	}
	return order, nil
}

// addressJSON is the JSONB snapshot stored on orders.
type addressJSON struct {
	ID         string `json:"id,omitempty"`
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func marshalAddress(address *domain.Address) ([]byte, error) {
	if address == nil {
		return nil, nil
	}
	data, err := json.Marshal(addressJSON{
		ID:         address.ID,
		Recipient:  address.Recipient,
		Line1:      address.Line1,
		Line2:      address.Line2,
		City:       address.City,
		PostalCode: address.PostalCode,
		Country:    address.Country,
		Phone:      address.Phone,
	})
	if err != nil {
		return nil, fmt.Errorf("encode address: %w", err)
	}
	return data, nil
}

func unmarshalAddress(data []byte) (*domain.Address, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var snap addressJSON
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	return &domain.Address{
		ID:         snap.ID,
		Recipient:  snap.Recipient,
		Line1:      snap.Line1,
		Line2:      snap.Line2,
		City:       snap.City,
		PostalCode: snap.PostalCode,
		Country:    snap.Country,
		Phone:      snap.Phone,
	}, nil
}

// keysetPage trims a size+1 result set and derives the next token from the last kept item.
func keysetPage[T any](items []T, size int, key pagination.KeyFunc[T]) (domain.CursorPage[T], error) {
	if len(items) <= size {
		return domain.CursorPage[T]{Items: items}, nil
	}
	items = items[:size]
	createdAt, id := key(items[size-1])
	token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: createdAt, ID: id})
	if err != nil {
		return domain.CursorPage[T]{}, err
	}
	return domain.CursorPage[T]{Items: items, NextPageToken: token}, nil
}
