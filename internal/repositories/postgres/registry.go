// Package postgres implements the repository registry on PostgreSQL through a pgx pool.
// Transactions travel in the context; lookups made inside one lock the rows they read.
package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/malistore/api/internal/platform/config"
	"github.com/malistore/api/internal/repositories"
)

//go:embed schema.sql
var schema string

type txKey struct{}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Registry bundles the PostgreSQL repositories behind a shared pool.
type Registry struct {
	pool *pgxpool.Pool
}

var _ repositories.Registry = (*Registry)(nil)

// Open creates the pool, verifies connectivity and optionally applies the schema.
func Open(ctx context.Context, cfg config.PostgresConfig) (*Registry, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrapError("postgres.ping", err)
	}
	registry := NewRegistry(pool)
	if cfg.ApplySchema {
		if err := registry.ApplySchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return registry, nil
}

// NewRegistry wraps an existing pool.
func NewRegistry(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

// ApplySchema creates missing tables and indexes. It is safe to run repeatedly.
func (r *Registry) ApplySchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return wrapError("postgres.schema", err)
	}
	return nil
}

func (r *Registry) Close(context.Context) error {
	r.pool.Close()
	return nil
}

func (r *Registry) Ping(ctx context.Context) error {
	return wrapError("postgres.ping", r.pool.Ping(ctx))
}

func (r *Registry) Orders() repositories.OrderRepository       { return orderRepository{r} }
func (r *Registry) Payments() repositories.PaymentRepository   { return paymentRepository{r} }
func (r *Registry) Products() repositories.ProductRepository   { return productRepository{r} }
func (r *Registry) Carts() repositories.CartRepository         { return cartRepository{r} }
func (r *Registry) Addresses() repositories.AddressRepository { return addressRepository{r} }

// RunInTx implements repositories.UnitOfWork. Nested calls join the outer transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return wrapError("postgres.begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return wrapError("postgres.commit", err)
	}
	return nil
}

// db returns the transaction carried by ctx, or the pool.
func (r *Registry) db(ctx context.Context) (querier, bool) {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx, true
	}
	return r.pool, false
}

// lockClause appends FOR UPDATE inside transactions.
func lockClause(inTx bool) string {
	if inTx {
		return " FOR UPDATE"
	}
	return ""
}

// Exec runs a statement on the transaction in ctx, or the pool. Used for seeding.
func (r *Registry) Exec(ctx context.Context, sql string, args ...any) error {
	db, _ := r.db(ctx)
	_, err := db.Exec(ctx, sql, args...)
	return wrapError("postgres.exec", err)
}
