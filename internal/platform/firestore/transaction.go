package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

type txKey struct{}

// txState buffers writes until the callback returns so that every read in the transaction
// happens before the first write, as Firestore requires. Buffered documents are visible to
// later Gets in the same transaction; queries only see committed data.
type txState struct {
	tx      *firestore.Transaction
	writes  []pendingWrite
	overlay map[string]any
}

type pendingWrite struct {
	ref    *firestore.DocumentRef
	data   any
	create bool
}

func (s *txState) buffer(ref *firestore.DocumentRef, data any, create bool) {
	s.writes = append(s.writes, pendingWrite{ref: ref, data: data, create: create})
	s.overlay[ref.Path] = data
}

func (s *txState) flush() error {
	for _, w := range s.writes {
		var err error
		if w.create {
			err = s.tx.Create(w.ref, w.data)
		} else {
			err = s.tx.Set(w.ref, w.data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func txFromContext(ctx context.Context) *txState {
	state, _ := ctx.Value(txKey{}).(*txState)
	return state
}

// RunInTx implements repositories.UnitOfWork. Nested calls join the outer transaction. fn may
// be invoked more than once when Firestore retries on contention.
func (p *Provider) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}

	txCtx := ctx
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > defaultTxTimeout {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}

	err = client.RunTransaction(txCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		state := &txState{tx: tx, overlay: make(map[string]any)}
		if err := fn(context.WithValue(ctx, txKey{}, state)); err != nil {
			return err
		}
		return state.flush()
	}, firestore.MaxAttempts(defaultTxAttempts))
	return WrapError("transaction", err)
}
