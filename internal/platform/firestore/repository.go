package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection is a typed view over one collection. T is the persisted document shape and must
// carry firestore struct tags. Every method joins the transaction carried by ctx, if any.
type Collection[T any] struct {
	provider *Provider
	name     string
}

func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Provider returns the provider backing the collection.
func (c *Collection[T]) Provider() *Provider {
	return c.provider
}

// Get decodes the document with the given ID.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	ref, err := c.doc(ctx, id)
	if err != nil {
		return zero, err
	}

	var snap *firestore.DocumentSnapshot
	if state := txFromContext(ctx); state != nil {
		if pending, ok := state.overlay[ref.Path]; ok {
			if doc, ok := pending.(T); ok {
				return doc, nil
			}
		}
		snap, err = state.tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return zero, WrapError(c.op("get"), err)
	}
	var doc T
	if err := snap.DataTo(&doc); err != nil {
		return zero, fmt.Errorf("firestore: decode %s/%s: %w", c.name, id, err)
	}
	return doc, nil
}

// Create stores a new document and fails with a conflict when the ID is taken.
func (c *Collection[T]) Create(ctx context.Context, id string, doc T) error {
	return c.write(ctx, id, doc, true)
}

// Set upserts the document.
func (c *Collection[T]) Set(ctx context.Context, id string, doc T) error {
	return c.write(ctx, id, doc, false)
}

func (c *Collection[T]) write(ctx context.Context, id string, doc T, create bool) error {
	ref, err := c.doc(ctx, id)
	if err != nil {
		return err
	}
	if state := txFromContext(ctx); state != nil {
		state.buffer(ref, doc, create)
		return nil
	}
	if create {
		_, err = ref.Create(ctx, doc)
	} else {
		_, err = ref.Set(ctx, doc)
	}
	return WrapError(c.op("write"), err)
}

// Query runs a collection query and decodes every match.
func (c *Collection[T]) Query(ctx context.Context, build QueryBuilder) ([]T, error) {
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}

	var iter *firestore.DocumentIterator
	if state := txFromContext(ctx); state != nil {
		iter = state.tx.Documents(query)
	} else {
		iter = query.Documents(ctx)
	}
	defer iter.Stop()

	var docs []T
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		var doc T
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("firestore: decode %s/%s: %w", c.name, snap.Ref.ID, err)
		}
		docs = append(docs, doc)
	}
}

func (c *Collection[T]) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	if c.provider == nil || c.name == "" {
		return nil, errors.New("firestore: collection is not configured")
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

func (c *Collection[T]) doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("firestore: %s document id is required", c.name)
	}
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (c *Collection[T]) op(action string) string {
	return c.name + "." + action
}
