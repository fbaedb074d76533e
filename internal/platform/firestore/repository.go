package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document represents a strongly typed Firestore document with metadata timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository provides typed helpers wrapping Firestore collection access.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
}

// NewBaseRepository constructs a BaseRepository bound to a collection.
func NewBaseRepository[T any](provider *Provider, collection string) *BaseRepository[T] {
	return &BaseRepository[T]{
		provider:   provider,
		collection: strings.TrimSpace(collection),
	}
}

// Set upserts the given value under the provided document ID.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T, opts ...firestore.SetOption) error {
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Set(ctx, value, opts...); err != nil {
		return WrapError(r.op("set"), err)
	}
	return nil
}

// Get fetches the document by ID and decodes it into the strongly typed entity.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}

	snapshot, err := doc.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}

	var entity T
	if err := snapshot.DataTo(&entity); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode document %s: %w", id, err)
	}
	return Document[T]{
		ID:         snapshot.Ref.ID,
		Data:       entity,
		CreateTime: snapshot.CreateTime,
		UpdateTime: snapshot.UpdateTime,
	}, nil
}

// Query executes a collection query and returns the decoded documents.
func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := r.CollectionRef(ctx)
	if err != nil {
		return nil, err
	}

	query := coll.Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		var entity T
		if err := snapshot.DataTo(&entity); err != nil {
			return nil, fmt.Errorf("firestore: decode document %s: %w", snapshot.Ref.ID, err)
		}
		docs = append(docs, Document[T]{
			ID:         snapshot.Ref.ID,
			Data:       entity,
			CreateTime: snapshot.CreateTime,
			UpdateTime: snapshot.UpdateTime,
		})
	}
	return docs, nil
}

// DocumentRef exposes the underlying document reference for transactional access.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := r.CollectionRef(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

// CollectionRef exposes the underlying collection reference for query composition.
func (r *BaseRepository[T]) CollectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, WrapError(r.op("collection"), errors.New("firestore: provider is nil"))
	}
	if r.collection == "" {
		return nil, WrapError(r.op("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection), nil
}

func (r *BaseRepository[T]) op(action string) string {
	name := "firestore"
	if r != nil && strings.TrimSpace(r.collection) != "" {
		name = strings.TrimSpace(r.collection)
	}
	return fmt.Sprintf("%s.%s", name, action)
}
