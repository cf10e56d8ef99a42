// Package store is the keyed document collection the services persist to.
// Every backend speaks the same flat-equality filter dialect and encodes
// documents with the bson tags on the entity structs.
package store

import (
	"context"
	"errors"
)

const (
	Users     = "users"
	Products  = "products"
	CartItems = "cart_items"
	Orders    = "orders"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("duplicate key")
)

// uniqueFields lists the top-level fields each backend keeps unique within a
// collection. Writes that would repeat a value fail with ErrDuplicate.
var uniqueFields = map[string][]string{
	Users: {"email"},
}

// Filter matches documents whose top-level fields equal every entry.
// An empty filter matches all documents.
type Filter map[string]any

type Collection interface {
	FindOne(ctx context.Context, filter Filter, out any) error
	FindMany(ctx context.Context, filter Filter, out any) error
	InsertOne(ctx context.Context, doc any) error
	InsertMany(ctx context.Context, docs []any) error
	UpdateOne(ctx context.Context, filter Filter, set map[string]any) (bool, error)
	DeleteOne(ctx context.Context, filter Filter) (bool, error)
	DeleteMany(ctx context.Context, filter Filter) (int64, error)
	Count(ctx context.Context, filter Filter) (int64, error)
}

type Store interface {
	Collection(name string) Collection
	Close(ctx context.Context) error
}
