// Package repo defines generic repository interfaces and a Neo4j-backed
// implementation.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup by id matches nothing.
var ErrNotFound = errors.New("repo: not found")

// Reader is a generic read interface.
type Reader[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
}

// Writer is a generic idempotent write interface.
type Writer[T any] interface {
	Upsert(ctx context.Context, entity T) error
}

// ListOpts controls pagination and filtering for List operations.
type ListOpts struct {
	Offset int
	Limit  int
	// Filter restricts results to nodes whose properties equal the given values.
	Filter map[string]any
}
