// Package store holds what the document-store implementations share.
// Repositories are declared by the packages that consume them
// (regions.Repository, workload.Repository); store/sqlite and store/memory
// implement them.
package store

import (
	"context"
	"errors"
)

// Common store errors.
var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("duplicate document")
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
