package catalog

import (
	"context"
	"errors"
)

// Backend errors. Backends translate their native errors to these; the
// store never inspects backend-specific error types.
var (
	// ErrKeyNotFound is the only read error treated as "absent" by the
	// upsert's existence checks. Anything else propagates.
	ErrKeyNotFound = errors.New("catalog: key not found")
	// ErrConflict reports a lost compare-and-swap: the key changed since
	// it was read (or already exists on Create).
	ErrConflict = errors.New("catalog: revision conflict")
)

// Entry is a raw value with the revision it was read at.
type Entry struct {
	Value    []byte
	Revision uint64
}

// KV is the minimal key-value contract the catalog store needs. Revisions
// make the read-then-write upsert safe under concurrency: Update fails with
// ErrConflict when the key moved past the given revision.
type KV interface {
	Get(ctx context.Context, key string) (Entry, error)
	// Create writes a key that must not exist yet.
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	// Update writes a key only if its current revision matches rev.
	Update(ctx context.Context, key string, value []byte, rev uint64) (uint64, error)
	// Put writes unconditionally (create-or-replace).
	Put(ctx context.Context, key string, value []byte) (uint64, error)
}
