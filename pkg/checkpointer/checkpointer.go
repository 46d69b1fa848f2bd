package checkpointer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/evm-address-scanner/pkg/extractor"
)

// Backend abstracts durable storage of the scan cursor and the discovered
// address log. A backend is bound to a single chain.
type Backend interface {
	// Initialize ensures the underlying storage is ready (creates directories,
	// buckets, tables). It is idempotent.
	Initialize(ctx context.Context) error

	// ReadCursor returns the persisted cursor and whether one exists.
	ReadCursor(ctx context.Context) (cursor uint64, exists bool, err error)

	// LoadAddresses streams every persisted address to fn as stored. Values
	// may repeat and are normalized by the caller. A non-nil error from fn
	// stops the stream and is returned.
	LoadAddresses(ctx context.Context, fn func(raw string) error) error

	// Write persists the batch and then the cursor. After Write returns,
	// the stored addresses are a superset of every address seen up to the
	// stored cursor, even if Write failed partway through.
	Write(ctx context.Context, cursor uint64, addrs []extractor.Address) error

	// Delete removes the persisted cursor and addresses.
	Delete(ctx context.Context) error

	Close() error
}

// HeadSource supplies the current chain head when no cursor is persisted.
type HeadSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Publisher receives every successfully flushed batch.
type Publisher interface {
	PublishBatch(ctx context.Context, cursor uint64, addrs []extractor.Address) error
}

var (
	ErrInvalidBackend   = errors.New("invalid backend: must not be nil")
	ErrInvalidLogger    = errors.New("invalid logger: must not be nil")
	ErrNotLoaded        = errors.New("checkpoint store not loaded")
	ErrCursorRegression = errors.New("cursor must not increase between flushes")
)

// PersistenceError wraps a backend failure.
type PersistenceError struct {
	Op     string
	Cursor uint64
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("checkpoint %s at cursor %d: %v", e.Op, e.Cursor, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
