package inmemory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/ava-labs/evm-address-scanner/pkg/checkpointer"
	"github.com/ava-labs/evm-address-scanner/pkg/extractor"
)

var ErrInjected = errors.New("injected failure")

var _ checkpointer.Backend = (*CheckpointRepository)(nil)

// Write is one successful Write call.
type Write struct {
	Cursor    uint64
	Addresses []extractor.Address
}

// CheckpointRepository is a thread-safe in-memory checkpoint backend. Nothing
// survives the process; it backs dry runs and tests.
type CheckpointRepository struct {
	mu         sync.Mutex
	cursor     uint64
	hasCursor  bool
	addresses  []string
	writes     []Write
	failWrites int
	readErr    error
	loadErr    error
}

// NewCheckpointRepository creates an empty repository.
func NewCheckpointRepository() *CheckpointRepository {
	return &CheckpointRepository{}
}

// Seed presets the persisted cursor and raw address log.
func (r *CheckpointRepository) Seed(cursor uint64, addresses ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = cursor
	r.hasCursor = true
	r.addresses = append(r.addresses, addresses...)
}

// FailWrites makes the next n Write calls fail.
func (r *CheckpointRepository) FailWrites(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWrites = n
}

// FailReads makes ReadCursor and LoadAddresses fail with the given errors.
// A nil error leaves the corresponding call working.
func (r *CheckpointRepository) FailReads(cursorErr, addressesErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readErr = cursorErr
	r.loadErr = addressesErr
}

// Writes returns every successful write in order.
func (r *CheckpointRepository) Writes() []Write {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.writes)
}

// Addresses returns the raw persisted address log.
func (r *CheckpointRepository) Addresses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.addresses)
}

func (r *CheckpointRepository) Initialize(context.Context) error { return nil }

func (r *CheckpointRepository) ReadCursor(context.Context) (uint64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr != nil {
		return 0, false, r.readErr
	}
	return r.cursor, r.hasCursor, nil
}

func (r *CheckpointRepository) LoadAddresses(_ context.Context, fn func(string) error) error {
	r.mu.Lock()
	if r.loadErr != nil {
		r.mu.Unlock()
		return r.loadErr
	}
	addrs := slices.Clone(r.addresses)
	r.mu.Unlock()

	for _, a := range addrs {
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

func (r *CheckpointRepository) Write(_ context.Context, cursor uint64, addrs []extractor.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites > 0 {
		r.failWrites--
		return ErrInjected
	}
	for _, a := range addrs {
		r.addresses = append(r.addresses, string(a))
	}
	r.cursor = cursor
	r.hasCursor = true
	r.writes = append(r.writes, Write{Cursor: cursor, Addresses: slices.Clone(addrs)})
	return nil
}

func (r *CheckpointRepository) Delete(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = 0
	r.hasCursor = false
	r.addresses = nil
	r.writes = nil
	return nil
}

func (r *CheckpointRepository) Close() error { return nil }
