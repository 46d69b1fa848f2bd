package checkpoint

import (
	"context"

	"github.com/ava-labs/evm-address-scanner/pkg/checkpointer"
	"github.com/ava-labs/evm-address-scanner/pkg/clickhouse"
	"github.com/ava-labs/evm-address-scanner/pkg/extractor"
)

var _ checkpointer.Backend = (*Backend)(nil)

// Backend is a ClickHouse-backed checkpointer.Backend for one chain.
type Backend struct {
	repo    Repository
	client  clickhouse.Client
	chainID uint64
}

// NewBackend builds a Backend over repo. Close closes client.
func NewBackend(repo Repository, client clickhouse.Client, chainID uint64) *Backend {
	return &Backend{repo: repo, client: client, chainID: chainID}
}

func (b *Backend) Initialize(ctx context.Context) error {
	return b.repo.CreateTablesIfNotExist(ctx)
}

func (b *Backend) ReadCursor(ctx context.Context) (uint64, bool, error) {
	cp, err := b.repo.ReadCheckpoint(ctx, b.chainID)
	if err != nil {
		return 0, false, err
	}
	if cp == nil {
		return 0, false, nil
	}
	return cp.Cursor, true, nil
}

func (b *Backend) LoadAddresses(ctx context.Context, fn func(string) error) error {
	return b.repo.StreamAddresses(ctx, b.chainID, fn)
}

// Write inserts the addresses before the cursor row.
func (b *Backend) Write(ctx context.Context, cursor uint64, addrs []extractor.Address) error {
	if err := b.repo.InsertAddresses(ctx, b.chainID, cursor, addrs); err != nil {
		return err
	}
	return b.repo.WriteCheckpoint(ctx, &Checkpoint{
		ChainID:   b.chainID,
		Cursor:    cursor,
		Timestamp: nowMillis(),
	})
}

func (b *Backend) Delete(ctx context.Context) error {
	return b.repo.DeleteChain(ctx, b.chainID)
}

func (b *Backend) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}
