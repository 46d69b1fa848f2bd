package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/evm-address-scanner/pkg/clickhouse"
	"github.com/ava-labs/evm-address-scanner/pkg/extractor"
)

// Repository reads and writes scan checkpoints and discovered addresses in
// ClickHouse.
type Repository interface {
	CreateTablesIfNotExist(ctx context.Context) error
	WriteCheckpoint(ctx context.Context, checkpoint *Checkpoint) error
	// ReadCheckpoint returns nil when the chain has no checkpoint.
	ReadCheckpoint(ctx context.Context, chainID uint64) (*Checkpoint, error)
	InsertAddresses(ctx context.Context, chainID, cursor uint64, addrs []extractor.Address) error
	StreamAddresses(ctx context.Context, chainID uint64, fn func(string) error) error
	DeleteChain(ctx context.Context, chainID uint64) error
}

var _ Repository = (*repository)(nil)

type repository struct {
	client clickhouse.Client
	tables TableConfig
}

func NewRepository(client clickhouse.Client, tables TableConfig) (Repository, error) {
	if client == nil {
		return nil, errors.New("invalid clickhouse client: must not be nil")
	}
	if tables.Database == "" || tables.CheckpointsTable == "" || tables.AddressesTable == "" {
		return nil, errors.New("invalid table config: database and table names are required")
	}
	return &repository{client: client, tables: tables}, nil
}

// CreateTablesIfNotExist creates both tables. Schema:
//   - scan_checkpoints: chain_id, cursor, timestamp (ReplacingMergeTree version)
//   - scan_addresses: chain_id, address, cursor of the flush that wrote it
func (r *repository) CreateTablesIfNotExist(ctx context.Context) error {
	query := fmt.Sprintf(createCheckpointsTableQuery, r.tables.Database, r.tables.CheckpointsTable, r.tables.onCluster())
	if err := r.client.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}

	query = fmt.Sprintf(createAddressesTableQuery, r.tables.Database, r.tables.AddressesTable, r.tables.onCluster())
	if err := r.client.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create addresses table: %w", err)
	}
	return nil
}

func (r *repository) WriteCheckpoint(ctx context.Context, checkpoint *Checkpoint) error {
	query := fmt.Sprintf(writeCheckpointQuery, r.tables.Database, r.tables.CheckpointsTable)
	err := r.client.Conn().Exec(ctx, query, checkpoint.ChainID, checkpoint.Cursor, checkpoint.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func (r *repository) ReadCheckpoint(ctx context.Context, chainID uint64) (*Checkpoint, error) {
	var checkpoint Checkpoint
	query := fmt.Sprintf(readCheckpointQuery, r.tables.Database, r.tables.CheckpointsTable)
	err := r.client.Conn().
		QueryRow(ctx, query, chainID).
		Scan(&checkpoint.ChainID, &checkpoint.Cursor, &checkpoint.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return &checkpoint, nil
}

func (r *repository) InsertAddresses(ctx context.Context, chainID, cursor uint64, addrs []extractor.Address) error {
	if len(addrs) == 0 {
		return nil
	}

	query := fmt.Sprintf(insertAddressesQuery, r.tables.Database, r.tables.AddressesTable)
	batch, err := r.client.Conn().PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare address batch: %w", err)
	}
	for _, a := range addrs {
		if err := batch.Append(chainID, string(a), cursor); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append address %s: %w", a, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send address batch: %w", err)
	}
	return nil
}

func (r *repository) StreamAddresses(ctx context.Context, chainID uint64, fn func(string) error) error {
	query := fmt.Sprintf(selectAddressesQuery, r.tables.Database, r.tables.AddressesTable)
	rows, err := r.client.Conn().Query(ctx, query, chainID)
	if err != nil {
		return fmt.Errorf("failed to query addresses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return fmt.Errorf("failed to scan address: %w", err)
		}
		if err := fn(addr); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *repository) DeleteChain(ctx context.Context, chainID uint64) error {
	for _, table := range []string{r.tables.CheckpointsTable, r.tables.AddressesTable} {
		query := fmt.Sprintf(deleteChainQuery, r.tables.Database, table, r.tables.onCluster())
		if err := r.client.Conn().Exec(ctx, query, chainID); err != nil {
			return fmt.Errorf("failed to delete rows from %s: %w", table, err)
		}
	}
	return nil
}

func nowMillis() int64 { return time.Now().UnixMilli() }
