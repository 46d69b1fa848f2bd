package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ava-labs/evm-address-scanner/internal/repository/inmemory"
	"github.com/ava-labs/evm-address-scanner/pkg/checkpointer"
	"github.com/ava-labs/evm-address-scanner/pkg/checkpointer/boltstore"
	"github.com/ava-labs/evm-address-scanner/pkg/checkpointer/filestore"
	"github.com/ava-labs/evm-address-scanner/pkg/clickhouse"
	"github.com/ava-labs/evm-address-scanner/pkg/data/clickhouse/checkpoint"
)

// openBackend returns the configured checkpoint backend. The caller owns it
// and must Close it.
func openBackend(ctx context.Context, cfg BackendConfig, sugar *zap.SugaredLogger) (checkpointer.Backend, error) {
	switch cfg.Kind {
	case backendFile:
		store, err := filestore.New(cfg.CursorFile, cfg.AddressFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create file backend: %w", err)
		}
		return store, nil
	case backendBolt:
		store, err := boltstore.New(cfg.BoltPath, cfg.BoltLockTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create bolt backend: %w", err)
		}
		return store, nil
	case backendMemory:
		sugar.Warn("memory backend selected, progress will not survive a restart")
		return inmemory.NewCheckpointRepository(), nil
	case backendClickHouse:
		chClient, err := clickhouse.New(ctx, cfg.ClickHouse, sugar)
		if err != nil {
			return nil, fmt.Errorf("failed to create ClickHouse client: %w", err)
		}
		sugar.Info("ClickHouse client created successfully")

		repo, err := checkpoint.NewRepository(chClient, cfg.Tables)
		if err != nil {
			_ = chClient.Close()
			return nil, fmt.Errorf("failed to create checkpoint repository: %w", err)
		}
		return checkpoint.NewBackend(repo, chClient, cfg.EVMChainID), nil
	default:
		return nil, fmt.Errorf("invalid checkpoint backend: %q", cfg.Kind)
	}
}
