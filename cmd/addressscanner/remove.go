package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/evm-address-scanner/pkg/utils"
)

func remove(c *cli.Context) error {
	ctx := c.Context

	sugar, err := utils.NewSugaredLogger(c.Bool("verbose"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	cfg, err := buildBackendConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	backend, err := openBackend(ctx, cfg, sugar)
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := backend.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	sugar.Infow("checkpoint successfully removed", "backend", cfg.Kind, "evmChainID", cfg.EVMChainID)
	return nil
}
