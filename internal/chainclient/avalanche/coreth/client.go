package coreth

import (
	"context"
	"fmt"

	"github.com/ava-labs/coreth/rpc"

	"github.com/ava-labs/evm-address-scanner/internal/chainclient"
)

// Dial connects to a coreth (Avalanche C-Chain) RPC endpoint.
func Dial(ctx context.Context, url string, opts ...chainclient.Option) (chainclient.Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial coreth rpc: %w", err)
	}
	return chainclient.NewRPCClient(url, c, opts...), nil
}
