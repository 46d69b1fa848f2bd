package ethereum

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ava-labs/evm-address-scanner/internal/chainclient"
)

// Dial connects to a go-ethereum compatible RPC endpoint.
func Dial(ctx context.Context, url string, opts ...chainclient.Option) (chainclient.Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial geth rpc: %w", err)
	}
	return chainclient.NewRPCClient(url, c, opts...), nil
}
