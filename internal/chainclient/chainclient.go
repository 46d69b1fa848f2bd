package chainclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/libevm/common/hexutil"

	"github.com/ava-labs/evm-address-scanner/internal/types"
	"github.com/ava-labs/evm-address-scanner/pkg/metrics"
)

const (
	methodBlockNumber   = "eth_blockNumber"
	methodBlockByNumber = "eth_getBlockByNumber"
)

// ErrBlockNotFound is returned when the node answers eth_getBlockByNumber with null.
var ErrBlockNotFound = errors.New("block not found")

// Client is a single RPC endpoint able to serve block data.
type Client interface {
	// URL identifies the endpoint in logs.
	URL() string
	// BlockNumber returns the current chain head.
	BlockNumber(ctx context.Context) (uint64, error)
	// BlockByNumber returns the block with full transaction bodies.
	BlockByNumber(ctx context.Context, number uint64) (*types.Block, error)
	// Close releases the underlying connection.
	Close()
}

// Dialer connects to an endpoint URL.
type Dialer func(ctx context.Context, url string, opts ...Option) (Client, error)

// Caller is the JSON-RPC surface shared by the go-ethereum and coreth rpc clients.
type Caller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	Close()
}

// RPCClient implements Client on top of a raw JSON-RPC Caller.
type RPCClient struct {
	url     string
	caller  Caller
	metrics *metrics.Metrics // nil if metrics disabled
}

var _ Client = (*RPCClient)(nil)

// Option configures the RPCClient.
type Option func(*RPCClient)

// WithMetrics enables metrics collection for the client.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *RPCClient) {
		c.metrics = m
	}
}

// NewRPCClient wraps an already dialed caller.
func NewRPCClient(url string, caller Caller, opts ...Option) *RPCClient {
	c := &RPCClient{
		url:    url,
		caller: caller,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RPCClient) URL() string {
	return c.url
}

func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	var head hexutil.Uint64
	if err := c.call(ctx, &head, methodBlockNumber); err != nil {
		return 0, fmt.Errorf("get block number: %w", err)
	}
	return uint64(head), nil
}

func (c *RPCClient) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	var raw json.RawMessage
	if err := c.call(ctx, &raw, methodBlockByNumber, hexutil.EncodeUint64(number), true); err != nil {
		return nil, fmt.Errorf("get block by number %d: %w", number, err)
	}
	block, err := decodeBlock(raw)
	if err != nil {
		return nil, fmt.Errorf("decode block %d: %w", number, err)
	}
	return block, nil
}

// Close closes the underlying RPC client.
func (c *RPCClient) Close() {
	c.caller.Close()
}

func (c *RPCClient) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	start := time.Now()

	c.metrics.IncRPCInFlight()
	defer c.metrics.DecRPCInFlight()

	err := c.caller.CallContext(ctx, result, method, args...)
	c.metrics.RecordRPCCall(method, err, time.Since(start).Seconds())
	return err
}
