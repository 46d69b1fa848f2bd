// Package endpointpool rotates block requests across a fixed set of RPC
// endpoints.
//
// Every endpoint is verified reachable when the pool is built; a pool never
// holds an endpoint that failed that check. Rotation is strictly sequential:
// each call to Next advances the index, including calls made while retrying
// the same block, so retries land on different endpoints.
package endpointpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/evm-address-scanner/internal/chainclient"
)

// DefaultCheckTimeout bounds the reachability check of a single endpoint.
const DefaultCheckTimeout = 10 * time.Second

var (
	ErrNoEndpoints = errors.New("invalid endpoints: at least one endpoint is required")
	ErrUnreachable = errors.New("endpoint unreachable")
)

// ConnectivityError reports an endpoint that failed the startup reachability check.
type ConnectivityError struct {
	URL string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("endpoint %s unreachable: %v", e.URL, e.Err)
}

func (e *ConnectivityError) Unwrap() []error {
	return []error{ErrUnreachable, e.Err}
}

// Pool hands out endpoints in round-robin order.
type Pool struct {
	endpoints []chainclient.Client
	next      atomic.Uint64
	log       *zap.SugaredLogger
}

type options struct {
	checkTimeout time.Duration
}

// Option configures the Pool.
type Option func(*options)

// WithCheckTimeout overrides the per-endpoint reachability timeout.
func WithCheckTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.checkTimeout = d
		}
	}
}

// New checks every endpoint with eth_blockNumber and returns a pool over all
// of them. The first unreachable endpoint aborts construction with a
// *ConnectivityError.
func New(ctx context.Context, log *zap.SugaredLogger, endpoints []chainclient.Client, opts ...Option) (*Pool, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	o := options{checkTimeout: DefaultCheckTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	for _, ep := range endpoints {
		if ep == nil {
			return nil, errors.New("invalid endpoint: must not be nil")
		}
		checkCtx, cancel := context.WithTimeout(ctx, o.checkTimeout)
		head, err := ep.BlockNumber(checkCtx)
		cancel()
		if err != nil {
			return nil, &ConnectivityError{URL: ep.URL(), Err: err}
		}
		log.Infow("endpoint reachable", "url", ep.URL(), "head", head)
	}

	return &Pool{
		endpoints: endpoints,
		log:       log,
	}, nil
}

// Dial connects to every URL with dial and builds a pool over the resulting
// clients. Clients dialed before a failure are closed.
func Dial(
	ctx context.Context,
	log *zap.SugaredLogger,
	dial chainclient.Dialer,
	urls []string,
	clientOpts []chainclient.Option,
	opts ...Option,
) (*Pool, error) {
	if len(urls) == 0 {
		return nil, ErrNoEndpoints
	}

	clients := make([]chainclient.Client, 0, len(urls))
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}
	for _, url := range urls {
		c, err := dial(ctx, url, clientOpts...)
		if err != nil {
			closeAll()
			return nil, &ConnectivityError{URL: url, Err: err}
		}
		clients = append(clients, c)
	}

	p, err := New(ctx, log, clients, opts...)
	if err != nil {
		closeAll()
		return nil, err
	}
	return p, nil
}

// Next returns the next endpoint and advances the rotation index.
func (p *Pool) Next() chainclient.Client {
	i := p.next.Add(1) - 1
	return p.endpoints[i%uint64(len(p.endpoints))]
}

// Len returns the number of endpoints in the pool.
func (p *Pool) Len() int {
	return len(p.endpoints)
}

// BlockNumber queries the chain head through the next endpoint.
func (p *Pool) BlockNumber(ctx context.Context) (uint64, error) {
	ep := p.Next()
	head, err := ep.BlockNumber(ctx)
	if err != nil {
		p.log.Warnw("failed to query chain head", "url", ep.URL(), "error", err)
		return 0, fmt.Errorf("query head from %s: %w", ep.URL(), err)
	}
	p.log.Infow("chain head", "url", ep.URL(), "head", head)
	return head, nil
}

// Close closes every endpoint.
func (p *Pool) Close() {
	for _, ep := range p.endpoints {
		ep.Close()
	}
}
