package endpointpool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ava-labs/evm-address-scanner/internal/chainclient"
	"github.com/ava-labs/evm-address-scanner/internal/chainclient/ethereum"
	"github.com/ava-labs/evm-address-scanner/internal/chainclient/testutils"
	"github.com/ava-labs/evm-address-scanner/internal/types"
)

type clientStub struct {
	url     string
	head    uint64
	headErr error
	closed  bool
}

func (c *clientStub) URL() string { return c.url }

func (c *clientStub) BlockNumber(_ context.Context) (uint64, error) {
	return c.head, c.headErr
}

func (c *clientStub) BlockByNumber(_ context.Context, n uint64) (*types.Block, error) {
	return &types.Block{Number: n}, nil
}

func (c *clientStub) Close() { c.closed = true }

var _ chainclient.Client = (*clientStub)(nil)

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	log := zap.NewNop().Sugar()

	_, err := New(t.Context(), nil, []chainclient.Client{&clientStub{}})
	require.ErrorContains(t, err, "invalid logger")

	_, err = New(t.Context(), log, nil)
	require.ErrorIs(t, err, ErrNoEndpoints)

	_, err = New(t.Context(), log, []chainclient.Client{nil})
	require.ErrorContains(t, err, "invalid endpoint")
}

func TestNew_UnreachableEndpointIsFatal(t *testing.T) {
	t.Parallel()
	dialErr := errors.New("connection refused")
	endpoints := []chainclient.Client{
		&clientStub{url: "a", head: 10},
		&clientStub{url: "b", headErr: dialErr},
		&clientStub{url: "c", head: 10},
	}

	p, err := New(t.Context(), zap.NewNop().Sugar(), endpoints)
	require.Nil(t, p)
	require.ErrorIs(t, err, ErrUnreachable)
	require.ErrorIs(t, err, dialErr)

	var connErr *ConnectivityError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, "b", connErr.URL)
}

func TestNext_RoundRobin(t *testing.T) {
	t.Parallel()
	endpoints := []chainclient.Client{
		&clientStub{url: "a"},
		&clientStub{url: "b"},
		&clientStub{url: "c"},
	}
	p, err := New(t.Context(), zap.NewNop().Sugar(), endpoints)
	require.NoError(t, err)
	require.Equal(t, 3, p.Len())

	var got []string
	for range 7 {
		got = append(got, p.Next().URL())
	}
	require.Equal(t, []string{"a", "b", "c", "a", "b", "c", "a"}, got)
}

func TestBlockNumber_AdvancesRotation(t *testing.T) {
	t.Parallel()
	endpoints := []chainclient.Client{
		&clientStub{url: "a", head: 100},
		&clientStub{url: "b", head: 101},
	}
	p, err := New(t.Context(), zap.NewNop().Sugar(), endpoints)
	require.NoError(t, err)

	head, err := p.BlockNumber(t.Context())
	require.NoError(t, err)
	require.Equal(t, uint64(100), head)
	require.Equal(t, "b", p.Next().URL())
}

func TestBlockNumber_LogsFailingEndpoint(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.InfoLevel)
	a := &clientStub{url: "a", head: 100}
	p, err := New(t.Context(), zap.New(core).Sugar(), []chainclient.Client{a})
	require.NoError(t, err)

	headErr := errors.New("rate limited")
	a.headErr = headErr
	_, err = p.BlockNumber(t.Context())
	require.ErrorIs(t, err, headErr)

	failures := logs.FilterMessage("failed to query chain head").AllUntimed()
	require.Len(t, failures, 1)
	require.Equal(t, zapcore.WarnLevel, failures[0].Level)
	require.Equal(t, "a", failures[0].ContextMap()["url"])
}

func TestClose_ClosesAllEndpoints(t *testing.T) {
	t.Parallel()
	a, b := &clientStub{url: "a"}, &clientStub{url: "b"}
	p, err := New(t.Context(), zap.NewNop().Sugar(), []chainclient.Client{a, b})
	require.NoError(t, err)

	p.Close()
	require.True(t, a.closed)
	require.True(t, b.closed)
}

func TestDial_OverHTTP(t *testing.T) {
	t.Parallel()
	n1 := testutils.NewNode(t, 500)
	n2 := testutils.NewNode(t, 500)

	p, err := Dial(t.Context(), zap.NewNop().Sugar(), ethereum.Dial, []string{n1.URL, n2.URL}, nil)
	require.NoError(t, err)
	defer p.Close()

	require.Equal(t, 2, p.Len())
	require.Equal(t, 1, n1.Calls("eth_blockNumber"))
	require.Equal(t, 1, n2.Calls("eth_blockNumber"))
}

func TestDial_UnreachableURL(t *testing.T) {
	t.Parallel()
	node := testutils.NewNode(t, 500)
	dead := testutils.NewNode(t, 500)
	dead.Close()

	_, err := Dial(t.Context(), zap.NewNop().Sugar(), ethereum.Dial, []string{node.URL, dead.URL}, nil)
	require.ErrorIs(t, err, ErrUnreachable)
}
