package extractor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/evm-address-scanner/internal/types"
)

func ptr(s string) *string { return &s }

func TestNormalize(t *testing.T) {
	t.Parallel()
	const want = Address("0xabcdef0123456789abcdef0123456789abcdef01")

	tests := []struct {
		name string
		raw  string
		want Address
		ok   bool
	}{
		{name: "lower case", raw: "0xabcdef0123456789abcdef0123456789abcdef01", want: want, ok: true},
		{name: "mixed case", raw: "0xABCdef0123456789ABCDEF0123456789abcdef01", want: want, ok: true},
		{name: "upper prefix", raw: "0XABCDEF0123456789ABCDEF0123456789ABCDEF01", want: want, ok: true},
		{name: "no prefix", raw: "abcdef0123456789abcdef0123456789abcdef01", want: want, ok: true},
		{name: "surrounding whitespace", raw: " 0xabcdef0123456789abcdef0123456789abcdef01\n", want: want, ok: true},
		{name: "empty", raw: "", ok: false},
		{name: "too short", raw: "0xabc", ok: false},
		{name: "too long", raw: "0xabcdef0123456789abcdef0123456789abcdef0102", ok: false},
		{name: "non hex", raw: "0xzzcdef0123456789abcdef0123456789abcdef01", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Normalize(tt.raw)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_SenderThenRecipient(t *testing.T) {
	t.Parallel()
	block := &types.Block{
		Number: 50,
		Transactions: []*types.Transaction{
			{From: "0xAAAA000000000000000000000000000000000001", To: ptr("0xbbbb000000000000000000000000000000000002")},
			{From: "0xbbbb000000000000000000000000000000000002", To: nil},
		},
	}

	require.Equal(t, []Address{
		"0xaaaa000000000000000000000000000000000001",
		"0xbbbb000000000000000000000000000000000002",
	}, Extract(block))
}

func TestExtract_DeduplicatesAcrossCase(t *testing.T) {
	t.Parallel()
	block := &types.Block{
		Transactions: []*types.Transaction{
			{From: "0xABCDEF0123456789ABCDEF0123456789ABCDEF01", To: ptr("0xabcdef0123456789abcdef0123456789abcdef01")},
			{From: "abcdef0123456789abcdef0123456789abcdef01"},
		},
	}

	require.Equal(t, []Address{"0xabcdef0123456789abcdef0123456789abcdef01"}, Extract(block))
}

func TestExtract_SkipsMalformed(t *testing.T) {
	t.Parallel()
	block := &types.Block{
		Transactions: []*types.Transaction{
			{From: "not-an-address", To: ptr("0x0000000000000000000000000000000000000003")},
			{From: "", To: ptr("0x12")},
			nil,
		},
	}

	require.Equal(t, []Address{"0x0000000000000000000000000000000000000003"}, Extract(block))
}

func TestExtract_EmptyBlock(t *testing.T) {
	t.Parallel()
	require.Empty(t, Extract(&types.Block{Number: 1}))
	require.Nil(t, Extract(nil))
}
