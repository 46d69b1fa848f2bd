// Package extractor pulls the sender and recipient addresses out of a block.
package extractor

import (
	"strings"

	"github.com/ava-labs/libevm/common"

	"github.com/ava-labs/evm-address-scanner/internal/types"
)

// Address is a normalized account address: "0x" followed by 40 lower-case
// hex digits.
type Address string

// Normalize returns the canonical form of raw. Both "0x"-prefixed and bare
// 40-digit hex strings are accepted in any letter case. ok is false for
// anything else.
func Normalize(raw string) (Address, bool) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return "", false
	}
	return Address(strings.ToLower(common.HexToAddress(raw).Hex())), true
}

// Extract returns the distinct addresses referenced by the block's
// transactions in first-seen order: the sender of each transaction, then its
// recipient when present. Malformed values are skipped.
func Extract(block *types.Block) []Address {
	if block == nil {
		return nil
	}

	seen := make(map[Address]struct{}, 2*len(block.Transactions))
	out := make([]Address, 0, 2*len(block.Transactions))
	add := func(raw string) {
		addr, ok := Normalize(raw)
		if !ok {
			return
		}
		if _, dup := seen[addr]; dup {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}

	for _, tx := range block.Transactions {
		if tx == nil {
			continue
		}
		add(tx.From)
		if tx.To != nil {
			add(*tx.To)
		}
	}
	return out
}
