package chainclient

import (
	"bytes"
	"encoding/json"

	"github.com/ava-labs/libevm/common/hexutil"

	"github.com/ava-labs/evm-address-scanner/internal/types"
)

type rpcBlock struct {
	Number       hexutil.Uint64    `json:"number"`
	Hash         string            `json:"hash"`
	ParentHash   string            `json:"parentHash"`
	Transactions []*rpcTransaction `json:"transactions"`
}

type rpcTransaction struct {
	Hash string  `json:"hash"`
	From string  `json:"from"`
	To   *string `json:"to"`
}

func decodeBlock(raw json.RawMessage) (*types.Block, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrBlockNotFound
	}
	var body rpcBlock
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return mapToInternalBlock(&body), nil
}

func mapToInternalBlock(block *rpcBlock) *types.Block {
	txs := make([]*types.Transaction, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		if tx == nil {
			continue
		}
		txs = append(txs, &types.Transaction{
			Hash: tx.Hash,
			From: tx.From,
			To:   tx.To,
		})
	}

	return &types.Block{
		Number:       uint64(block.Number),
		Hash:         block.Hash,
		ParentHash:   block.ParentHash,
		Transactions: txs,
	}
}
