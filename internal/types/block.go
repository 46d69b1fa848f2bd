package types

// Block is a chain block as returned by eth_getBlockByNumber with full
// transaction bodies. Only the fields the scanner needs are kept.
type Block struct {
	Number       uint64         `json:"number"`
	Hash         string         `json:"hash"`
	ParentHash   string         `json:"parentHash"`
	Transactions []*Transaction `json:"transactions"`
}

// TxCount returns the number of transactions in the block.
func (b *Block) TxCount() int {
	if b == nil {
		return 0
	}
	return len(b.Transactions)
}
