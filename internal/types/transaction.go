package types

// Transaction keeps the raw sender and recipient strings reported by the node.
// To is nil for contract-creation transactions. Values are not validated here;
// normalization happens in the extractor.
type Transaction struct {
	Hash string  `json:"hash"`
	From string  `json:"from"`
	To   *string `json:"to"`
}

// IsContractCreation reports whether the transaction has no recipient.
func (tx *Transaction) IsContractCreation() bool {
	return tx.To == nil
}
