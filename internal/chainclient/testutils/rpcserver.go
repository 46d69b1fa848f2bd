package testutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// Tx describes a transaction served by the fake node. An empty To marks a
// contract creation.
type Tx struct {
	From string
	To   string
}

// Node is an in-memory JSON-RPC node serving eth_blockNumber and
// eth_getBlockByNumber over HTTP.
type Node struct {
	*httptest.Server

	mu      sync.Mutex
	head    uint64
	blocks  map[uint64][]Tx
	failing map[uint64]bool
	calls   map[string]int
}

// NewNode starts a fake node with the given head. It is closed on test cleanup.
func NewNode(t testing.TB, head uint64) *Node {
	t.Helper()
	n := &Node{
		head:    head,
		blocks:  make(map[uint64][]Tx),
		failing: make(map[uint64]bool),
		calls:   make(map[string]int),
	}
	n.Server = httptest.NewServer(http.HandlerFunc(n.handle))
	t.Cleanup(n.Server.Close)
	return n
}

// SetBlock sets the transactions of a block.
func (n *Node) SetBlock(number uint64, txs ...Tx) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blocks[number] = txs
}

// FailBlock makes every request for the block return a JSON-RPC error.
func (n *Node) FailBlock(number uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failing[number] = true
}

// Calls returns how many times a method was called.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *Node) handle(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls[req.Method]++
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "eth_blockNumber":
		resp.Result = "0x" + strconv.FormatUint(n.head, 16)
	case "eth_getBlockByNumber":
		resp.Result, resp.Error = n.block(req.Params)
	default:
		resp.Error = &rpcError{Code: -32601, Message: "method not found"}
	}
	n.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp) //nolint:errcheck // test server
}

func (n *Node) block(params []json.RawMessage) (interface{}, *rpcError) {
	if len(params) == 0 {
		return nil, &rpcError{Code: -32602, Message: "missing block number"}
	}
	var hexNumber string
	if err := json.Unmarshal(params[0], &hexNumber); err != nil || len(hexNumber) < 3 {
		return nil, &rpcError{Code: -32602, Message: "invalid block number"}
	}
	number, err := strconv.ParseUint(hexNumber[2:], 16, 64)
	if err != nil {
		return nil, &rpcError{Code: -32602, Message: "invalid block number"}
	}
	if n.failing[number] {
		return nil, &rpcError{Code: -32000, Message: "header not found"}
	}
	if number > n.head {
		return json.RawMessage("null"), nil
	}

	txs := make([]map[string]interface{}, 0, len(n.blocks[number]))
	for i, tx := range n.blocks[number] {
		entry := map[string]interface{}{
			"hash": "0x" + strconv.FormatUint(number, 16) + strconv.Itoa(i),
			"from": tx.From,
			"to":   nil,
		}
		if tx.To != "" {
			entry["to"] = tx.To
		}
		txs = append(txs, entry)
	}
	return map[string]interface{}{
		"number":       hexNumber,
		"hash":         "0x" + strconv.FormatUint(number, 16),
		"parentHash":   "0x" + strconv.FormatUint(number-1, 16),
		"transactions": txs,
	}, nil
}
