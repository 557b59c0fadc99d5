package network

import "context"

// BlockchainService is the node-facing interface the inscription pipeline
// consumes: UTXO discovery for selection, broadcast for both phases, and
// status lookups for confirmation tracking.
type BlockchainService interface {
	// ListUnspent returns all unspent transaction outputs for the given address.
	ListUnspent(ctx context.Context, address string) ([]*UTXO, error)

	// GetUTXO returns a specific unspent transaction output by txid and output index.
	GetUTXO(ctx context.Context, txid string, vout uint32) (*UTXO, error)

	// BroadcastTx submits a raw transaction hex to the network and returns the txid.
	BroadcastTx(ctx context.Context, rawTxHex string) (string, error)

	// GetRawTx returns the raw transaction bytes for the given txid.
	GetRawTx(ctx context.Context, txid string) ([]byte, error)

	// GetTxStatus returns the confirmation status of a transaction.
	// ErrTxNotFound means the node has never seen the transaction.
	GetTxStatus(ctx context.Context, txid string) (*TxStatus, error)

	// GetBestBlockHeight returns the height of the current chain tip.
	GetBestBlockHeight(ctx context.Context) (uint64, error)

	// EstimateFeeRate returns a sat/vbyte fee rate targeting confirmation
	// within targetBlocks blocks.
	EstimateFeeRate(ctx context.Context, targetBlocks int) (float64, error)
}

// UTXO represents an unspent transaction output as reported by the node.
type UTXO struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Value         uint64 `json:"value"` // satoshis
	ScriptPubKey  string `json:"script_pubkey"`
	Address       string `json:"address"`
	Confirmations int64  `json:"confirmations"`
}

// TxStatus represents the confirmation status of a transaction. A status
// with InMempool and Confirmations both zero-valued means the transaction is
// known but unconfirmed state could not be refined further.
type TxStatus struct {
	TxID          string `json:"txid"`
	Confirmed     bool   `json:"confirmed"`
	Confirmations int64  `json:"confirmations"`
	BlockHeight   uint64 `json:"block_height,omitempty"`
	BlockHash     string `json:"block_hash,omitempty"`
	InMempool     bool   `json:"in_mempool"`
}
