package network

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Compile-time interface checks.
var (
	_ BlockchainService = (*RPCClient)(nil)
	_ FeeOracle         = (*RPCClient)(nil)
)

// bitcoind RPC error codes the pipeline cares about.
const (
	rpcErrTxNotFound = -5 // no such mempool or chain transaction
)

// btcToSat converts a BTC float64 amount (as returned by the RPC node) to
// satoshis. It uses math.Round to avoid floating-point truncation issues.
func btcToSat(btc float64) uint64 {
	return uint64(math.Round(btc * 1e8))
}

// listUnspentResult maps the JSON fields returned by the listunspent call.
type listUnspentResult struct {
	TxID          string  `json:"txid"`
	Vout          uint32  `json:"vout"`
	Amount        float64 `json:"amount"`
	ScriptPubKey  string  `json:"scriptPubKey"`
	Address       string  `json:"address"`
	Confirmations int64   `json:"confirmations"`
}

// ListUnspent returns all unspent transaction outputs for the given address.
// It calls `listunspent 0 9999999 ["address"]` and converts BTC amounts to
// satoshis.
func (c *RPCClient) ListUnspent(ctx context.Context, address string) ([]*UTXO, error) {
	params := []interface{}{0, 9999999, []string{address}}
	var results []listUnspentResult
	if err := c.Call(ctx, "listunspent", params, &results); err != nil {
		return nil, err
	}

	utxos := make([]*UTXO, len(results))
	for i, r := range results {
		utxos[i] = &UTXO{
			TxID:          r.TxID,
			Vout:          r.Vout,
			Value:         btcToSat(r.Amount),
			ScriptPubKey:  r.ScriptPubKey,
			Address:       r.Address,
			Confirmations: r.Confirmations,
		}
	}
	return utxos, nil
}

// gettxoutResult maps the JSON fields returned by the gettxout call. The
// pointer type allows detecting JSON null (spent output) vs present result.
type gettxoutResult struct {
	Value         float64 `json:"value"`
	Confirmations int64   `json:"confirmations"`
	ScriptPubKey  struct {
		Hex     string `json:"hex"`
		Address string `json:"address"`
	} `json:"scriptPubKey"`
}

// GetUTXO returns a specific unspent transaction output by txid and output
// index. It calls `gettxout "txid" vout`. When the output is spent, gettxout
// returns JSON null, which is detected and returned as ErrTxNotFound.
func (c *RPCClient) GetUTXO(ctx context.Context, txid string, vout uint32) (*UTXO, error) {
	params := []interface{}{txid, vout}
	var result *gettxoutResult
	if err := c.Call(ctx, "gettxout", params, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("%w: output %s:%d is spent", ErrTxNotFound, txid, vout)
	}

	return &UTXO{
		TxID:          txid,
		Vout:          vout,
		Value:         btcToSat(result.Value),
		ScriptPubKey:  result.ScriptPubKey.Hex,
		Address:       result.ScriptPubKey.Address,
		Confirmations: result.Confirmations,
	}, nil
}

// BroadcastTx submits a raw transaction hex to the network and returns the
// txid. It calls `sendrawtransaction "hex"`. Node rejections are wrapped
// with ErrBroadcastRejected while preserving the *RPCError cause, so callers
// can classify the rejection by code and message.
func (c *RPCClient) BroadcastTx(ctx context.Context, rawTxHex string) (string, error) {
	params := []interface{}{rawTxHex}
	var txid string
	if err := c.Call(ctx, "sendrawtransaction", params, &txid); err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return "", fmt.Errorf("%w: %w", ErrBroadcastRejected, rpcErr)
		}
		return "", err
	}
	return txid, nil
}

// GetRawTx returns the raw transaction bytes for the given txid. It calls
// `getrawtransaction "txid" false` and decodes the hex to bytes.
func (c *RPCClient) GetRawTx(ctx context.Context, txid string) ([]byte, error) {
	params := []interface{}{txid, false}
	var rawHex string
	if err := c.Call(ctx, "getrawtransaction", params, &rawHex); err != nil {
		return nil, mapNotFound(err)
	}
	data, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tx hex: %v", ErrInvalidResponse, err)
	}
	return data, nil
}

// verboseTxResult maps the JSON fields from getrawtransaction verbose=true.
// Confirmations is absent for mempool transactions.
type verboseTxResult struct {
	Confirmations int64  `json:"confirmations"`
	BlockHash     string `json:"blockhash"`
	BlockHeight   uint64 `json:"blockheight"`
}

// GetTxStatus returns the confirmation status of a transaction. It calls
// `getrawtransaction "txid" true`. A transaction the node has never seen
// yields ErrTxNotFound; a known transaction with zero confirmations is
// reported as in-mempool.
func (c *RPCClient) GetTxStatus(ctx context.Context, txid string) (*TxStatus, error) {
	params := []interface{}{txid, true}
	var result verboseTxResult
	if err := c.Call(ctx, "getrawtransaction", params, &result); err != nil {
		return nil, mapNotFound(err)
	}

	status := &TxStatus{
		TxID:          txid,
		Confirmed:     result.Confirmations > 0,
		Confirmations: result.Confirmations,
		BlockHash:     result.BlockHash,
		BlockHeight:   result.BlockHeight,
		InMempool:     result.Confirmations == 0,
	}
	if status.Confirmed && status.BlockHeight == 0 && status.BlockHash != "" {
		// Older nodes omit blockheight; derive it from the tip when needed.
		if tip, err := c.GetBestBlockHeight(ctx); err == nil && tip+1 >= uint64(result.Confirmations) {
			status.BlockHeight = tip + 1 - uint64(result.Confirmations)
		}
	}
	return status, nil
}

// GetBestBlockHeight returns the height of the current chain tip via
// `getblockcount`.
func (c *RPCClient) GetBestBlockHeight(ctx context.Context) (uint64, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, "getblockcount", nil, &raw); err != nil {
		return 0, err
	}
	// getblockcount returns an integer, but JSON numbers are float64.
	var height float64
	if err := json.Unmarshal(raw, &height); err != nil {
		return 0, fmt.Errorf("%w: invalid block height: %v", ErrInvalidResponse, err)
	}
	return uint64(height), nil
}

// estimateSmartFeeResult maps the JSON fields of estimatesmartfee. FeeRate
// is in BTC per kilo-vbyte and absent when the node has no estimate.
type estimateSmartFeeResult struct {
	FeeRate *float64 `json:"feerate"`
	Errors  []string `json:"errors"`
	Blocks  int      `json:"blocks"`
}

// EstimateFeeRate returns a sat/vbyte rate targeting confirmation within
// targetBlocks blocks via `estimatesmartfee`. Nodes without enough fee data
// (fresh regtest nodes in particular) yield ErrFeeUnavailable.
func (c *RPCClient) EstimateFeeRate(ctx context.Context, targetBlocks int) (float64, error) {
	if targetBlocks < 1 {
		targetBlocks = 1
	}
	var result estimateSmartFeeResult
	if err := c.Call(ctx, "estimatesmartfee", []interface{}{targetBlocks}, &result); err != nil {
		return 0, err
	}
	if result.FeeRate == nil || *result.FeeRate <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrFeeUnavailable, result.Errors)
	}
	// BTC/kvB to sat/vB.
	return *result.FeeRate * 1e8 / 1000, nil
}

// mapNotFound folds bitcoind's "no such transaction" RPC error into
// ErrTxNotFound so callers need not know the code table.
func mapNotFound(err error) error {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == rpcErrTxNotFound {
		return fmt.Errorf("%w: %s", ErrTxNotFound, rpcErr.Message)
	}
	return err
}
