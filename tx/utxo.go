package tx

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// UTXO is an unspent transaction output as seen by the selector. The
// inscription and lock flags come from whatever indexer or wallet snapshot the
// caller assembled; the selector treats them as authoritative.
type UTXO struct {
	TxID           string `json:"txid"`            // funding transaction id, big-endian hex
	Vout           uint32 `json:"vout"`            // output index
	Value          uint64 `json:"value"`           // satoshis
	ScriptPubKey   []byte `json:"script_pubkey"`   // locking script bytes
	HasInscription bool   `json:"has_inscription"` // carries an inscription, never plain spendable
	Locked         bool   `json:"locked"`          // leased by another in-flight flow
}

// Outpoint renders the canonical "txid:vout" form.
func (u *UTXO) Outpoint() string {
	return fmt.Sprintf("%s:%d", u.TxID, u.Vout)
}

// wireOutPoint converts the UTXO reference into a wire.OutPoint.
func (u *UTXO) wireOutPoint() (*wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(u.TxID)
	if err != nil {
		return nil, fmt.Errorf("%w: txid %q: %w", ErrInvalidParams, u.TxID, err)
	}
	return wire.NewOutPoint(hash, u.Vout), nil
}

// Spendable reports whether the UTXO may fund an ordinary payment: it must
// not carry an inscription and must not be leased elsewhere.
func (u *UTXO) Spendable() bool {
	return !u.HasInscription && !u.Locked
}

// SumValue totals the value of a UTXO set.
func SumValue(utxos []*UTXO) uint64 {
	var total uint64
	for _, u := range utxos {
		total += u.Value
	}
	return total
}
