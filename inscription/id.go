package inscription

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ID identifies an inscription by the reveal transaction that created it and
// the input index that carried the envelope, rendered "<txid>i<index>".
type ID struct {
	TxID  string // reveal transaction id, 64 hex chars
	Index uint32 // envelope input index within the reveal
}

// NewID builds an inscription identifier from a reveal txid and input index.
func NewID(revealTxID string, index uint32) ID {
	return ID{TxID: revealTxID, Index: index}
}

// String renders the identifier in the canonical "<txid>i<index>" form.
func (id ID) String() string {
	return fmt.Sprintf("%si%d", id.TxID, id.Index)
}

// ParseID parses "<txid>i<index>" back into an ID. The txid must be a valid
// 64-character hex hash and the index a base-10 uint32.
func ParseID(s string) (ID, error) {
	sep := strings.LastIndexByte(s, 'i')
	if sep < 0 {
		return ID{}, fmt.Errorf("%w: missing separator in %q", ErrInvalidID, s)
	}
	txid, idx := s[:sep], s[sep+1:]
	if len(txid) != chainhash.MaxHashStringSize {
		return ID{}, fmt.Errorf("%w: txid %q", ErrInvalidID, txid)
	}
	if _, err := chainhash.NewHashFromStr(txid); err != nil {
		return ID{}, fmt.Errorf("%w: txid %q", ErrInvalidID, txid)
	}
	n, err := strconv.ParseUint(idx, 10, 32)
	if err != nil {
		return ID{}, fmt.Errorf("%w: index %q", ErrInvalidID, idx)
	}
	return ID{TxID: txid, Index: uint32(n)}, nil
}
