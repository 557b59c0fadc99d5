package tx

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// CommitPacket wraps an unsigned commit transaction in a PSBT for the
// external signer, attaching each input's previous output so the signer can
// produce witness signatures without chain access. Inputs follow the order
// of selected.
func CommitPacket(unsignedTx *wire.MsgTx, selected []*UTXO) (*psbt.Packet, error) {
	if unsignedTx == nil {
		return nil, fmt.Errorf("%w: unsigned tx", ErrNilParam)
	}
	if len(unsignedTx.TxIn) != len(selected) {
		return nil, fmt.Errorf("%w: %d inputs vs %d utxos",
			ErrInvalidParams, len(unsignedTx.TxIn), len(selected))
	}

	packet, err := psbt.NewFromUnsignedTx(unsignedTx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	for i, u := range selected {
		packet.Inputs[i].WitnessUtxo = wire.NewTxOut(int64(u.Value), u.ScriptPubKey)
	}
	return packet, nil
}
