package inscriber

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// RevealSigningRequest carries everything a signer needs to produce the
// schnorr signature for a reveal input without chain access: the unsigned
// transaction (witness already holding envelope and control block around a
// zeroed signature slot) and the BIP-341 script-path digest to sign.
type RevealSigningRequest struct {
	UnsignedTx  *wire.MsgTx
	SigHash     []byte           // 32-byte tapscript sighash for input 0
	TapLeaf     txscript.TapLeaf // leaf being spent
	CommitValue uint64           // value of the commitment output
	PkScript    []byte           // scriptPubKey of the commitment output
}

// Signer is the external signing boundary. Private keys never cross into
// the pipeline; only the reveal public key does, because the envelope and
// the commitment address are derived from it.
type Signer interface {
	// RevealPubKey returns the public key whose script path locks
	// commitment outputs. Must be stable across a commit/reveal pair.
	RevealPubKey(ctx context.Context) (*btcec.PublicKey, error)

	// SignCommit signs the funding inputs of a commit packet and returns
	// the fully signed transaction as raw hex ready for broadcast.
	SignCommit(ctx context.Context, packet *psbt.Packet) (string, error)

	// SignReveal signs the reveal's single script-path input and returns
	// the signed transaction as raw hex.
	SignReveal(ctx context.Context, req *RevealSigningRequest) (string, error)
}
