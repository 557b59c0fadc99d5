package tx

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/ordfsorg/libinscribe-go/inscription"
)

// RevealParams describes a reveal transaction build: spending the single
// commitment output of a prior commit transaction.
//
// TargetSatoshi is carried through untouched. When set, the UTXO provider
// upstream is assumed to guarantee that the commitment output carries the
// named satoshi under ordinal first-in-first-out input ordering; the builder
// relies on that guarantee and does not re-derive satoshi positions.
type RevealParams struct {
	CommitTxID  string               // txid of the commit transaction
	CommitVout  uint32               // index of the commitment output
	CommitValue uint64               // value of the commitment output, sats
	Payload     *inscription.Payload // must match the payload committed to
	RevealKey   *btcec.PublicKey     // internal key from the commit phase
	Destination btcutil.Address      // receives the inscribed satoshi
	FeeRate     float64              // sat/vbyte
}

// RevealResult is the unsigned second-phase transaction. The witness carries
// a zeroed signature placeholder for the external signer to replace; envelope
// and control block are already final.
type RevealResult struct {
	UnsignedTx      *wire.MsgTx
	Commitment      *Commitment
	Fee             uint64
	OutputValue     uint64 // destination value after fee
	InscriptionSize int    // payload content bytes
}

// RevealBuilder assembles unsigned reveal transactions.
type RevealBuilder struct {
	estimator *FeeEstimator
	params    *chaincfg.Params
}

// NewRevealBuilder returns a builder for the given network.
func NewRevealBuilder(estimator *FeeEstimator, params *chaincfg.Params) *RevealBuilder {
	if estimator == nil {
		estimator = NewFeeEstimator()
	}
	return &RevealBuilder{estimator: estimator, params: params}
}

// BuildReveal assembles the reveal: one input spending the commitment output
// via script path, witness [signature, envelope, control block], one output
// paying Destination the commitment value minus the reveal fee. Fails with
// ErrDustOutput when the remainder lands below DustLimit.
func (b *RevealBuilder) BuildReveal(p *RevealParams) (*RevealResult, error) {
	if p == nil || p.RevealKey == nil || p.Destination == nil {
		return nil, fmt.Errorf("%w: reveal params", ErrNilParam)
	}
	if err := ValidateFeeRate(p.FeeRate); err != nil {
		return nil, err
	}
	commitHash, err := chainhash.NewHashFromStr(p.CommitTxID)
	if err != nil {
		return nil, fmt.Errorf("%w: commit txid %q: %w", ErrInvalidParams, p.CommitTxID, err)
	}

	commitment, err := DeriveCommitment(p.RevealKey, p.Payload, b.params)
	if err != nil {
		return nil, err
	}

	fee, err := b.estimator.EstimateRevealFee(len(commitment.Envelope), p.FeeRate)
	if err != nil {
		return nil, err
	}
	if p.CommitValue < fee+DustLimit {
		return nil, fmt.Errorf("%w: commit value %d leaves %d after fee %d, dust limit is %d",
			ErrDustOutput, p.CommitValue, int64(p.CommitValue)-int64(fee), fee, DustLimit)
	}
	outputValue := p.CommitValue - fee

	destScript, err := txscript.PayToAddrScript(p.Destination)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScriptBuild, err)
	}

	msg := wire.NewMsgTx(wire.TxVersion)
	in := wire.NewTxIn(wire.NewOutPoint(commitHash, p.CommitVout), nil, nil)
	in.Sequence = rbfSequence
	in.Witness = wire.TxWitness{
		make([]byte, inscription.SchnorrSigLen),
		commitment.Envelope,
		commitment.ControlBlock,
	}
	msg.AddTxIn(in)
	msg.AddTxOut(wire.NewTxOut(int64(outputValue), destScript))

	return &RevealResult{
		UnsignedTx:      msg,
		Commitment:      commitment,
		Fee:             fee,
		OutputValue:     outputValue,
		InscriptionSize: p.Payload.Size(),
	}, nil
}

// RevealSigHash computes the BIP-341 script-path sighash the signer must
// commit to for the reveal input. The previous output is reconstructed from
// the commitment, so no chain lookup is needed.
func RevealSigHash(result *RevealResult, commitValue uint64) ([]byte, error) {
	if result == nil || result.UnsignedTx == nil || result.Commitment == nil {
		return nil, fmt.Errorf("%w: reveal result", ErrNilParam)
	}
	prevOut := wire.NewTxOut(int64(commitValue), result.Commitment.PkScript)
	fetcher := txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value)
	sigHashes := txscript.NewTxSigHashes(result.UnsignedTx, fetcher)

	return txscript.CalcTapscriptSignaturehash(
		sigHashes, txscript.SigHashDefault, result.UnsignedTx, 0,
		fetcher, result.Commitment.TapLeaf,
	)
}
