package tx

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/ordfsorg/libinscribe-go/inscription"
)

// Inputs signal replaceability so a stuck commit can be fee-bumped.
const rbfSequence = wire.MaxTxInSequenceNum - 2

// Commitment is the taproot script-path commitment to an inscription
// envelope: everything needed to pay into it now and spend it at reveal.
type Commitment struct {
	Envelope     []byte           // tapscript carrying the payload
	TapLeaf      txscript.TapLeaf // single leaf of the taptree
	ControlBlock []byte           // serialized script-path control block
	OutputKey    *btcec.PublicKey // tweaked taproot output key
	PkScript     []byte           // P2TR scriptPubKey paying to OutputKey
	Address      btcutil.Address  // same commitment as a bech32m address
}

// DeriveCommitment computes the taproot commitment for revealKey and payload.
// The derivation is deterministic: the same key and payload always produce
// the same address, and any payload change produces a different one.
func DeriveCommitment(revealKey *btcec.PublicKey, payload *inscription.Payload, params *chaincfg.Params) (*Commitment, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: chain params", ErrNilParam)
	}
	envelope, err := inscription.BuildEnvelope(revealKey, payload)
	if err != nil {
		return nil, err
	}

	leaf := txscript.NewBaseTapLeaf(envelope)
	tree := txscript.AssembleTaprootScriptTree(leaf)
	root := tree.RootNode.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(revealKey, root[:])

	pkScript, err := txscript.PayToTaprootScript(outputKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScriptBuild, err)
	}
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScriptBuild, err)
	}

	control := tree.LeafMerkleProofs[0].ToControlBlock(revealKey)
	controlBytes, err := control.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: control block: %w", ErrScriptBuild, err)
	}

	return &Commitment{
		Envelope:     envelope,
		TapLeaf:      leaf,
		ControlBlock: controlBytes,
		OutputKey:    outputKey,
		PkScript:     pkScript,
		Address:      addr,
	}, nil
}

// CommitParams describes a commit transaction build.
type CommitParams struct {
	Payload       *inscription.Payload // content to commit to
	RevealKey     *btcec.PublicKey     // internal key the reveal will sign with
	Selected      *SelectionResult     // funding inputs from the selector
	FeeRate       float64              // sat/vbyte, also used for the reveal estimate
	ChangeAddress btcutil.Address      // required when Selected carries change
	Postage       uint64               // value riding to the inscribed output; 0 means DustLimit
}

// CommitResult is the unsigned first-phase transaction plus the commitment
// data the reveal phase needs.
type CommitResult struct {
	UnsignedTx         *wire.MsgTx
	Commitment         *Commitment
	RevealAddress      btcutil.Address
	OutputValue        uint64 // value of the commitment output
	CommitFee          uint64
	EstimatedRevealFee uint64
	ChangeAmount       uint64
}

// CommitBuilder assembles unsigned commit transactions. Signing never
// happens here; the unsigned transaction crosses an external boundary.
type CommitBuilder struct {
	estimator *FeeEstimator
	params    *chaincfg.Params
}

// NewCommitBuilder returns a builder for the given network.
func NewCommitBuilder(estimator *FeeEstimator, params *chaincfg.Params) *CommitBuilder {
	if estimator == nil {
		estimator = NewFeeEstimator()
	}
	return &CommitBuilder{estimator: estimator, params: params}
}

// CommitTarget returns the value the commitment output must carry for the
// payload at the given fee rate: the estimated reveal fee plus postage.
// Callers select funding inputs against this target before BuildCommit.
func (b *CommitBuilder) CommitTarget(payload *inscription.Payload, revealKey *btcec.PublicKey, feeRate float64, postage uint64) (uint64, error) {
	if postage == 0 {
		postage = DustLimit
	}
	envelope, err := inscription.BuildEnvelope(revealKey, payload)
	if err != nil {
		return 0, err
	}
	revealFee, err := b.estimator.EstimateRevealFee(len(envelope), feeRate)
	if err != nil {
		return 0, err
	}
	return revealFee + postage, nil
}

// BuildCommit assembles the unsigned commit transaction: the selected inputs
// funding a single P2TR commitment output valued estimatedRevealFee+postage,
// plus change when the selection produced any.
func (b *CommitBuilder) BuildCommit(p *CommitParams) (*CommitResult, error) {
	if p == nil || p.Selected == nil || p.RevealKey == nil {
		return nil, fmt.Errorf("%w: commit params", ErrNilParam)
	}
	if len(p.Selected.Selected) == 0 {
		return nil, fmt.Errorf("%w: no inputs selected", ErrInvalidParams)
	}
	if err := ValidateFeeRate(p.FeeRate); err != nil {
		return nil, err
	}

	commitment, err := DeriveCommitment(p.RevealKey, p.Payload, b.params)
	if err != nil {
		return nil, err
	}

	revealFee, err := b.estimator.EstimateRevealFee(len(commitment.Envelope), p.FeeRate)
	if err != nil {
		return nil, err
	}
	postage := p.Postage
	if postage == 0 {
		postage = DustLimit
	}
	outputValue := revealFee + postage

	msg := wire.NewMsgTx(wire.TxVersion)
	for _, u := range p.Selected.Selected {
		op, err := u.wireOutPoint()
		if err != nil {
			return nil, err
		}
		in := wire.NewTxIn(op, nil, nil)
		in.Sequence = rbfSequence
		msg.AddTxIn(in)
	}
	msg.AddTxOut(wire.NewTxOut(int64(outputValue), commitment.PkScript))

	if p.Selected.ChangeAmount > 0 {
		if p.ChangeAddress == nil {
			return nil, fmt.Errorf("%w: change address", ErrNilParam)
		}
		changeScript, err := txscript.PayToAddrScript(p.ChangeAddress)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScriptBuild, err)
		}
		msg.AddTxOut(wire.NewTxOut(int64(p.Selected.ChangeAmount), changeScript))
	}

	return &CommitResult{
		UnsignedTx:         msg,
		Commitment:         commitment,
		RevealAddress:      commitment.Address,
		OutputValue:        outputValue,
		CommitFee:          p.Selected.Fee,
		EstimatedRevealFee: revealFee,
		ChangeAmount:       p.Selected.ChangeAmount,
	}, nil
}
