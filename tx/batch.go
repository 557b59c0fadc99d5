package tx

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/ordfsorg/libinscribe-go/inscription"
)

// BatchItem is one inscription in a shared-commit batch.
type BatchItem struct {
	Payload   *inscription.Payload
	RevealKey *btcec.PublicKey
}

// BatchEntry describes one commitment output of a batch commit transaction.
// Vout indexes the output inside the shared transaction; CommitFeeShare is
// this item's slice of the shared commit fee, proportional to payload size.
type BatchEntry struct {
	Commitment         *Commitment
	Vout               uint32
	OutputValue        uint64
	EstimatedRevealFee uint64
	CommitFeeShare     uint64
}

// BatchCommitParams describes a batch commit build.
type BatchCommitParams struct {
	Items         []*BatchItem
	Selected      *SelectionResult
	FeeRate       float64
	ChangeAddress btcutil.Address
	Postage       uint64 // per-item postage; 0 means DustLimit
}

// BatchCommitResult is the unsigned shared commit transaction with one
// commitment output per item, entries aligned with Items order.
type BatchCommitResult struct {
	UnsignedTx   *wire.MsgTx
	Entries      []*BatchEntry
	CommitFee    uint64
	ChangeAmount uint64
}

// BatchTarget returns the total value the batch's commitment outputs must
// carry, for selecting funding inputs before BuildBatchCommit.
func (b *CommitBuilder) BatchTarget(items []*BatchItem, feeRate float64, postage uint64) (uint64, error) {
	var total uint64
	for i, item := range items {
		if item == nil {
			return 0, fmt.Errorf("%w: batch item %d", ErrNilParam, i)
		}
		target, err := b.CommitTarget(item.Payload, item.RevealKey, feeRate, postage)
		if err != nil {
			return 0, fmt.Errorf("batch item %d: %w", i, err)
		}
		total += target
	}
	return total, nil
}

// BuildBatchCommit assembles one commit transaction funding every item's
// commitment output, change last. Each entry carries its proportional share
// of the shared commit fee; the shares sum exactly to the fee.
func (b *CommitBuilder) BuildBatchCommit(p *BatchCommitParams) (*BatchCommitResult, error) {
	if p == nil || p.Selected == nil {
		return nil, fmt.Errorf("%w: batch params", ErrNilParam)
	}
	if len(p.Items) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidParams)
	}
	if len(p.Selected.Selected) == 0 {
		return nil, fmt.Errorf("%w: no inputs selected", ErrInvalidParams)
	}
	if err := ValidateFeeRate(p.FeeRate); err != nil {
		return nil, err
	}
	postage := p.Postage
	if postage == 0 {
		postage = DustLimit
	}

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

	entries := make([]*BatchEntry, 0, len(p.Items))
	for i, item := range p.Items {
		commitment, err := DeriveCommitment(item.RevealKey, item.Payload, b.params)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		revealFee, err := b.estimator.EstimateRevealFee(len(commitment.Envelope), p.FeeRate)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		value := revealFee + postage
		msg.AddTxOut(wire.NewTxOut(int64(value), commitment.PkScript))
		entries = append(entries, &BatchEntry{
			Commitment:         commitment,
			Vout:               uint32(i),
			OutputValue:        value,
			EstimatedRevealFee: revealFee,
		})
	}

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

	splitFeeShares(entries, p.Items, p.Selected.Fee)

	return &BatchCommitResult{
		UnsignedTx:   msg,
		Entries:      entries,
		CommitFee:    p.Selected.Fee,
		ChangeAmount: p.Selected.ChangeAmount,
	}, nil
}

// splitFeeShares distributes fee across entries proportionally to payload
// byte size. Integer division leaves a remainder of at most len(entries)-1
// satoshis, handed out one each from the front so the shares sum exactly.
func splitFeeShares(entries []*BatchEntry, items []*BatchItem, fee uint64) {
	var totalSize uint64
	for _, item := range items {
		totalSize += uint64(item.Payload.Size())
	}
	if totalSize == 0 {
		return
	}

	var assigned uint64
	for i, entry := range entries {
		entry.CommitFeeShare = fee * uint64(items[i].Payload.Size()) / totalSize
		assigned += entry.CommitFeeShare
	}
	for i := 0; assigned < fee; i = (i + 1) % len(entries) {
		entries[i].CommitFeeShare++
		assigned++
	}
}
