package inscriber

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"golang.org/x/sync/errgroup"

	"github.com/ordfsorg/libinscribe-go/inscription"
	"github.com/ordfsorg/libinscribe-go/network"
	"github.com/ordfsorg/libinscribe-go/tx"
)

// DefaultRevealConcurrency bounds how many batched reveals are in flight at
// once.
const DefaultRevealConcurrency = 3

// BatchItemResult is one payload's outcome inside a batch. Exactly one of
// Result and Err is set; FeeShare is the payload's slice of the shared
// commit fee, proportional to its byte size.
type BatchItemResult struct {
	Result   *Result `json:"result,omitempty"`
	FeeShare uint64  `json:"fee_share"`
	Err      error   `json:"-"`
}

// BatchResult is the outcome of a shared-commit batch. Items align with the
// payloads passed in; individual reveal failures leave the other items
// untouched.
type BatchResult struct {
	CommitTxID string             `json:"commit_txid"`
	CommitFee  uint64             `json:"commit_fee"`
	Items      []*BatchItemResult `json:"items"`
}

// InscribeBatch inscribes payloads through one shared commit transaction
// with a commitment output per payload, then broadcasts the reveals
// individually, at most DefaultRevealConcurrency at a time. A failure
// before the commit broadcast fails the whole batch; afterwards each item
// succeeds or fails on its own and the commit txid in the result names what
// to resume.
func (i *Inscriber) InscribeBatch(ctx context.Context, payloads []*inscription.Payload, opts *Options) (*BatchResult, error) {
	o := opts.withDefaults()
	if len(payloads) == 0 {
		return nil, i.fail(PhaseSelect, "", nil, fmt.Errorf("%w: empty batch", tx.ErrInvalidParams))
	}
	for n, payload := range payloads {
		if err := payload.Validate(); err != nil {
			return nil, i.fail(PhaseSelect, "", payload, fmt.Errorf("payload %d: %w", n, err))
		}
	}
	if o.Destination == "" {
		return nil, i.fail(PhaseSelect, "", nil, fmt.Errorf("%w: destination address", tx.ErrNilParam))
	}

	rate, err := i.resolveFeeRate(ctx, &o)
	if err != nil {
		return nil, i.fail(PhaseFeeEstimate, "", nil, err)
	}
	revealKey, err := i.signer.RevealPubKey(ctx)
	if err != nil {
		return nil, i.fail(PhaseCommitSign, "", nil, err)
	}

	items := make([]*tx.BatchItem, len(payloads))
	for n, payload := range payloads {
		items[n] = &tx.BatchItem{Payload: payload, RevealKey: revealKey}
	}

	i.publish(TopicStarted, Event{Message: fmt.Sprintf("batch of %d", len(payloads))})

	batchRes, selection, err := i.prepareBatchCommit(ctx, items, rate, &o)
	if err != nil {
		return nil, err
	}

	commitTxID, err := i.signAndBroadcastBatch(ctx, batchRes, selection, payloads)
	if err != nil {
		return nil, err
	}

	if !o.RevealWithoutConfirm {
		if err := i.awaitConfirmation(ctx, commitTxID, 1, &o); err != nil {
			return nil, i.fail(PhaseCommitConfirm, commitTxID, nil, err)
		}
	}

	out := &BatchResult{
		CommitTxID: commitTxID,
		CommitFee:  batchRes.CommitFee,
		Items:      make([]*BatchItemResult, len(payloads)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultRevealConcurrency)
	for n, entry := range batchRes.Entries {
		n, entry := n, entry
		out.Items[n] = &BatchItemResult{FeeShare: entry.CommitFeeShare}
		g.Go(func() error {
			res, err := i.reveal(gctx, &revealJob{
				payload:     payloads[n],
				commitTxID:  commitTxID,
				commitVout:  entry.Vout,
				commitValue: entry.OutputValue,
				rate:        rate,
				opts:        &o,
			})
			if err != nil {
				// Per-item failure: the other reveals keep going.
				out.Items[n].Err = err
				return nil
			}
			res.CommitFee = entry.CommitFeeShare
			out.Items[n].Result = res
			return nil
		})
	}
	_ = g.Wait()

	return out, nil
}

func (i *Inscriber) prepareBatchCommit(ctx context.Context, items []*tx.BatchItem, rate float64, o *Options) (*tx.BatchCommitResult, *tx.SelectionResult, error) {
	target, err := i.commits.BatchTarget(items, rate, o.Postage)
	if err != nil {
		return nil, nil, i.fail(PhaseCommitBuild, "", nil, err)
	}

	snapshot, err := network.SnapshotUnspent(ctx, i.svc, i.ord, o.FundingAddress)
	if err != nil {
		return nil, nil, i.fail(PhaseSelect, "", nil, err)
	}
	selection, err := i.selector.Select(snapshot, target, rate, o.Strategy,
		tx.SelectOptions{AllowLocked: o.AllowLocked, OutputCount: len(items)})
	if err != nil {
		return nil, nil, i.fail(PhaseSelect, "", nil, err)
	}

	var changeAddr btcutil.Address
	if selection.ChangeAmount > 0 {
		if changeAddr, err = i.decodeAddress(o.ChangeAddress); err != nil {
			return nil, nil, i.fail(PhaseCommitBuild, "", nil, err)
		}
	}
	batchRes, err := i.commits.BuildBatchCommit(&tx.BatchCommitParams{
		Items:         items,
		Selected:      selection,
		FeeRate:       rate,
		ChangeAddress: changeAddr,
		Postage:       o.Postage,
	})
	if err != nil {
		return nil, nil, i.fail(PhaseCommitBuild, "", nil, err)
	}
	return batchRes, selection, nil
}

func (i *Inscriber) signAndBroadcastBatch(ctx context.Context, batchRes *tx.BatchCommitResult, selection *tx.SelectionResult, payloads []*inscription.Payload) (string, error) {
	packet, err := tx.CommitPacket(batchRes.UnsignedTx, selection.Selected)
	if err != nil {
		return "", i.fail(PhaseCommitBuild, "", nil, err)
	}
	signedHex, err := i.signer.SignCommit(ctx, packet)
	if err != nil {
		return "", i.fail(PhaseCommitSign, "", nil, err)
	}
	bres, err := i.caster.Broadcast(ctx, signedHex)
	if err != nil {
		return "", i.fail(PhaseCommitBroadcast, "", nil, err)
	}

	i.publish(TopicBroadcast, Event{CommitTxID: bres.TxID})
	for _, payload := range payloads {
		i.record(ctx, &RecordEntry{
			CommitTxID:  bres.TxID,
			ContentType: payload.ContentType,
			ContentSize: payload.Size(),
			Status:      StatusCommitted,
			CreatedAt:   time.Now().UTC(),
		})
	}
	i.log.Info().Str("commit_txid", bres.TxID).Int("outputs", len(batchRes.Entries)).
		Msg("batch commit broadcast")
	return bres.TxID, nil
}
