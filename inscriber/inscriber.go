package inscriber

import (
	"context"
	"fmt"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/rs/zerolog"

	"github.com/ordfsorg/libinscribe-go/broadcast"
	"github.com/ordfsorg/libinscribe-go/inscription"
	"github.com/ordfsorg/libinscribe-go/network"
	"github.com/ordfsorg/libinscribe-go/tx"
)

// Config wires an Inscriber's collaborators. Service, Signer and Params are
// required; the rest default to sensible implementations or stay off.
type Config struct {
	Service  network.BlockchainService
	Signer   Signer
	Params   *chaincfg.Params
	Ord      *network.OrdClient   // inscription flags for UTXO snapshots
	Oracle   network.FeeOracle    // consulted before Service for fee rates
	Bus      EventBus.Bus         // lifecycle events, optional
	Recorder Recorder             // progress persistence hook, optional
	Fees     *tx.FeeEstimator     // nil means default component sizes
	Logger   zerolog.Logger
}

// Options tunes a single Inscribe call.
type Options struct {
	// FundingAddress is the wallet address whose UTXOs fund the commit.
	FundingAddress string
	// Destination receives the inscribed satoshi. Required.
	Destination string
	// ChangeAddress receives commit change; defaults to FundingAddress.
	ChangeAddress string
	// FeeRate in sat/vbyte. Zero consults the fee oracle, then the node.
	FeeRate float64
	// FeeTargetBlocks is the oracle's confirmation target. Zero means 1.
	FeeTargetBlocks int
	// TargetConfirmations finalizes the reveal. Zero means 1.
	TargetConfirmations int64
	// Postage rides on the inscribed output. Zero means the dust limit.
	Postage uint64
	// Strategy for input selection. Empty means minimize_change.
	Strategy tx.Strategy
	// AllowLocked admits leased UTXOs into selection.
	AllowLocked bool
	// RevealWithoutConfirm broadcasts the reveal before the commit
	// confirms. Off by default: an evicted unconfirmed commit would
	// invalidate the reveal.
	RevealWithoutConfirm bool
	// PollInterval and MaxWait bound each confirmation poll.
	PollInterval time.Duration
	MaxWait      time.Duration
}

func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.FeeTargetBlocks <= 0 {
		out.FeeTargetBlocks = 1
	}
	if out.TargetConfirmations <= 0 {
		out.TargetConfirmations = 1
	}
	if out.Strategy == "" {
		out.Strategy = tx.StrategyMinimizeChange
	}
	if out.ChangeAddress == "" {
		out.ChangeAddress = out.FundingAddress
	}
	return out
}

// Result is a completed inscription.
type Result struct {
	InscriptionID string  `json:"inscription_id"`
	Satoshi       string  `json:"satoshi,omitempty"`
	CommitTxID    string  `json:"commit_txid"`
	RevealTxID    string  `json:"reveal_txid"`
	FeeRate       float64 `json:"fee_rate"`
	CommitFee     uint64  `json:"commit_fee"`
	RevealFee     uint64  `json:"reveal_fee"`
}

// Inscriber sequences the full commit/reveal pipeline behind one call. It
// holds no state between calls beyond the tracker's finalized cache; UTXO
// contention across concurrent calls is the caller's concern.
type Inscriber struct {
	svc       network.BlockchainService
	signer    Signer
	params    *chaincfg.Params
	ord       *network.OrdClient
	oracle    network.FeeOracle
	bus       EventBus.Bus
	recorder  Recorder
	estimator *tx.FeeEstimator
	selector  *tx.Selector
	commits   *tx.CommitBuilder
	reveals   *tx.RevealBuilder
	caster    *broadcast.Broadcaster
	tracker   *broadcast.Tracker
	log       zerolog.Logger
}

// New builds an Inscriber from cfg.
func New(cfg Config) (*Inscriber, error) {
	if cfg.Service == nil || cfg.Signer == nil || cfg.Params == nil {
		return nil, fmt.Errorf("inscriber: service, signer and chain params are required")
	}
	estimator := cfg.Fees
	if estimator == nil {
		estimator = tx.NewFeeEstimator()
	}
	log := cfg.Logger.With().Str("component", "inscriber").Logger()

	return &Inscriber{
		svc:       cfg.Service,
		signer:    cfg.Signer,
		params:    cfg.Params,
		ord:       cfg.Ord,
		oracle:    cfg.Oracle,
		bus:       cfg.Bus,
		recorder:  cfg.Recorder,
		estimator: estimator,
		selector:  tx.NewSelector(estimator),
		commits:   tx.NewCommitBuilder(estimator, cfg.Params),
		reveals:   tx.NewRevealBuilder(estimator, cfg.Params),
		caster:    broadcast.NewBroadcaster(cfg.Service, cfg.Logger),
		tracker:   broadcast.NewTracker(cfg.Service, cfg.Logger),
		log:       log,
	}, nil
}

// Inscribe runs the whole pipeline for one payload: select funding, build
// and broadcast the commit, wait for it to confirm, then build, broadcast
// and confirm the reveal. Failures carry their phase so the caller knows
// whether a broadcast commit is awaiting ResumeReveal.
func (i *Inscriber) Inscribe(ctx context.Context, payload *inscription.Payload, opts *Options) (*Result, error) {
	o := opts.withDefaults()

	if err := payload.Validate(); err != nil {
		return nil, i.fail(PhaseSelect, "", payload, err)
	}
	if o.Destination == "" {
		return nil, i.fail(PhaseSelect, "", payload,
			fmt.Errorf("%w: destination address", tx.ErrNilParam))
	}

	rate, err := i.resolveFeeRate(ctx, &o)
	if err != nil {
		return nil, i.fail(PhaseFeeEstimate, "", payload, err)
	}

	revealKey, err := i.signer.RevealPubKey(ctx)
	if err != nil {
		return nil, i.fail(PhaseCommitSign, "", payload, err)
	}

	i.publish(TopicStarted, Event{ContentType: payload.ContentType})
	i.log.Info().Str("content_type", payload.ContentType).Int("size", payload.Size()).
		Float64("fee_rate", rate).Msg("inscription started")

	// Selection and commit build: everything here fails before any network
	// mutation, so no partial state can exist.
	commitRes, selection, err := i.prepareCommit(ctx, payload, revealKey, rate, &o)
	if err != nil {
		return nil, err
	}

	commitTxID, err := i.signAndBroadcastCommit(ctx, commitRes.UnsignedTx, selection, payload)
	if err != nil {
		return nil, err
	}

	if !o.RevealWithoutConfirm {
		if err := i.awaitConfirmation(ctx, commitTxID, 1, &o); err != nil {
			return nil, i.fail(PhaseCommitConfirm, commitTxID, payload, err)
		}
	}

	res, err := i.reveal(ctx, &revealJob{
		payload:     payload,
		commitTxID:  commitTxID,
		commitVout:  0,
		commitValue: commitRes.OutputValue,
		rate:        rate,
		opts:        &o,
	})
	if err != nil {
		return nil, err
	}
	res.CommitFee = commitRes.CommitFee
	return res, nil
}

// ResumeReveal retries the reveal phase for a commit that is already
// on-chain: the recovery path after a failure past the commit broadcast.
// The payload and signer key must match the original commit exactly, or the
// derived witness will not satisfy the commitment.
func (i *Inscriber) ResumeReveal(ctx context.Context, commitTxID string, payload *inscription.Payload, opts *Options) (*Result, error) {
	o := opts.withDefaults()

	if err := payload.Validate(); err != nil {
		return nil, i.fail(PhaseRevealBuild, commitTxID, payload, err)
	}
	rate, err := i.resolveFeeRate(ctx, &o)
	if err != nil {
		return nil, i.fail(PhaseFeeEstimate, commitTxID, payload, err)
	}

	utxo, err := i.svc.GetUTXO(ctx, commitTxID, 0)
	if err != nil {
		return nil, i.fail(PhaseRevealBuild, commitTxID, payload, err)
	}

	return i.reveal(ctx, &revealJob{
		payload:     payload,
		commitTxID:  commitTxID,
		commitVout:  0,
		commitValue: utxo.Value,
		rate:        rate,
		opts:        &o,
	})
}

// resolveFeeRate returns the explicit rate or consults the oracle chain:
// the configured oracle first, the node as fallback.
func (i *Inscriber) resolveFeeRate(ctx context.Context, o *Options) (float64, error) {
	if o.FeeRate != 0 {
		if err := tx.ValidateFeeRate(o.FeeRate); err != nil {
			return 0, err
		}
		return o.FeeRate, nil
	}
	oracles := []network.FeeOracle{}
	if i.oracle != nil {
		oracles = append(oracles, i.oracle)
	}
	oracles = append(oracles, i.svc)
	rate, err := network.NewOracleChain(i.log, oracles...).EstimateFeeRate(ctx, o.FeeTargetBlocks)
	if err != nil {
		return 0, err
	}
	if err := tx.ValidateFeeRate(rate); err != nil {
		return 0, err
	}
	return rate, nil
}

// prepareCommit selects funding inputs and builds the unsigned commit.
func (i *Inscriber) prepareCommit(ctx context.Context, payload *inscription.Payload, revealKey *btcec.PublicKey, rate float64, o *Options) (*tx.CommitResult, *tx.SelectionResult, error) {
	target, err := i.commits.CommitTarget(payload, revealKey, rate, o.Postage)
	if err != nil {
		return nil, nil, i.fail(PhaseCommitBuild, "", payload, err)
	}

	snapshot, err := network.SnapshotUnspent(ctx, i.svc, i.ord, o.FundingAddress)
	if err != nil {
		return nil, nil, i.fail(PhaseSelect, "", payload, err)
	}
	selection, err := i.selector.Select(snapshot, target, rate, o.Strategy,
		tx.SelectOptions{AllowLocked: o.AllowLocked})
	if err != nil {
		return nil, nil, i.fail(PhaseSelect, "", payload, err)
	}

	var changeAddr btcutil.Address
	if selection.ChangeAmount > 0 {
		if changeAddr, err = i.decodeAddress(o.ChangeAddress); err != nil {
			return nil, nil, i.fail(PhaseCommitBuild, "", payload, err)
		}
	}
	commitRes, err := i.commits.BuildCommit(&tx.CommitParams{
		Payload:       payload,
		RevealKey:     revealKey,
		Selected:      selection,
		FeeRate:       rate,
		ChangeAddress: changeAddr,
		Postage:       o.Postage,
	})
	if err != nil {
		return nil, nil, i.fail(PhaseCommitBuild, "", payload, err)
	}
	return commitRes, selection, nil
}

// signAndBroadcastCommit crosses the signer boundary with a PSBT and
// submits the result. This is the first network mutation of the pipeline.
func (i *Inscriber) signAndBroadcastCommit(ctx context.Context, unsigned *wire.MsgTx, selection *tx.SelectionResult, payload *inscription.Payload) (string, error) {
	packet, err := tx.CommitPacket(unsigned, selection.Selected)
	if err != nil {
		return "", i.fail(PhaseCommitBuild, "", payload, err)
	}
	signedHex, err := i.signer.SignCommit(ctx, packet)
	if err != nil {
		return "", i.fail(PhaseCommitSign, "", payload, err)
	}

	bres, err := i.caster.Broadcast(ctx, signedHex)
	if err != nil {
		return "", i.fail(PhaseCommitBroadcast, "", payload, err)
	}
	commitTxID := bres.TxID

	i.publish(TopicBroadcast, Event{CommitTxID: commitTxID, ContentType: payload.ContentType})
	i.record(ctx, &RecordEntry{
		CommitTxID:  commitTxID,
		ContentType: payload.ContentType,
		ContentSize: payload.Size(),
		Status:      StatusCommitted,
		CreatedAt:   time.Now().UTC(),
	})
	i.log.Info().Str("commit_txid", commitTxID).Int("attempts", bres.Attempts).
		Msg("commit broadcast")
	return commitTxID, nil
}

// revealJob carries one reveal through build, sign, broadcast and confirm.
type revealJob struct {
	payload     *inscription.Payload
	commitTxID  string
	commitVout  uint32
	commitValue uint64
	rate        float64
	opts        *Options
}

func (i *Inscriber) reveal(ctx context.Context, job *revealJob) (*Result, error) {
	o := job.opts

	revealKey, err := i.signer.RevealPubKey(ctx)
	if err != nil {
		return nil, i.fail(PhaseRevealSign, job.commitTxID, job.payload, err)
	}
	dest, err := i.decodeAddress(o.Destination)
	if err != nil {
		return nil, i.fail(PhaseRevealBuild, job.commitTxID, job.payload, err)
	}

	revealRes, err := i.reveals.BuildReveal(&tx.RevealParams{
		CommitTxID:  job.commitTxID,
		CommitVout:  job.commitVout,
		CommitValue: job.commitValue,
		Payload:     job.payload,
		RevealKey:   revealKey,
		Destination: dest,
		FeeRate:     job.rate,
	})
	if err != nil {
		return nil, i.fail(PhaseRevealBuild, job.commitTxID, job.payload, err)
	}

	sigHash, err := tx.RevealSigHash(revealRes, job.commitValue)
	if err != nil {
		return nil, i.fail(PhaseRevealBuild, job.commitTxID, job.payload, err)
	}
	signedHex, err := i.signer.SignReveal(ctx, &RevealSigningRequest{
		UnsignedTx:  revealRes.UnsignedTx,
		SigHash:     sigHash,
		TapLeaf:     revealRes.Commitment.TapLeaf,
		CommitValue: job.commitValue,
		PkScript:    revealRes.Commitment.PkScript,
	})
	if err != nil {
		return nil, i.fail(PhaseRevealSign, job.commitTxID, job.payload, err)
	}

	bres, err := i.caster.Broadcast(ctx, signedHex)
	if err != nil {
		return nil, i.fail(PhaseRevealBroadcast, job.commitTxID, job.payload, err)
	}
	revealTxID := bres.TxID
	i.publish(TopicBroadcast, Event{CommitTxID: job.commitTxID, RevealTxID: revealTxID})

	if err := i.awaitConfirmation(ctx, revealTxID, o.TargetConfirmations, o); err != nil {
		return nil, i.fail(PhaseRevealConfirm, job.commitTxID, job.payload, err)
	}

	id := inscription.NewID(revealTxID, 0).String()
	i.publish(TopicConfirmed, Event{
		InscriptionID: id,
		CommitTxID:    job.commitTxID,
		RevealTxID:    revealTxID,
	})
	i.record(ctx, &RecordEntry{
		InscriptionID: id,
		CommitTxID:    job.commitTxID,
		RevealTxID:    revealTxID,
		ContentType:   job.payload.ContentType,
		ContentSize:   job.payload.Size(),
		Status:        StatusRevealed,
		CreatedAt:     time.Now().UTC(),
	})
	i.log.Info().Str("inscription_id", id).Str("reveal_txid", revealTxID).
		Msg("inscription confirmed")

	return &Result{
		InscriptionID: id,
		Satoshi:       job.payload.TargetSatoshi,
		CommitTxID:    job.commitTxID,
		RevealTxID:    revealTxID,
		FeeRate:       job.rate,
		RevealFee:     revealRes.Fee,
	}, nil
}

func (i *Inscriber) awaitConfirmation(ctx context.Context, txid string, target int64, o *Options) error {
	_, err := i.tracker.Poll(ctx, txid, &broadcast.PollOptions{
		TargetConfirmations: target,
		PollInterval:        o.PollInterval,
		MaxWait:             o.MaxWait,
	})
	return err
}

func (i *Inscriber) decodeAddress(addr string) (btcutil.Address, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: address", tx.ErrNilParam)
	}
	decoded, err := btcutil.DecodeAddress(addr, i.params)
	if err != nil {
		return nil, fmt.Errorf("%w: address %q: %v", tx.ErrInvalidParams, addr, err)
	}
	return decoded, nil
}

// fail tags err with its phase, emits the failure event, and logs it.
func (i *Inscriber) fail(phase Phase, commitTxID string, payload *inscription.Payload, err error) error {
	perr := phaseErr(phase, commitTxID, err)
	ev := Event{
		CommitTxID: commitTxID,
		Phase:      phase,
		Code:       perr.Code,
		Message:    err.Error(),
	}
	if payload != nil {
		ev.ContentType = payload.ContentType
	}
	i.publish(TopicFailed, ev)
	i.log.Error().Str("phase", string(phase)).Str("code", perr.Code).Err(err).
		Bool("commit_on_chain", phase.CommitMayBeOnChain() && commitTxID != "").
		Msg("inscription failed")
	return perr
}

// record invokes the recorder hook; persistence failures are logged but do
// not fail the pipeline, since the chain state is already advanced.
func (i *Inscriber) record(ctx context.Context, entry *RecordEntry) {
	if i.recorder == nil {
		return
	}
	if err := i.recorder.Record(ctx, entry); err != nil {
		i.log.Warn().Err(err).Str("commit_txid", entry.CommitTxID).
			Msg("recorder hook failed")
	}
}
