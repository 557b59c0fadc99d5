package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ordfsorg/libinscribe-go/network"
)

// State is a confirmation-tracking state.
type State string

const (
	StateUnseen    State = "UNSEEN"    // node has never seen the tx
	StateMempool   State = "MEMPOOL"   // accepted, zero confirmations
	StateConfirmed State = "CONFIRMED" // at least one confirmation
	StateFinalized State = "FINALIZED" // reached the target depth
)

// Default polling parameters.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultMaxWait      = 30 * time.Minute
)

// PollOptions tunes a confirmation poll. Zero values take the defaults;
// TargetConfirmations zero means 1.
type PollOptions struct {
	TargetConfirmations int64
	PollInterval        time.Duration
	MaxWait             time.Duration

	// OnTransition, when set, is invoked on every state change. Delivery is
	// best effort: a slow poll tick may skip intermediate confirmation
	// counts, but the terminal status is always accurate.
	OnTransition func(txid string, from, to State, status *network.TxStatus)
}

func (o *PollOptions) withDefaults() PollOptions {
	out := PollOptions{}
	if o != nil {
		out = *o
	}
	if out.TargetConfirmations <= 0 {
		out.TargetConfirmations = 1
	}
	if out.PollInterval <= 0 {
		out.PollInterval = DefaultPollInterval
	}
	if out.MaxWait <= 0 {
		out.MaxWait = DefaultMaxWait
	}
	return out
}

// Tracker polls a transaction to a terminal confirmation state:
// UNSEEN -> MEMPOOL -> CONFIRMED(n) -> FINALIZED. Finalized statuses are
// cached, so re-polling a finalized txid answers from memory with no
// network call.
type Tracker struct {
	svc   network.BlockchainService
	log   zerolog.Logger
	sleep sleepFunc
	now   func() time.Time

	mu        sync.Mutex
	finalized map[string]*network.TxStatus
}

// NewTracker returns a tracker over the given service.
func NewTracker(svc network.BlockchainService, log zerolog.Logger) *Tracker {
	return &Tracker{
		svc:       svc,
		log:       log.With().Str("component", "tracker").Logger(),
		sleep:     ctxSleep,
		now:       time.Now,
		finalized: make(map[string]*network.TxStatus),
	}
}

// Finalized returns the cached terminal status for txid, if any.
func (t *Tracker) Finalized(txid string) (*network.TxStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	status, ok := t.finalized[txid]
	return status, ok
}

// Poll tracks txid until it reaches the target confirmation depth or the
// deadline passes. The reported confirmation count never decreases within
// or across polls of the same txid. An exceeded deadline fails with
// ErrConfirmationTimeout; the transaction itself stays wherever it is.
func (t *Tracker) Poll(ctx context.Context, txid string, opts *PollOptions) (*network.TxStatus, error) {
	if t.svc == nil {
		return nil, fmt.Errorf("%w: blockchain service", ErrNilParam)
	}
	o := opts.withDefaults()

	if status, ok := t.Finalized(txid); ok {
		return status, nil
	}

	deadline := t.now().Add(o.MaxWait)
	state := StateUnseen
	var maxConfirmations int64

	for {
		status, err := t.fetch(ctx, txid)
		if err != nil {
			return nil, err
		}

		// Monotonic confirmation count: a stale node answer never walks
		// the count backwards.
		if status.Confirmations < maxConfirmations {
			status.Confirmations = maxConfirmations
			status.Confirmed = maxConfirmations > 0
		}
		maxConfirmations = status.Confirmations

		next := classify(status, o.TargetConfirmations)
		if next != state {
			t.log.Debug().Str("txid", txid).Str("from", string(state)).
				Str("to", string(next)).Int64("confirmations", status.Confirmations).
				Msg("confirmation state change")
			if o.OnTransition != nil {
				o.OnTransition(txid, state, next, status)
			}
			state = next
		}

		if state == StateFinalized {
			t.mu.Lock()
			t.finalized[txid] = status
			t.mu.Unlock()
			return status, nil
		}

		if t.now().Add(o.PollInterval).After(deadline) {
			return status, fmt.Errorf("%w: %s stuck in %s after %s",
				ErrConfirmationTimeout, txid, state, o.MaxWait)
		}
		if err := t.sleep(ctx, o.PollInterval); err != nil {
			return status, err
		}
	}
}

// fetch maps a node lookup into a status; an unknown txid is the UNSEEN
// status, not an error.
func (t *Tracker) fetch(ctx context.Context, txid string) (*network.TxStatus, error) {
	status, err := t.svc.GetTxStatus(ctx, txid)
	if err != nil {
		if errors.Is(err, network.ErrTxNotFound) {
			return &network.TxStatus{TxID: txid}, nil
		}
		return nil, err
	}
	return status, nil
}

func classify(status *network.TxStatus, target int64) State {
	switch {
	case status.Confirmations >= target:
		return StateFinalized
	case status.Confirmations > 0:
		return StateConfirmed
	case status.InMempool:
		return StateMempool
	default:
		return StateUnseen
	}
}
