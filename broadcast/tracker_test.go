package broadcast

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordfsorg/libinscribe-go/network"
)

// fakeClock advances only when the tracker sleeps, making poll timing
// deterministic.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return nil
}

func newTestTracker(svc network.BlockchainService) (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	tr := NewTracker(svc, zerolog.Nop())
	tr.now = clock.Now
	tr.sleep = clock.Sleep
	return tr, clock
}

// statusScript replays a fixed sequence of statuses, then repeats the last.
func statusScript(calls *int, seq ...*network.TxStatus) *network.MockBlockchainService {
	return &network.MockBlockchainService{
		GetTxStatusFn: func(ctx context.Context, txid string) (*network.TxStatus, error) {
			i := *calls
			*calls++
			if i >= len(seq) {
				i = len(seq) - 1
			}
			s := *seq[i]
			s.TxID = txid
			return &s, nil
		},
	}
}

func TestPollWalksStateMachine(t *testing.T) {
	calls := 0
	svc := statusScript(&calls,
		&network.TxStatus{InMempool: true},
		&network.TxStatus{Confirmed: true, Confirmations: 1, BlockHeight: 100},
		&network.TxStatus{Confirmed: true, Confirmations: 2, BlockHeight: 100},
	)
	tr, _ := newTestTracker(svc)

	var transitions []State
	status, err := tr.Poll(context.Background(), testTxID, &PollOptions{
		TargetConfirmations: 2,
		PollInterval:        time.Second,
		MaxWait:             time.Minute,
		OnTransition: func(_ string, _, to State, _ *network.TxStatus) {
			transitions = append(transitions, to)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.Confirmations)
	assert.Equal(t, []State{StateMempool, StateConfirmed, StateFinalized}, transitions)
}

func TestPollUnseenTransaction(t *testing.T) {
	svc := &network.MockBlockchainService{
		GetTxStatusFn: func(ctx context.Context, txid string) (*network.TxStatus, error) {
			return nil, fmt.Errorf("%w: never broadcast", network.ErrTxNotFound)
		},
	}
	tr, _ := newTestTracker(svc)

	_, err := tr.Poll(context.Background(), testTxID, &PollOptions{
		PollInterval: time.Second,
		MaxWait:      3 * time.Second,
	})
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
}

// A deadline shorter than one poll interval on a never-confirming tx fails
// with a timeout instead of waiting out the interval.
func TestPollTimeout(t *testing.T) {
	calls := 0
	svc := statusScript(&calls, &network.TxStatus{InMempool: true})
	tr, clock := newTestTracker(svc)
	start := clock.Now()

	_, err := tr.Poll(context.Background(), testTxID, &PollOptions{
		PollInterval: 10 * time.Second,
		MaxWait:      5 * time.Second,
	})
	require.ErrorIs(t, err, ErrConfirmationTimeout)
	assert.Equal(t, 1, calls)
	assert.Less(t, clock.Now().Sub(start), 10*time.Second)
}

func TestPollFinalizedCacheIsIdempotent(t *testing.T) {
	calls := 0
	svc := statusScript(&calls,
		&network.TxStatus{Confirmed: true, Confirmations: 1, BlockHeight: 100, BlockHash: "00aa"},
	)
	tr, _ := newTestTracker(svc)
	ctx := context.Background()

	first, err := tr.Poll(ctx, testTxID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// Re-polling answers from the cache: zero further network calls and the
	// identical status value.
	again, err := tr.Poll(ctx, testTxID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, again)

	cached, ok := tr.Finalized(testTxID)
	assert.True(t, ok)
	assert.Equal(t, first, cached)
}

// A node answering with a stale lower count must not walk confirmations
// backwards.
func TestPollConfirmationsMonotonic(t *testing.T) {
	calls := 0
	svc := statusScript(&calls,
		&network.TxStatus{Confirmed: true, Confirmations: 2},
		&network.TxStatus{Confirmed: true, Confirmations: 1}, // stale answer
		&network.TxStatus{Confirmed: true, Confirmations: 3},
	)
	tr, _ := newTestTracker(svc)

	var counts []int64
	status, err := tr.Poll(context.Background(), testTxID, &PollOptions{
		TargetConfirmations: 3,
		PollInterval:        time.Second,
		MaxWait:             time.Minute,
		OnTransition: func(_ string, _, _ State, s *network.TxStatus) {
			counts = append(counts, s.Confirmations)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), status.Confirmations)
	for i := 1; i < len(counts); i++ {
		assert.GreaterOrEqual(t, counts[i], counts[i-1])
	}
}

func TestPollPropagatesNodeErrors(t *testing.T) {
	svc := &network.MockBlockchainService{
		GetTxStatusFn: func(ctx context.Context, txid string) (*network.TxStatus, error) {
			return nil, fmt.Errorf("%w: node down", network.ErrConnectionFailed)
		},
	}
	tr, _ := newTestTracker(svc)

	_, err := tr.Poll(context.Background(), testTxID, nil)
	assert.ErrorIs(t, err, network.ErrConnectionFailed)
}
