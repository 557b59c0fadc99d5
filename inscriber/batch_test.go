package inscriber

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordfsorg/libinscribe-go/inscription"
	"github.com/ordfsorg/libinscribe-go/network"
	"github.com/ordfsorg/libinscribe-go/tx"
)

func batchPayloads() []*inscription.Payload {
	return []*inscription.Payload{
		textPayload("first"),
		textPayload(strings.Repeat("second ", 40)),
		textPayload(strings.Repeat("third ", 200)),
	}
}

func TestInscribeBatchSharedCommit(t *testing.T) {
	node := newTestNode(10_000_000)
	signer := newFakeSigner()
	rec := &fakeRecorder{}
	ins := newTestInscriber(t, node, signer, rec, nil)

	payloads := batchPayloads()
	res, err := ins.InscribeBatch(context.Background(), payloads, testOptions(t))
	require.NoError(t, err)

	// One shared commit broadcast plus one reveal per payload.
	require.Len(t, node.broadcast, 1+len(payloads))
	assert.Equal(t, node.broadcast[0], res.CommitTxID)
	assert.Equal(t, int32(1), signer.commitCalls.Load())
	assert.Equal(t, int32(len(payloads)), signer.revealCalls.Load())

	require.Len(t, res.Items, len(payloads))
	var shareTotal uint64
	revealTxids := map[string]bool{}
	for n, item := range res.Items {
		require.NoError(t, item.Err, "item %d", n)
		require.NotNil(t, item.Result)
		assert.Equal(t, res.CommitTxID, item.Result.CommitTxID)
		assert.Equal(t, item.FeeShare, item.Result.CommitFee)
		revealTxids[item.Result.RevealTxID] = true
		shareTotal += item.FeeShare
	}
	assert.Len(t, revealTxids, len(payloads), "each payload reveals in its own transaction")
	assert.Equal(t, res.CommitFee, shareTotal, "fee shares sum to the shared commit fee")

	// Bigger payloads carry bigger shares.
	assert.Less(t, res.Items[0].FeeShare, res.Items[1].FeeShare)
	assert.Less(t, res.Items[1].FeeShare, res.Items[2].FeeShare)

	// Recorder: one committed entry per payload, then one revealed each.
	var committed, revealed int
	for _, entry := range rec.entries {
		switch entry.Status {
		case StatusCommitted:
			committed++
		case StatusRevealed:
			revealed++
		}
	}
	assert.Equal(t, len(payloads), committed)
	assert.Equal(t, len(payloads), revealed)
}

func TestInscribeBatchEmpty(t *testing.T) {
	ins := newTestInscriber(t, newTestNode(1_000_000), newFakeSigner(), nil, nil)
	_, err := ins.InscribeBatch(context.Background(), nil, testOptions(t))
	require.Error(t, err)
	assert.Equal(t, CodeInvalidInput, Code(err))
}

func TestInscribeBatchValidatesEveryPayload(t *testing.T) {
	ins := newTestInscriber(t, newTestNode(1_000_000), newFakeSigner(), nil, nil)
	payloads := []*inscription.Payload{
		textPayload("fine"),
		{Content: []byte("x"), ContentType: "broken"},
	}
	_, err := ins.InscribeBatch(context.Background(), payloads, testOptions(t))
	require.ErrorIs(t, err, inscription.ErrInvalidContentType)
}

// A single reveal failure leaves the other items intact and resumable.
func TestInscribeBatchIsolatesItemFailures(t *testing.T) {
	node := newTestNode(10_000_000)
	fails := 0
	inner := node.BroadcastTxFn
	node.BroadcastTxFn = func(ctx context.Context, raw string) (string, error) {
		// First reveal broadcast after the commit fails permanently.
		if len(node.broadcast) == 1 && fails == 0 {
			fails++
			return "", fmt.Errorf("%w: %w", network.ErrBroadcastRejected,
				&network.RPCError{Code: -25, Message: "bad-txns-inputs-missingorspent"})
		}
		return inner(ctx, raw)
	}
	opts := testOptions(t)
	// Serial reveals make the failing call deterministic.
	opts.Strategy = tx.StrategyMinimizeInputs

	ins := newTestInscriber(t, node, newFakeSigner(), nil, nil)
	res, err := ins.InscribeBatch(context.Background(), batchPayloads()[:1], opts)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.Error(t, res.Items[0].Err)
	assert.Equal(t, CodeBroadcastFailed, Code(res.Items[0].Err))

	var perr *Error
	require.ErrorAs(t, res.Items[0].Err, &perr)
	assert.Equal(t, res.CommitTxID, perr.CommitTxID)
	assert.True(t, perr.Phase.CommitMayBeOnChain())
}
