package inscriber

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/asaskevich/EventBus"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordfsorg/libinscribe-go/broadcast"
	"github.com/ordfsorg/libinscribe-go/inscription"
	"github.com/ordfsorg/libinscribe-go/network"
	"github.com/ordfsorg/libinscribe-go/tx"
)

var testChain = &chaincfg.RegressionNetParams

// fakeSigner satisfies Signer with a fixed key and canned raw hex.
type fakeSigner struct {
	priv        *btcec.PrivateKey
	commitCalls atomic.Int32
	revealCalls atomic.Int32
	failCommit  error
	failReveal  error
}

func newFakeSigner() *fakeSigner {
	priv, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{0x42}, 32))
	return &fakeSigner{priv: priv}
}

func (s *fakeSigner) RevealPubKey(context.Context) (*btcec.PublicKey, error) {
	return s.priv.PubKey(), nil
}

func (s *fakeSigner) SignCommit(_ context.Context, packet *psbt.Packet) (string, error) {
	s.commitCalls.Add(1)
	if s.failCommit != nil {
		return "", s.failCommit
	}
	if packet == nil || len(packet.Inputs) == 0 {
		return "", fmt.Errorf("empty packet")
	}
	return "c0fefe", nil
}

func (s *fakeSigner) SignReveal(_ context.Context, req *RevealSigningRequest) (string, error) {
	s.revealCalls.Add(1)
	if s.failReveal != nil {
		return "", s.failReveal
	}
	if len(req.SigHash) != 32 {
		return "", fmt.Errorf("bad sighash length %d", len(req.SigHash))
	}
	return "5ea1ed", nil
}

// fakeRecorder captures entries in call order.
type fakeRecorder struct {
	mu      sync.Mutex
	entries []*RecordEntry
}

func (r *fakeRecorder) Record(_ context.Context, entry *RecordEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// testNode is a happy-path blockchain mock: one funded UTXO, accepted
// broadcasts with sequential txids, everything instantly confirmed.
type testNode struct {
	*network.MockBlockchainService
	txCounter atomic.Int64
	broadcast []string
	mu        sync.Mutex
}

func newTestNode(fundingValue uint64) *testNode {
	n := &testNode{}
	n.MockBlockchainService = &network.MockBlockchainService{
		ListUnspentFn: func(ctx context.Context, address string) ([]*network.UTXO, error) {
			return []*network.UTXO{{
				TxID: fmt.Sprintf("%064x", 0xf00d), Vout: 0,
				Value: fundingValue, ScriptPubKey: "51",
			}}, nil
		},
		BroadcastTxFn: func(ctx context.Context, raw string) (string, error) {
			txid := fmt.Sprintf("%064x", 0xa000+n.txCounter.Add(1))
			n.mu.Lock()
			n.broadcast = append(n.broadcast, txid)
			n.mu.Unlock()
			return txid, nil
		},
		GetTxStatusFn: func(ctx context.Context, txid string) (*network.TxStatus, error) {
			return &network.TxStatus{TxID: txid, Confirmed: true, Confirmations: 1}, nil
		},
		EstimateFeeRateFn: func(ctx context.Context, target int) (float64, error) {
			return 5, nil
		},
	}
	return n
}

func taprootAddr(t *testing.T, fill byte) string {
	t.Helper()
	priv, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{fill}, 32))
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(priv.PubKey()), testChain)
	require.NoError(t, err)
	return addr.EncodeAddress()
}

func testOptions(t *testing.T) *Options {
	t.Helper()
	return &Options{
		FundingAddress: taprootAddr(t, 0x55),
		Destination:    taprootAddr(t, 0x66),
		FeeRate:        5,
	}
}

func newTestInscriber(t *testing.T, node *testNode, signer *fakeSigner, rec Recorder, bus EventBus.Bus) *Inscriber {
	t.Helper()
	ins, err := New(Config{
		Service:  node,
		Signer:   signer,
		Params:   testChain,
		Bus:      bus,
		Recorder: rec,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return ins
}

func textPayload(s string) *inscription.Payload {
	return &inscription.Payload{Content: []byte(s), ContentType: "text/plain"}
}

func TestInscribeHappyPath(t *testing.T) {
	node := newTestNode(1_000_000)
	signer := newFakeSigner()
	rec := &fakeRecorder{}

	bus := EventBus.New()
	var topics []string
	for _, topic := range []string{TopicStarted, TopicBroadcast, TopicConfirmed, TopicFailed} {
		topic := topic
		require.NoError(t, bus.Subscribe(topic, func(Event) { topics = append(topics, topic) }))
	}

	ins := newTestInscriber(t, node, signer, rec, bus)
	res, err := ins.Inscribe(context.Background(), textPayload("hello"), testOptions(t))
	require.NoError(t, err)

	// Two broadcasts: commit then reveal; the reveal txid names the
	// inscription at index 0.
	require.Len(t, node.broadcast, 2)
	assert.Equal(t, node.broadcast[0], res.CommitTxID)
	assert.Equal(t, node.broadcast[1], res.RevealTxID)
	assert.Equal(t, res.RevealTxID+"i0", res.InscriptionID)
	assert.Equal(t, 5.0, res.FeeRate)
	assert.NotZero(t, res.CommitFee)
	assert.NotZero(t, res.RevealFee)

	assert.Equal(t, int32(1), signer.commitCalls.Load())
	assert.Equal(t, int32(1), signer.revealCalls.Load())

	// Recorder saw the committed entry before the revealed one.
	require.Len(t, rec.entries, 2)
	assert.Equal(t, StatusCommitted, rec.entries[0].Status)
	assert.Equal(t, StatusRevealed, rec.entries[1].Status)
	assert.Equal(t, res.CommitTxID, rec.entries[1].CommitTxID)
	assert.Equal(t, res.InscriptionID, rec.entries[1].InscriptionID)

	assert.Equal(t, []string{TopicStarted, TopicBroadcast, TopicBroadcast, TopicConfirmed}, topics)
}

func TestInscribeRejectsInvalidPayload(t *testing.T) {
	ins := newTestInscriber(t, newTestNode(1_000_000), newFakeSigner(), nil, nil)

	_, err := ins.Inscribe(context.Background(), textPayload(""), testOptions(t))
	require.Error(t, err)
	assert.Equal(t, CodeInvalidInput, Code(err))

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseSelect, perr.Phase)
	assert.False(t, perr.Phase.CommitMayBeOnChain())
}

func TestInscribeInsufficientFunds(t *testing.T) {
	ins := newTestInscriber(t, newTestNode(100), newFakeSigner(), nil, nil)

	_, err := ins.Inscribe(context.Background(), textPayload("hello"), testOptions(t))
	require.Error(t, err)
	assert.Equal(t, CodeInsufficientFunds, Code(err))

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseSelect, perr.Phase)
	assert.Empty(t, perr.CommitTxID)
}

func TestInscribeFeeRateFromOracle(t *testing.T) {
	node := newTestNode(1_000_000)
	ins, err := New(Config{
		Service: node,
		Signer:  newFakeSigner(),
		Params:  testChain,
		Oracle:  network.StaticOracle{Rate: 12},
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	opts := testOptions(t)
	opts.FeeRate = 0 // force the oracle path
	res, err := ins.Inscribe(context.Background(), textPayload("hello"), opts)
	require.NoError(t, err)
	assert.Equal(t, 12.0, res.FeeRate)
}

func TestInscribeCommitBroadcastFailure(t *testing.T) {
	node := newTestNode(1_000_000)
	node.BroadcastTxFn = func(ctx context.Context, raw string) (string, error) {
		return "", fmt.Errorf("%w: %w", network.ErrBroadcastRejected,
			&network.RPCError{Code: -26, Message: "min relay fee not met"})
	}
	ins := newTestInscriber(t, node, newFakeSigner(), nil, nil)

	_, err := ins.Inscribe(context.Background(), textPayload("hello"), testOptions(t))
	require.Error(t, err)
	assert.Equal(t, CodeBroadcastFailed, Code(err))

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseCommitBroadcast, perr.Phase)
	assert.Empty(t, perr.CommitTxID)
}

// A reveal-phase failure names the broadcast commit, so the caller can
// resume instead of losing the committed value.
func TestInscribeRevealFailureNamesCommit(t *testing.T) {
	node := newTestNode(1_000_000)
	signer := newFakeSigner()
	signer.failReveal = fmt.Errorf("signer hsm offline")
	ins := newTestInscriber(t, node, signer, nil, nil)

	_, err := ins.Inscribe(context.Background(), textPayload("hello"), testOptions(t))
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseRevealSign, perr.Phase)
	assert.True(t, perr.Phase.CommitMayBeOnChain())
	require.Len(t, node.broadcast, 1)
	assert.Equal(t, node.broadcast[0], perr.CommitTxID)
}

func TestResumeReveal(t *testing.T) {
	node := newTestNode(1_000_000)
	commitTxID := fmt.Sprintf("%064x", 0xbeef)
	node.GetUTXOFn = func(ctx context.Context, txid string, vout uint32) (*network.UTXO, error) {
		assert.Equal(t, commitTxID, txid)
		assert.Equal(t, uint32(0), vout)
		return &network.UTXO{TxID: txid, Vout: 0, Value: 50_000}, nil
	}
	ins := newTestInscriber(t, node, newFakeSigner(), nil, nil)

	res, err := ins.ResumeReveal(context.Background(), commitTxID, textPayload("hello"), testOptions(t))
	require.NoError(t, err)
	assert.Equal(t, commitTxID, res.CommitTxID)
	require.Len(t, node.broadcast, 1) // only the reveal goes out
	assert.Equal(t, node.broadcast[0], res.RevealTxID)
}

func TestResumeRevealSpentCommit(t *testing.T) {
	node := newTestNode(1_000_000)
	node.GetUTXOFn = func(ctx context.Context, txid string, vout uint32) (*network.UTXO, error) {
		return nil, fmt.Errorf("%w: output spent", network.ErrTxNotFound)
	}
	ins := newTestInscriber(t, node, newFakeSigner(), nil, nil)

	_, err := ins.ResumeReveal(context.Background(), fmt.Sprintf("%064x", 1), textPayload("x"), testOptions(t))
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseRevealBuild, perr.Phase)
}

func TestCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{tx.ErrInsufficientFunds, CodeInsufficientFunds},
		{tx.ErrInscribedUTXO, CodeInsufficientFunds},
		{tx.ErrLockedUTXO, CodeInsufficientFunds},
		{tx.ErrDustOutput, CodeDustOutput},
		{tx.ErrInvalidFeeRate, CodeFeeEstimationFailed},
		{network.ErrFeeUnavailable, CodeFeeEstimationFailed},
		{broadcast.ErrBroadcastFailed, CodeBroadcastFailed},
		{broadcast.ErrConfirmationTimeout, CodeConfirmationTimeout},
		{network.ErrConnectionFailed, CodeProviderUnavailable},
		{inscription.ErrInvalidContentType, CodeInvalidInput},
		{inscription.ErrEmptyContent, CodeInvalidInput},
		{tx.ErrUnknownStrategy, CodeInvalidInput},
		{fmt.Errorf("wrapped: %w", tx.ErrDustOutput), CodeDustOutput},
		{fmt.Errorf("unrelated"), ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Code(tt.err), tt.err.Error())
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Service: newTestNode(1), Signer: newFakeSigner()})
	assert.Error(t, err)
}
