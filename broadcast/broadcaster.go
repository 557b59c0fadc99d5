package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ordfsorg/libinscribe-go/network"
)

// DefaultAttempts is the total number of broadcast tries, including the
// first.
const DefaultAttempts = 3

// BroadcastResult reports a broadcast outcome: the accepted txid, how many
// attempts it took, and whether any of them succeeded.
type BroadcastResult struct {
	TxID      string `json:"txid"`
	Attempts  int    `json:"attempts"`
	Succeeded bool   `json:"succeeded"`
}

// Broadcaster submits signed transactions with classified retries: temporary
// failures (node unreachable, timeouts, mempool pressure) are retried with
// backoff, permanent rejections (malformed tx, missing inputs, fee below the
// relay floor) fail immediately.
type Broadcaster struct {
	svc      network.BlockchainService
	attempts int
	sleep    sleepFunc
	log      zerolog.Logger
}

// NewBroadcaster returns a broadcaster with DefaultAttempts tries.
func NewBroadcaster(svc network.BlockchainService, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		svc:      svc,
		attempts: DefaultAttempts,
		sleep:    ctxSleep,
		log:      log.With().Str("component", "broadcaster").Logger(),
	}
}

// Broadcast submits rawTxHex, retrying temporary failures up to the attempt
// budget with 0s/2s/4s backoff. On failure the result still reports the
// attempt count, and the error wraps ErrBroadcastFailed around the last
// node error.
func (b *Broadcaster) Broadcast(ctx context.Context, rawTxHex string) (*BroadcastResult, error) {
	if b.svc == nil {
		return nil, fmt.Errorf("%w: blockchain service", ErrNilParam)
	}

	var txid string
	attempts, err := retry(ctx, b.attempts, b.sleep, func(attempt int) (bool, error) {
		id, err := b.svc.BroadcastTx(ctx, rawTxHex)
		if err != nil {
			temporary := Temporary(err)
			b.log.Warn().Int("attempt", attempt).Bool("temporary", temporary).
				Err(err).Msg("broadcast attempt failed")
			return temporary, err
		}
		txid = id
		b.log.Info().Str("txid", id).Int("attempt", attempt).Msg("transaction accepted")
		return false, nil
	})
	if err != nil {
		return &BroadcastResult{Attempts: attempts},
			fmt.Errorf("%w after %d attempts: %w", ErrBroadcastFailed, attempts, err)
	}
	return &BroadcastResult{TxID: txid, Attempts: attempts, Succeeded: true}, nil
}

// Substrings of bitcoind reject messages that signal mempool pressure
// rather than a defect in the transaction itself.
var temporaryRejects = []string{
	"mempool min fee not met",
	"mempool full",
	"too-long-mempool-chain",
	"too many unconfirmed",
}

// Temporary classifies a broadcast error. Connection failures, timeouts,
// node warmup and mempool pressure are worth retrying; every other node
// rejection is permanent.
func Temporary(err error) bool {
	if errors.Is(err, network.ErrConnectionFailed) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var rpcErr *network.RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code == -28 { // node still warming up
			return true
		}
		msg := strings.ToLower(rpcErr.Message)
		for _, s := range temporaryRejects {
			if strings.Contains(msg, s) {
				return true
			}
		}
	}
	return false
}
