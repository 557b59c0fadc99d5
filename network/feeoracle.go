package network

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// FeeOracle produces sat/vbyte fee rate estimates. RPCClient satisfies it
// via estimatesmartfee; external rate services can provide alternatives.
type FeeOracle interface {
	EstimateFeeRate(ctx context.Context, targetBlocks int) (float64, error)
}

// StaticOracle always returns a fixed rate. Useful for regtest, where the
// node has no fee market to estimate from.
type StaticOracle struct {
	Rate float64
}

func (o StaticOracle) EstimateFeeRate(context.Context, int) (float64, error) {
	return o.Rate, nil
}

// OracleChain consults oracles in order and returns the first successful
// estimate. The usual arrangement puts an external fee service first with
// the node as fallback.
type OracleChain struct {
	oracles []FeeOracle
	log     zerolog.Logger
}

// NewOracleChain builds a chain over the given oracles, highest priority
// first.
func NewOracleChain(log zerolog.Logger, oracles ...FeeOracle) *OracleChain {
	return &OracleChain{
		oracles: oracles,
		log:     log.With().Str("component", "feeoracle").Logger(),
	}
}

// EstimateFeeRate walks the chain until an oracle answers. Every failure is
// logged; only after the last oracle fails does the chain report
// ErrFeeUnavailable with the final cause.
func (c *OracleChain) EstimateFeeRate(ctx context.Context, targetBlocks int) (float64, error) {
	var lastErr error
	for i, oracle := range c.oracles {
		rate, err := oracle.EstimateFeeRate(ctx, targetBlocks)
		if err == nil {
			return rate, nil
		}
		lastErr = err
		c.log.Warn().Int("oracle", i).Err(err).Msg("fee oracle failed, trying next")
	}
	if lastErr == nil {
		return 0, fmt.Errorf("%w: no oracles configured", ErrFeeUnavailable)
	}
	return 0, fmt.Errorf("%w: %w", ErrFeeUnavailable, lastErr)
}
