package tx

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcd/wire"
)

const (
	// DustLimit is the minimum output value in satoshis. Outputs below it
	// are nonstandard and will not relay.
	DustLimit = 546

	// MinFeeRate and MaxFeeRate bound accepted fee rates in sat/vbyte.
	MinFeeRate = 1
	MaxFeeRate = 1_000_000
)

// Default virtual sizes in vbytes. Inputs assume the worst-case legacy
// size unless the caller knows the script type.
const (
	DefaultInputSize        = 148 // P2PKH input with signature
	DefaultTaprootInputSize = 58  // key-path P2TR input, witness discounted
	DefaultOutputSize       = 34  // P2PKH output; P2TR outputs are 43
	DefaultOverhead         = 10  // version, locktime, in/out counts
)

// FeeEstimator computes virtual sizes and fees for unsigned transactions.
// Per-component weights are configurable so callers with segwit-only or
// taproot-only wallets can tighten the estimates.
type FeeEstimator struct {
	InputSize        int // vbytes per non-taproot input
	TaprootInputSize int // vbytes per key-path taproot input
	OutputSize       int // vbytes per output
	Overhead         int // fixed transaction skeleton vbytes
}

// NewFeeEstimator returns an estimator with the default component sizes.
func NewFeeEstimator() *FeeEstimator {
	return &FeeEstimator{
		InputSize:        DefaultInputSize,
		TaprootInputSize: DefaultTaprootInputSize,
		OutputSize:       DefaultOutputSize,
		Overhead:         DefaultOverhead,
	}
}

// ValidateFeeRate rejects non-finite rates and rates outside
// [MinFeeRate, MaxFeeRate] sat/vbyte.
func ValidateFeeRate(rate float64) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return fmt.Errorf("%w: rate must be finite", ErrInvalidFeeRate)
	}
	if rate < MinFeeRate || rate > MaxFeeRate {
		return fmt.Errorf("%w: %g sat/vbyte outside [%d, %d]",
			ErrInvalidFeeRate, rate, MinFeeRate, MaxFeeRate)
	}
	return nil
}

// EstimateVSize returns the virtual size of a transaction with the given
// input and output counts, assuming non-taproot inputs.
func (e *FeeEstimator) EstimateVSize(numInputs, numOutputs int) int {
	return e.Overhead + numInputs*e.InputSize + numOutputs*e.OutputSize
}

// EstimateFee returns ceil(vsize × rate) in satoshis after validating the
// rate. Rounding always goes up so the estimate never under-pays.
func (e *FeeEstimator) EstimateFee(vsize int, rate float64) (uint64, error) {
	if err := ValidateFeeRate(rate); err != nil {
		return 0, err
	}
	if vsize < 0 {
		return 0, fmt.Errorf("%w: negative vsize", ErrInvalidParams)
	}
	return uint64(math.Ceil(float64(vsize) * rate)), nil
}

// EstimateRevealVSize returns the virtual size of a reveal transaction
// carrying the given envelope script: one script-path taproot input, one
// taproot output, witness [sig, envelope, control block]. Witness bytes
// count at a quarter weight, rounded up.
func (e *FeeEstimator) EstimateRevealVSize(envelopeSize int) int {
	// Non-witness bytes: skeleton + outpoint/scriptlen/sequence + P2TR output.
	const (
		inputBase     = 36 + 1 + 4
		taprootOutput = 8 + 1 + 34
	)
	base := e.Overhead + inputBase + taprootOutput

	// Witness bytes: segwit marker+flag, stack item count, then the three
	// length-prefixed stack items.
	witness := 2 + 1 +
		1 + 64 + // schnorr signature
		wire.VarIntSerializeSize(uint64(envelopeSize)) + envelopeSize +
		1 + 33 // control block, single-leaf tree

	return base + (witness+3)/4
}

// EstimateRevealFee is EstimateRevealVSize followed by EstimateFee.
func (e *FeeEstimator) EstimateRevealFee(envelopeSize int, rate float64) (uint64, error) {
	return e.EstimateFee(e.EstimateRevealVSize(envelopeSize), rate)
}
