package tx

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFeeRate(t *testing.T) {
	for _, rate := range []float64{1, 2.5, 10, 500, 1_000_000} {
		assert.NoError(t, ValidateFeeRate(rate))
	}
	for _, rate := range []float64{0, -1, 0.99, 1_000_001, math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.ErrorIs(t, ValidateFeeRate(rate), ErrInvalidFeeRate)
	}
}

func TestEstimateVSize(t *testing.T) {
	e := NewFeeEstimator()
	assert.Equal(t, 10+148+2*34, e.EstimateVSize(1, 2))
	assert.Equal(t, 10+3*148+34, e.EstimateVSize(3, 1))
	assert.Equal(t, 10, e.EstimateVSize(0, 0))

	custom := &FeeEstimator{InputSize: 58, OutputSize: 43, Overhead: 10}
	assert.Equal(t, 10+58+43, custom.EstimateVSize(1, 1))
}

func TestEstimateFeeRoundsUp(t *testing.T) {
	e := NewFeeEstimator()

	fee, err := e.EstimateFee(100, 1.5)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), fee)

	fee, err = e.EstimateFee(101, 1.1)
	require.NoError(t, err)
	assert.Equal(t, uint64(112), fee)

	fee, err = e.EstimateFee(226, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(2260), fee)

	_, err = e.EstimateFee(100, 0)
	assert.ErrorIs(t, err, ErrInvalidFeeRate)

	_, err = e.EstimateFee(-1, 1)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestEstimateRevealVSize(t *testing.T) {
	e := NewFeeEstimator()

	small := e.EstimateRevealVSize(100)
	large := e.EstimateRevealVSize(100_000)
	assert.Greater(t, large, small)

	// Witness bytes get the quarter-weight discount: growing the envelope
	// by 400 bytes grows the vsize by about 100 vbytes.
	delta := e.EstimateRevealVSize(500) - e.EstimateRevealVSize(100)
	assert.InDelta(t, 100, delta, 2)

	// The non-witness skeleton alone is 94 bytes.
	assert.Greater(t, e.EstimateRevealVSize(0), 94)
}
