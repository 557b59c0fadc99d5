package tx

import (
	"fmt"
	"sort"
)

// Strategy names a UTXO selection policy.
type Strategy string

const (
	// StrategyMinimizeChange accumulates largest-first, then swaps the last
	// input for the smallest candidate that still covers, shrinking leftover.
	StrategyMinimizeChange Strategy = "minimize_change"

	// StrategyMinimizeInputs takes the fewest inputs, largest-first.
	StrategyMinimizeInputs Strategy = "minimize_inputs"

	// StrategyOptimizeSize balances input count against change size by
	// preferring values near an iteratively refined per-input target.
	StrategyOptimizeSize Strategy = "optimize_size"
)

// SelectOptions widens the candidate set beyond plain spendable UTXOs. Both
// flags default to false; inscription-bearing UTXOs in particular must never
// be spent by accident.
type SelectOptions struct {
	AllowLocked             bool // include UTXOs leased by another flow
	AllowInscriptionBearing bool // include UTXOs carrying an inscription

	// OutputCount is the number of payment outputs the funded transaction
	// will carry, before change. Zero means one. Batch commits set this to
	// their item count so fees are computed for the real shape.
	OutputCount int
}

// SelectionResult is the outcome of a selection: the chosen inputs, the fee
// they pay, and the change left over (zero when change was folded into fee).
type SelectionResult struct {
	Selected     []*UTXO `json:"selected"`
	ChangeAmount uint64  `json:"change_amount"`
	Fee          uint64  `json:"fee"`
}

// InputTotal sums the selected input values.
func (r *SelectionResult) InputTotal() uint64 {
	return SumValue(r.Selected)
}

// Selector chooses inputs from a caller-owned UTXO snapshot. The snapshot is
// never mutated; concurrent calls over the same snapshot may pick overlapping
// UTXOs, so serialization is the caller's concern.
type Selector struct {
	estimator *FeeEstimator
}

// NewSelector returns a selector computing fees with the given estimator,
// or default component sizes when nil.
func NewSelector(estimator *FeeEstimator) *Selector {
	if estimator == nil {
		estimator = NewFeeEstimator()
	}
	return &Selector{estimator: estimator}
}

// Select picks inputs covering target plus the fee for the resulting
// transaction shape: opts.OutputCount payment outputs (one by default) and
// one change output. When change would fall below DustLimit the change
// output is dropped and the difference folds into the fee.
func (s *Selector) Select(utxos []*UTXO, target uint64, feeRate float64, strategy Strategy, opts SelectOptions) (*SelectionResult, error) {
	if target == 0 {
		return nil, fmt.Errorf("%w: zero target amount", ErrInvalidParams)
	}
	if err := ValidateFeeRate(feeRate); err != nil {
		return nil, err
	}
	nOut := opts.OutputCount
	if nOut <= 0 {
		nOut = 1
	}

	candidates := filterCandidates(utxos, opts)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no spendable utxos", ErrInsufficientFunds)
	}

	var (
		picked []*UTXO
		err    error
	)
	switch strategy {
	case StrategyMinimizeChange:
		picked, err = s.pickMinimizeChange(candidates, target, feeRate, nOut)
	case StrategyMinimizeInputs:
		picked, err = s.pickLargestFirst(candidates, target, feeRate, nOut)
	case StrategyOptimizeSize:
		picked, err = s.pickOptimizeSize(candidates, target, feeRate, nOut)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	if err != nil {
		return nil, err
	}

	result, err := s.finalize(picked, target, feeRate, nOut)
	if err != nil {
		return nil, err
	}
	if err := verifySelection(result, opts); err != nil {
		return nil, err
	}
	return result, nil
}

// verifySelection independently re-checks the selection outcome. The
// candidate filter already excluded these, but a strategy defect here would
// destroy value, so the result is verified on its own.
func verifySelection(result *SelectionResult, opts SelectOptions) error {
	for _, u := range result.Selected {
		if u.HasInscription && !opts.AllowInscriptionBearing {
			return fmt.Errorf("%w: %s", ErrInscribedUTXO, u.Outpoint())
		}
		if u.Locked && !opts.AllowLocked {
			return fmt.Errorf("%w: %s", ErrLockedUTXO, u.Outpoint())
		}
	}
	return nil
}

func filterCandidates(utxos []*UTXO, opts SelectOptions) []*UTXO {
	out := make([]*UTXO, 0, len(utxos))
	for _, u := range utxos {
		if u == nil {
			continue
		}
		if u.HasInscription && !opts.AllowInscriptionBearing {
			continue
		}
		if u.Locked && !opts.AllowLocked {
			continue
		}
		out = append(out, u)
	}
	return out
}

// sortDescending orders by value high to low, outpoint as a deterministic
// tie-break.
func sortDescending(utxos []*UTXO) []*UTXO {
	out := append([]*UTXO(nil), utxos...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Outpoint() < out[j].Outpoint()
	})
	return out
}

// accumulate walks ordered candidates until the running total covers target
// plus the fee recomputed for the current input count. The bar is the
// no-change fee: a total that only clears the changeless shape is still
// viable, with the leftover folding into the fee.
func (s *Selector) accumulate(ordered []*UTXO, target uint64, feeRate float64, nOut int) ([]*UTXO, error) {
	var (
		picked []*UTXO
		total  uint64
	)
	for _, u := range ordered {
		picked = append(picked, u)
		total += u.Value
		fee, err := s.estimator.EstimateFee(s.estimator.EstimateVSize(len(picked), nOut), feeRate)
		if err != nil {
			return nil, err
		}
		if total >= target+fee {
			return picked, nil
		}
	}
	return nil, fmt.Errorf("%w: have %d sat, need %d sat plus fees",
		ErrInsufficientFunds, SumValue(ordered), target)
}

func (s *Selector) pickLargestFirst(candidates []*UTXO, target uint64, feeRate float64, nOut int) ([]*UTXO, error) {
	return s.accumulate(sortDescending(candidates), target, feeRate, nOut)
}

// pickMinimizeChange starts from the largest-first pick, then tries to swap
// the final input for the smallest candidate that still covers the target,
// reducing the leftover without changing the input count.
func (s *Selector) pickMinimizeChange(candidates []*UTXO, target uint64, feeRate float64, nOut int) ([]*UTXO, error) {
	ordered := sortDescending(candidates)
	picked, err := s.accumulate(ordered, target, feeRate, nOut)
	if err != nil {
		return nil, err
	}

	fee, err := s.estimator.EstimateFee(s.estimator.EstimateVSize(len(picked), nOut), feeRate)
	if err != nil {
		return nil, err
	}
	need := target + fee
	baseTotal := SumValue(picked[:len(picked)-1])

	// Walk ascending through unused candidates; the first one that still
	// covers is the tightest fit for the final slot.
	used := make(map[string]bool, len(picked))
	for _, u := range picked {
		used[u.Outpoint()] = true
	}
	for i := len(ordered) - 1; i >= 0; i-- {
		u := ordered[i]
		if used[u.Outpoint()] {
			continue
		}
		if baseTotal+u.Value >= need {
			picked[len(picked)-1] = u
			break
		}
	}
	return picked, nil
}

// pickOptimizeSize orders candidates by distance from a per-input target and
// refines that target from the input count the previous pass produced.
func (s *Selector) pickOptimizeSize(candidates []*UTXO, target uint64, feeRate float64, nOut int) ([]*UTXO, error) {
	var (
		picked []*UTXO
		err    error
	)
	estimated := 1
	for iter := 0; iter < 3; iter++ {
		fee, ferr := s.estimator.EstimateFee(s.estimator.EstimateVSize(estimated, nOut+1), feeRate)
		if ferr != nil {
			return nil, ferr
		}
		perInput := (target + fee) / uint64(estimated)

		ordered := append([]*UTXO(nil), candidates...)
		sort.Slice(ordered, func(i, j int) bool {
			di, dj := distance(ordered[i].Value, perInput), distance(ordered[j].Value, perInput)
			if di != dj {
				return di < dj
			}
			return ordered[i].Outpoint() < ordered[j].Outpoint()
		})

		picked, err = s.accumulate(ordered, target, feeRate, nOut)
		if err != nil {
			return nil, err
		}
		if len(picked) == estimated {
			break
		}
		estimated = len(picked)
	}
	return picked, err
}

func distance(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// finalize applies the dust rule. A change output exists only when the
// leftover covers both the output's own fee cost and the dust limit;
// otherwise the leftover folds into the fee. Either way
// inputTotal = target + change + fee holds exactly.
func (s *Selector) finalize(picked []*UTXO, target uint64, feeRate float64, nOut int) (*SelectionResult, error) {
	total := SumValue(picked)
	feeWithChange, err := s.estimator.EstimateFee(s.estimator.EstimateVSize(len(picked), nOut+1), feeRate)
	if err != nil {
		return nil, err
	}

	if total >= target+feeWithChange {
		change := total - target - feeWithChange
		if change == 0 {
			return &SelectionResult{Selected: picked, Fee: feeWithChange}, nil
		}
		if change >= DustLimit {
			return &SelectionResult{Selected: picked, ChangeAmount: change, Fee: feeWithChange}, nil
		}
	}
	return &SelectionResult{Selected: picked, Fee: total - target}, nil
}
