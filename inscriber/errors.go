package inscriber

import (
	"errors"
	"fmt"

	"github.com/ordfsorg/libinscribe-go/broadcast"
	"github.com/ordfsorg/libinscribe-go/inscription"
	"github.com/ordfsorg/libinscribe-go/network"
	"github.com/ordfsorg/libinscribe-go/tx"
)

// Machine-readable error codes carried by every pipeline failure.
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInsufficientFunds   = "UTXO_INSUFFICIENT_FUNDS"
	CodeDustOutput          = "UTXO_DUST_OUTPUT"
	CodeFeeEstimationFailed = "FEE_ESTIMATION_FAILED"
	CodeBroadcastFailed     = "TX_BROADCAST_FAILED"
	CodeConfirmationTimeout = "TX_CONFIRMATION_TIMEOUT"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
)

// Phase names the pipeline stage an error came from. Phases at or after
// PhaseCommitBroadcast mean the commit may already be on-chain: value then
// sits in the commitment output awaiting a reveal retry, which is a protocol
// characteristic rather than a defect.
type Phase string

const (
	PhaseFeeEstimate     Phase = "fee_estimate"
	PhaseSelect          Phase = "select"
	PhaseCommitBuild     Phase = "commit_build"
	PhaseCommitSign      Phase = "commit_sign"
	PhaseCommitBroadcast Phase = "commit_broadcast"
	PhaseCommitConfirm   Phase = "commit_confirm"
	PhaseRevealBuild     Phase = "reveal_build"
	PhaseRevealSign      Phase = "reveal_sign"
	PhaseRevealBroadcast Phase = "reveal_broadcast"
	PhaseRevealConfirm   Phase = "reveal_confirm"
)

// CommitMayBeOnChain reports whether an error from this phase can leave a
// broadcast commit behind, making ResumeReveal the recovery path.
func (p Phase) CommitMayBeOnChain() bool {
	switch p {
	case PhaseCommitBroadcast, PhaseCommitConfirm,
		PhaseRevealBuild, PhaseRevealSign, PhaseRevealBroadcast, PhaseRevealConfirm:
		return true
	}
	return false
}

// Error is a pipeline failure tagged with its phase and code. CommitTxID is
// set once a commit has been broadcast, so callers know what to resume.
type Error struct {
	Phase      Phase
	Code       string
	CommitTxID string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("inscriber: %s failed (%s): %v", e.Phase, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Code extracts the machine-readable code from any pipeline error, mapping
// sentinel errors from the underlying packages onto the taxonomy. Errors
// from outside the pipeline yield the empty string.
func Code(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Code
	}
	switch {
	case errors.Is(err, tx.ErrInsufficientFunds),
		errors.Is(err, tx.ErrInscribedUTXO),
		errors.Is(err, tx.ErrLockedUTXO):
		return CodeInsufficientFunds
	case errors.Is(err, tx.ErrDustOutput):
		return CodeDustOutput
	case errors.Is(err, tx.ErrInvalidFeeRate),
		errors.Is(err, network.ErrFeeUnavailable):
		return CodeFeeEstimationFailed
	case errors.Is(err, broadcast.ErrBroadcastFailed),
		errors.Is(err, network.ErrBroadcastRejected):
		return CodeBroadcastFailed
	case errors.Is(err, broadcast.ErrConfirmationTimeout):
		return CodeConfirmationTimeout
	case errors.Is(err, network.ErrConnectionFailed),
		errors.Is(err, network.ErrInvalidResponse):
		return CodeProviderUnavailable
	case errors.Is(err, inscription.ErrEmptyContent),
		errors.Is(err, inscription.ErrContentTooLarge),
		errors.Is(err, inscription.ErrInvalidContentType),
		errors.Is(err, inscription.ErrNilParam),
		errors.Is(err, tx.ErrInvalidParams),
		errors.Is(err, tx.ErrNilParam),
		errors.Is(err, tx.ErrUnknownStrategy):
		return CodeInvalidInput
	}
	return ""
}

// phaseErr wraps err with its phase and derived code.
func phaseErr(phase Phase, commitTxID string, err error) *Error {
	code := Code(err)
	if code == "" {
		code = CodeProviderUnavailable
	}
	return &Error{Phase: phase, Code: code, CommitTxID: commitTxID, Err: err}
}
