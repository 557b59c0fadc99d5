package tx

import "errors"

var (
	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("tx: required parameter is nil")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("tx: invalid parameters")

	// ErrInvalidFeeRate indicates a fee rate outside the accepted range.
	ErrInvalidFeeRate = errors.New("tx: invalid fee rate")

	// ErrInsufficientFunds indicates the spendable UTXOs cannot cover the
	// target amount plus fees.
	ErrInsufficientFunds = errors.New("tx: insufficient funds")

	// ErrInscribedUTXO indicates an inscription-bearing UTXO reached a
	// place it must never reach.
	ErrInscribedUTXO = errors.New("tx: inscription-bearing utxo selected")

	// ErrLockedUTXO indicates a locked UTXO was selected without the
	// explicit override.
	ErrLockedUTXO = errors.New("tx: locked utxo selected")

	// ErrDustOutput indicates an output below the dust threshold.
	ErrDustOutput = errors.New("tx: output below dust threshold")

	// ErrUnknownStrategy indicates an unrecognized selection strategy.
	ErrUnknownStrategy = errors.New("tx: unknown selection strategy")

	// ErrScriptBuild indicates script construction failed.
	ErrScriptBuild = errors.New("tx: script build failed")
)
