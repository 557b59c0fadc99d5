package inscription

import "errors"

var (
	// ErrEmptyContent indicates the payload carries no content bytes.
	ErrEmptyContent = errors.New("inscription: empty content")

	// ErrContentTooLarge indicates the content exceeds MaxContentSize.
	ErrContentTooLarge = errors.New("inscription: content too large")

	// ErrInvalidContentType indicates the content type does not match the
	// RFC 6838 type/subtype token grammar.
	ErrInvalidContentType = errors.New("inscription: invalid content type")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("inscription: required parameter is nil")

	// ErrInvalidEnvelope indicates the script is not a valid inscription envelope.
	ErrInvalidEnvelope = errors.New("inscription: invalid envelope")

	// ErrInvalidWitness indicates the witness stack does not carry an envelope.
	ErrInvalidWitness = errors.New("inscription: invalid witness")

	// ErrInvalidID indicates a malformed inscription identifier.
	ErrInvalidID = errors.New("inscription: invalid inscription id")
)
