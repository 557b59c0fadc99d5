package inscription

import (
	"fmt"
	"strings"
)

const (
	// MaxContentSize is the largest content accepted for a single
	// inscription. A reveal transaction near 400KB stops being standard,
	// so content is capped below that with room for the tx skeleton.
	MaxContentSize = 390 * 1024

	// MaxChunkSize is the largest single data push allowed inside a
	// tapscript envelope.
	MaxChunkSize = 520

	// MaxContentTypeLen caps the content type string, parameters included.
	// The whole string rides in a single envelope push, so it must stay
	// well under the push size limit.
	MaxContentTypeLen = 255
)

// Payload is the content to be inscribed on a satoshi.
type Payload struct {
	Content       []byte `json:"content"`        // raw content bytes
	ContentType   string `json:"content_type"`   // RFC 6838 media type, e.g. "text/plain"
	TargetSatoshi string `json:"target_satoshi"` // optional ordinal target, opaque to builders
}

// Validate checks the payload for non-empty content within size limits and a
// well-formed content type.
func (p *Payload) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: payload", ErrNilParam)
	}
	if len(p.Content) == 0 {
		return ErrEmptyContent
	}
	if len(p.Content) > MaxContentSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrContentTooLarge, len(p.Content), MaxContentSize)
	}
	if len(p.ContentType) > MaxContentTypeLen {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidContentType,
			len(p.ContentType), MaxContentTypeLen)
	}
	if !ValidContentType(p.ContentType) {
		return fmt.Errorf("%w: %q", ErrInvalidContentType, p.ContentType)
	}
	return nil
}

// Size returns the content length in bytes.
func (p *Payload) Size() int {
	if p == nil {
		return 0
	}
	return len(p.Content)
}

// Body returns the content bytes as they are pushed into the envelope.
// Text media (text/*, application/json) is carried as UTF-8; everything
// else is carried as raw bytes. Either way the bytes pass through
// unmodified -- callers hand over already-encoded content.
func (p *Payload) Body() []byte {
	return p.Content
}

// ValidContentType reports whether s matches the RFC 6838 type "/" subtype
// grammar, where both sides are restricted-name tokens. Parameters
// (";charset=...") are accepted after the subtype.
func ValidContentType(s string) bool {
	if params := strings.IndexByte(s, ';'); params >= 0 {
		s = strings.TrimRight(s[:params], " ")
	}
	typ, sub, ok := strings.Cut(s, "/")
	if !ok {
		return false
	}
	return validToken(typ) && validToken(sub)
}

// validToken checks an RFC 6838 restricted-name: first char alphanumeric,
// then up to 126 further chars from the restricted set.
func validToken(s string) bool {
	if len(s) == 0 || len(s) > 127 {
		return false
	}
	if !isAlnum(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if isAlnum(c) {
			continue
		}
		switch c {
		case '!', '#', '$', '&', '-', '^', '_', '.', '+':
		default:
			return false
		}
	}
	return true
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
