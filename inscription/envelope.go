package inscription

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
)

// Envelope protocol constants.
var (
	// ProtocolTag marks an inscription envelope: "ord" in ASCII.
	ProtocolTag = []byte{0x6f, 0x72, 0x64}

	// ContentTypeTag precedes the content-type push inside the envelope.
	ContentTypeTag = []byte{0x01}
)

const (
	// SchnorrPubKeyLen is the length of an x-only public key.
	SchnorrPubKeyLen = 32

	// SchnorrSigLen is the length of a BIP-340 signature without a
	// sighash-type byte.
	SchnorrSigLen = 64
)

// BuildEnvelope constructs the tapscript that both locks the commit output to
// revealKey and embeds the payload.
//
// Layout:
//
//	<32-byte x-only revealKey> OP_CHECKSIG
//	OP_FALSE OP_IF
//	  "ord"
//	  0x01 <content-type>
//	  OP_0 <content chunk> [<content chunk> ...]
//	OP_ENDIF
//
// The OP_FALSE OP_IF branch never executes, so the payload rides along
// without affecting script semantics. Pushes use explicit minimal-push
// encoding rather than txscript.ScriptBuilder: the builder canonicalizes
// one-byte pushes to OP_1..OP_16, which breaks the tag convention and the
// ParseEnvelope round trip.
func BuildEnvelope(revealKey *btcec.PublicKey, payload *Payload) ([]byte, error) {
	if revealKey == nil {
		return nil, fmt.Errorf("%w: reveal public key", ErrNilParam)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	pushData(&buf, schnorr.SerializePubKey(revealKey))
	buf.WriteByte(txscript.OP_CHECKSIG)
	buf.WriteByte(txscript.OP_0)
	buf.WriteByte(txscript.OP_IF)
	pushData(&buf, ProtocolTag)
	pushData(&buf, ContentTypeTag)
	pushData(&buf, []byte(payload.ContentType))
	buf.WriteByte(txscript.OP_0)
	for _, chunk := range splitChunks(payload.Body(), MaxChunkSize) {
		pushData(&buf, chunk)
	}
	buf.WriteByte(txscript.OP_ENDIF)

	return buf.Bytes(), nil
}

// ParseEnvelope extracts the content type and content from an envelope
// script previously produced by BuildEnvelope. The recovered payload is
// byte-identical to the original.
func ParseEnvelope(script []byte) (*Payload, error) {
	tok := txscript.MakeScriptTokenizer(0, script)

	next := func() ([]byte, byte, error) {
		if !tok.Next() {
			if err := tok.Err(); err != nil {
				return nil, 0, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
			}
			return nil, 0, fmt.Errorf("%w: truncated script", ErrInvalidEnvelope)
		}
		return tok.Data(), tok.Opcode(), nil
	}

	// <revealKey> OP_CHECKSIG
	data, _, err := next()
	if err != nil {
		return nil, err
	}
	if len(data) != SchnorrPubKeyLen {
		return nil, fmt.Errorf("%w: want %d-byte key push, got %d bytes",
			ErrInvalidEnvelope, SchnorrPubKeyLen, len(data))
	}
	if _, op, err := next(); err != nil {
		return nil, err
	} else if op != txscript.OP_CHECKSIG {
		return nil, fmt.Errorf("%w: missing OP_CHECKSIG", ErrInvalidEnvelope)
	}

	// OP_FALSE OP_IF "ord"
	if _, op, err := next(); err != nil {
		return nil, err
	} else if op != txscript.OP_0 {
		return nil, fmt.Errorf("%w: missing OP_FALSE", ErrInvalidEnvelope)
	}
	if _, op, err := next(); err != nil {
		return nil, err
	} else if op != txscript.OP_IF {
		return nil, fmt.Errorf("%w: missing OP_IF", ErrInvalidEnvelope)
	}
	if data, _, err = next(); err != nil {
		return nil, err
	} else if !bytes.Equal(data, ProtocolTag) {
		return nil, fmt.Errorf("%w: missing protocol tag", ErrInvalidEnvelope)
	}

	// 0x01 <content-type>
	if data, _, err = next(); err != nil {
		return nil, err
	} else if !bytes.Equal(data, ContentTypeTag) {
		return nil, fmt.Errorf("%w: missing content-type tag", ErrInvalidEnvelope)
	}
	contentType, _, err := next()
	if err != nil {
		return nil, err
	}

	// OP_0 then content chunks until OP_ENDIF.
	if _, op, err := next(); err != nil {
		return nil, err
	} else if op != txscript.OP_0 {
		return nil, fmt.Errorf("%w: missing body separator", ErrInvalidEnvelope)
	}
	var content bytes.Buffer
	for {
		data, op, err := next()
		if err != nil {
			return nil, err
		}
		if op == txscript.OP_ENDIF {
			break
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: non-push opcode %#02x in body", ErrInvalidEnvelope, op)
		}
		content.Write(data)
	}

	p := &Payload{
		Content:     content.Bytes(),
		ContentType: string(contentType),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ParseWitness extracts the envelope payload from a reveal witness stack
// [signature, envelope, control block]. An annex element, if present, is
// ignored.
func ParseWitness(witness [][]byte) (*Payload, error) {
	// Strip the annex (last element prefixed 0x50) per BIP-341.
	if len(witness) > 0 {
		last := witness[len(witness)-1]
		if len(last) > 0 && last[0] == 0x50 {
			witness = witness[:len(witness)-1]
		}
	}
	if len(witness) < 3 {
		return nil, fmt.Errorf("%w: want [sig, envelope, control block], got %d elements",
			ErrInvalidWitness, len(witness))
	}
	return ParseEnvelope(witness[len(witness)-2])
}

// pushData appends a minimal-push encoding of data: OP_0 for empty data,
// a direct length byte up to 75 bytes, OP_PUSHDATA1/2 beyond that.
func pushData(buf *bytes.Buffer, data []byte) {
	switch n := len(data); {
	case n == 0:
		buf.WriteByte(txscript.OP_0)
		return
	case n <= 75:
		buf.WriteByte(byte(n))
	case n <= 0xff:
		buf.WriteByte(txscript.OP_PUSHDATA1)
		buf.WriteByte(byte(n))
	default:
		buf.WriteByte(txscript.OP_PUSHDATA2)
		var l [2]byte
		binary.LittleEndian.PutUint16(l[:], uint16(len(data)))
		buf.Write(l[:])
	}
	buf.Write(data)
}

// splitChunks splits data into pushes of at most chunkSize bytes. The last
// chunk may be smaller.
func splitChunks(data []byte, chunkSize int) [][]byte {
	var chunks [][]byte
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	return chunks
}
