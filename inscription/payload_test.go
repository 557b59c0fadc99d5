package inscription

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload *Payload
		wantErr error
	}{
		{
			name:    "valid text",
			payload: &Payload{Content: []byte("hello, world"), ContentType: "text/plain"},
		},
		{
			name:    "valid with charset parameter",
			payload: &Payload{Content: []byte("hi"), ContentType: "text/plain;charset=utf-8"},
		},
		{
			name:    "valid binary",
			payload: &Payload{Content: []byte{0x89, 0x50, 0x4e, 0x47}, ContentType: "image/png"},
		},
		{
			name:    "nil payload",
			payload: nil,
			wantErr: ErrNilParam,
		},
		{
			name:    "empty content",
			payload: &Payload{ContentType: "text/plain"},
			wantErr: ErrEmptyContent,
		},
		{
			name:    "oversized content",
			payload: &Payload{Content: make([]byte, MaxContentSize+1), ContentType: "image/png"},
			wantErr: ErrContentTooLarge,
		},
		{
			name:    "content type without subtype",
			payload: &Payload{Content: []byte("x"), ContentType: "text"},
			wantErr: ErrInvalidContentType,
		},
		{
			name:    "content type with spaces",
			payload: &Payload{Content: []byte("x"), ContentType: "text / plain"},
			wantErr: ErrInvalidContentType,
		},
		{
			name:    "empty content type",
			payload: &Payload{Content: []byte("x")},
			wantErr: ErrInvalidContentType,
		},
		{
			name: "oversized content type parameter",
			payload: &Payload{
				Content:     []byte("x"),
				ContentType: "text/plain;comment=" + strings.Repeat("a", 70_000),
			},
			wantErr: ErrInvalidContentType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidContentType(t *testing.T) {
	valid := []string{
		"text/plain",
		"text/plain;charset=utf-8",
		"text/html; charset=utf-8",
		"application/json",
		"image/svg+xml",
		"application/x-tar",
		"model/gltf-binary",
	}
	for _, s := range valid {
		assert.True(t, ValidContentType(s), s)
	}

	invalid := []string{
		"",
		"text",
		"/plain",
		"text/",
		"te xt/plain",
		"text/pl@in",
		"-text/plain",
	}
	for _, s := range invalid {
		assert.False(t, ValidContentType(s), s)
	}
}

// The whole content type string, parameters included, is bounded: past the
// cap the envelope push encoding could no longer carry it faithfully.
func TestContentTypeLengthBoundary(t *testing.T) {
	atCap := "text/plain;p=" + strings.Repeat("a", MaxContentTypeLen-len("text/plain;p="))
	require.Len(t, atCap, MaxContentTypeLen)
	require.NoError(t, (&Payload{Content: []byte("x"), ContentType: atCap}).Validate())

	pastCap := atCap + "a"
	err := (&Payload{Content: []byte("x"), ContentType: pastCap}).Validate()
	assert.ErrorIs(t, err, ErrInvalidContentType)
}

func TestPayloadAtSizeLimit(t *testing.T) {
	p := &Payload{Content: make([]byte, MaxContentSize), ContentType: "application/octet-stream"}
	require.NoError(t, p.Validate())
	assert.Equal(t, MaxContentSize, p.Size())
	assert.True(t, bytes.Equal(p.Content, p.Body()))
}
