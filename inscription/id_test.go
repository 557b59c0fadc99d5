package inscription

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTxID = "4f2e8a5f0a2e4c3f6b9d1e8c7a5b3d2f1e0c9b8a7d6e5f4c3b2a1d0e9f8c7b6a"

func TestIDString(t *testing.T) {
	id := NewID(testTxID, 0)
	assert.Equal(t, testTxID+"i0", id.String())

	id = NewID(testTxID, 42)
	assert.Equal(t, testTxID+"i42", id.String())
}

func TestParseID(t *testing.T) {
	id, err := ParseID(testTxID + "i7")
	require.NoError(t, err)
	assert.Equal(t, testTxID, id.TxID)
	assert.Equal(t, uint32(7), id.Index)

	// Round trip.
	back, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, back)
}

func TestParseIDRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"i0",
		testTxID,
		testTxID + "i",
		testTxID + "ix",
		testTxID + "i-1",
		testTxID[:20] + "i0",
		strings.Replace(testTxID, "4", "g", 1) + "i0",
		testTxID + "i4294967296",
	}
	for _, s := range bad {
		_, err := ParseID(s)
		assert.ErrorIs(t, err, ErrInvalidID, s)
	}
}
