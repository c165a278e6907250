package repositories

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	pos := cursorPosition{CreatedAt: 1700000000123, MessageID: "abc-123"}

	decoded, err := decodeCursor(encodeCursor(pos))
	require.NoError(t, err)
	assert.Equal(t, pos, decoded)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := decodeCursor("not base64!!")
	assert.ErrorIs(t, err, ErrBadCursor)

	// Valid base64 but not a cursor document.
	_, err = decodeCursor("bm90IGpzb24")
	assert.ErrorIs(t, err, ErrBadCursor)
}

func TestDecodeCursorRejectsEmptyPosition(t *testing.T) {
	_, err := decodeCursor(encodeCursor(cursorPosition{}))
	assert.ErrorIs(t, err, ErrBadCursor)
}
