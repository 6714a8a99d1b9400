package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorEncodeDecode(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC), ID: uuid.New()}
	out, err := Decode(in.Encode())
	require.NoError(t, err)
	assert.True(t, out.CreatedAt.Equal(in.CreatedAt))
	assert.Equal(t, in.ID, out.ID)

	blank, err := Decode("  ")
	require.NoError(t, err)
	assert.Nil(t, blank)
}

func TestDecodeRejectsForeignCursors(t *testing.T) {
	for name, value := range map[string]string{
		"not base64":   "!!!",
		"no separator": base64.RawURLEncoding.EncodeToString([]byte("12345")),
		"bad nanos":    base64.RawURLEncoding.EncodeToString([]byte("yesterday." + uuid.NewString())),
		"bad id":       base64.RawURLEncoding.EncodeToString([]byte("12345.nope")),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(value)
			assert.ErrorIs(t, err, ErrInvalidCursor)
		})
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, DefaultLimit, Clamp(0))
	assert.Equal(t, MaxLimit, Clamp(500))
	assert.Equal(t, 7, Clamp(7))
}

func TestTrim(t *testing.T) {
	rows := []int{1, 2, 3}
	key := func(v int) Cursor { return Cursor{CreatedAt: time.Unix(int64(v), 0)} }

	page, next := Trim(rows, 2, key)
	assert.Equal(t, []int{1, 2}, page)
	cursor, err := Decode(next)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cursor.CreatedAt.Unix())

	page, next = Trim(rows, 5, key)
	assert.Len(t, page, 3)
	assert.Empty(t, next)
}
