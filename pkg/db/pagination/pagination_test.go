package pagination

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 123, time.UTC)
	token, err := EncodeCursor(Cursor{ID: snowflake.ID(42), CreatedAt: at})
	require.NoError(t, err)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(42), decoded.ID)
	assert.True(t, decoded.CreatedAt.Equal(at))
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not-base64!")
	assert.ErrorIs(t, err, ErrInvalidPageToken)

	cursor, err := DecodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestPageTrimsExtraRow(t *testing.T) {
	items := []int{5, 4, 3}
	page, info := Page(items, 2, func(v int) Cursor {
		return Cursor{ID: snowflake.ID(v), CreatedAt: time.Unix(int64(v), 0)}
	})
	assert.Equal(t, []int{5, 4}, page)
	assert.True(t, info.HasMore)
	assert.NotEmpty(t, info.NextPageToken)

	page, info = Page([]int{1}, 2, func(v int) Cursor { return Cursor{} })
	assert.Equal(t, []int{1}, page)
	assert.False(t, info.HasMore)
}

func TestSizeClamp(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Size())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Size())
	assert.Equal(t, 10, Pagination{PageSize: 10}.Size())
}
