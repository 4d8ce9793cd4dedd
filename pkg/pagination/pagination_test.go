package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{At: time.Date(2025, 1, 1, 12, 0, 0, 500, time.UTC), ID: uuid.New()}

	out, err := ParseCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, in.At.Equal(out.At))
	assert.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	_, err := ParseCursor("not-base64!!")
	assert.Error(t, err)

	empty, err := ParseCursor("  ")
	assert.NoError(t, err)
	assert.Nil(t, empty)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, 8, LimitWithBuffer(7))
}

func TestTrim(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	key := func(id uuid.UUID) Cursor { return Cursor{ID: id} }

	page, next := Trim(ids, 2, key)
	require.Len(t, page, 2)
	require.NotNil(t, next)
	assert.Equal(t, ids[1], next.ID)

	page, next = Trim(ids[:2], 2, key)
	assert.Len(t, page, 2)
	assert.Nil(t, next)
	assert.Equal(t, "", EncodeNext(next))
}

func TestParseCursorRejectsTruncatedPayload(t *testing.T) {
	full := EncodeCursor(Cursor{At: time.Now(), ID: uuid.New()})

	_, err := ParseCursor(full[:len(full)-4])
	assert.ErrorIs(t, err, ErrInvalidCursor)

	_, err = ParseCursor(EncodeCursor(Cursor{At: time.Now()}))
	assert.ErrorIs(t, err, ErrInvalidCursor, "nil row id")
}

type pagedRow struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time
}

func TestBeforeResumesAfterCursor(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&pagedRow{}))

	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	rows := make([]pagedRow, 5)
	for i := range rows {
		// two rows share a timestamp so the id tie-break is exercised
		rows[i] = pagedRow{ID: uuid.New(), CreatedAt: base.Add(time.Duration(i/2) * time.Minute)}
	}
	require.NoError(t, conn.Create(&rows).Error)

	var seen []uuid.UUID
	var cursor *Cursor
	for {
		var batch []pagedRow
		require.NoError(t, conn.Scopes(Before("created_at", "id", cursor)).
			Order("created_at DESC, id DESC").Limit(LimitWithBuffer(2)).Find(&batch).Error)
		page, next := Trim(batch, 2, func(r pagedRow) Cursor { return Cursor{At: r.CreatedAt, ID: r.ID} })
		for _, r := range page {
			seen = append(seen, r.ID)
		}
		if next == nil {
			break
		}
		cursor, err = ParseCursor(EncodeNext(next))
		require.NoError(t, err)
	}

	assert.Len(t, seen, len(rows))
	assert.ElementsMatch(t, []uuid.UUID{rows[0].ID, rows[1].ID, rows[2].ID, rows[3].ID, rows[4].ID}, seen)
}
