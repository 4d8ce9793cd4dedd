// Package pagination implements newest-first keyset paging shared by the
// issuance ledger, registries, notifications and the security log.
package pagination

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// cursorLen is 8 bytes of unix nanoseconds followed by the 16-byte row id.
const cursorLen = 8 + 16

var ErrInvalidCursor = errors.New("invalid cursor")

// Params holds cursor pagination inputs from controllers or services.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the keyset position of the last row served: its sort timestamp and id.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// LimitWithBuffer asks for one extra row so Trim can tell whether a next page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// Trim cuts a buffered result set down to the page size. When more rows exist it
// returns the cursor of the last row served; queries resume strictly after it.
func Trim[T any](rows []T, limit int, key func(T) Cursor) ([]T, *Cursor) {
	size := NormalizeLimit(limit)
	if len(rows) <= size {
		return rows, nil
	}
	next := key(rows[size-1])
	return rows[:size], &next
}

// Before is a gorm scope resuming a (timeColumn DESC, idColumn DESC) listing
// strictly after c. A nil cursor leaves the query alone.
func Before(timeColumn, idColumn string, c *Cursor) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if c == nil {
			return db
		}
		at := c.At.UTC()
		return db.Where(
			fmt.Sprintf("(%[1]s < ?) OR (%[1]s = ? AND %[2]s < ?)", timeColumn, idColumn),
			at, at, c.ID,
		)
	}
}

func EncodeCursor(c Cursor) string {
	buf := make([]byte, cursorLen)
	binary.BigEndian.PutUint64(buf[:8], uint64(c.At.UnixNano()))
	copy(buf[8:], c.ID[:])
	return base64.RawURLEncoding.EncodeToString(buf)
}

// EncodeNext encodes cursor when present and returns "" otherwise.
func EncodeNext(c *Cursor) string {
	if c == nil {
		return ""
	}
	return EncodeCursor(*c)
}

// ParseCursor decodes a cursor produced by EncodeCursor. A blank value means
// the first page and yields nil.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	if len(raw) != cursorLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidCursor, len(raw))
	}
	id, err := uuid.FromBytes(raw[8:])
	if err != nil || id == uuid.Nil {
		return nil, fmt.Errorf("%w: bad row id", ErrInvalidCursor)
	}
	at := time.Unix(0, int64(binary.BigEndian.Uint64(raw[:8]))).UTC()
	return &Cursor{At: at, ID: id}, nil
}
