package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// ErrInvalidCursor marks a cursor that was not produced by Cursor.Encode.
var ErrInvalidCursor = errors.New("invalid cursor")

// Params is a keyset page request.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the (created_at, id) key of the last row already served.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Encode packs the cursor as base64url("<unix nanos>.<uuid>").
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "." + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an encoded cursor. Blank input means the first page.
func Decode(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	nanos, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return nil, ErrInvalidCursor
	}
	ts, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp", ErrInvalidCursor)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: id", ErrInvalidCursor)
	}
	return &Cursor{CreatedAt: time.Unix(0, ts).UTC(), ID: parsed}, nil
}

// Clamp applies DefaultLimit and MaxLimit.
func Clamp(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Apply scopes query to the page after params.Cursor, newest first, and asks
// for one extra row so Trim can tell whether another page exists.
func Apply(query *gorm.DB, table string, params Params) (*gorm.DB, error) {
	cursor, err := Decode(params.Cursor)
	if err != nil {
		return nil, err
	}
	createdAt, id := table+".created_at", table+".id"
	if cursor != nil {
		query = query.Where(
			fmt.Sprintf("(%[1]s < ? OR (%[1]s = ? AND %[2]s < ?))", createdAt, id),
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	return query.Order(createdAt + " DESC").Order(id + " DESC").Limit(Clamp(params.Limit) + 1), nil
}

// Trim drops the lookahead row and returns the next cursor, or "" on the
// last page.
func Trim[T any](rows []T, limit int, key func(T) Cursor) ([]T, string) {
	size := Clamp(limit)
	if len(rows) <= size {
		return rows, ""
	}
	page := rows[:size]
	return page, key(page[size-1]).Encode()
}
