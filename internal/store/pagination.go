package store

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/safar/mute-store/internal/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

var ErrInvalidCursor = errors.New("invalid cursor")

type PurchasePage struct {
	Items      []models.Purchase `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
	HasMore    bool              `json:"has_more"`
}

// PurchaseCursor marks the last purchase of a page in (created_at, id)
// descending order.
type PurchaseCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        int64     `json:"id"`
}

func EncodeCursor(cursor PurchaseCursor) string {
	data, err := json.Marshal(cursor)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor parses a cursor from EncodeCursor. The empty string is the
// start of the listing.
func DecodeCursor(encoded string) (PurchaseCursor, error) {
	if encoded == "" {
		return PurchaseCursor{
			CreatedAt: time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC),
			ID:        math.MaxInt64,
		}, nil
	}

	var cursor PurchaseCursor
	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return cursor, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if err := json.Unmarshal(data, &cursor); err != nil {
		return cursor, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return cursor, nil
}

// ClampPageSize maps a requested page size into [1, MaxPageSize], using
// DefaultPageSize for zero or negative input.
func ClampPageSize(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}
