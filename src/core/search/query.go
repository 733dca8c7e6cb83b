package search

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// NewQuery validates a raw search request. limit may be nil to use the
// default. Every error wraps ErrInvalidQuery.
func NewQuery(userID uuid.UUID, text string, limit *int, cfg Config) (Query, error) {
	if userID == uuid.Nil {
		return Query{}, fmt.Errorf("%w: missing user", ErrInvalidQuery)
	}

	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return Query{}, fmt.Errorf("%w: q is required", ErrInvalidQuery)
	}
	if n > cfg.MaxQueryLength {
		return Query{}, fmt.Errorf("%w: q must be at most %d characters", ErrInvalidQuery, cfg.MaxQueryLength)
	}

	l := cfg.DefaultLimit
	if limit != nil {
		l = *limit
	}
	if l < 1 || l > cfg.MaxLimit {
		return Query{}, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidQuery, cfg.MaxLimit)
	}

	return Query{UserID: userID, Text: text, Limit: l}, nil
}
