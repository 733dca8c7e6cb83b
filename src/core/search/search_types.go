package search

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"shelf/src/core/querycache"
)

var (
	// ErrInvalidQuery is returned for queries rejected before searching
	ErrInvalidQuery = errors.New("invalid query")
	// ErrStoreUnavailable is returned when the keyword path itself fails
	ErrStoreUnavailable = errors.New("bookmark store unavailable")
)

// Config holds the tuning values of the search service
type Config struct {
	DefaultLimit   int
	MaxLimit       int
	MaxQueryLength int
}

// DefaultConfig returns the limits used by the HTTP API
func DefaultConfig() Config {
	return Config{
		DefaultLimit:   50,
		MaxLimit:       100,
		MaxQueryLength: 500,
	}
}

// Query is a validated search request
type Query struct {
	UserID uuid.UUID
	Text   string
	Limit  int
}

// Result is a single bookmark in a search response
type Result struct {
	ID          uuid.UUID `json:"id"`
	URL         string    `json:"url"`
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	SiteName    *string   `json:"site_name"`
	ImageURL    *string   `json:"image_url"`
	Notes       *string   `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	Tags        []string  `json:"tags"`
}

// Diagnostics describes how the query embedding was obtained
type Diagnostics struct {
	Hit bool `json:"hit"`
	// EmbedTime is in milliseconds and absent on a cache hit.
	EmbedTime *int64 `json:"embedTime,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Response is the outcome of a search
type Response struct {
	Results  []Result     `json:"results"`
	Fallback bool         `json:"fallback,omitempty"`
	Cache    *Diagnostics `json:"_cache,omitempty"`
}

// KeywordFilter selects bookmarks for the keyword path. Exactly one of
// Domain and Text is set.
type KeywordFilter struct {
	UserID uuid.UUID
	Domain string
	Text   string
	Limit  int
}

// EmbeddingSource resolves query embeddings. A nil result means embeddings
// are unavailable.
type EmbeddingSource interface {
	GetOrCreate(ctx context.Context, query string) *querycache.Result
}

// Ranker is the hybrid ranking function. It returns up to limit of the
// user's bookmarks, best first.
type Ranker interface {
	Rank(ctx context.Context, userID uuid.UUID, embedding []float32, text string, limit int) ([]Result, error)
}

// BookmarkStore is the persisted bookmark collection
type BookmarkStore interface {
	// SearchKeyword returns the user's non-archived bookmarks matching
	// filter, newest first, with tags attached.
	SearchKeyword(ctx context.Context, filter KeywordFilter) ([]Result, error)

	// TagsFor returns the tags of the given bookmarks, keyed by bookmark.
	TagsFor(ctx context.Context, userID uuid.UUID, bookmarkIDs []uuid.UUID) (map[uuid.UUID][]string, error)
}
