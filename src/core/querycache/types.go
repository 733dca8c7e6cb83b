package querycache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrProviderUnavailable is returned by providers that cannot serve a
	// request at all (missing credentials, unreachable host).
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrRateLimited is returned when the local provider budget is spent.
	ErrRateLimited = errors.New("embedding provider rate limited")
)

// Embedding is a vector together with the model that produced it
type Embedding struct {
	Vector []float32
	Model  string
}

// Provider produces embeddings for free text
type Provider interface {
	// Embed returns the embedding of text. It may fail on quota, network
	// or auth problems.
	Embed(ctx context.Context, text string) (Embedding, error)
}

// Record is a persisted query embedding keyed by its query hash
type Record struct {
	QueryHash  string
	QueryText  string
	Embedding  []float32
	Model      string
	CreatedAt  time.Time
	LastUsedAt time.Time
	UseCount   int64
}

// Toucher records that a cached embedding was used
type Toucher interface {
	Touch(ctx context.Context, queryHash string, usedAt time.Time) error
}

// Store is the persistent query embedding cache
type Store interface {
	Toucher

	// Get returns the record for queryHash, or nil when there is none.
	Get(ctx context.Context, queryHash string) (*Record, error)

	// Upsert stores rec. Concurrent upserts for the same hash must not fail
	// on the duplicate key; the last writer wins.
	Upsert(ctx context.Context, rec *Record) error
}

// Result is the outcome of GetOrCreate when an embedding is available
type Result struct {
	Embedding []float32
	Model     string
	CacheHit  bool
	// EmbedTime is how long the provider took. Zero on a cache hit.
	EmbedTime time.Duration
	// Error carries a non-fatal cache read or write failure.
	Error string
}

// Config holds the tuning values of the cache
type Config struct {
	// Dimensions is the expected vector length. Zero skips the check.
	Dimensions int
	// ProviderTimeout bounds a single provider call.
	ProviderTimeout time.Duration
	// WriteTimeout bounds the detached cache upsert.
	WriteTimeout time.Duration
	// TouchTimeout bounds a background touch.
	TouchTimeout time.Duration
	// MemoSize is the capacity of the in-process memo. Zero disables it.
	MemoSize int
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() Config {
	return Config{
		ProviderTimeout: 10 * time.Second,
		WriteTimeout:    5 * time.Second,
		TouchTimeout:    5 * time.Second,
		MemoSize:        0,
	}
}
