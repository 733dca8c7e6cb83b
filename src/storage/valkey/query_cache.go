package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	vk "github.com/valkey-io/valkey-go"

	"shelf/src/core/querycache"
)

const (
	queryPrefix = "qe:" // Query embedding key prefix
)

// QueryCacheStore keeps each cached query embedding in a hash
type QueryCacheStore struct {
	client vk.Client
	ttl    time.Duration
}

// NewQueryCacheStore connects to addr. A positive ttl expires entries that
// have not been used for that long.
func NewQueryCacheStore(addr string, ttl time.Duration) (*QueryCacheStore, error) {
	client, err := vk.NewClient(vk.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	return &QueryCacheStore{
		client: client,
		ttl:    ttl,
	}, nil
}

// Close releases the connection pool
func (s *QueryCacheStore) Close() {
	s.client.Close()
}

func (s *QueryCacheStore) Get(ctx context.Context, queryHash string) (*querycache.Record, error) {
	fields, err := s.client.Do(ctx, s.client.B().Hgetall().Key(queryPrefix+queryHash).Build()).AsStrMap()
	if err != nil {
		if vk.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached embedding: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	return decodeRecord(queryHash, fields), nil
}

// Upsert writes the vector fields unconditionally and the creation fields
// only if the hash is new, so concurrent fills never fail.
func (s *QueryCacheStore) Upsert(ctx context.Context, rec *querycache.Record) error {
	key := queryPrefix + rec.QueryHash
	fields, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	hset := s.client.B().Hset().Key(key).FieldValue()
	for _, f := range []string{"query_text", "embedding", "embedding_model", "last_used_at"} {
		hset = hset.FieldValue(f, fields[f])
	}

	cmds := vk.Commands{
		hset.Build(),
		s.client.B().Hsetnx().Key(key).Field("created_at").Value(fields["created_at"]).Build(),
		s.client.B().Hsetnx().Key(key).Field("use_count").Value(fields["use_count"]).Build(),
	}
	if s.ttl > 0 {
		cmds = append(cmds, s.client.B().Expire().Key(key).Seconds(int64(s.ttl.Seconds())).Build())
	}

	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("failed to upsert cached embedding: %w", err)
		}
	}
	return nil
}

func (s *QueryCacheStore) Touch(ctx context.Context, queryHash string, usedAt time.Time) error {
	key := queryPrefix + queryHash

	// Only touch entries that still exist so an expired key is not revived
	// as a hash without a vector.
	exists, err := s.client.Do(ctx, s.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to touch cached embedding: %w", err)
	}
	if exists == 0 {
		return nil
	}

	cmds := vk.Commands{
		s.client.B().Hincrby().Key(key).Field("use_count").Increment(1).Build(),
		s.client.B().Hset().Key(key).FieldValue().FieldValue("last_used_at", usedAt.UTC().Format(time.RFC3339Nano)).Build(),
	}
	if s.ttl > 0 {
		cmds = append(cmds, s.client.B().Expire().Key(key).Seconds(int64(s.ttl.Seconds())).Build())
	}

	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("failed to touch cached embedding: %w", err)
		}
	}
	return nil
}

func encodeRecord(rec *querycache.Record) (map[string]string, error) {
	vec, err := json.Marshal(rec.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding: %w", err)
	}

	return map[string]string{
		"query_text":      rec.QueryText,
		"embedding":       string(vec),
		"embedding_model": rec.Model,
		"created_at":      rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		"last_used_at":    rec.LastUsedAt.UTC().Format(time.RFC3339Nano),
		"use_count":       strconv.FormatInt(rec.UseCount, 10),
	}, nil
}

// decodeRecord is lenient: a field that does not parse is left zero, and an
// unreadable vector yields an empty embedding that the cache regenerates.
func decodeRecord(queryHash string, fields map[string]string) *querycache.Record {
	rec := &querycache.Record{
		QueryHash: queryHash,
		QueryText: fields["query_text"],
		Model:     fields["embedding_model"],
	}

	var vec []float32
	if err := json.Unmarshal([]byte(fields["embedding"]), &vec); err == nil {
		rec.Embedding = vec
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["last_used_at"]); err == nil {
		rec.LastUsedAt = t
	}
	if n, err := strconv.ParseInt(fields["use_count"], 10, 64); err == nil {
		rec.UseCount = n
	}
	return rec
}
