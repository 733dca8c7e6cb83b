package querycache

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// WarmStats summarizes a warm-up run
type WarmStats struct {
	Hits      int
	Misses    int
	Failed    int
	Duplicate int
	// CacheErrors counts misses whose cache lookup or write failed.
	CacheErrors int
}

// ReadQueries reads one query per line, skipping blank lines and lines
// starting with '#'.
func ReadQueries(r io.Reader) ([]string, error) {
	var queries []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queries: %w", err)
	}
	return queries, nil
}

// Warm resolves every query through c so later searches hit the cache.
// Queries that normalize to the same key are resolved once. progress, if
// not nil, is called after each query.
func (c *Cache) Warm(ctx context.Context, queries []string, progress func()) (WarmStats, error) {
	var stats WarmStats
	if !c.Enabled() {
		return stats, ErrProviderUnavailable
	}

	seen := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		hash := HashQuery(q)
		if _, ok := seen[hash]; ok {
			stats.Duplicate++
		} else {
			seen[hash] = struct{}{}
			switch res := c.GetOrCreate(ctx, q); {
			case res == nil:
				stats.Failed++
			case res.CacheHit:
				stats.Hits++
			default:
				stats.Misses++
				if res.Error != "" {
					stats.CacheErrors++
				}
			}
		}

		if progress != nil {
			progress()
		}
	}
	return stats, nil
}
