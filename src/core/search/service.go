package search

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"shelf/src/core/querycache"
	"shelf/src/infrastructure/log"
)

// route is the path a search takes through the service
type route int

const (
	// routeHybrid ranks with the query embedding and text together
	routeHybrid route = iota
	// routeKeywordUnavailable is the planned keyword path taken when
	// embeddings are switched off or the provider could not produce one
	routeKeywordUnavailable
	// routeKeywordDegraded is the keyword path taken after the ranker failed
	routeKeywordDegraded
)

func (r route) String() string {
	switch r {
	case routeHybrid:
		return "hybrid"
	case routeKeywordUnavailable:
		return "keyword"
	case routeKeywordDegraded:
		return "keyword-degraded"
	default:
		return "unknown"
	}
}

// Service resolves queries into ranked bookmarks, degrading from hybrid
// ranking to keyword matching when embeddings or the ranker are unavailable.
type Service struct {
	embeddings EmbeddingSource
	ranker     Ranker
	bookmarks  BookmarkStore
	cfg        Config
}

// NewService creates a search service. embeddings and ranker may be nil, in
// which case every search takes the keyword path.
func NewService(embeddings EmbeddingSource, ranker Ranker, bookmarks BookmarkStore, cfg Config) (*Service, error) {
	if bookmarks == nil {
		return nil, fmt.Errorf("bookmark store is required")
	}
	if cfg.MaxLimit <= 0 || cfg.DefaultLimit <= 0 || cfg.MaxQueryLength <= 0 {
		return nil, fmt.Errorf("search limits must be positive")
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		return nil, fmt.Errorf("default limit %d exceeds max limit %d", cfg.DefaultLimit, cfg.MaxLimit)
	}
	return &Service{
		embeddings: embeddings,
		ranker:     ranker,
		bookmarks:  bookmarks,
		cfg:        cfg,
	}, nil
}

// Config returns the limits the service validates against
func (s *Service) Config() Config {
	return s.cfg
}

// Search runs q. It fails only when ctx is cancelled or the keyword path
// cannot reach the bookmark store.
func (s *Service) Search(ctx context.Context, q Query) (*Response, error) {
	limit := q.Limit
	if limit <= 0 || limit > s.cfg.MaxLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidQuery, s.cfg.MaxLimit)
	}

	var emb *querycache.Result
	if s.embeddings != nil && s.ranker != nil {
		emb = s.embeddings.GetOrCreate(ctx, q.Text)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if emb == nil {
		return s.keyword(ctx, q, routeKeywordUnavailable, nil)
	}

	diag := diagnosticsFor(emb)
	results, err := s.ranker.Rank(ctx, q.UserID, emb.Embedding, q.Text, limit)
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		log.Warn(err, "hybrid ranking failed, using keyword search", "userID", q.UserID)
		diag.Error = err.Error()
		return s.keyword(ctx, q, routeKeywordDegraded, diag)
	}

	results = truncate(results, limit)
	if err := s.attachTags(ctx, q.UserID, results); err != nil {
		return nil, err
	}

	log.Debug("search completed", "route", routeHybrid.String(), "results", len(results), "cacheHit", emb.CacheHit)
	return &Response{Results: results, Cache: diag}, nil
}

func (s *Service) keyword(ctx context.Context, q Query, r route, diag *Diagnostics) (*Response, error) {
	filter := KeywordFilter{
		UserID: q.UserID,
		Limit:  q.Limit,
	}
	if domain := QueryDomain(q.Text); domain != "" {
		filter.Domain = domain
	} else {
		filter.Text = q.Text
	}

	results, err := s.bookmarks.SearchKeyword(ctx, filter)
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	results = truncate(results, q.Limit)
	for i := range results {
		if results[i].Tags == nil {
			results[i].Tags = []string{}
		}
	}

	log.Debug("search completed", "route", r.String(), "results", len(results), "domain", filter.Domain)
	return &Response{Results: results, Fallback: true, Cache: diag}, nil
}

// attachTags merges tags from one batched lookup. A failed lookup leaves
// every result with an empty tag list.
func (s *Service) attachTags(ctx context.Context, userID uuid.UUID, results []Result) error {
	if len(results) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}

	tags, err := s.bookmarks.TagsFor(ctx, userID, ids)
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if err != nil {
		log.Warn(err, "failed to fetch tags for search results", "userID", userID)
		tags = nil
	}

	for i := range results {
		if t, ok := tags[results[i].ID]; ok && t != nil {
			results[i].Tags = t
		} else {
			results[i].Tags = []string{}
		}
	}
	return nil
}

func diagnosticsFor(emb *querycache.Result) *Diagnostics {
	d := &Diagnostics{
		Hit:   emb.CacheHit,
		Error: emb.Error,
	}
	if !emb.CacheHit {
		ms := emb.EmbedTime.Milliseconds()
		d.EmbedTime = &ms
	}
	return d
}

func truncate(results []Result, limit int) []Result {
	if results == nil {
		return []Result{}
	}
	if len(results) > limit {
		return results[:limit]
	}
	return results
}
