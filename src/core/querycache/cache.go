package querycache

import (
	"context"
	"fmt"
	"math"
	"time"

	"shelf/src/infrastructure/log"
)

// Cache maps free-text queries to embeddings, memoizing provider calls in a
// store shared by all users.
type Cache struct {
	provider Provider
	store    Store
	toucher  Toucher
	bg       *Background
	memo     *memo
	cfg      Config
	now      func() time.Time
}

// NewCache creates a query embedding cache. A nil provider puts the cache in
// degraded mode where GetOrCreate always returns nil. A nil store disables
// persistence. toucher defaults to the store; bg runs the touches and may be
// nil, in which case each touch gets its own goroutine.
func NewCache(provider Provider, store Store, toucher Toucher, bg *Background, cfg Config) *Cache {
	if toucher == nil && store != nil {
		toucher = store
	}
	return &Cache{
		provider: provider,
		store:    store,
		toucher:  toucher,
		bg:       bg,
		memo:     newMemo(cfg.MemoSize),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Enabled reports whether an embedding provider is configured
func (c *Cache) Enabled() bool {
	return c.provider != nil
}

// GetOrCreate returns the embedding for query, from the cache when possible.
// It returns nil when embeddings are unavailable: no provider configured, or
// the provider failed. It never returns an error; cache read and write
// failures are reported in Result.Error.
func (c *Cache) GetOrCreate(ctx context.Context, query string) *Result {
	if c.provider == nil {
		return nil
	}

	hash := HashQuery(query)

	if emb, ok := c.memo.get(hash); ok {
		log.Debug("query cache memo hit", "queryHash", hash)
		c.touch(hash)
		return &Result{Embedding: emb.Vector, Model: emb.Model, CacheHit: true}
	}

	var cacheErr string
	if c.store != nil {
		start := c.now()
		rec, err := c.store.Get(ctx, hash)
		elapsed := c.now().Sub(start)

		switch {
		case err != nil:
			cacheErr = err.Error()
			log.Warn(err, "query cache lookup failed, treating as miss", "queryHash", hash, "elapsed", elapsed)
		case rec == nil:
			log.Debug("query cache miss", "queryHash", hash, "elapsed", elapsed)
		case !c.wellFormed(rec.Embedding):
			log.Info("cached query embedding is malformed, regenerating", "queryHash", hash, "length", len(rec.Embedding))
		default:
			log.Debug("query cache hit", "queryHash", hash, "elapsed", elapsed)
			c.touch(hash)
			c.memo.add(hash, Embedding{Vector: rec.Embedding, Model: rec.Model})
			return &Result{Embedding: rec.Embedding, Model: rec.Model, CacheHit: true}
		}
	}

	// The provider sees the caller's literal phrasing; normalization only
	// keys the cache.
	emb, embedTime, err := c.embed(ctx, query)
	if err != nil {
		log.Warn(err, "embedding generation failed, embeddings unavailable", "queryHash", hash)
		return nil
	}
	log.Debug("generated query embedding", "queryHash", hash, "model", emb.Model, "elapsed", embedTime)

	c.memo.add(hash, emb)
	res := &Result{
		Embedding: emb.Vector,
		Model:     emb.Model,
		EmbedTime: embedTime,
		Error:     cacheErr,
	}

	if c.store != nil {
		if err := c.write(ctx, hash, query, emb); err != nil {
			log.Warn(err, "failed to cache query embedding", "queryHash", hash)
			res.Error = fmt.Sprintf("failed to cache: %v", err)
		}
	}

	return res
}

func (c *Cache) embed(ctx context.Context, query string) (Embedding, time.Duration, error) {
	if c.cfg.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ProviderTimeout)
		defer cancel()
	}

	start := c.now()
	emb, err := c.provider.Embed(ctx, query)
	elapsed := c.now().Sub(start)
	if err != nil {
		return Embedding{}, elapsed, err
	}
	if !c.wellFormed(emb.Vector) {
		return Embedding{}, elapsed, fmt.Errorf("provider returned malformed embedding of length %d", len(emb.Vector))
	}
	return emb, elapsed, nil
}

// write upserts the record on a context detached from the request so that
// an aborted search does not abort the cache fill. The caller stops waiting
// once ctx is done; the upsert then finishes in the background and its
// outcome is only logged.
func (c *Cache) write(ctx context.Context, hash, query string, emb Embedding) error {
	wctx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc = func() {}
	if c.cfg.WriteTimeout > 0 {
		wctx, cancel = context.WithTimeout(wctx, c.cfg.WriteTimeout)
	}

	now := c.now()
	rec := &Record{
		QueryHash:  hash,
		QueryText:  NormalizeQuery(query),
		Embedding:  emb.Vector,
		Model:      emb.Model,
		CreatedAt:  now,
		LastUsedAt: now,
		UseCount:   1,
	}

	done := make(chan error, 1)
	go func() {
		defer cancel()
		err := c.store.Upsert(wctx, rec)
		if err == nil {
			log.Debug("cached query embedding", "queryHash", hash)
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		go func() {
			if err := <-done; err != nil {
				log.Warn(err, "failed to cache query embedding after request ended", "queryHash", hash)
			}
		}()
		return nil
	}
}

// touch bumps the usage statistics of hash in the background. Failures are
// ignored.
func (c *Cache) touch(hash string) {
	if c.toucher == nil {
		return
	}

	usedAt := c.now()
	task := func(ctx context.Context) error {
		if c.cfg.TouchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.TouchTimeout)
			defer cancel()
		}
		return c.toucher.Touch(ctx, hash, usedAt)
	}

	if c.bg != nil {
		c.bg.Submit("touch "+hash, task)
		return
	}
	go func() {
		_ = task(context.Background())
	}()
}

func (c *Cache) wellFormed(vec []float32) bool {
	if len(vec) == 0 {
		return false
	}
	if c.cfg.Dimensions > 0 && len(vec) != c.cfg.Dimensions {
		return false
	}
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
