package querycache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// memo is an in-process LRU in front of the persistent store
type memo struct {
	cache *lru.Cache[string, Embedding]
}

func newMemo(size int) *memo {
	if size <= 0 {
		return nil
	}
	cache, err := lru.New[string, Embedding](size)
	if err != nil {
		return nil
	}
	return &memo{cache: cache}
}

// get returns a copy so callers cannot mutate the cached vector
func (m *memo) get(hash string) (Embedding, bool) {
	if m == nil {
		return Embedding{}, false
	}
	emb, ok := m.cache.Get(hash)
	if !ok {
		return Embedding{}, false
	}
	vec := make([]float32, len(emb.Vector))
	copy(vec, emb.Vector)
	return Embedding{Vector: vec, Model: emb.Model}, true
}

func (m *memo) add(hash string, emb Embedding) {
	if m == nil {
		return
	}
	vec := make([]float32, len(emb.Vector))
	copy(vec, emb.Vector)
	m.cache.Add(hash, Embedding{Vector: vec, Model: emb.Model})
}
