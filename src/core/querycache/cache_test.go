package querycache

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls []string
	vec   []float32
	err   error
}

func (p *fakeProvider) Embed(_ context.Context, text string) (Embedding, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, text)
	if p.err != nil {
		return Embedding{}, p.err
	}
	vec := make([]float32, len(p.vec))
	copy(vec, p.vec)
	return Embedding{Vector: vec, Model: "test-model"}, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakeStore struct {
	mu        sync.Mutex
	records   map[string]*Record
	getCalls  int
	getErr    error
	upsertErr error
	upsertCtx error
	// upsertGate, when set, blocks Upsert until closed
	upsertGate chan struct{}
	touched    chan string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: map[string]*Record{},
		touched: make(chan string, 16),
	}
}

func (s *fakeStore) Get(_ context.Context, hash string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.records[hash]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) Upsert(ctx context.Context, rec *Record) error {
	if s.upsertGate != nil {
		<-s.upsertGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCtx = ctx.Err()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	cp := *rec
	s.records[rec.QueryHash] = &cp
	return nil
}

func (s *fakeStore) Touch(_ context.Context, hash string, _ time.Time) error {
	s.touched <- hash
	return nil
}

func (s *fakeStore) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *fakeStore) upsertCtxErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertCtx
}

func (s *fakeStore) gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls
}

func waitTouch(t *testing.T, s *fakeStore, want string) {
	t.Helper()
	select {
	case got := <-s.touched:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatal("touch was not dispatched")
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Dimensions = 3
	return cfg
}

func TestGetOrCreateWithoutProvider(t *testing.T) {
	store := newFakeStore()
	c := NewCache(nil, store, nil, nil, testConfig())

	for _, q := range []string{"machine learning", "  ", "github.com"} {
		assert.Nil(t, c.GetOrCreate(context.Background(), q))
	}
	assert.Equal(t, 0, store.gets())
	assert.False(t, c.Enabled())
}

func TestGetOrCreateRoundTrip(t *testing.T) {
	provider := &fakeProvider{vec: []float32{0.1, 0.2, 0.3}}
	store := newFakeStore()
	c := NewCache(provider, store, nil, nil, testConfig())

	first := c.GetOrCreate(context.Background(), "Machine  Learning")
	require.NotNil(t, first)
	assert.False(t, first.CacheHit)
	assert.Empty(t, first.Error)
	assert.Equal(t, "test-model", first.Model)

	rec := store.records[HashQuery("machine learning")]
	require.NotNil(t, rec)
	assert.Equal(t, "machine learning", rec.QueryText)
	assert.EqualValues(t, 1, rec.UseCount)

	second := c.GetOrCreate(context.Background(), " machine learning ")
	require.NotNil(t, second)
	assert.True(t, second.CacheHit)
	assert.Zero(t, second.EmbedTime)
	assert.Equal(t, first.Embedding, second.Embedding)
	assert.Equal(t, 1, provider.callCount())
	waitTouch(t, store, HashQuery("machine learning"))
}

func TestGetOrCreateSendsOriginalText(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 2, 3}}
	c := NewCache(provider, newFakeStore(), nil, nil, testConfig())

	require.NotNil(t, c.GetOrCreate(context.Background(), "Notes About  Rust"))
	assert.Equal(t, []string{"Notes About  Rust"}, provider.calls)
}

func TestGetOrCreateLookupFailure(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 2, 3}}
	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	c := NewCache(provider, store, nil, nil, testConfig())

	res := c.GetOrCreate(context.Background(), "rust")
	require.NotNil(t, res)
	assert.False(t, res.CacheHit)
	assert.Equal(t, "connection refused", res.Error)
	assert.Equal(t, 1, provider.callCount())
}

func TestGetOrCreateMalformedRecord(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
	}{
		{name: "empty", vec: nil},
		{name: "wrong dimension", vec: []float32{1, 2}},
		{name: "nan", vec: []float32{1, float32(math.NaN()), 3}},
		{name: "inf", vec: []float32{1, 2, float32(math.Inf(1))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{vec: []float32{4, 5, 6}}
			store := newFakeStore()
			hash := HashQuery("golang")
			store.records[hash] = &Record{QueryHash: hash, Embedding: tt.vec, Model: "old"}
			c := NewCache(provider, store, nil, nil, testConfig())

			res := c.GetOrCreate(context.Background(), "golang")
			require.NotNil(t, res)
			assert.False(t, res.CacheHit)
			assert.Equal(t, []float32{4, 5, 6}, res.Embedding)
			assert.Equal(t, []float32{4, 5, 6}, store.records[hash].Embedding)
		})
	}
}

func TestGetOrCreateProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("quota exceeded")}
	store := newFakeStore()
	c := NewCache(provider, store, nil, nil, testConfig())

	assert.Nil(t, c.GetOrCreate(context.Background(), "anything"))
	assert.Empty(t, store.records)
}

func TestGetOrCreateProviderMalformedVector(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1}}
	c := NewCache(provider, newFakeStore(), nil, nil, testConfig())

	assert.Nil(t, c.GetOrCreate(context.Background(), "anything"))
}

func TestGetOrCreateWriteFailure(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 2, 3}}
	store := newFakeStore()
	store.upsertErr = errors.New("permission denied")
	c := NewCache(provider, store, nil, nil, testConfig())

	res := c.GetOrCreate(context.Background(), "anything")
	require.NotNil(t, res)
	assert.Equal(t, []float32{1, 2, 3}, res.Embedding)
	assert.Equal(t, "failed to cache: permission denied", res.Error)
}

func TestGetOrCreateWriteSurvivesCancellation(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 2, 3}}
	store := newFakeStore()
	c := NewCache(provider, store, nil, nil, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.GetOrCreate(ctx, "anything")
	require.NotNil(t, res)
	assert.Eventually(t, func() bool { return store.recordCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, store.upsertCtxErr())
}

func TestGetOrCreateDoesNotWaitForWriteAfterCancel(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 2, 3}}
	store := newFakeStore()
	store.upsertGate = make(chan struct{})
	c := NewCache(provider, store, nil, nil, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	returned := make(chan *Result, 1)
	go func() { returned <- c.GetOrCreate(ctx, "slow write") }()

	select {
	case res := <-returned:
		require.NotNil(t, res)
		assert.Empty(t, res.Error)
	case <-time.After(time.Second):
		t.Fatal("GetOrCreate kept waiting for the cache write after cancellation")
	}

	// the write still lands once the store answers
	close(store.upsertGate)
	assert.Eventually(t, func() bool { return store.recordCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, store.upsertCtxErr())
}

func TestGetOrCreateWithoutStore(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 2, 3}}
	c := NewCache(provider, nil, nil, nil, testConfig())

	res := c.GetOrCreate(context.Background(), "anything")
	require.NotNil(t, res)
	assert.False(t, res.CacheHit)
	assert.Empty(t, res.Error)
}

func TestGetOrCreateMemo(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 2, 3}}
	store := newFakeStore()
	cfg := testConfig()
	cfg.MemoSize = 8
	bg := NewBackground(1, 8)
	defer bg.Close(context.Background())
	c := NewCache(provider, store, nil, bg, cfg)

	first := c.GetOrCreate(context.Background(), "memo me")
	require.NotNil(t, first)
	first.Embedding[0] = 42

	second := c.GetOrCreate(context.Background(), "MEMO me")
	require.NotNil(t, second)
	assert.True(t, second.CacheHit)
	assert.Equal(t, []float32{1, 2, 3}, second.Embedding)
	assert.Equal(t, 1, store.gets())
	waitTouch(t, store, HashQuery("memo me"))
}
