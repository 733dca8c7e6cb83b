package cmd

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"shelf/src/core/search"
	"shelf/src/storage/postgres/bookmarkctrl"
)

func TestSearchConfigDefaults(t *testing.T) {
	assert.Equal(t, search.DefaultConfig(), searchConfig())
}

func TestCacheConfigDefaults(t *testing.T) {
	cfg := cacheConfig()

	assert.Equal(t, 1536, cfg.Dimensions)
	assert.Equal(t, 1024, cfg.MemoSize)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
}

func TestEmbeddingDimensionsFollowProvider(t *testing.T) {
	t.Cleanup(func() {
		viper.Set("embedding.provider", "openai")
		viper.Set("embedding.model", "")
	})

	tests := []struct {
		provider string
		model    string
		want     int
	}{
		{provider: "openai", want: 1536},
		{provider: "openai", model: "text-embedding-3-small", want: 1536},
		{provider: "openai", model: "text-embedding-3-large", want: 0},
		{provider: "ollama", want: 0},
		{provider: "ollama", model: "nomic-embed-text", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.model, func(t *testing.T) {
			viper.Set("embedding.provider", tt.provider)
			viper.Set("embedding.model", tt.model)

			assert.Equal(t, tt.want, cacheConfig().Dimensions)
		})
	}
}

func TestToDocument(t *testing.T) {
	title := "The Rust Book"
	vec := pgvector.NewVector([]float32{1, 2, 3})
	b := bookmarkctrl.Bookmark{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		URL:       "https://doc.rust-lang.org/book/",
		Title:     &title,
		Embedding: &vec,
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	doc := toDocument(&b)

	assert.Equal(t, b.ID, doc.BookmarkID)
	assert.Equal(t, b.UserID, doc.UserID)
	assert.Equal(t, b.URL, doc.URL)
	assert.Equal(t, &title, doc.Title)
	assert.Nil(t, doc.Notes)
	assert.Equal(t, []float32{1, 2, 3}, doc.Vector)
	assert.Equal(t, b.CreatedAt, doc.CreatedAt)
}
