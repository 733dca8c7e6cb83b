package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient("", "", "", nil)
	assert.Error(t, err)
}

func TestEmbed(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[{"object":"embedding","index":0,"embedding":[0.5,-0.25]}],"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer srv.Close()

	c, err := NewClient("sk-test", "", srv.URL, srv.Client())
	require.NoError(t, err)

	emb, err := c.Embed(context.Background(), "Machine Learning")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25}, emb.Vector)
	assert.Equal(t, DefaultModel, emb.Model)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, DefaultModel, gotBody["model"])
}

func TestEmbedProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	c, err := NewClient("sk-test", "", srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "anything")
	assert.Error(t, err)
}
