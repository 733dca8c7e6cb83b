package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelf/src/core/search"
)

var testSecret = []byte("test-secret")

type fakeSearch struct {
	resp   *search.Response
	err    error
	called bool
	got    search.Query
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) (*search.Response, error) {
	f.called = true
	f.got = q
	return f.resp, f.err
}

func (f *fakeSearch) Config() search.Config {
	return search.DefaultConfig()
}

func newTestRouter(svc SearchService, system SystemInfo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc, system, testSecret).RegisterRoutes(r)
	return r
}

func signToken(t *testing.T, secret []byte, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := token.SignedString(secret)
	require.NoError(t, err)
	return s
}

func doSearch(r *gin.Engine, query, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/search"+query, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSearch_Success(t *testing.T) {
	userID := uuid.New()
	svc := &fakeSearch{resp: &search.Response{
		Results: []search.Result{{ID: uuid.New(), URL: "https://go.dev", Tags: []string{"go"}}},
		Cache:   &search.Diagnostics{Hit: true},
	}}
	r := newTestRouter(svc, SystemInfo{})

	w := doSearch(r, "?q=%20golang%20&limit=5", signToken(t, testSecret, userID.String()))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.called)
	assert.Equal(t, userID, svc.got.UserID)
	assert.Equal(t, "golang", svc.got.Text)
	assert.Equal(t, 5, svc.got.Limit)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body["results"], 1)
	assert.NotContains(t, body, "fallback")
	assert.Equal(t, map[string]interface{}{"hit": true}, body["_cache"])
}

func TestSearch_KeywordOnlyOmitsCache(t *testing.T) {
	svc := &fakeSearch{resp: &search.Response{Results: []search.Result{}, Fallback: true}}
	r := newTestRouter(svc, SystemInfo{})

	w := doSearch(r, "?q=rust", signToken(t, testSecret, uuid.NewString()))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["fallback"])
	assert.Equal(t, []interface{}{}, body["results"])
	assert.NotContains(t, body, "_cache")
	assert.Equal(t, search.DefaultConfig().DefaultLimit, svc.got.Limit)
}

func TestSearch_InvalidQuery(t *testing.T) {
	token := signToken(t, testSecret, uuid.NewString())
	tests := []struct {
		name  string
		query string
	}{
		{"missing q", ""},
		{"blank q", "?q=%20%20"},
		{"limit zero", "?q=go&limit=0"},
		{"limit too large", "?q=go&limit=101"},
		{"limit not a number", "?q=go&limit=ten"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeSearch{}
			r := newTestRouter(svc, SystemInfo{})

			w := doSearch(r, tt.query, token)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, svc.called)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "INVALID_QUERY", body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestSearch_Unauthorized(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"wrong secret", signToken(t, []byte("other"), uuid.NewString())},
		{"subject is not a uuid", signToken(t, testSecret, "alice")},
		{"garbage", "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeSearch{}
			r := newTestRouter(svc, SystemInfo{})

			w := doSearch(r, "?q=go", tt.token)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.False(t, svc.called)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "UNAUTHORIZED", body.Code)
		})
	}
}

func TestSearch_StoreFailure(t *testing.T) {
	svc := &fakeSearch{err: errors.Join(search.ErrStoreUnavailable, errors.New("connection refused"))}
	r := newTestRouter(svc, SystemInfo{})

	w := doSearch(r, "?q=go", signToken(t, testSecret, uuid.NewString()))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.NotContains(t, w.Body.String(), "results")
}

func TestSearch_Cancelled(t *testing.T) {
	svc := &fakeSearch{err: context.Canceled}
	r := newTestRouter(svc, SystemInfo{})

	w := doSearch(r, "?q=go", signToken(t, testSecret, uuid.NewString()))

	assert.Equal(t, StatusClientClosedRequest, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestCheckHealth(t *testing.T) {
	system := SystemInfo{Embeddings: true, CacheBackend: "postgres", RankingBackend: "weaviate"}

	t.Run("ok", func(t *testing.T) {
		system.Ping = func(context.Context) error { return nil }
		r := newTestRouter(&fakeSearch{}, system)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var status HealthStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.Equal(t, HealthStatus{
			Status:         "ok",
			Embeddings:     true,
			CacheBackend:   "postgres",
			RankingBackend: "weaviate",
			Database:       "ok",
		}, status)
	})

	t.Run("database down", func(t *testing.T) {
		system.Ping = func(context.Context) error { return errors.New("down") }
		r := newTestRouter(&fakeSearch{}, system)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"database":"unavailable"`)
	})
}
