package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonet-social/search-service/internal/authgate"
	"github.com/sonet-social/search-service/internal/controller"
	"github.com/sonet-social/search-service/internal/model"
	"github.com/sonet-social/search-service/internal/ratelimiter"
)

const sampleHits = `{
  "took": 4,
  "hits": {
    "total": {"value": 1},
    "max_score": 1.0,
    "hits": [
      {"_index": "notes", "_id": "n1", "_score": 1.0, "_source": {
        "id": "n1", "user_id": "u1", "content": "hello world",
        "author": {"username": "alice", "display_name": "Alice"},
        "created_at": "2026-01-01T00:00:00Z"
      }}
    ]
  }
}`

type fakeBackend struct{ raw []byte }

func (f *fakeBackend) Search(ctx context.Context, indices []string, queryDoc interface{}) (json.RawMessage, error) {
	return json.RawMessage(f.raw), nil
}

type fakeCache struct{ store map[string]model.SearchResult }

func (f *fakeCache) Get(key string) (model.SearchResult, bool) { v, ok := f.store[key]; return v, ok }
func (f *fakeCache) Put(key string, value model.SearchResult)  { f.store[key] = value }

type fakeLimiter struct{}

func (fakeLimiter) Allow(key string, tier ratelimiter.Tier) bool { return true }

type fakeGate struct{}

func (fakeGate) Validate(ctx context.Context, authHeader string) authgate.Identity {
	return authgate.Identity{Authenticated: false, Permissions: []string{authgate.PublicSearch}}
}

type fakeHealth struct{ healthy bool }

func (f fakeHealth) Healthy() bool { return f.healthy }

func newTestAPI(t *testing.T, healthy bool) *API {
	t.Helper()
	ctrl := controller.New(controller.Config{SlowQueryThresh: time.Hour},
		&fakeBackend{raw: []byte(sampleHits)},
		&fakeCache{store: make(map[string]model.SearchResult)},
		fakeLimiter{}, fakeGate{}, nil, zerolog.Nop())
	t.Cleanup(ctrl.Stop)
	return New(ctrl, fakeHealth{healthy: healthy}, "search-service", "test")
}

func TestSearchNotesReturnsEnvelope(t *testing.T) {
	api := newTestAPI(t, true)
	router := mux.NewRouter()
	api.Register(router)

	body, err := json.Marshal(model.SearchQuery{
		Text:       "hello",
		Pagination: model.Pagination{Limit: 20, MaxLimit: 100},
		Config:     model.QueryConfig{Timeout: 5 * time.Second},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search/notes", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var env controller.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)
}

func TestSearchNotesRejectsMalformedBody(t *testing.T) {
	api := newTestAPI(t, true)
	router := mux.NewRouter()
	api.Register(router)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search/notes", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var env controller.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, controller.ErrInvalidQuery, env.ErrorCode)
}

func TestHealthEndpointReflectsOrchestratorState(t *testing.T) {
	api := newTestAPI(t, false)
	router := mux.NewRouter()
	api.Register(router)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSuggestionsRoundTrips(t *testing.T) {
	api := newTestAPI(t, true)
	router := mux.NewRouter()
	api.Register(router)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/suggestions?q=he", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env controller.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.NotEmpty(t, env.RequestID)
}
