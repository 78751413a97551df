package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/resultset"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

const ws = repository.StoreRef("workspace://SpacesStore")

type fakeQuerier struct {
	calls int
	last  executor.SearchParameters
}

func (f *fakeQuerier) Query(_ context.Context, p executor.SearchParameters) (*resultset.ResultSet, error) {
	f.calls++
	f.last = p
	switch p.Query {
	case "(broken":
		return nil, apperrors.NewParseError("lucene", "(broken", 0, "unbalanced group")
	case "${cm:missing}":
		return nil, apperrors.Unresolved("query parameter", "cm:missing")
	case "explode":
		return nil, apperrors.IndexIO("open segment", context.Canceled)
	}
	return resultset.New([]resultset.Row{{NodeRef: "workspace://SpacesStore/a", Score: 1.5}}, resultset.Metadata{
		Store:    p.Store(),
		Language: p.Language,
	}), nil
}

type fakeSnapshots struct{}

func (fakeSnapshots) LastIndexedSnapshot(s repository.StoreRef) int64 {
	if s == ws {
		return 7
	}
	return -1
}
func (fakeSnapshots) IsSnapshotIndexed(_ repository.StoreRef, id int64) bool    { return id <= 7 }
func (fakeSnapshots) IsSnapshotSearchable(_ repository.StoreRef, id int64) bool { return id <= 5 }

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (b *memBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	return nil
}

func (b *memBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for k := range b.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(b.data, k)
			n++
		}
	}
	return n, nil
}

func newServer(withCache bool) (*http.ServeMux, *fakeQuerier) {
	q := &fakeQuerier{}
	var qc *cache.QueryCache
	if withCache {
		qc = cache.New(&memBackend{data: map[string][]byte{}}, config.RedisConfig{CacheTTL: time.Minute}, nil)
	}
	mux := http.NewServeMux()
	New(q, qc, fakeSnapshots{}).Register(mux)
	return mux, q
}

func post(mux http.Handler, body string, caller *auth.Caller) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(body))
	if caller != nil {
		req = req.WithContext(auth.WithCaller(req.Context(), *caller))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

const luceneQuery = `{"stores":["workspace://SpacesStore"],"language":"lucene","query":"TEXT:report","sort":[{"type":"SCORE"}]}`

func TestQueryReturnsResultSet(t *testing.T) {
	mux, q := newServer(false)
	rec := post(mux, luceneQuery, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rs resultset.ResultSet
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rs))
	assert.Equal(t, []repository.NodeRef{"workspace://SpacesStore/a"}, rs.NodeRefs())
	assert.Equal(t, resultset.Unlimited, rs.Metadata().LimitedBy)
	assert.Equal(t, "TEXT:report", q.last.Query)
	assert.Equal(t, []executor.SortDefinition{{Type: executor.SortByScore}}, q.last.Sort)
}

func TestQueryIsCachedPerCaller(t *testing.T) {
	mux, q := newServer(true)
	alice := &auth.Caller{Principal: "alice"}

	assert.Equal(t, "MISS", post(mux, luceneQuery, alice).Header().Get("X-Cache"))
	assert.Equal(t, "HIT", post(mux, luceneQuery, alice).Header().Get("X-Cache"))
	assert.Equal(t, "MISS", post(mux, luceneQuery, &auth.Caller{Principal: "bob"}).Header().Get("X-Cache"))
	assert.Equal(t, 2, q.calls)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	var stats cache.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.Hits)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate?store=workspace://SpacesStore", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", post(mux, luceneQuery, alice).Header().Get("X-Cache"))
}

func TestQueryErrors(t *testing.T) {
	mux, _ := newServer(false)

	rec := post(mux, `{"stores":["s"],"language":"lucene","query":"(broken"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "lucene", body.Language)
	require.NotNil(t, body.Position)

	rec = post(mux, `{"stores":["s"],"language":"lucene","query":"${cm:missing}"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body = errorBody{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, []string{"cm:missing"}, body.Missing)

	rec = post(mux, `{"stores":["s"],"language":"lucene","query":"explode"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal error")

	rec = post(mux, `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSnapshot(t *testing.T) {
	mux, _ := newServer(false)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stores/workspace:%2F%2FSpacesStore/snapshots?id=6", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var status snapshotStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, ws, status.Store)
	assert.Equal(t, int64(7), status.LastIndexed)
	require.NotNil(t, status.Indexed)
	assert.True(t, *status.Indexed)
	assert.False(t, *status.Searchable)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stores/other/snapshots?id=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
