package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/txn"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/config"
)

const ws = repository.StoreRef("workspace://SpacesStore")

func setup(t *testing.T) (*http.ServeMux, *txn.Manager, *repository.Memory) {
	t.Helper()
	reg, err := tokenizer.NewRegistry(tokenizer.Options{DefaultLocale: locale.MustParse("en")})
	require.NoError(t, err)
	repo := repository.NewMemory()
	router, err := store.NewRouter(config.IndexerConfig{DataDir: t.TempDir(), MaxSegmentsBeforeMerge: 8, DrainBatchSize: 1})
	require.NoError(t, err)
	t.Cleanup(func() { router.Close() })

	mgr := txn.NewManager(router, txn.Services{
		Nodes:   repo,
		Changes: repo,
		Builder: document.NewBuilder(dictionary.New(), reg, repo, nil),
	})
	mux := http.NewServeMux()
	New(consumer.NewProcessor(mgr, nil, txn.Synchronous), mgr).Register(mux)
	return mux, mgr, repo
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestEventsDriveTransaction(t *testing.T) {
	mux, mgr, repo := setup(t)
	root := repository.NewNodeRef(ws, "root")
	repo.Put(repository.Node{Ref: root, IsRoot: true})

	rec := do(mux, http.MethodPost, "/api/v1/events",
		`{"txId":"t1","store":"workspace://SpacesStore","op":"create_node","assoc":{"child":"workspace://SpacesStore/root"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(mux, http.MethodGet, "/api/v1/stores/workspace:%2F%2FSpacesStore/transactions/t1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var status txStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "ACTIVE", status.State)
	assert.True(t, status.Modified)

	rec = do(mux, http.MethodPost, "/api/v1/events", `[
		{"txId":"t1","store":"workspace://SpacesStore","op":"prepare"},
		{"txId":"t1","store":"workspace://SpacesStore","op":"commit"}
	]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res eventsResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 2, res.Applied)
	assert.Zero(t, mgr.Active())

	rec = do(mux, http.MethodGet, "/api/v1/stores/workspace:%2F%2FSpacesStore/transactions/t1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsStopAtFirstFailure(t *testing.T) {
	mux, _, _ := setup(t)
	rec := do(mux, http.MethodPost, "/api/v1/events", `[
		{"txId":"t2","store":"workspace://SpacesStore","op":"create_index"},
		{"txId":"t2","store":"workspace://SpacesStore","op":"explode"},
		{"txId":"t2","store":"workspace://SpacesStore","op":"commit"}
	]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var res eventsResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 1, res.Applied)
	assert.Contains(t, res.Error, "explode")

	rec = do(mux, http.MethodPost, "/api/v1/events", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDrain(t *testing.T) {
	mux, _, _ := setup(t)
	rec := do(mux, http.MethodPost, "/api/v1/stores/workspace:%2F%2FSpacesStore/drain?all=true", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res txn.DrainResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, ws, res.Store)
	assert.Zero(t, res.Processed)

	rec = do(mux, http.MethodPost, "/api/v1/drain", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var all []txn.DrainResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	assert.Len(t, all, 1)

	rec = do(mux, http.MethodGet, "/api/v1/transactions", "")
	assert.JSONEq(t, `{"active":0}`, rec.Body.String())
}
