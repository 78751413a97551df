package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

const (
	ws      = repository.StoreRef("workspace://SpacesStore")
	archive = repository.StoreRef("archive://SpacesStore")
)

func TestDirNames(t *testing.T) {
	assert.Equal(t, "workspace~SpacesStore", encodeDir(ws))
	ref, ok := decodeDir("workspace~SpacesStore")
	require.True(t, ok)
	assert.Equal(t, ws, ref)
	_, ok = decodeDir("garbage")
	assert.False(t, ok)
}

func TestWritableRouterReopensStores(t *testing.T) {
	cfg := config.IndexerConfig{DataDir: t.TempDir()}
	r, err := NewRouter(cfg)
	require.NoError(t, err)
	_, err = r.Route(ws)
	require.NoError(t, err)
	_, err = r.Route("")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	require.NoError(t, r.Close())

	leftover := filepath.Join(cfg.DataDir, pendingDir, "delta-1")
	require.NoError(t, os.MkdirAll(leftover, 0o755))

	r, err = NewRouter(cfg)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, []repository.StoreRef{ws}, r.Stores())
	_, err = os.Stat(leftover)
	assert.True(t, os.IsNotExist(err), "pending deltas of a previous process are discarded")
}

func TestReadOnlyRouterDiscoversStores(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewRouter(config.IndexerConfig{DataDir: dir})
	require.NoError(t, err)
	defer writer.Close()
	_, err = writer.Route(ws)
	require.NoError(t, err)
	inFlight := filepath.Join(writer.PendingDir(), "delta-2")
	require.NoError(t, os.MkdirAll(inFlight, 0o755))

	reader, err := NewRouter(config.IndexerConfig{DataDir: dir, ReadOnly: true})
	require.NoError(t, err)
	defer reader.Close()
	assert.Equal(t, []repository.StoreRef{ws}, reader.Stores())
	_, err = os.Stat(inFlight)
	require.NoError(t, err, "a read-only router leaves the writer's deltas alone")

	_, err = reader.Route(archive)
	assert.ErrorIs(t, err, apperrors.ErrReadOnly)
	_, ok := reader.Lookup(archive)
	assert.False(t, ok)

	_, err = writer.Route(archive)
	require.NoError(t, err)
	assert.Equal(t, 1, reader.RefreshAll())
	assert.Equal(t, []repository.StoreRef{archive, ws}, reader.Stores())
}
