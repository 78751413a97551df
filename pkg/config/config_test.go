package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "OR", cfg.Search.DefaultOperator)
	require.Equal(t, 1, cfg.Indexer.DrainBatchSize)
	require.Equal(t, "repository.node-events", cfg.Kafka.Topics.NodeEvents)
	require.False(t, cfg.Auth.Enabled)
	require.Equal(t, time.Minute, cfg.Auth.RateLimitWindow)
	require.Equal(t, "SYNCHRONOUS", cfg.Indexer.DefaultIndexMode)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
indexer:
  dataDir: /tmp/idx
  drainInterval: 3s
search:
  defaultOperator: AND
  maxPermissionChecks: 5
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("SP_SEARCH_MAX_PERMISSION_CHECKS", "7")
	t.Setenv("SP_AUTH_ENABLED", "true")
	t.Setenv("SP_INDEXER_CONTENT_ROOT", "/srv/content")
	t.Setenv("SP_SERVER_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/idx", cfg.Indexer.DataDir)
	require.Equal(t, 3*time.Second, cfg.Indexer.DrainInterval)
	require.Equal(t, "AND", cfg.Search.DefaultOperator)
	require.Equal(t, 7, cfg.Search.MaxPermissionChecks)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	require.Equal(t, "/srv/content", cfg.Indexer.ContentRoot)
	// untouched defaults survive a partial file
	require.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadRejectsBadOperator(t *testing.T) {
	t.Setenv("SP_SEARCH_DEFAULT_OPERATOR", "XOR")
	_, err := Load("")
	require.Error(t, err)
}
