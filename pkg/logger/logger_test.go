package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "json")
	l.Info("dropped")
	l.Warn("kept", "store", "workspace://SpacesStore")
	require.NotContains(t, buf.String(), "dropped")
	require.Contains(t, buf.String(), `"store":"workspace://SpacesStore"`)
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	id, ok := RequestID(ctx)
	require.True(t, ok)
	require.Equal(t, "req-1", id)

	_, ok = RequestID(context.Background())
	require.False(t, ok)
	require.Equal(t, slog.LevelDebug, parseLevel("debug"))
}
