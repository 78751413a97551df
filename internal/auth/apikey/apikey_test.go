package apikey

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

func TestKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	v := NewValidator(NewMemoryStore())

	raw, info, err := v.CreateKey(ctx, KeyInfo{Principal: "alice", Authorities: []string{"GROUP_HR"}, RateLimit: 60})
	require.NoError(t, err)
	assert.Len(t, raw, 64)
	assert.Equal(t, "alice", info.Name)

	got, err := v.Validate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, info.ID, got.ID)
	assert.Equal(t, "alice", got.Caller().Principal)
	assert.Equal(t, []string{"GROUP_HR"}, got.Caller().Authorities)

	keys, err := v.ListKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, v.RevokeKey(ctx, raw))
	_, err = v.Validate(ctx, raw)
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	assert.Equal(t, 401, apperrors.HTTPStatusCode(err))
	require.ErrorIs(t, v.RevokeKey(ctx, raw), ErrInvalidKey)

	keys, err = v.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestExpiredKey(t *testing.T) {
	ctx := context.Background()
	v := NewValidator(NewMemoryStore())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	expires := now.Add(time.Hour)
	raw, _, err := v.CreateKey(ctx, KeyInfo{Principal: "bob", ExpiresAt: &expires})
	require.NoError(t, err)
	_, err = v.Validate(ctx, raw)
	require.NoError(t, err)

	now = expires
	_, err = v.Validate(ctx, raw)
	require.ErrorIs(t, err, ErrExpiredKey)
}

func TestCreateKeyNeedsPrincipal(t *testing.T) {
	_, _, err := NewValidator(NewMemoryStore()).CreateKey(context.Background(), KeyInfo{Name: "x"})
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestUnknownKey(t *testing.T) {
	_, err := NewValidator(NewMemoryStore()).Validate(context.Background(), "nope")
	require.ErrorIs(t, err, ErrInvalidKey)
}
