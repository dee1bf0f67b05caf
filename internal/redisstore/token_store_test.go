//go:build integration

package redisstore_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/comms-service/internal/domain"
	"github.com/cwrk-planet/comms-service/internal/redisstore"
)

func setupStore(t *testing.T) (context.Context, *redisstore.TokenStore) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.FlushDB(ctx).Err())

	store, err := redisstore.NewTokenStore(rdb, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return ctx, store
}

func TestTokenStore_UpsertGetDelete(t *testing.T) {
	ctx, store := setupStore(t)

	_, err := store.Get(ctx, "u1", domain.AppClient)
	assert.ErrorIs(t, err, domain.ErrNoTokenRegistered)

	require.NoError(t, store.Upsert(ctx, domain.DeviceToken{UserID: "u1", AppVariant: domain.AppClient, Token: "old"}))
	require.NoError(t, store.Upsert(ctx, domain.DeviceToken{UserID: "u1", AppVariant: domain.AppClient, Token: "new"}))

	tok, err := store.Get(ctx, "u1", domain.AppClient)
	require.NoError(t, err)
	assert.Equal(t, "new", tok.Token)

	require.NoError(t, store.Delete(ctx, "u1", domain.AppClient, "old"))
	_, err = store.Get(ctx, "u1", domain.AppClient)
	assert.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "u1", domain.AppClient, "new"))
	_, err = store.Get(ctx, "u1", domain.AppClient)
	assert.ErrorIs(t, err, domain.ErrNoTokenRegistered)
}

func TestNewTokenStore_NilClient(t *testing.T) {
	_, err := redisstore.NewTokenStore(nil, slog.Default())
	assert.Error(t, err)
}
