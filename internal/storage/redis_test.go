package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-planning-poker/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// setupRedis 啟動 Redis 測試容器，回傳 redis:// 連線字串
func setupRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping redis container test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	return url
}

// TestRedisStore 測試 Redis 儲存
func TestRedisStore(t *testing.T) {
	url := setupRedis(t)

	store, err := storage.OpenRedis(context.Background(), url, time.Hour)
	require.NoError(t, err)
	defer store.Close()

	checkStore(t, store)
}

// TestRedisStore_TTL 測試快照過期
func TestRedisStore_TTL(t *testing.T) {
	url := setupRedis(t)

	store, err := storage.OpenRedis(context.Background(), url, time.Second)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "short-lived", []byte(`{}`)))

	assert.Eventually(t, func() bool {
		_, err := store.Load(ctx, "short-lived")
		return errors.Is(err, storage.ErrNotFound)
	}, 5*time.Second, 100*time.Millisecond)
}

// TestRedisStore_WithWriter 測試寫入器搭配 Redis
func TestRedisStore_WithWriter(t *testing.T) {
	url := setupRedis(t)

	store, err := storage.Open(context.Background(), storage.DriverRedis, url, time.Hour)
	require.NoError(t, err)

	w := storage.NewWriter(store, testLogger())
	w.Enqueue("room-1", []byte(`{"id":"room-1"}`))
	require.NoError(t, w.Close())

	// Close 也關閉了 store，重新連線確認資料已寫入
	reader, err := storage.OpenRedis(context.Background(), url, time.Hour)
	require.NoError(t, err)
	defer reader.Close()

	got, err := reader.Load(context.Background(), "room-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"room-1"}`, string(got))
}
