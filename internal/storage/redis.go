package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix Redis key 前綴，完整 key 為 poker:room:{roomID}
const keyPrefix = "poker:room:"

// RedisStore Redis 快照儲存
//
// 每個房間一個 key，只保留最新快照；ttl 讓廢棄房間的 key 自動過期。
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore 以既有的 client 創建
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// OpenRedis 解析 redis:// URL、連線並 Ping
func OpenRedis(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.ReadTimeout = 500 * time.Millisecond
	opts.WriteTimeout = 500 * time.Millisecond

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(client, ttl), nil
}

// Save 儲存快照
func (s *RedisStore) Save(ctx context.Context, roomID string, snapshot []byte) error {
	if err := s.client.Set(ctx, keyPrefix+roomID, snapshot, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", roomID, err)
	}
	return nil
}

// Load 讀取快照
func (s *RedisStore) Load(ctx context.Context, roomID string) ([]byte, error) {
	data, err := s.client.Get(ctx, keyPrefix+roomID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", roomID, err)
	}
	return data, nil
}

// Close 關閉連線
func (s *RedisStore) Close() error {
	return s.client.Close()
}
