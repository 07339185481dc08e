// Package storage 房間快照的鏡像儲存
//
// 記憶體中的房間永遠是唯一的真實來源；這裡只是把每次廣播出去的快照
// 非同步寫一份到外部儲存，方便除錯與觀察。重啟後不會從鏡像恢復。
//
// 支援的後端：
//   - memory：行程內 map（測試 / 本地開發）
//   - redis：SET key value EX ttl
//   - sqlite：room_snapshot 表 upsert
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound 沒有該房間的快照
var ErrNotFound = errors.New("snapshot not found")

// Store 快照儲存
type Store interface {
	Save(ctx context.Context, roomID string, snapshot []byte) error
	Load(ctx context.Context, roomID string) ([]byte, error)
	Close() error
}

// 後端名稱
const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Open 依 driver 開啟儲存
//
// DriverNone（或空字串）回傳 nil, nil，表示不啟用鏡像。
func Open(ctx context.Context, driver, dsn string, ttl time.Duration) (Store, error) {
	switch driver {
	case "", DriverNone:
		return nil, nil
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverRedis:
		return OpenRedis(ctx, dsn, ttl)
	case DriverSQLite:
		return OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("unknown mirror driver: %q", driver)
	}
}
