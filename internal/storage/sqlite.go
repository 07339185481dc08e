package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS room_snapshot (
    room_id TEXT PRIMARY KEY,
    snapshot TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// SQLiteStore SQLite 快照儲存
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite 開啟資料庫檔案並建立資料表
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Save 儲存快照（同一房間覆蓋）
func (s *SQLiteStore) Save(ctx context.Context, roomID string, snapshot []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO room_snapshot (room_id, snapshot, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(room_id) DO UPDATE SET
    snapshot = excluded.snapshot,
    updated_at = excluded.updated_at`,
		roomID, string(snapshot), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", roomID, err)
	}
	return nil
}

// Load 讀取快照
func (s *SQLiteStore) Load(ctx context.Context, roomID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var snapshot string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT snapshot FROM room_snapshot WHERE room_id = ?`, roomID).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", roomID, err)
	}
	return []byte(snapshot), nil
}

// Close 關閉資料庫
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
