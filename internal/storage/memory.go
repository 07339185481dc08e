package storage

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore 行程內快照儲存
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

// NewMemoryStore 創建記憶體儲存
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string][]byte)}
}

// Save 儲存快照
func (s *MemoryStore) Save(ctx context.Context, roomID string, snapshot []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[roomID] = slices.Clone(snapshot)
	return nil
}

// Load 讀取快照
func (s *MemoryStore) Load(ctx context.Context, roomID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(snapshot), nil
}

// Close 無資源需要釋放
func (s *MemoryStore) Close() error {
	return nil
}
