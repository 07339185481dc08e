package storage_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-planning-poker/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore 記錄寫入次數，可模擬慢速或失敗的後端
type countingStore struct {
	*storage.MemoryStore

	mu     sync.Mutex
	saves  map[string]int
	delay  time.Duration
	fail   bool
	closed bool
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: storage.NewMemoryStore(), saves: make(map[string]int)}
}

func (s *countingStore) Save(ctx context.Context, roomID string, snapshot []byte) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	s.saves[roomID]++
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return errors.New("backend unavailable")
	}
	return s.MemoryStore.Save(ctx, roomID, snapshot)
}

func (s *countingStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *countingStore) saveCount(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves[roomID]
}

// TestWriter_LatestWins 測試只寫入每個房間最新的快照
func TestWriter_LatestWins(t *testing.T) {
	store := newCountingStore()
	store.delay = 20 * time.Millisecond
	w := storage.NewWriter(store, testLogger())

	for i := range 20 {
		w.Enqueue("room-1", []byte(fmt.Sprintf(`{"n":%d}`, i)))
	}
	w.Enqueue("room-2", []byte(`{"n":0}`))
	require.NoError(t, w.Close())

	got, err := store.Load(context.Background(), "room-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":19}`, string(got))
	assert.Less(t, store.saveCount("room-1"), 20, "intermediate snapshots are skipped")

	got, err = store.Load(context.Background(), "room-2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":0}`, string(got))
	assert.True(t, store.closed)
}

// TestWriter_FailureIsLogged 測試後端失敗不影響呼叫端
func TestWriter_FailureIsLogged(t *testing.T) {
	store := newCountingStore()
	store.fail = true
	w := storage.NewWriter(store, testLogger())

	w.Enqueue("room-1", []byte(`{}`))
	assert.Eventually(t, func() bool {
		return store.saveCount("room-1") == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Close())
}

// TestWriter_ClosedAndNil 測試關閉後與 nil Writer 都可以安全呼叫
func TestWriter_ClosedAndNil(t *testing.T) {
	store := newCountingStore()
	w := storage.NewWriter(store, testLogger())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	w.Enqueue("room-1", []byte(`{}`))
	assert.Equal(t, 0, store.saveCount("room-1"))

	var nilWriter *storage.Writer
	nilWriter.Enqueue("room-1", []byte(`{}`))
	assert.NoError(t, nilWriter.Close())
}

// TestWriter_ConcurrentEnqueue 測試併發排入
func TestWriter_ConcurrentEnqueue(t *testing.T) {
	store := newCountingStore()
	w := storage.NewWriter(store, testLogger())

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			roomID := fmt.Sprintf("room-%d", i)
			for j := range 50 {
				w.Enqueue(roomID, []byte(fmt.Sprintf(`{"n":%d}`, j)))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	for i := range 10 {
		got, err := store.Load(context.Background(), fmt.Sprintf("room-%d", i))
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":49}`, string(got))
	}
}
