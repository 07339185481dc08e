package storage

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Writer 非同步快照寫入器
//
// 事件處理路徑只呼叫 Enqueue（不阻塞、不回傳錯誤）；背景 goroutine 把每個房間
// 最新的一份快照寫進 Store。同一房間在寫入前又收到新快照時直接覆蓋，只寫最新的。
// 寫入失敗只記錄日誌，不影響房間狀態。
type Writer struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string][]byte // roomID -> 最新快照
	closed  bool

	signal chan struct{}
	done   chan struct{}
}

// NewWriter 創建寫入器並啟動背景 goroutine
func NewWriter(store Store, logger *slog.Logger) *Writer {
	w := &Writer{
		store:   store,
		logger:  logger,
		timeout: 2 * time.Second,
		pending: make(map[string][]byte),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

// Enqueue 排入快照
//
// nil Writer（未啟用鏡像）時什麼都不做。
func (w *Writer) Enqueue(roomID string, snapshot []byte) {
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.pending[roomID] = slices.Clone(snapshot)

	// signal 只在持鎖時送出與關閉
	select {
	case w.signal <- struct{}{}:
	default:
		// 已有待處理的通知
	}
}

// Close 寫完剩餘快照後關閉 Store
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.signal)
	w.mu.Unlock()

	<-w.done
	return w.store.Close()
}

// loop 背景寫入
func (w *Writer) loop() {
	defer close(w.done)

	for range w.signal {
		w.flush()
	}
	// signal 關閉後仍可能有最後一批
	w.flush()
}

// flush 寫入目前所有待處理的快照
func (w *Writer) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string][]byte)
	w.mu.Unlock()

	for roomID, snapshot := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err := w.store.Save(ctx, roomID, snapshot)
		cancel()
		if err != nil {
			w.logger.Warn("寫入快照鏡像失敗", "room_id", roomID, "error", err)
		}
	}
}
