package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// 系統設計問題：
//   很多人在幾毫秒內同時投票時，每次修改都廣播完整房間快照會灌爆所有客戶端。
//
// 設計方案：
//   ✅ 結構性變更（加入 / 離開 / 公開 / 重置 / 改角色）立即廣播
//   ✅ 其他變更延遲一個視窗（預設 50ms），視窗內多次修改合併成一次
//   ✅ 與上次廣播內容相同時不送（冪等）
//
// 代價：最多延遲一個視窗，但不會遺失任何狀態變更（最後一次排程永遠送出最終狀態）。

// Transport 對連線的輸出介面（WebSocketHub 實作）
type Transport interface {
	Broadcast(roomID string, message []byte)
	BroadcastExcept(roomID, exceptConnID string, message []byte)
	Send(connID string, message []byte) bool
	Disconnect(connID string)
	ConnectionCount(roomID string) int
}

// Coalescer 房間快照廣播合併器
//
// 只持有一個計時器；排程新的計時器前一定先取消舊的。
// gen 用來辨識已被取代的計時器：Stop 之後才觸發的回呼看到 gen 不同就放棄。
type Coalescer struct {
	roomID    string
	delay     time.Duration
	transport Transport
	logger    *slog.Logger

	mu      sync.Mutex
	last    []byte // 上次廣播的快照
	timer   *time.Timer
	gen     uint64
	stopped bool
	onFlush func(roomID string, snapshot []byte)
}

// NewCoalescer 創建合併器
func NewCoalescer(roomID string, delay time.Duration, transport Transport, logger *slog.Logger) *Coalescer {
	return &Coalescer{
		roomID:    roomID,
		delay:     delay,
		transport: transport,
		logger:    logger,
	}
}

// OnFlush 每次實際廣播後呼叫（用於快照鏡像）
func (c *Coalescer) OnFlush(fn func(roomID string, snapshot []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFlush = fn
}

// Notify 通知房間狀態已變更
func (c *Coalescer) Notify(snapshot RoomSnapshot, immediate bool) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("%w: 序列化房間快照失敗: %v", ErrInternal, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}

	if immediate {
		c.cancelLocked()
		return c.flushLocked(data)
	}

	if bytes.Equal(data, c.last) {
		// 狀態回到上次廣播的樣子，排程中的中間狀態不必再送
		c.cancelLocked()
		return nil
	}

	c.cancelLocked()
	if c.delay <= 0 {
		return c.flushLocked(data)
	}

	gen := c.gen
	c.timer = time.AfterFunc(c.delay, func() {
		c.fire(gen, data)
	})
	return nil
}

// Pending 是否有排程中的廣播
func (c *Coalescer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// Stop 取消排程中的廣播，之後的 Notify 都會被忽略
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
	c.stopped = true
}

// fire 計時器回呼
func (c *Coalescer) fire(gen uint64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || gen != c.gen {
		return
	}
	c.timer = nil
	if err := c.flushLocked(data); err != nil {
		c.logger.Error("延遲廣播失敗", "room_id", c.roomID, "error", err)
	}
}

// cancelLocked 需持有鎖
func (c *Coalescer) cancelLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

// flushLocked 需持有鎖
func (c *Coalescer) flushLocked(data []byte) error {
	message, err := encodeEvent(EventRoomUpdate, json.RawMessage(data))
	if err != nil {
		return err
	}

	c.last = data
	c.transport.Broadcast(c.roomID, message)
	if c.onFlush != nil {
		c.onFlush(c.roomID, data)
	}
	return nil
}
