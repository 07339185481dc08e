package internal

import (
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"
)

// 系統設計問題：
//   房間何時建立、何時回收？誰負責把房間與連線層、鏡像儲存接在一起？
//
// 設計方案：
//   ✅ 預設房間在啟動時建立，永不回收
//   ✅ 其他房間在第一條連線進來時建立（OpenRoom）
//   ✅ cleanupLoop 定期回收沒有人且閒置超過 RoomIdleTimeout 的房間
//   ✅ 每次實際廣播的快照交給 SnapshotSink（鏡像儲存）

// roomIDPattern 合法的房間 ID
var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// SnapshotSink 接收廣播出去的房間快照
type SnapshotSink interface {
	Enqueue(roomID string, snapshot []byte)
}

// ManagerConfig 房間管理器設定
type ManagerConfig struct {
	DefaultRoomID   string
	Room            RoomOptions
	BroadcastDelay  time.Duration
	MaxChatLength   int
	RoomIdleTimeout time.Duration
	CleanupInterval time.Duration
}

// DefaultManagerConfig 預設設定
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		DefaultRoomID:   "global-room",
		Room:            DefaultRoomOptions(),
		BroadcastDelay:  50 * time.Millisecond,
		MaxChatLength:   500,
		RoomIdleTimeout: 30 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// RoomSummary 房間列表項目
type RoomSummary struct {
	ID              string    `json:"id"`
	Participants    int       `json:"participants"`
	Connections     int       `json:"connections"`
	VotesRevealed   bool      `json:"votesRevealed"`
	AllowVoteChange bool      `json:"allowVoteChange"`
	AdminID         string    `json:"adminId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Manager 房間管理器
type Manager struct {
	cfg       ManagerConfig
	transport Transport
	sink      SnapshotSink
	logger    *slog.Logger

	rooms map[string]*Dispatcher // roomID -> Dispatcher
	mu    sync.RWMutex

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager 創建房間管理器
//
// sink 可為 nil（不啟用鏡像）。
func NewManager(cfg ManagerConfig, transport Transport, sink SnapshotSink, logger *slog.Logger) *Manager {
	if cfg.DefaultRoomID == "" {
		cfg.DefaultRoomID = DefaultManagerConfig().DefaultRoomID
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	m := &Manager{
		cfg:       cfg,
		transport: transport,
		sink:      sink,
		logger:    logger,
		rooms:     make(map[string]*Dispatcher),
		stopCh:    make(chan struct{}),
	}

	m.rooms[cfg.DefaultRoomID] = m.newDispatcher(cfg.DefaultRoomID)

	// 啟動清理 goroutine
	m.wg.Add(1)
	go m.cleanupLoop()

	return m
}

// DefaultRoom 取得預設房間
func (m *Manager) DefaultRoom() *Dispatcher {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[m.cfg.DefaultRoomID]
}

// DefaultRoomID 預設房間 ID
func (m *Manager) DefaultRoomID() string {
	return m.cfg.DefaultRoomID
}

// GetRoom 獲取房間
func (m *Manager) GetRoom(roomID string) (*Dispatcher, error) {
	m.mu.RLock()
	d, exists := m.rooms[roomID]
	m.mu.RUnlock()

	if !exists {
		return nil, ErrRoomNotFound
	}
	return d, nil
}

// OpenRoom 取得房間，不存在就建立
func (m *Manager) OpenRoom(roomID string) (*Dispatcher, error) {
	if !roomIDPattern.MatchString(roomID) {
		return nil, ErrInvalidRoomID
	}

	// 持讀鎖更新活動時間，cleanup 不會在取得與更新之間回收
	m.mu.RLock()
	d, exists := m.rooms[roomID]
	if exists {
		d.Room().Touch()
	}
	m.mu.RUnlock()
	if exists {
		return d, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// 雙重檢查：拿到寫鎖前可能已被其他連線建立
	if d, exists := m.rooms[roomID]; exists {
		return d, nil
	}

	d = m.newDispatcher(roomID)
	m.rooms[roomID] = d
	m.logger.Info("房間已創建", "room_id", roomID)
	return d, nil
}

// ListRooms 列出房間（依 ID 排序）
func (m *Manager) ListRooms() []RoomSummary {
	m.mu.RLock()
	dispatchers := make([]*Dispatcher, 0, len(m.rooms))
	for _, d := range m.rooms {
		dispatchers = append(dispatchers, d)
	}
	m.mu.RUnlock()

	result := make([]RoomSummary, 0, len(dispatchers))
	for _, d := range dispatchers {
		room := d.Room()
		result = append(result, RoomSummary{
			ID:              room.ID,
			Participants:    room.GetParticipantCount(),
			Connections:     d.ConnectionCount(),
			VotesRevealed:   room.VotesRevealed(),
			AllowVoteChange: room.AllowVoteChange(),
			AdminID:         room.AdminID(),
			CreatedAt:       room.CreatedAt,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// cleanupLoop 清理閒置房間
func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stopCh:
			return
		}
	}
}

// Cleanup 執行清理（公開方法供測試使用）
func (m *Manager) Cleanup() {
	m.cleanup()
}

// cleanup 執行清理
func (m *Manager) cleanup() {
	if m.cfg.RoomIdleTimeout <= 0 {
		return
	}

	m.mu.Lock()
	var removed []*Dispatcher
	for roomID, d := range m.rooms {
		if roomID == m.cfg.DefaultRoomID {
			continue
		}
		// 還有連線（包含尚未 join 的）就不回收，否則同一個房間 ID 會出現兩個分派器
		if m.transport.ConnectionCount(roomID) > 0 {
			continue
		}
		if d.Room().IsIdle(m.cfg.RoomIdleTimeout) {
			removed = append(removed, d)
			delete(m.rooms, roomID)
		}
	}
	m.mu.Unlock()

	for _, d := range removed {
		d.Close()
		m.logger.Info("閒置房間已清理", "room_id", d.Room().ID)
	}
}

// Stop 停止管理器
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()

	m.mu.Lock()
	for _, d := range m.rooms {
		d.Close()
	}
	m.mu.Unlock()

	m.logger.Info("房間管理器已停止")
}

// Stats 獲取統計資訊
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totalParticipants := 0
	revealed := 0
	for _, d := range m.rooms {
		totalParticipants += d.Room().GetParticipantCount()
		if d.Room().VotesRevealed() {
			revealed++
		}
	}

	return map[string]any{
		"total_rooms":        len(m.rooms),
		"total_participants": totalParticipants,
		"revealed_rooms":     revealed,
		"default_room":       m.cfg.DefaultRoomID,
	}
}

// newDispatcher 組裝房間、合併器與分派器
func (m *Manager) newDispatcher(roomID string) *Dispatcher {
	room := NewRoom(roomID, m.cfg.Room)
	coalescer := NewCoalescer(roomID, m.cfg.BroadcastDelay, m.transport, m.logger)
	if m.sink != nil {
		coalescer.OnFlush(m.sink.Enqueue)
	}
	return NewDispatcher(room, coalescer, m.transport, DispatcherOptions{
		MaxChatLength: m.cfg.MaxChatLength,
	}, m.logger)
}
