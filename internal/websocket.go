package internal

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何把房間狀態即時推送給每一位參與者？
//
// 核心挑戰：
//   1. 實時通信：房間狀態變更需要立即推送給房間內所有連線
//   2. 連接管理：處理斷線、同名重新連線（舊連線要被踢掉）
//   3. 心跳機制：檢測死連接（網絡異常、客戶端崩潰）
//   4. 並發廣播：同時向多個客戶端發送消息，慢客戶端不能拖累整個房間
//
// 設計方案：
//   ✅ WebSocket - 全雙工通信（低延遲、服務器推送）
//   ✅ Hub 模式 - 集中管理所有連接，實作 Transport 給 Dispatcher 使用
//   ✅ Ping/Pong 心跳 - 檢測死連接（54s/60s）
//   ✅ 緩衝 channel - 異步發送（不阻塞 Dispatcher）

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// EventSink 接收連線上的訊息與斷線通知（Dispatcher 實作）
type EventSink interface {
	HandleMessage(connID string, message []byte)
	Disconnect(connID string)
}

// WebSocketHub WebSocket 連接中心
//
// Hub 模式設計：
//   - 集中管理所有房間的所有連接
//   - 支持房間級別的廣播（只發給該房間的連線）
//   - 連線 ID 由 Hub 產生，與參與者身分無關
//
// 系統設計考量：
//
//  1. 連接映射：map[roomID]map[connID]*Connection，另以 byID 直接查連線
//     - 廣播遍歷房間的所有連接
//     - 單播 / 斷線直接以 connID 定位
//
//  2. 並發安全：RWMutex
//     - 讀多寫少：廣播頻繁（讀鎖），註冊/註銷少（寫鎖）
//     - Send channel 只在寫鎖內關閉，持讀鎖送資料不會送到已關閉的 channel
//     - Hub 持鎖時絕不回呼 EventSink，避免與 Dispatcher 的鎖互相等待
type WebSocketHub struct {
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	connections map[string]map[string]*Connection // roomID -> connID -> Connection
	byID        map[string]*Connection            // connID -> Connection
	mu          sync.RWMutex
	stopped     bool
}

// Connection WebSocket 連接
type Connection struct {
	ID        string
	RoomID    string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *WebSocketHub
	LastPing  time.Time
	sink      EventSink
	mu        sync.Mutex
	closeOnce sync.Once // 確保 channel 只關閉一次
}

// NewWebSocketHub 創建 WebSocket Hub
//
// allowedOrigins 為空或包含 "*" 時接受所有來源。
func NewWebSocketHub(logger *slog.Logger, allowedOrigins []string) *WebSocketHub {
	hub := &WebSocketHub{
		logger:      logger,
		connections: make(map[string]map[string]*Connection),
		byID:        make(map[string]*Connection),
	}
	hub.upgrader = websocket.Upgrader{
		CheckOrigin:     originChecker(allowedOrigins),
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return hub
}

// originChecker 檢查 Origin 標頭
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// 非瀏覽器客戶端
			return true
		}
		return slices.ContainsFunc(allowed, func(o string) bool {
			return strings.EqualFold(o, origin)
		})
	}
}

// Accept 升級連線並掛到房間
//
// 之後該連線上的文字訊息都交給 sink.HandleMessage，連線結束時呼叫 sink.Disconnect。
func (hub *WebSocketHub) Accept(w http.ResponseWriter, r *http.Request, roomID string, sink EventSink) {
	hub.mu.RLock()
	stopped := hub.stopped
	hub.mu.RUnlock()
	if stopped {
		http.Error(w, "服務正在關閉", http.StatusServiceUnavailable)
		return
	}

	// 升級為 WebSocket 連接（失敗時 upgrader 已回覆 HTTP 錯誤）
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("升級 WebSocket 失敗", "room_id", roomID, "error", err)
		return
	}

	connection := &Connection{
		ID:       uuid.NewString(),
		RoomID:   roomID,
		Conn:     conn,
		Send:     make(chan []byte, sendBufferSize),
		Hub:      hub,
		LastPing: time.Now(),
		sink:     sink,
	}

	if !hub.register(connection) {
		_ = conn.Close()
		return
	}

	// 啟動讀寫 goroutine
	go connection.writePump()
	go connection.readPump()

	hub.logger.Info("WebSocket 連接建立",
		"room_id", roomID,
		"conn_id", connection.ID,
		"remote_addr", r.RemoteAddr)
}

// register 註冊連接
func (hub *WebSocketHub) register(conn *Connection) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.stopped {
		return false
	}
	if hub.connections[conn.RoomID] == nil {
		hub.connections[conn.RoomID] = make(map[string]*Connection)
	}
	hub.connections[conn.RoomID][conn.ID] = conn
	hub.byID[conn.ID] = conn
	return true
}

// unregister 取消註冊連接
func (hub *WebSocketHub) unregister(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.removeLocked(conn)
}

// removeLocked 需持有寫鎖
func (hub *WebSocketHub) removeLocked(conn *Connection) {
	if actual, exists := hub.byID[conn.ID]; !exists || actual != conn {
		return
	}
	delete(hub.byID, conn.ID)

	if roomConns, exists := hub.connections[conn.RoomID]; exists {
		delete(roomConns, conn.ID)
		// 如果房間沒有連接了，清理房間
		if len(roomConns) == 0 {
			delete(hub.connections, conn.RoomID)
		}
	}

	// 使用 sync.Once 確保 channel 只關閉一次
	conn.closeOnce.Do(func() {
		close(conn.Send)
	})
}

// Broadcast 廣播消息到房間
func (hub *WebSocketHub) Broadcast(roomID string, message []byte) {
	hub.BroadcastExcept(roomID, "", message)
}

// BroadcastExcept 廣播消息到房間，略過 exceptConnID
func (hub *WebSocketHub) BroadcastExcept(roomID, exceptConnID string, message []byte) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for connID, conn := range hub.connections[roomID] {
		if connID == exceptConnID {
			continue
		}
		hub.enqueue(conn, message)
	}
}

// Send 單播
func (hub *WebSocketHub) Send(connID string, message []byte) bool {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	conn, exists := hub.byID[connID]
	if !exists {
		return false
	}
	return hub.enqueue(conn, message)
}

// enqueue 需持有讀鎖
func (hub *WebSocketHub) enqueue(conn *Connection, message []byte) bool {
	select {
	case conn.Send <- message:
		return true
	default:
		// 連接緩衝區滿了，丟棄這則訊息；後續的 room-update 會帶最新完整狀態
		hub.logger.Warn("連接緩衝區滿",
			"room_id", conn.RoomID,
			"conn_id", conn.ID)
		return false
	}
}

// Disconnect 斷開連接
//
// 關閉 Send channel 後，writePump 送完已排隊的訊息再送出 close frame；
// readPump 隨之結束並通知 EventSink。
func (hub *WebSocketHub) Disconnect(connID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if conn, exists := hub.byID[connID]; exists {
		hub.removeLocked(conn)
	}
}

// GetConnectionCount 獲取連接數
func (hub *WebSocketHub) GetConnectionCount() map[string]int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	result := make(map[string]int)
	for roomID, conns := range hub.connections {
		result[roomID] = len(conns)
	}
	return result
}

// ConnectionCount 房間內的連線數（包含尚未加入的連線）
func (hub *WebSocketHub) ConnectionCount(roomID string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.connections[roomID])
}

// Stop 停止 WebSocket Hub
func (hub *WebSocketHub) Stop() {
	hub.mu.Lock()
	hub.stopped = true
	conns := make([]*Connection, 0, len(hub.byID))
	for _, conn := range hub.byID {
		conns = append(conns, conn)
	}
	for _, conn := range conns {
		hub.removeLocked(conn)
	}
	hub.mu.Unlock()

	hub.logger.Info("WebSocket Hub 已停止", "closed_connections", len(conns))
}

// readPump 讀取客戶端消息
//
// 系統設計：心跳機制（讀取端）
//
//  1. 超時設置：60 秒
//     - 如果 60 秒內沒有收到任何消息（包括 Pong），關閉連接
//     - 配合 writePump 的 54 秒 Ping（留 6 秒余量）
//
//  2. Pong 處理器：收到 Pong → 重置超時時間，更新 LastPing
//
//  3. 結束時：先從 Hub 移除，再通知 EventSink（參與者離開房間）
func (c *Connection) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
		c.sink.Disconnect(c.ID)
	}()

	c.Conn.SetReadLimit(maxMessageSize)

	// 設置讀取超時（60 秒）
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.Hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	// Pong 處理器（收到 Pong 重置超時）
	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("WebSocket 讀取錯誤",
					"error", err,
					"room_id", c.RoomID,
					"conn_id", c.ID)
			}
			return
		}

		// 任何訊息都代表連線仍然存活
		if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}

		if messageType == websocket.TextMessage {
			c.sink.HandleMessage(c.ID, message)
		}
	}
}

// writePump 寫入消息到客戶端
//
// 系統設計：心跳機制（發送端）
//
//  1. Ping 間隔：54 秒
//     - 很多代理服務器默認 60 秒超時，54 秒確保在超時前發送 Ping
//
//  2. 異步發送：
//     - 使用 channel（Send）緩衝消息，不阻塞 Dispatcher
//     - 緩衝區滿時跳過（避免慢客戶端拖累整個房間）
//
//  3. Send 被關閉：送完剩餘訊息後送 close frame
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				c.closeGracefully()
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				queued, ok := <-c.Send
				if !ok {
					c.closeGracefully()
					return
				}
				if err := c.Conn.WriteMessage(websocket.TextMessage, queued); err != nil {
					c.Hub.logger.Debug("發送消息失敗", "conn_id", c.ID, "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeGracefully 送出 close frame，忽略錯誤（連接可能已關閉）
func (c *Connection) closeGracefully() {
	deadline := time.Now().Add(time.Second)
	if err := c.Conn.SetWriteDeadline(deadline); err == nil {
		_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
}
