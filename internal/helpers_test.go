package internal_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// 創建測試用的 logger
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // 測試時只顯示錯誤
	}))
}

// received 連線收到的一則事件
type received struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// fakeTransport 記錄所有送出訊息的 Transport
type fakeTransport struct {
	mu           sync.Mutex
	rooms        map[string][]string // roomID -> connIDs
	inbox        map[string][]received
	disconnected []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		rooms: make(map[string][]string),
		inbox: make(map[string][]received),
	}
}

// connect 模擬連線進入房間
func (f *fakeTransport) connect(roomID string, connIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[roomID] = append(f.rooms[roomID], connIDs...)
}

func (f *fakeTransport) Broadcast(roomID string, message []byte) {
	f.BroadcastExcept(roomID, "", message)
}

func (f *fakeTransport) BroadcastExcept(roomID, exceptConnID string, message []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, connID := range f.rooms[roomID] {
		if connID != exceptConnID {
			f.deliverLocked(connID, message)
		}
	}
}

func (f *fakeTransport) Send(connID string, message []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliverLocked(connID, message)
	return true
}

func (f *fakeTransport) Disconnect(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, connID)
	for roomID, conns := range f.rooms {
		f.rooms[roomID] = slices.DeleteFunc(conns, func(c string) bool { return c == connID })
	}
}

func (f *fakeTransport) ConnectionCount(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rooms[roomID])
}

func (f *fakeTransport) deliverLocked(connID string, message []byte) {
	var msg received
	if err := json.Unmarshal(message, &msg); err != nil {
		panic(err)
	}
	f.inbox[connID] = append(f.inbox[connID], msg)
}

// events 連線收到的所有事件
func (f *fakeTransport) events(connID string) []received {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.inbox[connID])
}

// eventsNamed 連線收到的特定事件
func (f *fakeTransport) eventsNamed(connID, event string) []received {
	var out []received
	for _, msg := range f.events(connID) {
		if msg.Event == event {
			out = append(out, msg)
		}
	}
	return out
}

// last 連線最後一則特定事件
func (f *fakeTransport) last(t *testing.T, connID, event string) received {
	t.Helper()
	msgs := f.eventsNamed(connID, event)
	require.NotEmpty(t, msgs, "connection %s never received %s", connID, event)
	return msgs[len(msgs)-1]
}

func (f *fakeTransport) isDisconnected(connID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.disconnected, connID)
}

// reset 清空收件匣
func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox = make(map[string][]received)
}

// decode 解析事件內容
func decode[T any](t *testing.T, msg received) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Data, &v))
	return v
}

// envelope 組出客戶端送出的訊息
func envelope(t *testing.T, event string, data any) []byte {
	t.Helper()
	msg := map[string]any{"event": event}
	if data != nil {
		msg["data"] = data
	}
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return b
}
