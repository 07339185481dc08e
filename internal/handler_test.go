package internal_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koopa0/system-design/14-planning-poker/internal"
	"github.com/koopa0/system-design/14-planning-poker/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// handlerFixture 不經過 WebSocket，直接以 Dispatcher 驅動房間
type handlerFixture struct {
	manager   *internal.Manager
	transport *fakeTransport
	mirror    *storage.MemoryStore
	router    http.Handler
}

func newHandlerFixture(t *testing.T, withMirror bool) *handlerFixture {
	t.Helper()
	logger := testLogger()

	cfg := internal.DefaultManagerConfig()
	cfg.BroadcastDelay = 0

	f := &handlerFixture{transport: newFakeTransport()}

	var (
		sink   internal.SnapshotSink
		mirror internal.MirrorReader
	)
	if withMirror {
		f.mirror = storage.NewMemoryStore()
		sink = mirrorSink{store: f.mirror}
		mirror = f.mirror
	}

	f.manager = internal.NewManager(cfg, f.transport, sink, logger)
	t.Cleanup(f.manager.Stop)

	hub := internal.NewWebSocketHub(logger, nil)
	t.Cleanup(hub.Stop)
	f.router = internal.NewHandler(f.manager, hub, mirror, logger).Routes()
	return f
}

// mirrorSink 同步寫入鏡像
type mirrorSink struct {
	store storage.Store
}

func (s mirrorSink) Enqueue(roomID string, snapshot []byte) {
	_ = s.store.Save(context.Background(), roomID, snapshot)
}

func (f *handlerFixture) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

// seedRound 在預設房間建立 Ana（管理員）與 Beto，Beto 投 5
func (f *handlerFixture) seedRound(t *testing.T) (*internal.Dispatcher, string) {
	t.Helper()
	d := f.manager.DefaultRoom()
	anaID := join(t, d, f.transport, "conn-ana", "Ana_admin")
	betoID := join(t, d, f.transport, "conn-beto", "Beto")
	d.HandleMessage("conn-beto", envelope(t, internal.EventVote, map[string]any{"participantId": betoID, "value": "5"}))
	return d, anaID
}

// TestHandler_Health 測試健康檢查 API
func TestHandler_Health(t *testing.T) {
	f := newHandlerFixture(t, false)

	w, resp := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", resp["status"])
	assert.NotNil(t, resp["time"])
}

// TestHandler_Stats 測試統計 API
func TestHandler_Stats(t *testing.T) {
	f := newHandlerFixture(t, false)
	f.seedRound(t)
	_, err := f.manager.OpenRoom("retro")
	require.NoError(t, err)

	w, resp := f.get(t, "/stats")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), resp["total_rooms"])
	assert.Equal(t, float64(2), resp["total_participants"])
	assert.Equal(t, float64(0), resp["total_connections"])
	assert.Equal(t, "global-room", resp["default_room"])
}

// TestHandler_ListRooms 測試房間列表
func TestHandler_ListRooms(t *testing.T) {
	f := newHandlerFixture(t, false)
	f.seedRound(t)
	_, err := f.manager.OpenRoom("alpha")
	require.NoError(t, err)

	w, resp := f.get(t, "/api/v1/rooms")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), resp["total"])

	rooms := resp["rooms"].([]any)
	require.Len(t, rooms, 2)
	first := rooms[0].(map[string]any)
	second := rooms[1].(map[string]any)
	assert.Equal(t, "alpha", first["id"])
	assert.Equal(t, "global-room", second["id"])
	assert.Equal(t, float64(2), second["participants"])
	assert.Equal(t, float64(2), second["connections"])
}

// TestHandler_GetRoomDetail 測試房間快照（公開前不含票值）
func TestHandler_GetRoomDetail(t *testing.T) {
	f := newHandlerFixture(t, false)
	d, anaID := f.seedRound(t)

	tests := []struct {
		name           string
		path           string
		reveal         bool
		expectedStatus int
		validate       func(t *testing.T, body string, resp map[string]any)
	}{
		{
			name:           "hidden votes",
			path:           "/api/v1/rooms/global-room",
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, body string, resp map[string]any) {
				assert.Equal(t, false, resp["votesRevealed"])
				assert.Equal(t, anaID, resp["adminId"])
				assert.NotContains(t, body, `"vote"`)
				assert.Nil(t, resp["tally"])
			},
		},
		{
			name:           "revealed votes",
			path:           "/api/v1/rooms/global-room",
			reveal:         true,
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, body string, resp map[string]any) {
				assert.Equal(t, true, resp["votesRevealed"])
				assert.Contains(t, body, `"vote":"5"`)
				assert.NotNil(t, resp["tally"])
			},
		},
		{
			name:           "unknown room",
			path:           "/api/v1/rooms/nowhere",
			expectedStatus: http.StatusNotFound,
			validate: func(t *testing.T, _ string, resp map[string]any) {
				assert.Equal(t, internal.ClientMessage(internal.ErrRoomNotFound), resp["error"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.reveal {
				d.HandleMessage("conn-ana", envelope(t, internal.EventReveal, nil))
			}
			w, resp := f.get(t, tt.path)
			assert.Equal(t, tt.expectedStatus, w.Code)
			tt.validate(t, w.Body.String(), resp)
		})
	}
}

// TestHandler_GetTally 測試統計 API
func TestHandler_GetTally(t *testing.T) {
	f := newHandlerFixture(t, false)
	d, _ := f.seedRound(t)

	w, resp := f.get(t, "/api/v1/rooms/global-room/tally")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, internal.ClientMessage(internal.ErrTallyUnavailable), resp["error"])

	d.HandleMessage("conn-ana", envelope(t, internal.EventReveal, nil))

	w, resp = f.get(t, "/api/v1/rooms/global-room/tally")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), resp["total"])
	assert.Equal(t, "5", resp["winner"])
	assert.Equal(t, false, resp["tied"])

	w, _ = f.get(t, "/api/v1/rooms/nowhere/tally")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestHandler_GetMirror 測試鏡像快照 API
func TestHandler_GetMirror(t *testing.T) {
	t.Run("mirror disabled", func(t *testing.T) {
		f := newHandlerFixture(t, false)
		w, resp := f.get(t, "/api/v1/rooms/global-room/mirror")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NotEmpty(t, resp["error"])
	})

	t.Run("nothing mirrored yet", func(t *testing.T) {
		f := newHandlerFixture(t, true)
		w, _ := f.get(t, "/api/v1/rooms/global-room/mirror")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("latest broadcast snapshot", func(t *testing.T) {
		f := newHandlerFixture(t, true)
		f.seedRound(t)

		w, resp := f.get(t, "/api/v1/rooms/global-room/mirror")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "global-room", resp["id"])
		assert.Len(t, resp["users"], 2)

		// 鏡像的是廣播出去的內容，同樣不含票值
		assert.NotContains(t, w.Body.String(), `"vote"`)
	})
}
