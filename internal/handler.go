package internal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/koopa0/system-design/14-planning-poker/internal/storage"
)

// MirrorReader 讀取鏡像快照
type MirrorReader interface {
	Load(ctx context.Context, roomID string) ([]byte, error)
}

// Handler HTTP 請求處理器
type Handler struct {
	manager *Manager
	hub     *WebSocketHub
	mirror  MirrorReader
	logger  *slog.Logger
}

// NewHandler 創建 HTTP 處理器
//
// mirror 可為 nil（未啟用鏡像）。
func NewHandler(manager *Manager, hub *WebSocketHub, mirror MirrorReader, logger *slog.Logger) *Handler {
	return &Handler{
		manager: manager,
		hub:     hub,
		mirror:  mirror,
		logger:  logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	// WebSocket：升級需要原始 ResponseWriter（http.Hijacker），不經過 loggerMiddleware
	mux.HandleFunc("GET /ws", h.recoverer(h.serveDefaultRoom))
	mux.HandleFunc("GET /ws/rooms/{room_id}", h.recoverer(h.serveRoom))

	// 房間查詢 API
	mux.HandleFunc("GET /api/v1/rooms", wrap(h.listRooms))
	mux.HandleFunc("GET /api/v1/rooms/{room_id}", wrap(h.getRoomDetail))
	mux.HandleFunc("GET /api/v1/rooms/{room_id}/tally", wrap(h.getTally))
	mux.HandleFunc("GET /api/v1/rooms/{room_id}/mirror", wrap(h.getMirror))

	// 健康檢查
	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))

	return mux
}

// serveDefaultRoom 連到預設房間
func (h *Handler) serveDefaultRoom(w http.ResponseWriter, r *http.Request) {
	h.hub.Accept(w, r, h.manager.DefaultRoomID(), h.manager.DefaultRoom())
}

// serveRoom 連到指定房間（不存在就建立）
func (h *Handler) serveRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room_id")
	d, err := h.manager.OpenRoom(roomID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.hub.Accept(w, r, roomID, d)
}

// listRooms 列出房間
func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.manager.ListRooms()
	h.jsonResponse(w, map[string]any{
		"rooms": rooms,
		"total": len(rooms),
	}, http.StatusOK)
}

// getRoomDetail 獲取房間快照（公開前不含票值）
func (h *Handler) getRoomDetail(w http.ResponseWriter, r *http.Request) {
	d, err := h.manager.GetRoom(r.PathValue("room_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, d.Room().Snapshot(), http.StatusOK)
}

// getTally 獲取統計
func (h *Handler) getTally(w http.ResponseWriter, r *http.Request) {
	d, err := h.manager.GetRoom(r.PathValue("room_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	tally, err := d.Room().Tally()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, tally, http.StatusOK)
}

// getMirror 獲取最後一次鏡像的快照
func (h *Handler) getMirror(w http.ResponseWriter, r *http.Request) {
	if h.mirror == nil {
		h.errorResponse(w, "未啟用快照鏡像", http.StatusNotFound)
		return
	}

	snapshot, err := h.mirror.Load(r.Context(), r.PathValue("room_id"))
	if errors.Is(err, storage.ErrNotFound) {
		h.errorResponse(w, "沒有此房間的鏡像快照", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("讀取鏡像快照失敗", "error", err)
		h.errorResponse(w, "讀取鏡像快照失敗", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(snapshot); err != nil {
		h.logger.Error("寫入回應失敗", "error", err)
	}
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.manager.Stats()

	connections := 0
	for _, n := range h.hub.GetConnectionCount() {
		connections += n
	}
	stats["total_connections"] = connections

	h.jsonResponse(w, stats, http.StatusOK)
}

// writeError 依錯誤分類決定狀態碼
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, ErrInvalid):
		status = http.StatusBadRequest
	default:
		h.logger.Error("處理請求失敗", "error", err)
	}
	h.errorResponse(w, ClientMessage(err), status)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 包裝 ResponseWriter 以獲取狀態碼
		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
