package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// 系統設計問題：
//   多條連線的事件同時抵達，如何保證房間狀態不被交錯修改？
//
// 設計方案：
//   ✅ 每個房間一個 Dispatcher，所有事件在同一把鎖內依抵達順序處理完才處理下一個
//   ✅ 每個事件：解析 → 查詢身分 → 權限檢查 → 修改 → 通知 Coalescer
//   ✅ 所有錯誤在這裡轉成 error 事件，只送給發起的連線
//
// 每條連線的狀態：
//
//	Unjoined --join--> Joined --vote/reveal/reset/toggle/change-role--> Joined
//	                   Joined --disconnect--> Disconnected（參與者直接移出房間）
//
// 重新連線不是回到原本的連線，而是新連線以相同名稱再 join 一次。

// DispatcherOptions Dispatcher 設定
type DispatcherOptions struct {
	MaxChatLength int
}

// Dispatcher 房間事件分派器
type Dispatcher struct {
	room      *Room
	sessions  *SessionRegistry
	coalescer *Coalescer
	transport Transport
	logger    *slog.Logger
	opts      DispatcherOptions

	mu sync.Mutex // 單一寫入者：同一房間的事件一次只處理一個

	handlers map[string]eventHandler
}

// eventHandler 已加入連線的事件處理函數
type eventHandler func(connID, actorID string, data json.RawMessage) error

// NewDispatcher 創建分派器
func NewDispatcher(room *Room, coalescer *Coalescer, transport Transport, opts DispatcherOptions, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		room:      room,
		sessions:  NewSessionRegistry(),
		coalescer: coalescer,
		transport: transport,
		logger:    logger.With("room_id", room.ID),
		opts:      opts,
	}
	d.handlers = map[string]eventHandler{
		EventVote:             d.handleVote,
		EventReveal:           d.handleReveal,
		EventReset:            d.handleReset,
		EventToggleVoteChange: d.handleToggleVoteChange,
		EventChangeRole:       d.handleChangeRole,
		EventSendEmoji:        d.handleSendEmoji,
		EventSendChatMessage:  d.handleSendChatMessage,
	}
	return d
}

// Room 取得房間
func (d *Dispatcher) Room() *Room {
	return d.room
}

// ConnectionCount 已加入的連線數
func (d *Dispatcher) ConnectionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions.Len()
}

// HandleMessage 處理一則原始訊息
func (d *Dispatcher) HandleMessage(connID string, message []byte) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil || env.Name() == "" {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.reject(connID, "", ErrMalformedPayload)
		return
	}
	d.Handle(connID, env)
}

// Handle 處理一個事件
func (d *Dispatcher) Handle(connID string, env Envelope) {
	d.mu.Lock()
	defer d.mu.Unlock()

	event := env.Name()

	defer func() {
		if r := recover(); r != nil {
			d.reject(connID, event, fmt.Errorf("%w: panic: %v", ErrInternal, r))
		}
	}()

	var err error
	switch event {
	case EventPing:
		d.send(connID, EventPong, nil)
		return
	case EventJoin:
		err = d.handleJoin(connID, env.Data)
	default:
		handler, known := d.handlers[event]
		if !known {
			err = ErrUnknownEvent
			break
		}
		actorID, joined := d.sessions.Resolve(connID)
		if !joined {
			err = ErrNotJoined
			break
		}
		err = handler(connID, actorID, env.Data)
	}

	if err != nil {
		d.reject(connID, event, err)
	}
}

// Disconnect 連線中斷
//
// 參與者直接從房間移除；已被新連線取代的舊連線不會移除任何人。
func (d *Dispatcher) Disconnect(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	participantID, ok := d.sessions.Unbind(connID)
	if !ok {
		return
	}
	if d.room.Remove(participantID) {
		d.logger.Info("參與者離開", "conn_id", connID, "participant_id", participantID)
		d.notify(true)
	}
}

// Close 停止延遲廣播
func (d *Dispatcher) Close() {
	d.coalescer.Stop()
}

func (d *Dispatcher) handleJoin(connID string, data json.RawMessage) error {
	var p joinPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}

	if current, joined := d.sessions.Resolve(connID); joined {
		displayName, _ := d.room.ParseName(p.Name)
		if existing, ok := d.room.Participant(current); ok && existing.Name != displayName {
			return ErrAlreadyJoined
		}
	}

	result, err := d.room.Join(p.Name)
	if err != nil {
		return err
	}

	participant := result.Participant
	if stale := d.sessions.Bind(connID, participant.ID); stale != "" {
		d.logger.Info("同名重新連線，關閉舊連線",
			"conn_id", connID,
			"stale_conn_id", stale,
			"participant_id", participant.ID)
		d.transport.Disconnect(stale)
	}

	view, _ := d.room.ParticipantView(participant.ID)
	d.send(connID, EventJoined, view)
	d.notify(true)

	d.logger.Info("參與者加入",
		"conn_id", connID,
		"participant_id", participant.ID,
		"name", participant.Name,
		"role", participant.Role,
		"rejoined", result.Rejoined)
	return nil
}

func (d *Dispatcher) handleVote(connID, actorID string, data json.RawMessage) error {
	var p votePayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	if p.ParticipantID != "" && p.ParticipantID != actorID {
		return ErrVoteForOther
	}

	if err := d.room.RecordVote(actorID, p.Value); err != nil {
		return err
	}

	if message, err := encodeEvent(EventVoted, VotedPayload{ParticipantID: actorID}); err == nil {
		d.transport.BroadcastExcept(d.room.ID, connID, message)
	}
	d.send(connID, EventVoteRecorded, VoteRecordedPayload{
		ParticipantID: actorID,
		Value:         strings.TrimSpace(p.Value),
	})
	d.notify(false)
	return nil
}

func (d *Dispatcher) handleReveal(_, actorID string, _ json.RawMessage) error {
	if err := d.room.Reveal(actorID); err != nil {
		return err
	}
	d.broadcast(EventRevealed, d.room.Snapshot())
	d.notify(true)
	d.logger.Info("公開投票", "participant_id", actorID)
	return nil
}

func (d *Dispatcher) handleReset(_, actorID string, _ json.RawMessage) error {
	if err := d.room.Reset(actorID); err != nil {
		return err
	}
	d.broadcast(EventResetDone, d.room.Snapshot())
	d.notify(true)
	d.logger.Info("重置投票", "participant_id", actorID)
	return nil
}

func (d *Dispatcher) handleToggleVoteChange(_, actorID string, data json.RawMessage) error {
	var p toggleVoteChangePayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	if p.Allow == nil {
		return ErrMalformedPayload
	}

	if err := d.room.SetVoteChangePolicy(actorID, *p.Allow); err != nil {
		return err
	}
	d.notify(false)
	return nil
}

func (d *Dispatcher) handleChangeRole(_, actorID string, data json.RawMessage) error {
	var p changeRolePayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	role, err := ParseRole(p.Role)
	if err != nil {
		return err
	}

	if err := d.room.ChangeRole(actorID, p.ParticipantID, role); err != nil {
		return err
	}
	d.notify(true)
	d.logger.Info("變更角色",
		"participant_id", actorID,
		"target_id", p.ParticipantID,
		"role", role)
	return nil
}

func (d *Dispatcher) handleSendEmoji(_, actorID string, data json.RawMessage) error {
	var p sendEmojiPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}

	reaction, err := d.room.AddReaction(actorID, p.ToParticipantID, p.Emoji)
	if err != nil {
		return err
	}

	d.broadcast(EventEmojiFlying, EmojiFlyingPayload{
		Reaction:     reaction,
		FromPosition: p.FromPosition,
		ToPosition:   p.ToPosition,
	})
	d.broadcast(EventEmojiRecv, EmojiReceivedPayload{Emoji: reaction})
	d.notify(false)
	return nil
}

func (d *Dispatcher) handleSendChatMessage(_, actorID string, data json.RawMessage) error {
	var p sendChatPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}

	text := strings.TrimSpace(p.Text)
	if text == "" {
		return ErrEmptyMessage
	}
	if d.opts.MaxChatLength > 0 && utf8.RuneCountInString(text) > d.opts.MaxChatLength {
		return ErrMessageTooLong
	}

	sender, ok := d.room.Participant(actorID)
	if !ok {
		return ErrNotJoined
	}

	d.broadcast(EventChatMessage, ChatMessage{
		ID:            uuid.NewString(),
		ParticipantID: sender.ID,
		Name:          sender.Name,
		Text:          text,
		Timestamp:     time.Now().UnixMilli(),
	})
	return nil
}

// reject 把錯誤轉成 error 事件送回發起者
//
// 重複 Admin 的加入請求另外強制斷線：該連線停在未加入狀態，沒有其他合法的下一步。
func (d *Dispatcher) reject(connID, event string, err error) {
	switch {
	case errors.Is(err, ErrInternal):
		d.logger.Error("處理事件失敗", "conn_id", connID, "event", event, "error", err)
	default:
		d.logger.Debug("拒絕事件", "conn_id", connID, "event", event, "error", err)
	}

	d.send(connID, EventError, ErrorPayload{Message: ClientMessage(err)})

	if event == EventJoin && errors.Is(err, ErrAdminTaken) {
		d.logger.Warn("重複的管理員加入請求，中斷連線", "conn_id", connID)
		d.transport.Disconnect(connID)
	}
}

// send 單播
func (d *Dispatcher) send(connID, event string, data any) {
	message, err := encodeEvent(event, data)
	if err != nil {
		d.logger.Error("序列化事件失敗", "event", event, "error", err)
		return
	}
	d.transport.Send(connID, message)
}

// broadcast 廣播給房間所有連線
func (d *Dispatcher) broadcast(event string, data any) {
	message, err := encodeEvent(event, data)
	if err != nil {
		d.logger.Error("序列化事件失敗", "event", event, "error", err)
		return
	}
	d.transport.Broadcast(d.room.ID, message)
}

// notify 通知 Coalescer
func (d *Dispatcher) notify(immediate bool) {
	if err := d.coalescer.Notify(d.room.Snapshot(), immediate); err != nil {
		d.logger.Error("廣播房間狀態失敗", "error", err)
	}
}
