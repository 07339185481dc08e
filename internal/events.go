package internal

import (
	"encoding/json"
	"fmt"
)

// 訊息格式（雙向相同）：
//
//	{"event": "vote", "data": {"participantId": "...", "value": "5"}}
//
// 舊客戶端以 "type" 欄位表示事件名稱，也一併接受。

// 客戶端 → 伺服器
const (
	EventJoin             = "join"
	EventVote             = "vote"
	EventReveal           = "reveal"
	EventReset            = "reset"
	EventToggleVoteChange = "toggle-vote-change"
	EventChangeRole       = "change-role"
	EventSendEmoji        = "send-emoji"
	EventSendChatMessage  = "send-chat-message"
	EventPing             = "ping"
)

// 伺服器 → 客戶端
const (
	EventJoined       = "joined"        // 只給加入者
	EventRoomUpdate   = "room-update"   // 經 Coalescer 廣播
	EventVoted        = "voted"         // 給其他人，不帶票值
	EventVoteRecorded = "vote-recorded" // 只給投票者本人
	EventRevealed     = "revealed"
	EventResetDone    = "reset-done"
	EventError        = "error" // 只給發起者
	EventEmojiFlying  = "emoji-flying"
	EventEmojiRecv    = "emoji-received" // 舊客戶端只聽這個
	EventChatMessage  = "chat-message"
	EventPong         = "pong"
)

// Envelope 收到的訊息
type Envelope struct {
	Event string          `json:"event"`
	Type  string          `json:"type,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Name 事件名稱
func (e Envelope) Name() string {
	if e.Event != "" {
		return e.Event
	}
	return e.Type
}

// outbound 送出的訊息
type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// encodeEvent 序列化送出的事件
func encodeEvent(event string, data any) ([]byte, error) {
	message, err := json.Marshal(outbound{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%w: 序列化事件 %s 失敗: %v", ErrInternal, event, err)
	}
	return message, nil
}

// decodePayload 解析事件內容
func decodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return ErrMalformedPayload
	}
	return nil
}

// 收到的事件內容
type (
	joinPayload struct {
		Name string `json:"name"`
	}

	votePayload struct {
		ParticipantID string `json:"participantId"`
		Value         string `json:"value"`
	}

	toggleVoteChangePayload struct {
		Allow *bool `json:"allow"`
	}

	changeRolePayload struct {
		ParticipantID string `json:"participantId"`
		Role          string `json:"role"`
	}

	sendEmojiPayload struct {
		ToParticipantID string          `json:"toParticipantId"`
		Emoji           string          `json:"emoji"`
		FromPosition    json.RawMessage `json:"fromPosition,omitempty"`
		ToPosition      json.RawMessage `json:"toPosition,omitempty"`
	}

	sendChatPayload struct {
		Text string `json:"text"`
	}
)

// VotedPayload voted 事件內容
type VotedPayload struct {
	ParticipantID string `json:"participantId"`
}

// VoteRecordedPayload vote-recorded 事件內容
type VoteRecordedPayload struct {
	ParticipantID string `json:"participantId"`
	Value         string `json:"value"`
}

// ErrorPayload error 事件內容
type ErrorPayload struct {
	Message string `json:"message"`
}

// EmojiFlyingPayload emoji-flying 事件內容（位置原樣轉發給前端做動畫）
type EmojiFlyingPayload struct {
	Reaction
	FromPosition json.RawMessage `json:"fromPosition,omitempty"`
	ToPosition   json.RawMessage `json:"toPosition,omitempty"`
}

// EmojiReceivedPayload emoji-received 事件內容
type EmojiReceivedPayload struct {
	Emoji Reaction `json:"emoji"`
}

// ChatMessage chat-message 事件內容（不存入房間狀態）
type ChatMessage struct {
	ID            string `json:"id"`
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Text          string `json:"text"`
	Timestamp     int64  `json:"timestamp"`
}
