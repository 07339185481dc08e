package internal

// SessionRegistry 連線 ID → 參與者 ID 的對照表
//
// 兩個 ID 分開管理：
//   - 連線 ID：每條 WebSocket 連線一個，斷線即失效
//   - 參與者 ID：第一次以某名稱加入時產生，重新連線沿用
//
// 兩層 map 只保存 ID（不保存指標），參與者資料由 Room 擁有。
// 不是併發安全的，呼叫端（Dispatcher）以自己的鎖保護。
type SessionRegistry struct {
	byConn        map[string]string // connID -> participantID
	byParticipant map[string]string // participantID -> connID
}

// NewSessionRegistry 創建對照表
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byConn:        make(map[string]string),
		byParticipant: make(map[string]string),
	}
}

// Resolve 查詢連線綁定的參與者
func (s *SessionRegistry) Resolve(connID string) (string, bool) {
	id, ok := s.byConn[connID]
	return id, ok
}

// ConnectionOf 查詢參與者目前的連線
func (s *SessionRegistry) ConnectionOf(participantID string) (string, bool) {
	connID, ok := s.byParticipant[participantID]
	return connID, ok
}

// Bind 綁定連線與參與者
//
// 參與者原本綁在另一條連線時覆蓋舊綁定，回傳舊連線 ID（重新連線的情境）。
func (s *SessionRegistry) Bind(connID, participantID string) (stale string) {
	if old, ok := s.byParticipant[participantID]; ok && old != connID {
		delete(s.byConn, old)
		stale = old
	}
	if prev, ok := s.byConn[connID]; ok && prev != participantID {
		delete(s.byParticipant, prev)
	}
	s.byConn[connID] = participantID
	s.byParticipant[participantID] = connID
	return stale
}

// Unbind 解除連線綁定
//
// 回傳被解除的參與者 ID，呼叫端據此把參與者移出房間。
// 已被新連線取代的舊連線不會綁定任何人，回傳 false。
func (s *SessionRegistry) Unbind(connID string) (string, bool) {
	participantID, ok := s.byConn[connID]
	if !ok {
		return "", false
	}
	delete(s.byConn, connID)
	if s.byParticipant[participantID] == connID {
		delete(s.byParticipant, participantID)
	}
	return participantID, true
}

// Len 已綁定的連線數
func (s *SessionRegistry) Len() int {
	return len(s.byConn)
}
