package internal

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// 系統設計問題：
//   多人同時投票、公開、重置時，如何讓所有客戶端看到一致的房間狀態？
//
// 核心挑戰：
//   1. 身分：顯示名稱（可重新連線）與連線 ID（斷線即失效）是兩回事
//   2. 權限：只有特定角色可以投票 / 公開 / 重置 / 改角色
//   3. 保密：公開前不能讓其他人看到票值
//   4. 單一管理員：任何時刻最多一個 Admin
//
// 設計方案：
//   ✅ Room 擁有參與者資料，SessionRegistry 只存 ID
//   ✅ 先檢查（rules.go）再修改，失敗不留半套狀態
//   ✅ 快照時依公開狀態遮蔽票值
//   ✅ RWMutex：HTTP 查詢走讀鎖，事件處理走寫鎖

// RoomOptions 房間設定
type RoomOptions struct {
	AdminSuffix     string   // 名稱結尾帶此標記表示要求 Admin，例如 "_admin"
	Deck            []string // 允許的票值，空表示不限制
	ReactionHistory int      // 快照中每人保留的表情數
}

// DefaultRoomOptions 預設房間設定
func DefaultRoomOptions() RoomOptions {
	return RoomOptions{
		AdminSuffix:     "_admin",
		Deck:            []string{"1", "3", "5", "8", "13", AbstainVote},
		ReactionHistory: 20,
	}
}

// Room 估點房間
//
// 參與者依加入順序排列（即顯示順序），另以 byName 支援以名稱重新連線。
// Admin 由角色推導，不另外記錄。
type Room struct {
	ID        string
	CreatedAt time.Time

	opts RoomOptions

	mu              sync.RWMutex
	participants    []*Participant          // 加入順序
	byID            map[string]*Participant // participantID -> Participant
	byName          map[string]string       // 顯示名稱 -> participantID
	votesRevealed   bool
	allowVoteChange bool
	lastActive      time.Time
}

// RoomSnapshot 房間快照（room-update / revealed / reset-done 的內容）
type RoomSnapshot struct {
	ID              string            `json:"id"`
	Users           []ParticipantView `json:"users"`
	VotesRevealed   bool              `json:"votesRevealed"`
	AdminID         string            `json:"adminId,omitempty"`
	AllowVoteChange bool              `json:"allowVoteChange"`
	Tally           *Tally            `json:"tally,omitempty"`
}

// JoinResult 加入結果
type JoinResult struct {
	Participant Participant
	Rejoined    bool
}

// NewRoom 創建房間
func NewRoom(id string, opts RoomOptions) *Room {
	now := time.Now()
	return &Room{
		ID:         id,
		CreatedAt:  now,
		opts:       opts,
		byID:       make(map[string]*Participant),
		byName:     make(map[string]string),
		lastActive: now,
	}
}

// Join 以顯示名稱加入
//
// 流程：
//  1. 去掉結尾的 Admin 標記（有標記表示要求 Admin）
//  2. 名稱已存在 → 重新連線，沿用原本的 ID / 角色 / 票
//  3. 名稱不存在 → 新參與者，預設 Dev
//
// 要求 Admin 但房間已有其他 Admin 時回傳 ErrAdminTaken，呼叫端須中斷該連線。
// 沒有 Admin 時，以標記重新連線的既有參與者會被升為 Admin。
func (r *Room) Join(name string) (JoinResult, error) {
	displayName, wantsAdmin := r.ParseName(name)
	if displayName == "" {
		return JoinResult{}, ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.byName[displayName]; exists {
		p := r.byID[id]
		if wantsAdmin && !p.Role.IsAdmin() {
			if err := CheckAdminClaim(p.ID, r.adminIDLocked()); err != nil {
				return JoinResult{}, err
			}
			p.Role = RoleAdmin
		}
		r.lastActive = time.Now()
		return JoinResult{Participant: p.clone(), Rejoined: true}, nil
	}

	role := RoleDev
	if wantsAdmin {
		if err := CheckAdminClaim("", r.adminIDLocked()); err != nil {
			return JoinResult{}, err
		}
		role = RoleAdmin
	}

	p := &Participant{
		ID:       uuid.NewString(),
		Name:     displayName,
		Role:     role,
		JoinedAt: time.Now(),
	}
	r.participants = append(r.participants, p)
	r.byID[p.ID] = p
	r.byName[p.Name] = p.ID
	r.lastActive = time.Now()

	return JoinResult{Participant: p.clone()}, nil
}

// ParseName 拆出顯示名稱與是否要求 Admin
func (r *Room) ParseName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	suffix := r.opts.AdminSuffix
	if suffix != "" && strings.HasSuffix(name, suffix) {
		return strings.TrimSpace(strings.TrimSuffix(name, suffix)), true
	}
	return name, false
}

// RecordVote 記錄投票
func (r *Room) RecordVote(actorID, value string) error {
	value = strings.TrimSpace(value)
	if value == "" || (len(r.opts.Deck) > 0 && !slices.Contains(r.opts.Deck, value)) {
		return ErrInvalidVote
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	actor := r.byID[actorID]
	if err := CheckVote(actor, r.votesRevealed, r.allowVoteChange); err != nil {
		return err
	}

	actor.Vote = value
	actor.HasVoted = true
	r.lastActive = time.Now()
	return nil
}

// Reveal 公開所有票
//
// 不要求所有人都已投票；未投票的人公開後顯示為未決定。
func (r *Room) Reveal(actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := CheckReveal(r.byID[actorID]); err != nil {
		return err
	}

	r.votesRevealed = true
	r.lastActive = time.Now()
	return nil
}

// Reset 清除所有票並回到未公開
func (r *Room) Reset(actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := CheckReset(r.byID[actorID]); err != nil {
		return err
	}

	for _, p := range r.participants {
		p.clearVote()
	}
	r.votesRevealed = false
	r.lastActive = time.Now()
	return nil
}

// SetVoteChangePolicy 設定是否允許改票
func (r *Room) SetVoteChangePolicy(actorID string, allow bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := CheckVoteChangePolicy(r.byID[actorID]); err != nil {
		return err
	}

	r.allowVoteChange = allow
	r.lastActive = time.Now()
	return nil
}

// ChangeRole 變更角色
//
// 單一管理員不變量：
//   - 把 Admin 指派給別人 = 移交，原管理員降為 Co-Admin
//   - 唯一的管理員不能把自己降級（rules.go 擋下）
//
// 改為不能投票的角色時一併清除該參與者的票。
func (r *Room) ChangeRole(actorID, targetID string, role Role) error {
	if !slices.Contains(Roles, role) {
		return ErrUnknownRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	actor := r.byID[actorID]
	target := r.byID[targetID]
	if err := CheckRoleChange(actor, target, role); err != nil {
		return err
	}

	if role.IsAdmin() && target.ID != actor.ID {
		actor.Role = RoleCoAdmin
	}
	target.Role = role
	if !role.CanVote() {
		target.clearVote()
	}
	r.lastActive = time.Now()
	return nil
}

// AddReaction 對某位參與者丟表情
//
// 資料層完整保留；快照只顯示最新 ReactionHistory 筆。
func (r *Room) AddReaction(fromID, toID, emoji string) (Reaction, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return Reaction{}, ErrMalformedPayload
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	from := r.byID[fromID]
	if from == nil {
		return Reaction{}, ErrNotJoined
	}
	to := r.byID[toID]
	if to == nil {
		return Reaction{}, ErrParticipantAbsent
	}

	reaction := Reaction{
		ID:           uuid.NewString(),
		Emoji:        emoji,
		FromUserID:   from.ID,
		FromUserName: from.Name,
		ToUserID:     to.ID,
		Timestamp:    time.Now().UnixMilli(),
	}
	to.Reactions = append(to.Reactions, reaction)
	r.lastActive = time.Now()
	return reaction, nil
}

// Remove 移除參與者（斷線即離開，不保留離線狀態）
func (r *Room) Remove(participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.byID[participantID]
	if !exists {
		return false
	}

	delete(r.byID, participantID)
	delete(r.byName, p.Name)
	r.participants = slices.DeleteFunc(r.participants, func(q *Participant) bool {
		return q.ID == participantID
	})
	r.lastActive = time.Now()
	return true
}

// Participant 取得參與者副本
func (r *Room) Participant(id string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.byID[id]
	if !exists {
		return Participant{}, false
	}
	return p.clone(), true
}

// ParticipantView 參與者本人看的快照（含自己的票）
func (r *Room) ParticipantView(id string) (ParticipantView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.byID[id]
	if !exists {
		return ParticipantView{}, false
	}
	return p.view(true, r.opts.ReactionHistory), true
}

// Snapshot 取得房間快照
//
// 未公開時不帶任何票值（只有 hasVoted），公開後附上統計。
func (r *Room) Snapshot() RoomSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]ParticipantView, 0, len(r.participants))
	votes := make([]string, 0, len(r.participants))
	for _, p := range r.participants {
		users = append(users, p.view(r.votesRevealed, r.opts.ReactionHistory))
		votes = append(votes, p.Vote)
	}

	snapshot := RoomSnapshot{
		ID:              r.ID,
		Users:           users,
		VotesRevealed:   r.votesRevealed,
		AdminID:         r.adminIDLocked(),
		AllowVoteChange: r.allowVoteChange,
	}
	if r.votesRevealed {
		tally := ComputeTally(votes)
		snapshot.Tally = &tally
	}
	return snapshot
}

// Tally 取得統計（僅公開後）
func (r *Room) Tally() (Tally, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.votesRevealed {
		return Tally{}, ErrTallyUnavailable
	}
	votes := make([]string, 0, len(r.participants))
	for _, p := range r.participants {
		votes = append(votes, p.Vote)
	}
	return ComputeTally(votes), nil
}

// VotesRevealed 是否已公開
func (r *Room) VotesRevealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.votesRevealed
}

// AllowVoteChange 是否允許改票
func (r *Room) AllowVoteChange() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allowVoteChange
}

// AdminID 目前管理員的參與者 ID，沒有則為空
func (r *Room) AdminID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adminIDLocked()
}

// GetParticipantCount 參與者數量
func (r *Room) GetParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Touch 更新最後活動時間（有連線進入房間時呼叫）
func (r *Room) Touch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastActive = time.Now()
}

// IsIdle 是否無人且超過 timeout 沒有活動
func (r *Room) IsIdle(timeout time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants) == 0 && time.Since(r.lastActive) >= timeout
}

// adminIDLocked 需持有鎖
func (r *Room) adminIDLocked() string {
	for _, p := range r.participants {
		if p.Role.IsAdmin() {
			return p.ID
		}
	}
	return ""
}
