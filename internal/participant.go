package internal

import (
	"slices"
	"strings"
	"time"
)

// Role 參與者角色
//
// 角色決定權限：
//
//	Admin          投票 + 公開 / 重置 + 改角色 + 改票政策
//	Co-Admin       投票 + 公開 / 重置
//	Dev            只能投票
//	Product Owner  不投票
//	Observer       不投票
type Role string

const (
	RoleAdmin        Role = "Admin"
	RoleCoAdmin      Role = "Co-Admin"
	RoleDev          Role = "Dev"
	RoleProductOwner Role = "Product Owner"
	RoleObserver     Role = "Observer"
)

// Roles 所有角色（顯示順序）
var Roles = []Role{RoleAdmin, RoleCoAdmin, RoleDev, RoleProductOwner, RoleObserver}

// ParseRole 解析角色名稱
//
// 接受舊客戶端的 "Co Admin" 寫法，大小寫不敏感。
func ParseRole(s string) (Role, error) {
	normalized := strings.ToLower(strings.Join(strings.Fields(strings.ReplaceAll(s, "-", " ")), " "))
	for _, r := range Roles {
		if strings.ToLower(strings.ReplaceAll(string(r), "-", " ")) == normalized {
			return r, nil
		}
	}
	return "", ErrUnknownRole
}

// CanVote 角色是否可以投票
func (r Role) CanVote() bool {
	return r == RoleAdmin || r == RoleCoAdmin || r == RoleDev
}

// CanControl 角色是否可以公開 / 重置
func (r Role) CanControl() bool {
	return r == RoleAdmin || r == RoleCoAdmin
}

// IsAdmin 是否為管理員
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// Participant 參與者
//
// ID 在第一次加入時產生，之後以相同名稱重新連線都沿用（連線 ID 另外由 SessionRegistry 管理）。
type Participant struct {
	ID        string
	Name      string
	Role      Role
	Vote      string
	HasVoted  bool
	Reactions []Reaction
	JoinedAt  time.Time
}

// clearVote 清除投票狀態
func (p *Participant) clearVote() {
	p.Vote = ""
	p.HasVoted = false
}

// clone 深拷貝（避免呼叫端改到 Room 內部的 slice）
func (p *Participant) clone() Participant {
	c := *p
	c.Reactions = slices.Clone(p.Reactions)
	return c
}

// Reaction 表情互動
type Reaction struct {
	ID           string `json:"id"`
	Emoji        string `json:"emoji"`
	FromUserID   string `json:"fromUserId"`
	FromUserName string `json:"fromUserName"`
	ToUserID     string `json:"toUserId"`
	Timestamp    int64  `json:"timestamp"`
}

// ParticipantView 參與者快照（送給客戶端）
type ParticipantView struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Role     Role       `json:"role"`
	IsAdmin  bool       `json:"isAdmin"`
	HasVoted bool       `json:"hasVoted"`
	Vote     string     `json:"vote,omitempty"`
	Emojis   []Reaction `json:"emojis,omitempty"`
}

// view 建立快照
//
// showVote 為 false 時不帶票值（公開前保密）；reactions 只保留最新 history 筆。
func (p *Participant) view(showVote bool, history int) ParticipantView {
	v := ParticipantView{
		ID:       p.ID,
		Name:     p.Name,
		Role:     p.Role,
		IsAdmin:  p.Role.IsAdmin(),
		HasVoted: p.HasVoted,
	}
	if showVote {
		v.Vote = p.Vote
	}

	reactions := p.Reactions
	if history >= 0 && len(reactions) > history {
		reactions = reactions[len(reactions)-history:]
	}
	if len(reactions) > 0 {
		v.Emojis = make([]Reaction, len(reactions))
		copy(v.Emojis, reactions)
	}
	return v
}
