package internal

import (
	"errors"
)

// 錯誤分類
//
// 所有拒絕的操作都歸入以下其中一類，Dispatcher 在邊界統一轉成 error 事件：
//   - ErrNotFound：參與者 / 房間不存在
//   - ErrUnauthorized：角色不允許此操作
//   - ErrConflict：違反不變量（重複 Admin、已投票且不允許改票）
//   - ErrInvalid：請求內容格式錯誤（空名稱、未知角色、不在牌組內的票）
//   - ErrInternal：非預期錯誤（panic、序列化失敗）
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrInvalid      = errors.New("invalid request")
	ErrInternal     = errors.New("internal error")
)

// Error 帶分類的錯誤
//
// Message 直接顯示給客戶端；errors.Is(err, ErrConflict) 之類的判斷透過 Unwrap 取得分類。
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// 具體錯誤
var (
	ErrAdminTaken        = newError(ErrConflict, "房間已經有管理員")
	ErrAlreadyVoted      = newError(ErrConflict, "已經投過票，目前不允許改票")
	ErrVotesRevealed     = newError(ErrConflict, "票已公開，請等待重置")
	ErrAlreadyJoined     = newError(ErrConflict, "此連線已經以其他名稱加入房間")
	ErrLastAdmin         = newError(ErrConflict, "管理員不能移除自己的權限，請先移交管理員")
	ErrTallyUnavailable  = newError(ErrConflict, "票尚未公開")
	ErrNotJoined         = newError(ErrUnauthorized, "尚未加入房間")
	ErrCannotVote        = newError(ErrUnauthorized, "此角色不能投票")
	ErrVoteForOther      = newError(ErrUnauthorized, "只能替自己投票")
	ErrNotController     = newError(ErrUnauthorized, "只有管理員或副管理員可以執行此操作")
	ErrNotAdmin          = newError(ErrUnauthorized, "只有管理員可以執行此操作")
	ErrParticipantAbsent = newError(ErrNotFound, "參與者不存在")
	ErrRoomNotFound      = newError(ErrNotFound, "房間不存在")
	ErrInvalidRoomID     = newError(ErrInvalid, "無效的房間 ID")
	ErrEmptyName         = newError(ErrInvalid, "名稱不能為空")
	ErrUnknownRole       = newError(ErrInvalid, "未知的角色")
	ErrInvalidVote       = newError(ErrInvalid, "無效的票值")
	ErrEmptyMessage      = newError(ErrInvalid, "訊息不能為空")
	ErrMessageTooLong    = newError(ErrInvalid, "訊息過長")
	ErrUnknownEvent      = newError(ErrInvalid, "未知的事件類型")
	ErrMalformedPayload  = newError(ErrInvalid, "無效的訊息格式")
)

// ClientMessage 取得給客戶端看的錯誤訊息
//
// 內部錯誤不外洩細節。
func ClientMessage(err error) string {
	var e *Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInternal):
		return "伺服器內部錯誤"
	case errors.As(err, &e):
		return e.Message
	default:
		return err.Error()
	}
}
