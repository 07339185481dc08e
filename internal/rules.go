package internal

// 權限規則
//
// 純函數：只讀取參與者與房間狀態，回傳 nil 表示允許。
// Room 在持有鎖的情況下先呼叫這些檢查，全部通過才修改狀態，
// 所以被拒絕的操作不會留下半套修改。
//
//	操作              允許角色                    額外條件
//	vote              Admin, Co-Admin, Dev        未公開；已投票時需允許改票
//	reveal / reset    Admin, Co-Admin
//	改票政策          Admin
//	改角色            Admin                       唯一管理員不能降級自己

// CheckVote 檢查投票
func CheckVote(actor *Participant, revealed, allowVoteChange bool) error {
	if actor == nil {
		return ErrNotJoined
	}
	if !actor.Role.CanVote() {
		return ErrCannotVote
	}
	if revealed {
		return ErrVotesRevealed
	}
	if actor.HasVoted && !allowVoteChange {
		return ErrAlreadyVoted
	}
	return nil
}

// CheckReveal 檢查公開
func CheckReveal(actor *Participant) error {
	return checkControl(actor)
}

// CheckReset 檢查重置
func CheckReset(actor *Participant) error {
	return checkControl(actor)
}

// CheckVoteChangePolicy 檢查改票政策切換
func CheckVoteChangePolicy(actor *Participant) error {
	return checkAdmin(actor)
}

// CheckRoleChange 檢查改角色
//
// 指派 Admin 給別人視為移交（由 Room 把原管理員降為 Co-Admin），
// 所以這裡只需要擋住「唯一的管理員把自己降級」造成房間沒有管理員。
func CheckRoleChange(actor, target *Participant, newRole Role) error {
	if err := checkAdmin(actor); err != nil {
		return err
	}
	if target == nil {
		return ErrParticipantAbsent
	}
	if target.ID == actor.ID && !newRole.IsAdmin() {
		return ErrLastAdmin
	}
	return nil
}

// CheckAdminClaim 檢查加入時要求 Admin
//
// currentAdminID 為空表示目前沒有管理員；重新連線的管理員本人可以再次要求。
func CheckAdminClaim(requesterID, currentAdminID string) error {
	if currentAdminID != "" && currentAdminID != requesterID {
		return ErrAdminTaken
	}
	return nil
}

func checkControl(actor *Participant) error {
	if actor == nil {
		return ErrNotJoined
	}
	if !actor.Role.CanControl() {
		return ErrNotController
	}
	return nil
}

func checkAdmin(actor *Participant) error {
	if actor == nil {
		return ErrNotJoined
	}
	if !actor.Role.IsAdmin() {
		return ErrNotAdmin
	}
	return nil
}
