package model

import "time"

// Role はユーザーの権限を表す。
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleUser   Role = "user"
)

// IsValid は既知のロールかどうかを返す。
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleUser:
		return true
	default:
		return false
	}
}

// CanManage は管理操作（記事取り込み・削除、ソース更新）が可能なロールかどうかを返す。
func (r Role) CanManage() bool {
	return r == RoleAdmin || r == RoleEditor
}

// User は管理コンソールのユーザーを表す。
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Email        string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// Username と Role は users テーブルから結合して取得する。
type Session struct {
	ID        string
	UserID    string
	Username  string
	Role      Role
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionUser はセッションから参照できる現在のユーザー情報。
type SessionUser struct {
	ID       string
	Username string
	Role     Role
}

// User はセッションに紐づくユーザー情報を返す。
func (s *Session) User() *SessionUser {
	return &SessionUser{
		ID:       s.UserID,
		Username: s.Username,
		Role:     s.Role,
	}
}
