// Package model はドメインモデルを定義する。
package model

import "time"

// Role はプロフィールの権限ロールを表す。
type Role string

const (
	// RoleCitizen は一般市民ロール。新規登録時のデフォルト。
	RoleCitizen Role = "citizen"
	// RoleAuthority は行政担当者ロール。通報者の氏名を閲覧できる。
	RoleAuthority Role = "authority"
)

// Profile はユーザーIDに紐づくアプリケーション側のユーザーレコードを表す。
// 同一メールアドレスで論理削除されていないプロフィールは最大1件。
type Profile struct {
	ID        string
	Email     string
	FullName  string
	Phone     *string
	Role      Role
	IsDeleted bool
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAuthority はプロフィールが行政担当者ロールかどうかを返す。
// nilプロフィールはfalse。
func (p *Profile) IsAuthority() bool {
	return p != nil && p.Role == RoleAuthority
}

// Credential はバックエンドが保持する認証情報（ハッシュ化済みパスワード）を表す。
type Credential struct {
	UserID       string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RecoveryToken はパスワード再設定メールで送付するワンタイムトークンを表す。
type RecoveryToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
