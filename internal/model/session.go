// Package model はドメインモデルを定義する。
package model

import "time"

// Session はバックエンドが発行するログインセッションを表す。
// IDはアクセストークンとしてBearerヘッダーで送信される。
type Session struct {
	ID        string    `json:"access_token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Valid はセッションが指定時刻において有効かどうかを返す。
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.ID != "" && now.Before(s.ExpiresAt)
}

// AuthEventType は認証状態変更通知の種別を表す。
type AuthEventType string

const (
	AuthEventInitialSession   AuthEventType = "INITIAL_SESSION"
	AuthEventSignedIn         AuthEventType = "SIGNED_IN"
	AuthEventSignedOut        AuthEventType = "SIGNED_OUT"
	AuthEventTokenRefreshed   AuthEventType = "TOKEN_REFRESHED"
	AuthEventPasswordRecovery AuthEventType = "PASSWORD_RECOVERY"
)

// AuthEvent はバックエンドからプッシュされる認証状態変更通知。
// Sessionがnilの場合はセッションが存在しないことを示す。
type AuthEvent struct {
	Type    AuthEventType `json:"type"`
	Session *Session      `json:"session,omitempty"`
	// UserID は通知対象のユーザー。Sessionがnilでも設定される場合がある。
	UserID string `json:"user_id,omitempty"`
	// SessionID は通知対象のセッション。SIGNED_OUTでは破棄されたセッションを指す。
	SessionID string `json:"session_id,omitempty"`
}
