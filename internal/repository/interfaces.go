// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/civicdesk/internal/model"
)

// ErrConflict は一意制約違反を表す。
// 呼び出し側はerrors.Isで判定し、ドメインエラーに変換する。
var ErrConflict = errors.New("unique constraint violation")

// CredentialRepository は認証情報（auth_users）の永続化インターフェース。
type CredentialRepository interface {
	// FindByEmail はメールアドレス（大文字小文字を区別しない）で認証情報を検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Credential, error)

	// FindByID は指定ユーザーIDの認証情報を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID string) (*model.Credential, error)

	// Create は認証情報を作成する。メールアドレスまたはIDが重複する場合はErrConflictを返す。
	Create(ctx context.Context, cred *model.Credential) error

	// UpdatePassword はパスワードハッシュを更新する。
	UpdatePassword(ctx context.Context, userID string, hash []byte) error

	// Delete は認証情報を削除する。セッションと再設定トークンはCASCADE削除される。
	Delete(ctx context.Context, userID string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Extend はセッションの有効期限を延長する。期限切れまたは存在しない場合はnilを返す。
	Extend(ctx context.Context, id string, expiresAt time.Time) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除し、削除したセッションを返す。
	DeleteByUserID(ctx context.Context, userID string) ([]*model.Session, error)
	// DeleteExpired は期限切れセッションを削除し、削除したセッションを返す。
	DeleteExpired(ctx context.Context) ([]*model.Session, error)
}

// RecoveryTokenRepository はパスワード再設定トークンの永続化インターフェース。
type RecoveryTokenRepository interface {
	// Create はトークンを作成する。
	Create(ctx context.Context, token *model.RecoveryToken) error
	// Consume は有効なトークンを削除して返す。期限切れまたは存在しない場合はnilを返す。
	Consume(ctx context.Context, token string) (*model.RecoveryToken, error)
	// DeleteExpired は期限切れトークンを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ProfileRepository はプロフィール（profiles）の永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。論理削除済みも含む。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// FindByEmail はメールアドレスでプロフィールを検索する。
	// 有効なプロフィールを優先し、なければ最後に更新された論理削除済みプロフィールを返す。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Profile, error)

	// Create はプロフィールを作成する。有効なプロフィールのメールが重複する場合はErrConflictを返す。
	Create(ctx context.Context, profile *model.Profile) error

	// Revive は論理削除済みプロフィールを復活させ、氏名と電話番号を上書きする。
	// IDは維持される。対象が存在しないか論理削除されていない場合はfalseを返す。
	Revive(ctx context.Context, id, fullName string, phone *string) (bool, error)

	// SoftDelete は有効なプロフィールを論理削除する。
	// 対象が存在しないか既に論理削除されている場合はfalseを返す。
	SoftDelete(ctx context.Context, id string) (bool, error)
}

// IncidentRepository は通報データの読み取りインターフェース。
type IncidentRepository interface {
	// ListWithRelations は全通報をカテゴリと通報者プロフィールとJOINして
	// created_at降順で返す。0件の場合は空スライスを返す。
	ListWithRelations(ctx context.Context) ([]model.Incident, error)
}

// CategoryRepository は通報カテゴリの読み取りインターフェース。
type CategoryRepository interface {
	// List は全カテゴリを名前順で返す。
	List(ctx context.Context) ([]model.Category, error)
}
