// Package user はアカウント管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/civicdesk/internal/model"
)

// ProfileStore は退会処理が必要とするプロフィールの永続化インターフェース。
// repository.ProfileRepositoryを満たす。
type ProfileStore interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	SoftDelete(ctx context.Context, id string) (bool, error)
}

// CredentialDeleter は認証情報の削除インターフェース。
type CredentialDeleter interface {
	Delete(ctx context.Context, userID string) error
}

// SessionRevoker はユーザーの全セッションを破棄しSIGNED_OUTを通知するインターフェース。
// auth.Serviceを満たす。
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID string) (int, error)
}

// Service はアカウント管理のサービス層。
type Service struct {
	profiles ProfileStore
	creds    CredentialDeleter
	sessions SessionRevoker
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(profiles ProfileStore, creds CredentialDeleter, sessions SessionRevoker) *Service {
	return &Service{
		profiles: profiles,
		creds:    creds,
		sessions: sessions,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: profile（論理削除）→ sessions → auth_users
// プロフィールと通報は残るため、同じメールアドレスで再登録すると同じIDで復活する。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil || profile.IsDeleted {
		return model.NewProfileNotFoundError(userID)
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. プロフィールを論理削除
	ok, err := s.profiles.SoftDelete(ctx, userID)
	if err != nil {
		return fmt.Errorf("プロフィールの論理削除に失敗しました: %w", err)
	}
	if !ok {
		return model.NewProfileNotFoundError(userID)
	}

	// 2. セッションを破棄（auth_users削除のCASCADEより先に通知を出す）
	revoked, err := s.sessions.RevokeUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("セッションの破棄に失敗しました: %w", err)
	}

	// 3. 認証情報を削除（再設定トークンはCASCADE削除）
	if err := s.creds.Delete(ctx, userID); err != nil {
		return fmt.Errorf("認証情報の削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
		slog.Int("revoked_sessions", revoked),
	)

	return nil
}
