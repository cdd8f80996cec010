package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/civicdesk/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用した認証情報リポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// FindByEmail はメールアドレスで認証情報を検索する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByEmail(ctx context.Context, email string) (*model.Credential, error) {
	return r.findOne(ctx,
		`SELECT id, email, password_hash, created_at, updated_at
		 FROM auth_users WHERE lower(email) = lower($1)`,
		email,
	)
}

// FindByID は指定ユーザーIDの認証情報を取得する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByID(ctx context.Context, userID string) (*model.Credential, error) {
	return r.findOne(ctx,
		`SELECT id, email, password_hash, created_at, updated_at
		 FROM auth_users WHERE id = $1`,
		userID,
	)
}

func (r *PostgresCredentialRepo) findOne(ctx context.Context, query string, arg string) (*model.Credential, error) {
	cred := &model.Credential{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&cred.UserID, &cred.Email, &cred.PasswordHash, &cred.CreatedAt, &cred.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	return cred, nil
}

// Create は認証情報を作成する。メールアドレスまたはIDが重複する場合はErrConflictを返す。
func (r *PostgresCredentialRepo) Create(ctx context.Context, cred *model.Credential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_users (id, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		cred.UserID, cred.Email, cred.PasswordHash, cred.CreatedAt, cred.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

// UpdatePassword はパスワードハッシュを更新する。
func (r *PostgresCredentialRepo) UpdatePassword(ctx context.Context, userID string, hash []byte) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE auth_users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		userID, hash,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("credential not found: %s", userID)
	}
	return nil
}

// Delete は認証情報を削除する。存在しない場合も成功とする。
func (r *PostgresCredentialRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM auth_users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
