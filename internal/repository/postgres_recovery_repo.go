package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/civicdesk/internal/model"
)

// PostgresRecoveryTokenRepo はPostgreSQLを使用したパスワード再設定トークンリポジトリ。
type PostgresRecoveryTokenRepo struct {
	db *sql.DB
}

// NewPostgresRecoveryTokenRepo はPostgresRecoveryTokenRepoを生成する。
func NewPostgresRecoveryTokenRepo(db *sql.DB) *PostgresRecoveryTokenRepo {
	return &PostgresRecoveryTokenRepo{db: db}
}

// Create はトークンを作成する。
func (r *PostgresRecoveryTokenRepo) Create(ctx context.Context, token *model.RecoveryToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_recovery_tokens (token, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		token.Token, token.UserID, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create recovery token: %w", err)
	}
	return nil
}

// Consume は有効なトークンを削除して返す。期限切れまたは存在しない場合はnilを返す。
// トークンは一度しか使用できない。
func (r *PostgresRecoveryTokenRepo) Consume(ctx context.Context, token string) (*model.RecoveryToken, error) {
	t := &model.RecoveryToken{}
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM auth_recovery_tokens
		 WHERE token = $1 AND expires_at > now()
		 RETURNING token, user_id, expires_at, created_at`,
		token,
	).Scan(&t.Token, &t.UserID, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume recovery token: %w", err)
	}
	return t, nil
}

// DeleteExpired は期限切れトークンを削除し、削除件数を返す。
func (r *PostgresRecoveryTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM auth_recovery_tokens WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired recovery tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ RecoveryTokenRepository = (*PostgresRecoveryTokenRepo)(nil)
