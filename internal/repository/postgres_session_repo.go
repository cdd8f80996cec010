package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/civicdesk/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_sessions (id, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		session.ID, session.UserID, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, created_at
		 FROM auth_sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &session.UserID, &session.ExpiresAt, &session.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return session, nil
}

// Extend はセッションの有効期限を延長する。期限切れまたは存在しない場合はnilを返す。
func (r *PostgresSessionRepo) Extend(ctx context.Context, id string, expiresAt time.Time) (*model.Session, error) {
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE auth_sessions SET expires_at = $2
		 WHERE id = $1 AND expires_at > now()
		 RETURNING id, user_id, expires_at, created_at`,
		id, expiresAt,
	).Scan(&session.ID, &session.UserID, &session.ExpiresAt, &session.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to extend session: %w", err)
	}

	return session, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM auth_sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除し、削除したセッションを返す。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) ([]*model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`DELETE FROM auth_sessions WHERE user_id = $1
		 RETURNING id, user_id, expires_at, created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return scanSessions(rows)
}

// DeleteExpired は期限切れセッションを削除し、削除したセッションを返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) ([]*model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`DELETE FROM auth_sessions WHERE expires_at <= now()
		 RETURNING id, user_id, expires_at, created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]*model.Session, error) {
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s := &model.Session{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
