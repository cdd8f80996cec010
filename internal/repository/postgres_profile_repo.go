package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/civicdesk/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `id, email, full_name, phone, role, is_deleted, deleted_at, created_at, updated_at`

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	return scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`,
		id,
	))
}

// FindByEmail はメールアドレスでプロフィールを検索する。
// 有効なプロフィールを優先し、なければ最後に更新された論理削除済みプロフィールを返す。
func (r *PostgresProfileRepo) FindByEmail(ctx context.Context, email string) (*model.Profile, error) {
	return scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles
		 WHERE lower(email) = lower($1)
		 ORDER BY is_deleted ASC, updated_at DESC
		 LIMIT 1`,
		email,
	))
}

// Create はプロフィールを作成する。
func (r *PostgresProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, email, full_name, phone, role, is_deleted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)`,
		profile.ID, profile.Email, profile.FullName, nullString(profile.Phone),
		string(profile.Role), profile.CreatedAt, profile.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// Revive は論理削除済みプロフィールを復活させ、氏名と電話番号を上書きする。
func (r *PostgresProfileRepo) Revive(ctx context.Context, id, fullName string, phone *string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles
		 SET is_deleted = FALSE, deleted_at = NULL, full_name = $2, phone = $3, updated_at = now()
		 WHERE id = $1 AND is_deleted = TRUE`,
		id, fullName, nullString(phone),
	)
	if isUniqueViolation(err) {
		return false, ErrConflict
	}
	if err != nil {
		return false, fmt.Errorf("failed to revive profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// SoftDelete は有効なプロフィールを論理削除する。
func (r *PostgresProfileRepo) SoftDelete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles
		 SET is_deleted = TRUE, deleted_at = now(), updated_at = now()
		 WHERE id = $1 AND is_deleted = FALSE`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to soft-delete profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func scanProfile(row *sql.Row) (*model.Profile, error) {
	p := &model.Profile{}
	var phone sql.NullString
	var role string
	var deletedAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.Email, &p.FullName, &phone, &role,
		&p.IsDeleted, &deletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	p.Phone = nullStringPtr(phone)
	p.Role = model.Role(role)
	if deletedAt.Valid {
		p.DeletedAt = &deletedAt.Time
	}
	return p, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
