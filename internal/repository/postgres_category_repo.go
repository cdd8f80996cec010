package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/civicdesk/internal/model"
)

// PostgresCategoryRepo はPostgreSQLを使用した通報カテゴリリポジトリ。
type PostgresCategoryRepo struct {
	db *sql.DB
}

// NewPostgresCategoryRepo はPostgresCategoryRepoを生成する。
func NewPostgresCategoryRepo(db *sql.DB) *PostgresCategoryRepo {
	return &PostgresCategoryRepo{db: db}
}

// List は全カテゴリを名前順で返す。
func (r *PostgresCategoryRepo) List(ctx context.Context) ([]model.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, color FROM incident_categories ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []model.Category{}
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

// compile-time interface check
var _ CategoryRepository = (*PostgresCategoryRepo)(nil)
