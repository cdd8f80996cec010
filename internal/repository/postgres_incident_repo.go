package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/civicdesk/internal/model"
)

// PostgresIncidentRepo はPostgreSQLを使用した通報リポジトリ。
type PostgresIncidentRepo struct {
	db *sql.DB
}

// NewPostgresIncidentRepo はPostgresIncidentRepoを生成する。
func NewPostgresIncidentRepo(db *sql.DB) *PostgresIncidentRepo {
	return &PostgresIncidentRepo{db: db}
}

// ListWithRelations は全通報をカテゴリと通報者プロフィールとJOINしてcreated_at降順で返す。
// カテゴリやプロフィールが参照できない行もLEFT JOINで返し、関連はnilとする。
func (r *PostgresIncidentRepo) ListWithRelations(ctx context.Context) ([]model.Incident, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT i.id, i.title, i.description, i.address, i.status, i.priority,
		        i.incident_date, i.created_at, i.user_id, i.category_id,
		        c.id, c.name, c.color,
		        p.full_name, p.email
		 FROM incidents i
		 LEFT JOIN incident_categories c ON c.id = i.category_id
		 LEFT JOIN profiles p ON p.id = i.user_id
		 ORDER BY i.created_at DESC, i.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	incidents := []model.Incident{}
	for rows.Next() {
		var inc model.Incident
		var address sql.NullString
		var status, priority string
		var catID, catName, catColor sql.NullString
		var reporterName, reporterEmail sql.NullString

		if err := rows.Scan(
			&inc.ID, &inc.Title, &inc.Description, &address, &status, &priority,
			&inc.IncidentDate, &inc.CreatedAt, &inc.UserID, &inc.CategoryID,
			&catID, &catName, &catColor,
			&reporterName, &reporterEmail,
		); err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}

		inc.Address = nullStringPtr(address)
		inc.Status = model.IncidentStatus(status)
		inc.Priority = model.IncidentPriority(priority)
		if catID.Valid {
			inc.Category = &model.Category{ID: catID.String, Name: catName.String, Color: catColor.String}
		}
		if reporterName.Valid {
			inc.Reporter = &model.Reporter{FullName: reporterName.String, Email: reporterEmail.String}
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate incidents: %w", err)
	}

	return incidents, nil
}

// compile-time interface check
var _ IncidentRepository = (*PostgresIncidentRepo)(nil)
