// Package model はドメインモデルを定義する。
package model

import "time"

// IncidentStatus は通報の対応状況を表す。
type IncidentStatus string

const (
	IncidentStatusPending    IncidentStatus = "pending"
	IncidentStatusInProgress IncidentStatus = "in_progress"
	IncidentStatusResolved   IncidentStatus = "resolved"
	IncidentStatusRejected   IncidentStatus = "rejected"
)

// IncidentStatuses は有効な対応状況の一覧（表示順）。
var IncidentStatuses = []IncidentStatus{
	IncidentStatusPending,
	IncidentStatusInProgress,
	IncidentStatusResolved,
	IncidentStatusRejected,
}

// Valid は対応状況が定義済みの値かどうかを返す。
func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentStatusPending, IncidentStatusInProgress, IncidentStatusResolved, IncidentStatusRejected:
		return true
	}
	return false
}

// IncidentPriority は通報の優先度を表す。
type IncidentPriority string

const (
	IncidentPriorityLow    IncidentPriority = "low"
	IncidentPriorityMedium IncidentPriority = "medium"
	IncidentPriorityHigh   IncidentPriority = "high"
	IncidentPriorityUrgent IncidentPriority = "urgent"
)

// Category は通報カテゴリ（参照データ）を表す。
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Reporter は通報者プロフィールのうち一覧表示に必要な項目。
type Reporter struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// Incident は市民から通報されたインシデントを表す。
// incident_categoriesとprofilesをJOINして取得される。
type Incident struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Address      *string          `json:"address,omitempty"`
	Status       IncidentStatus   `json:"status"`
	Priority     IncidentPriority `json:"priority"`
	IncidentDate time.Time        `json:"incident_date"`
	CreatedAt    time.Time        `json:"created_at"`
	UserID       string           `json:"user_id"`
	CategoryID   string           `json:"category_id"`
	Category     *Category        `json:"category,omitempty"`
	Reporter     *Reporter        `json:"reporter,omitempty"`
}
