package incident

import (
	"time"

	"github.com/hitoshi/civicdesk/internal/model"
	"github.com/hitoshi/civicdesk/internal/security"
)

// Row は一覧の1行分の表示用データ。テキストはサニタイズ済み。
type Row struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	Address       string                 `json:"address,omitempty"`
	Status        model.IncidentStatus   `json:"status"`
	Priority      model.IncidentPriority `json:"priority"`
	CategoryName  string                 `json:"category_name,omitempty"`
	CategoryColor string                 `json:"category_color,omitempty"`
	// ReporterName は閲覧者がauthorityロールの場合のみ設定される。
	ReporterName string    `json:"reporter_name,omitempty"`
	IncidentDate time.Time `json:"incident_date"`
	CreatedAt    time.Time `json:"created_at"`
}

var sanitizer security.TextSanitizer = security.NewTextSanitizer()

// Present は通報一覧を表示用の行に変換する。
// 通報者の氏名はviewerがauthorityロールの場合のみ含める。viewerはnilでもよい。
func Present(list []model.Incident, viewer *model.Profile) []Row {
	showReporter := viewer.IsAuthority()
	rows := make([]Row, 0, len(list))
	for _, inc := range list {
		row := Row{
			ID:           inc.ID,
			Title:        sanitizer.Sanitize(inc.Title),
			Description:  sanitizer.Sanitize(inc.Description),
			Status:       inc.Status,
			Priority:     inc.Priority,
			IncidentDate: inc.IncidentDate,
			CreatedAt:    inc.CreatedAt,
		}
		if inc.Address != nil {
			row.Address = sanitizer.Sanitize(*inc.Address)
		}
		if inc.Category != nil {
			row.CategoryName = sanitizer.Sanitize(inc.Category.Name)
			row.CategoryColor = inc.Category.Color
		}
		if showReporter && inc.Reporter != nil {
			row.ReporterName = sanitizer.Sanitize(inc.Reporter.FullName)
		}
		rows = append(rows, row)
	}
	return rows
}

// RedactReporters はviewerがauthorityロールでない場合に通報者を除いた一覧のコピーを返す。
// 元の一覧は変更しない。
func RedactReporters(list []model.Incident, viewer *model.Profile) []model.Incident {
	if viewer.IsAuthority() {
		return list
	}
	redacted := make([]model.Incident, len(list))
	copy(redacted, list)
	for i := range redacted {
		redacted[i].Reporter = nil
	}
	return redacted
}
