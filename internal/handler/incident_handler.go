package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/civicdesk/internal/incident"
	"github.com/hitoshi/civicdesk/internal/model"
)

// IncidentServiceInterface は通報ハンドラーが必要とする読み取りインターフェース。
type IncidentServiceInterface interface {
	ListWithRelations(ctx context.Context) ([]model.Incident, error)
}

// CategoryServiceInterface はカテゴリ一覧の読み取りインターフェース。
type CategoryServiceInterface interface {
	List(ctx context.Context) ([]model.Category, error)
}

// ProfileFinder は閲覧者のプロフィール取得に使用する。
type ProfileFinder interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
}

// IncidentMetrics は通報一覧取得のメトリクスを記録する。
type IncidentMetrics interface {
	RecordIncidentList(count int, duration time.Duration)
	RecordIncidentListFailure()
}

// IncidentHandler は通報とカテゴリのHTTPハンドラー。
type IncidentHandler struct {
	incidents  IncidentServiceInterface
	categories CategoryServiceInterface
	profiles   ProfileFinder
	metrics    IncidentMetrics
}

// NewIncidentHandler はIncidentHandlerを生成する。metricsはnilでもよい。
func NewIncidentHandler(incidents IncidentServiceInterface, categories CategoryServiceInterface, profiles ProfileFinder, metrics IncidentMetrics) *IncidentHandler {
	return &IncidentHandler{
		incidents:  incidents,
		categories: categories,
		profiles:   profiles,
		metrics:    metrics,
	}
}

// filteredIncidentsResponse は絞り込み済み一覧のレスポンス。
type filteredIncidentsResponse struct {
	Incidents []incident.Row `json:"incidents"`
	Total     int            `json:"total"`
	Search    string         `json:"search"`
	Status    string         `json:"status"`
}

// List は全通報をカテゴリ付きでcreated_at降順で返す。
// 通報者はauthorityロールの閲覧者にのみ含める。
// GET /rest/v1/incidents
func (h *IncidentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}
	viewer, ok := h.viewer(w, r, userID)
	if !ok {
		return
	}

	list, err := h.list(r.Context())
	if err != nil {
		handleServiceError(w, model.NewFetchFailureError(err))
		return
	}
	writeJSON(w, http.StatusOK, incident.RedactReporters(list, viewer))
}

// Categories は全カテゴリを返す。
// GET /rest/v1/categories
func (h *IncidentHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if categories == nil {
		categories = []model.Category{}
	}
	writeJSON(w, http.StatusOK, categories)
}

// Filtered は検索語と対応状況で絞り込んだ表示用の一覧を返す。
// 通報者名はauthorityロールの閲覧者にのみ含める。
// GET /api/incidents?search=&status=
func (h *IncidentHandler) Filtered(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}

	q := r.URL.Query()
	status, err := incident.ParseStatusFilter(q.Get("status"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	criteria := incident.Criteria{Search: q.Get("search"), Status: status}

	viewer, ok := h.viewer(w, r, userID)
	if !ok {
		return
	}

	list, err := h.list(r.Context())
	if err != nil {
		handleServiceError(w, model.NewFetchFailureError(err))
		return
	}

	rows := incident.Present(incident.Filter(list, criteria), viewer)
	writeJSON(w, http.StatusOK, filteredIncidentsResponse{
		Incidents: rows,
		Total:     len(list),
		Search:    criteria.Search,
		Status:    string(criteria.Status),
	})
}

// viewer は閲覧者のプロフィールを返す。プロフィールがない場合はnilで、通報者は表示しない。
func (h *IncidentHandler) viewer(w http.ResponseWriter, r *http.Request, userID string) (*model.Profile, bool) {
	viewer, err := h.profiles.FindByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return nil, false
	}
	if viewer == nil {
		slog.Warn("viewer profile not found, hiding reporter names", slog.String("user_id", userID))
	}
	return viewer, true
}

func (h *IncidentHandler) list(ctx context.Context) ([]model.Incident, error) {
	start := time.Now()
	list, err := h.incidents.ListWithRelations(ctx)
	if err != nil {
		slog.Error("failed to list incidents", slog.String("error", err.Error()))
		if h.metrics != nil {
			h.metrics.RecordIncidentListFailure()
		}
		return nil, err
	}
	if list == nil {
		list = []model.Incident{}
	}
	if h.metrics != nil {
		h.metrics.RecordIncidentList(len(list), time.Since(start))
	}
	return list, nil
}
