package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/civicdesk/internal/auth"
	"github.com/hitoshi/civicdesk/internal/middleware"
	"github.com/hitoshi/civicdesk/internal/model"
)

// mockSessionFinderForRouter はRouter統合テスト用のSessionFinderモック。
type mockSessionFinderForRouter struct {
	sessions map[string]*model.Session
}

func (m *mockSessionFinderForRouter) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(context.Context) error { return m.err }

const citizenUserID = "33333333-3333-3333-3333-333333333333"

// createTestRouter はテスト用の完全なルーターを構築するヘルパー。
func createTestRouter(t *testing.T, metrics *mockRouterMetrics, pinger HealthChecker) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps := &RouterDeps{
		Logger: logger,
		SessionFinder: &mockSessionFinderForRouter{sessions: map[string]*model.Session{
			"valid-session":   testSession("valid-session", testUserID),
			"citizen-session": testSession("citizen-session", citizenUserID),
		}},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		AuthService: &mockAuthService{
			authenticateFn: func(context.Context, string, string) (*model.Session, error) {
				return testSession("new-session", testUserID), nil
			},
		},
		AuthEvents: auth.NewBroadcaster(4, logger),
		ProfileService: &mockProfileService{
			findByEmailFn: func(ctx context.Context, email string) (*model.Profile, error) {
				return &model.Profile{ID: testUserID, Email: email, Role: model.RoleAuthority}, nil
			},
			findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
				if id == citizenUserID {
					return &model.Profile{ID: id, Email: "citizen@example.com", Role: model.RoleCitizen}, nil
				}
				return &model.Profile{ID: id, Email: "a@example.com", Role: model.RoleAuthority}, nil
			},
		},
		IncidentService: &mockIncidentService{listFn: func(context.Context) ([]model.Incident, error) { return handlerIncidents(), nil }},
		CategoryService: &mockCategoryService{},
		UserService:     &mockUserService{},
		HealthChecker:   pinger,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "# metrics\n")
		}),
	}
	if metrics != nil {
		deps.Metrics = metrics
	}
	return NewRouter(deps)
}

func TestRouter_Routes(t *testing.T) {
	router := createTestRouter(t, nil, &mockPinger{})

	tests := []struct {
		name   string
		method string
		target string
		body   string
		token  string
		want   int
	}{
		{"ヘルスチェック", http.MethodGet, "/health", "", "", http.StatusOK},
		{"メトリクス", http.MethodGet, "/metrics", "", "", http.StatusOK},
		{"ログイン", http.MethodPost, "/auth/v1/token", `{"email":"a@example.com","password":"secret1"}`, "", http.StatusOK},
		{"現在のセッション（未認証）", http.MethodGet, "/auth/v1/session", "", "", http.StatusOK},
		{"プロフィール参照は認証不要", http.MethodGet, "/rest/v1/profiles?email=a@example.com", "", "", http.StatusOK},
		{"通報一覧は認証必須", http.MethodGet, "/rest/v1/incidents", "", "", http.StatusUnauthorized},
		{"通報一覧", http.MethodGet, "/rest/v1/incidents", "", "valid-session", http.StatusOK},
		{"カテゴリ一覧", http.MethodGet, "/rest/v1/categories", "", "valid-session", http.StatusOK},
		{"絞り込み一覧", http.MethodGet, "/api/incidents?status=pending", "", "valid-session", http.StatusOK},
		{"無効なトークン", http.MethodGet, "/api/incidents", "", "expired", http.StatusUnauthorized},
		{"プロフィール作成は認証必須", http.MethodPost, "/rest/v1/profiles", `{}`, "", http.StatusUnauthorized},
		{"退会は認証必須", http.MethodDelete, "/rest/v1/account", "", "", http.StatusUnauthorized},
		{"退会", http.MethodDelete, "/rest/v1/account", "", "valid-session", http.StatusNoContent},
		{"存在しないルート", http.MethodGet, "/api/feeds", "", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.target, body)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("%s %s status = %d, want %d (body=%s)", tt.method, tt.target, w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRouter_AuthorityViewerSeesReporter(t *testing.T) {
	router := createTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	req.Header.Set("Authorization", "Bearer valid-session")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `"reporter_name":"Taro Yamada"`) {
		t.Errorf("authorityの閲覧者に通報者名が含まれていません: %s", w.Body.String())
	}
}

// TestRouter_IncidentListReporterByRole は通報一覧の通報者がauthorityにのみ返ることを検証する。
func TestRouter_IncidentListReporterByRole(t *testing.T) {
	router := createTestRouter(t, nil, nil)

	tests := []struct {
		name         string
		token        string
		wantReporter bool
	}{
		{"authority", "valid-session", true},
		{"citizen", "citizen-session", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/rest/v1/incidents", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if got := strings.Contains(w.Body.String(), `"reporter"`); got != tt.wantReporter {
				t.Errorf("通報者の有無 = %v, want %v (body=%s)", got, tt.wantReporter, w.Body.String())
			}
		})
	}
}

// TestRouter_ProfileLookupHidesDetailsFromOthers はプロフィール参照の全項目が本人のセッションにのみ返ることを検証する。
func TestRouter_ProfileLookupHidesDetailsFromOthers(t *testing.T) {
	router := createTestRouter(t, nil, nil)

	tests := []struct {
		name      string
		token     string
		wantEmail bool
	}{
		{"未認証", "", false},
		{"無効なトークン", "expired", false},
		{"他のユーザー", "citizen-session", false},
		{"本人", "valid-session", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/rest/v1/profiles?email=a@example.com", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			body := w.Body.String()
			if !strings.Contains(body, testUserID) {
				t.Errorf("IDが含まれていません: %s", body)
			}
			if got := strings.Contains(body, `"email"`) || strings.Contains(body, `"role"`); got != tt.wantEmail {
				t.Errorf("詳細項目の有無 = %v, want %v (body=%s)", got, tt.wantEmail, body)
			}
		})
	}
}

func TestRouter_PreflightAndSecurityHeaders(t *testing.T) {
	router := createTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/auth/v1/token", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestRouter_RecordsStatusMetrics(t *testing.T) {
	metrics := &mockRouterMetrics{}
	router := createTestRouter(t, metrics, nil)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/incidents", nil))

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.statuses) != 2 || metrics.statuses[0] != http.StatusOK || metrics.statuses[1] != http.StatusUnauthorized {
		t.Errorf("記録されたステータス = %v, want [200 401]", metrics.statuses)
	}
}

func TestHealthHandler_DatabaseUnreachable(t *testing.T) {
	h := NewHealthHandler(&mockPinger{err: errors.New("connection refused")})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := map[string]int{
		model.ErrCodeAuthFailure:      http.StatusBadRequest,
		model.ErrCodeDuplicateAccount: http.StatusConflict,
		model.ErrCodeUnauthorized:     http.StatusUnauthorized,
		model.ErrCodeProfileNotFound:  http.StatusNotFound,
		model.ErrCodeFetchFailure:     http.StatusBadGateway,
		model.ErrCodeInvalidStatus:    http.StatusBadRequest,
		model.ErrCodeDataConsistency:  http.StatusInternalServerError,
		"UNKNOWN":                     http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := mapAPIErrorToHTTPStatus(&model.APIError{Code: code}); got != want {
			t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", code, got, want)
		}
	}
}
