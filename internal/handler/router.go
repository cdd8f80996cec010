package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/civicdesk/internal/auth"
	"github.com/hitoshi/civicdesk/internal/middleware"
)

// RouterMetrics はルーターが記録するメトリクス。metrics.MetricsCollectorが満たす。
type RouterMetrics interface {
	middleware.StatusRecorder
	IncidentMetrics
	SubscriberGauge
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthEvents  *auth.Broadcaster
	AuthConfig  AuthHandlerConfig

	// データ
	ProfileService  ProfileServiceInterface
	IncidentService IncidentServiceInterface
	CategoryService CategoryServiceInterface

	// アカウント管理（未設定の場合は退会エンドポイントを公開しない）
	UserService UserServiceInterface

	// 運用
	HealthChecker  HealthChecker
	Metrics        RouterMetrics
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → StatusMetrics → Logging → SecurityHeaders → CORS
//	  /auth/v1/*               → RateLimit(Auth)
//	  /rest/v1/*, /api/*       → Session → RateLimit(General)
//
// プロフィールの参照（GET /rest/v1/profiles）は登録前の重複確認で使うため認証不要とする。
// 全項目を返すのは本人のセッションが付いている場合のみ。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewStatusMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	var gauge SubscriberGauge
	var incidentMetrics IncidentMetrics
	if deps.Metrics != nil {
		gauge = deps.Metrics
		incidentMetrics = deps.Metrics
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthEvents, gauge, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileService, deps.AuthService)
	incidentHandler := NewIncidentHandler(deps.IncidentService, deps.CategoryService, deps.ProfileService, incidentMetrics)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証ルート（Bearerトークンはハンドラー側で検証する） ---
	r.Route("/auth/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())
			r.Post("/signup", authHandler.SignUp)
			r.Post("/token", authHandler.Token)
			r.Post("/recover", authHandler.Recover)
			r.Post("/verify", authHandler.Verify)
		})

		r.Post("/logout", authHandler.Logout)
		r.Post("/refresh", authHandler.Refresh)
		r.Get("/session", authHandler.Session)
		r.Get("/events", authHandler.Events)
	})

	// --- 認証不要のデータ参照 ---
	r.With(
		middleware.NewOptionalSessionMiddleware(deps.SessionFinder),
		deps.RateLimiter.AuthMiddleware(),
	).Get("/rest/v1/profiles", profileHandler.Get)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/rest/v1", func(r chi.Router) {
			r.Post("/profiles", profileHandler.Create)
			r.Post("/profiles/{id}/revive", profileHandler.Revive)
			r.Get("/incidents", incidentHandler.List)
			r.Get("/categories", incidentHandler.Categories)
			if deps.UserService != nil {
				r.Delete("/account", NewUserHandler(deps.UserService).Withdraw)
			}
		})

		r.Get("/api/incidents", incidentHandler.Filtered)
	})

	return r
}
