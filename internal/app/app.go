package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/civicdesk/internal/auth"
	"github.com/hitoshi/civicdesk/internal/backend"
	"github.com/hitoshi/civicdesk/internal/config"
	"github.com/hitoshi/civicdesk/internal/database"
	"github.com/hitoshi/civicdesk/internal/handler"
	"github.com/hitoshi/civicdesk/internal/logger"
	"github.com/hitoshi/civicdesk/internal/metrics"
	"github.com/hitoshi/civicdesk/internal/middleware"
	"github.com/hitoshi/civicdesk/internal/model"
	"github.com/hitoshi/civicdesk/internal/repository"
	"github.com/hitoshi/civicdesk/internal/session"
	"github.com/hitoshi/civicdesk/internal/tui"
	"github.com/hitoshi/civicdesk/internal/user"
	"github.com/hitoshi/civicdesk/internal/worker/cleanup"
)

// defaultTUILogFile は端末フロントエンドのログ出力先。画面描画と混ざらないようファイルに書く。
const defaultTUILogFile = "civicdesk-tui.log"

// Init はアプリケーションの初期化を行う。
// .envファイルと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envファイルを環境変数に取り込む（既存の環境変数が優先）
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	if cmd == CommandTUI {
		return runTUI()
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はバックエンドAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーと期限切れセッションの掃除ジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	credRepo := repository.NewPostgresCredentialRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	recoveryRepo := repository.NewPostgresRecoveryTokenRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	incidentRepo := repository.NewPostgresIncidentRepo(db)
	categoryRepo := repository.NewPostgresCategoryRepo(db)

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. 認証サービス
	events := auth.NewBroadcaster(16, slog.Default())
	authService := auth.NewService(
		credRepo, sessionRepo, recoveryRepo, profileRepo,
		auth.NewLogMailer(slog.Default()),
		events, collector,
		auth.ServiceConfig{
			SessionMaxAge:       cfg.SessionMaxAge,
			BcryptCost:          cfg.BcryptCost,
			RecoveryTokenTTL:    cfg.RecoveryTokenTTL,
			RecoveryRedirectURL: cfg.PasswordResetRedirectURL,
		},
	)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitAuth, cfg.RateLimitGeneral),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		AuthService: authService,
		AuthEvents:  events,

		ProfileService:  profileRepo,
		IncidentService: incidentRepo,
		CategoryService: categoryRepo,
		UserService:     user.NewService(profileRepo, credRepo, authService),

		HealthChecker:  db,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	// イベントストリームはハンドラー側で書き込み期限を解除する
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 7. 期限切れセッションの掃除ジョブ
	cleanupJob := cleanup.NewCleanupJob(authService, collector, slog.Default())
	cleanupJob.Interval = cfg.CleanupInterval
	go cleanupJob.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runTUI は端末フロントエンドを起動する。
// バックエンドへのクライアント、セッション管理、通報一覧を組み立て、画面を閉じるまでブロックする。
func runTUI() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg := config.LoadClient()

	logPath := os.Getenv("LOG_FILE")
	if logPath == "" {
		logPath = defaultTUILogFile
	}
	logFile, err := logger.OpenFile(logPath)
	if err != nil {
		return err
	}
	defer logFile.Close()
	log := logger.Setup(logFile)

	client, err := backend.NewClient(backend.Config{
		BaseURL:       cfg.BackendURL,
		HTTPClient:    &http.Client{Timeout: cfg.HTTPTimeout},
		RefreshMargin: cfg.RefreshMargin,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	manager := session.New(client, client, session.Options{
		RedirectTo: cfg.PasswordResetRedirectURL,
		Logger:     log,
	})
	manager.Start(ctx)
	defer manager.Close()

	ui := tui.NewApp(manager, client, tui.Options{
		OnSelect: func(inc model.Incident) {
			log.Info("incident selected",
				slog.String("incident_id", inc.ID),
				slog.String("status", string(inc.Status)),
			)
		},
		Logger: log,
	})
	defer ui.Close()

	log.Info("tui starting", slog.String("backend_url", cfg.BackendURL))
	if _, err := tea.NewProgram(ui, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui exited with error: %w", err)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.Version(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
