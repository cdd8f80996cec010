package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はバックエンドサーバー全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionMaxAge int

	// Password
	BcryptCost               int
	RecoveryTokenTTL         time.Duration
	PasswordResetRedirectURL string

	// Rate Limit
	RateLimitAuth    int
	RateLimitGeneral int

	// Cleanup
	CleanupInterval time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// ClientConfig は端末フロントエンド（tuiコマンド）の設定を保持する。
type ClientConfig struct {
	BackendURL               string
	PasswordResetRedirectURL string
	HTTPTimeout              time.Duration
	RefreshMargin            time.Duration
}

// LoadDotEnv は指定された.envファイルを環境変数に読み込む。
// 既に設定済みの環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 3600)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 10)
	cfg.RecoveryTokenTTL = getEnvDuration("RECOVERY_TOKEN_TTL", time.Hour)
	cfg.PasswordResetRedirectURL = getEnvString("PASSWORD_RESET_REDIRECT_URL",
		strings.TrimRight(cfg.BaseURL, "/")+"/reset-password")
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 20)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Minute)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// LoadClient は環境変数からClientConfigを読み込む。
// BACKEND_URLが未設定の場合はローカルのバックエンドを想定する。
func LoadClient() *ClientConfig {
	backendURL := getEnvString("BACKEND_URL", "http://localhost:8080")
	return &ClientConfig{
		BackendURL: backendURL,
		PasswordResetRedirectURL: getEnvString("PASSWORD_RESET_REDIRECT_URL",
			strings.TrimRight(backendURL, "/")+"/reset-password"),
		HTTPTimeout:   getEnvDuration("HTTP_TIMEOUT", 15*time.Second),
		RefreshMargin: getEnvDuration("REFRESH_MARGIN", time.Minute),
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
