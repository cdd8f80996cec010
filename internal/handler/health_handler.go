package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker はデータベースなど依存先の疎通確認を行う。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// NewHealthHandler はヘルスチェックハンドラーを返す。
// checkerがnilの場合はデータベースの確認を省略する。
// GET /health
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "skipped"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := checker.PingContext(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Database: "unreachable"})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "ok"})
	}
}
