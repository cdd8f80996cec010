package middleware

import "net/http"

// StatusRecorder はHTTPレスポンスのステータスコードを記録する。
// metrics.MetricsCollectorの部分集合として定義する。
type StatusRecorder interface {
	RecordHTTPStatus(statusCode int)
}

// NewStatusMetricsMiddleware はレスポンスのステータスコードをメトリクスに記録するミドルウェアを返す。
func NewStatusMetricsMiddleware(recorder StatusRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)
			recorder.RecordHTTPStatus(rec.statusCode)
		})
	}
}
