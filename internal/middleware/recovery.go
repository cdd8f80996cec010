package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 500レスポンスを返すミドルウェアを生成する。
// SSEなど既にヘッダー送信済みのレスポンスでは本文を書き込まずログのみ残す。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &trackingWriter{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				if !tw.wroteHeader {
					WriteInternalServerError(tw)
				}
			}()
			next.ServeHTTP(tw, r)
		})
	}
}

// trackingWriter はヘッダー送信済みかどうかを追跡する。
type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (tw *trackingWriter) WriteHeader(code int) {
	tw.wroteHeader = true
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *trackingWriter) Write(b []byte) (int, error) {
	tw.wroteHeader = true
	return tw.ResponseWriter.Write(b)
}

func (tw *trackingWriter) Flush() {
	if f, ok := tw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (tw *trackingWriter) Unwrap() http.ResponseWriter {
	return tw.ResponseWriter
}
