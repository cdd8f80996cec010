package middleware

import (
	"net/http"
	"strings"
)

// noStorePrefixes はトークンや個人情報を返すエンドポイントのパス接頭辞。
var noStorePrefixes = []string{"/auth/", "/rest/", "/api/"}

// NewSecurityHeadersMiddleware はJSON APIの応答にセキュリティヘッダーを付与するミドルウェアを返す。
// 認証とデータのエンドポイントの応答はキャッシュさせない。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			if isNoStorePath(r.URL.Path) {
				h.Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isNoStorePath(path string) bool {
	for _, prefix := range noStorePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
