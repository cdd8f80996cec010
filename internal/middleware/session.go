// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/civicdesk/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// sessionContextKey はリクエストコンテキストにセッションを格納するためのキー。
	sessionContextKey = contextKey("session")
)

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// ヘッダーがない場合や形式が異なる場合は空文字列を返す。
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// NewSessionMiddleware はAuthorizationヘッダーのBearerトークンからセッションを読み取り、
// 有効性を検証するミドルウェアを返す。
// 認証済みユーザーIDとセッションをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			session, err := sessionFinder.FindByID(r.Context(), token)
			if err != nil {
				slog.Error("failed to find session",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if session == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := ContextWithSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewOptionalSessionMiddleware は有効なBearerトークンがあればセッションを注入し、
// なければ未認証のまま次のハンドラーへ渡すミドルウェアを返す。
func NewOptionalSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, err := sessionFinder.FindByID(r.Context(), token)
			if err != nil {
				slog.Warn("failed to find session, continuing unauthenticated",
					slog.String("error", err.Error()),
				)
			}
			if session == nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*model.Session)
	return s, ok && s != nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ContextWithSession はコンテキストにセッションとそのユーザーIDを注入する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, session)
	return ContextWithUserID(ctx, session.UserID)
}
