// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/civicdesk/internal/auth"
	"github.com/hitoshi/civicdesk/internal/middleware"
	"github.com/hitoshi/civicdesk/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, email, password, userID string) (*model.Session, error)
	Authenticate(ctx context.Context, email, password string) (*model.Session, error)
	Invalidate(ctx context.Context, sessionID string) error
	Refresh(ctx context.Context, sessionID string) (*model.Session, error)
	CurrentSession(ctx context.Context, sessionID string) (*model.Session, error)
	EmailForUser(ctx context.Context, userID string) (string, error)
	RequestPasswordReset(ctx context.Context, email, redirectTo string) error
	CompletePasswordReset(ctx context.Context, token, newPassword string) (*model.Session, error)
}

// SubscriberGauge は認証イベント購読者数を記録する。
type SubscriberGauge interface {
	SetEventSubscribers(count int)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// HeartbeatInterval はイベントストリームのキープアライブ送信間隔。
	HeartbeatInterval time.Duration
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	events  *auth.Broadcaster
	gauge   SubscriberGauge
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。gaugeはnilでもよい。
func NewAuthHandler(service AuthServiceInterface, events *auth.Broadcaster, gauge SubscriberGauge, config AuthHandlerConfig) *AuthHandler {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 25 * time.Second
	}
	return &AuthHandler{
		service: service,
		events:  events,
		gauge:   gauge,
		config:  config,
	}
}

// credentialsRequest は登録・ログインリクエストのボディ。
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	UserID   string `json:"user_id,omitempty"`
}

// recoverRequest はパスワード再設定メール送信リクエストのボディ。
type recoverRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to"`
}

// verifyRecoveryRequest はパスワード再設定完了リクエストのボディ。
type verifyRecoveryRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// sessionEnvelope は現在のセッションのレスポンス。セッションがない場合はnull。
type sessionEnvelope struct {
	Session *model.Session `json:"session"`
}

// SignUp はアカウントを登録しセッションを発行する。
// POST /auth/v1/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.service.Register(r.Context(), req.Email, req.Password, req.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// Token はメールアドレスとパスワードで認証しセッションを発行する。
// POST /auth/v1/token
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Logout はBearerトークンのセッションを破棄する。
// POST /auth/v1/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Invalidate(r.Context(), middleware.BearerToken(r)); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Refresh はBearerトークンのセッションの有効期限を延長する。
// POST /auth/v1/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Refresh(r.Context(), middleware.BearerToken(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Recover はパスワード再設定メールを送信する。
// 未登録のメールアドレスでも202を返す。
// POST /auth/v1/recover
func (h *AuthHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email, req.RedirectTo); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Verify は再設定トークンで新しいパスワードを設定し、セッションを発行する。
// POST /auth/v1/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRecoveryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.service.CompletePasswordReset(r.Context(), req.Token, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Session は現在のセッションを返す。トークンがないか無効な場合はnullを返す。
// GET /auth/v1/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.CurrentSession(r.Context(), middleware.BearerToken(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionEnvelope{Session: session})
}

// Events はBearerトークンのセッションに関する認証状態変更をServer-Sent Eventsで配信する。
// SIGNED_OUTを送信した時点でストリームを閉じる。
// GET /auth/v1/events
func (h *AuthHandler) Events(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.CurrentSession(r.Context(), middleware.BearerToken(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if session == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	rc := http.NewResponseController(w)
	// ストリーミング中はサーバーの書き込みタイムアウトを無効化する
	_ = rc.SetWriteDeadline(time.Time{})

	events, unsubscribe := h.events.Subscribe(auth.ForSession(session.ID))
	h.observeSubscribers()
	defer func() {
		unsubscribe()
		h.observeSubscribers()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.Error("event stream flush not supported", slog.String("error", err.Error()))
		return
	}

	heartbeat := time.NewTicker(h.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, evt); err != nil {
				slog.Warn("failed to write auth event",
					slog.String("session_id", session.ID),
					slog.String("error", err.Error()),
				)
				return
			}
			if evt.Type == model.AuthEventSignedOut {
				_ = rc.Flush()
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (h *AuthHandler) observeSubscribers() {
	if h.gauge != nil {
		h.gauge.SetEventSubscribers(h.events.SubscriberCount())
	}
}

// writeEvent は認証イベントを1件のSSEメッセージとして書き込む。
func writeEvent(w http.ResponseWriter, evt model.AuthEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal auth event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
	return err
}
