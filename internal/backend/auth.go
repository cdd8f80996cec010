package backend

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/civicdesk/internal/model"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	UserID   string `json:"user_id,omitempty"`
}

type recoverRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to"`
}

type verifyRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type sessionEnvelope struct {
	Session *model.Session `json:"session"`
}

// Subscribe は認証状態変更通知のチャネルと購読解除関数を返す。
func (c *Client) Subscribe() (<-chan model.AuthEvent, func()) {
	return c.events.Subscribe(nil)
}

// CurrentSession は保持しているトークンをバックエンドで検証し、有効なセッションを返す。
// トークンを保持していないか失効している場合はnilを返す。
func (c *Client) CurrentSession(ctx context.Context) (*model.Session, error) {
	token := c.token()
	if token == "" {
		return nil, nil
	}

	var env sessionEnvelope
	if err := c.do(ctx, http.MethodGet, "/auth/v1/session", nil, nil, &env, token); err != nil {
		return nil, err
	}
	if env.Session == nil {
		c.dropSession(token)
		return nil, nil
	}

	c.mu.Lock()
	if c.session != nil && c.session.ID == token {
		c.session = env.Session
		c.startBackgroundLocked()
	}
	c.mu.Unlock()
	s := *env.Session
	return &s, nil
}

// SignUp は認証情報を登録し、発行されたセッションを保持する。
func (c *Client) SignUp(ctx context.Context, email, password, userID string) (*model.Session, error) {
	var s model.Session
	req := credentialsRequest{Email: email, Password: password, UserID: userID}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", nil, req, &s, ""); err != nil {
		return nil, err
	}
	c.adopt(&s, model.AuthEventSignedIn)
	return &s, nil
}

// SignIn はメールアドレスとパスワードで認証し、発行されたセッションを保持する。
func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	var s model.Session
	req := credentialsRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", nil, req, &s, ""); err != nil {
		return nil, err
	}
	c.adopt(&s, model.AuthEventSignedIn)
	return &s, nil
}

// SignOut はバックエンドのセッションを破棄する。
// バックエンドの呼び出しが失敗してもローカルのセッションは破棄する。
func (c *Client) SignOut(ctx context.Context) error {
	token := c.token()
	if token == "" {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/auth/v1/logout", nil, nil, nil, token)
	c.dropSession(token)
	if err != nil && !isUnauthorized(err) {
		return err
	}
	return nil
}

// DeleteAccount はログイン中のユーザーを退会させ、ローカルのセッションを破棄する。
// プロフィールは論理削除として残り、同じメールアドレスで再登録すると復活する。
func (c *Client) DeleteAccount(ctx context.Context) error {
	token := c.token()
	if token == "" {
		return model.NewUnauthorizedError()
	}
	if err := c.do(ctx, http.MethodDelete, "/rest/v1/account", nil, nil, nil, token); err != nil {
		if isUnauthorized(err) {
			c.dropSession(token)
		}
		return err
	}
	c.dropSession(token)
	return nil
}

// ResetPasswordForEmail はパスワード再設定メールの送信を要求する。
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/recover", nil, recoverRequest{Email: email, RedirectTo: redirectTo}, nil, "")
}

// CompletePasswordReset は再設定メールのトークンで新しいパスワードを設定し、
// 発行されたセッションを保持する。
func (c *Client) CompletePasswordReset(ctx context.Context, token, newPassword string) (*model.Session, error) {
	var s model.Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/verify", nil, verifyRequest{Token: token, Password: newPassword}, &s, ""); err != nil {
		return nil, err
	}
	c.adopt(&s, model.AuthEventPasswordRecovery)
	return &s, nil
}

// Refresh は保持しているセッションの有効期限を延長する。
// トークンが失効していた場合はローカルのセッションを破棄する。
func (c *Client) Refresh(ctx context.Context) (*model.Session, error) {
	token := c.token()
	if token == "" {
		return nil, model.NewAuthFailureError("", nil)
	}

	var s model.Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/refresh", nil, nil, &s, token); err != nil {
		if isUnauthorized(err) || model.IsCode(err, model.ErrCodeAuthFailure) {
			c.dropSession(token)
		}
		return nil, err
	}
	c.applyRefresh(&s)
	return &s, nil
}

// adopt は新しいセッションを保持し、バックグラウンド処理を開始して通知を発行する。
func (c *Client) adopt(s *model.Session, evtType model.AuthEventType) {
	c.mu.Lock()
	c.stopBackgroundLocked()
	stored := *s
	c.session = &stored
	c.startBackgroundLocked()
	c.mu.Unlock()

	published := *s
	c.events.Publish(model.AuthEvent{Type: evtType, Session: &published, UserID: s.UserID})
}

// applyRefresh は延長されたセッションを反映する。トークンが切り替わっていた場合は無視する。
// 既に同じかより新しい有効期限を保持している場合は通知しない。
func (c *Client) applyRefresh(s *model.Session) {
	c.mu.Lock()
	if c.session == nil || c.session.ID != s.ID || !s.ExpiresAt.After(c.session.ExpiresAt) {
		c.mu.Unlock()
		return
	}
	stored := *s
	c.session = &stored
	c.scheduleRefreshLocked()
	c.mu.Unlock()

	published := *s
	c.events.Publish(model.AuthEvent{Type: model.AuthEventTokenRefreshed, Session: &published, UserID: s.UserID})
}

// dropSession はtokenが現在のセッションの場合に破棄し、SIGNED_OUTを発行する。
func (c *Client) dropSession(token string) {
	c.mu.Lock()
	if c.session == nil || c.session.ID != token {
		c.mu.Unlock()
		return
	}
	userID := c.session.UserID
	c.session = nil
	c.stopBackgroundLocked()
	c.mu.Unlock()

	c.events.Publish(model.AuthEvent{Type: model.AuthEventSignedOut, UserID: userID, SessionID: token})
}

// startBackgroundLocked はイベントストリームとトークン更新タイマーを開始する。c.muを保持して呼び出す。
func (c *Client) startBackgroundLocked() {
	if c.closed || c.session == nil {
		return
	}
	if c.streamCancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		c.streamCancel = cancel
		go c.streamLoop(ctx, c.session.ID)
	}
	c.scheduleRefreshLocked()
}

// stopBackgroundLocked はイベントストリームとトークン更新タイマーを停止する。c.muを保持して呼び出す。
func (c *Client) stopBackgroundLocked() {
	if c.streamCancel != nil {
		c.streamCancel()
		c.streamCancel = nil
	}
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
}

// scheduleRefreshLocked は有効期限のRefreshMargin前にトークン更新を予約する。c.muを保持して呼び出す。
func (c *Client) scheduleRefreshLocked() {
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	if c.closed || c.session == nil {
		return
	}
	delay := time.Until(c.session.ExpiresAt) - c.refreshMargin
	if delay < 0 {
		delay = 0
	}
	token := c.session.ID
	c.refreshTimer = time.AfterFunc(delay, func() { c.autoRefresh(token) })
}

// autoRefresh はタイマーから呼ばれるトークン更新。通信エラーの場合は再試行を予約する。
func (c *Client) autoRefresh(token string) {
	if c.token() != token {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Warn("token refresh failed", slog.String("error", err.Error()))
		if c.token() != token {
			return
		}
		c.mu.Lock()
		if !c.closed && c.session != nil && c.session.ID == token {
			c.refreshTimer = time.AfterFunc(c.reconnectDelay, func() { c.autoRefresh(token) })
		}
		c.mu.Unlock()
	}
}
