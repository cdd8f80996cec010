// Package backend はホスト型バックエンドのHTTPクライアントを提供する。
// 認証API・プロフィール・通報一覧へのアクセスをまとめ、
// セッション管理と通報一覧の各コンポーネントが利用するインターフェースを満たす。
//
// アクセストークンはメモリ上にのみ保持する。自身のログイン・ログアウトは
// ローカルで認証状態変更通知として発行し、サーバーからの通知（トークン更新・
// 期限切れによるログアウト）はServer-Sent Eventsで受信して中継する。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/civicdesk/internal/auth"
	"github.com/hitoshi/civicdesk/internal/model"
)

// Config はClientの設定。
type Config struct {
	// BaseURL はバックエンドのベースURL（例: http://localhost:8080）。
	BaseURL string
	// HTTPClient はAPI呼び出しに使用するクライアント。nilの場合はTimeout付きの既定クライアント。
	HTTPClient *http.Client
	// StreamClient はイベントストリームに使用するクライアント。Timeoutを設定しないこと。
	StreamClient *http.Client
	// RefreshMargin は有効期限のどれだけ前にトークンを更新するか。
	RefreshMargin time.Duration
	// ReconnectDelay はイベントストリーム切断後の再接続待ち時間。
	ReconnectDelay time.Duration
	Logger         *slog.Logger
}

// Client はバックエンドAPIのクライアント。
type Client struct {
	baseURL        *url.URL
	httpClient     *http.Client
	streamClient   *http.Client
	refreshMargin  time.Duration
	reconnectDelay time.Duration
	logger         *slog.Logger
	events         *auth.Broadcaster

	mu           sync.Mutex
	session      *model.Session
	streamCancel context.CancelFunc
	refreshTimer *time.Timer
	closed       bool
}

// NewClient はClientを生成する。
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", cfg.BaseURL)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.StreamClient == nil {
		cfg.StreamClient = &http.Client{}
	}
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = time.Minute
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:        base,
		httpClient:     cfg.HTTPClient,
		streamClient:   cfg.StreamClient,
		refreshMargin:  cfg.RefreshMargin,
		reconnectDelay: cfg.ReconnectDelay,
		logger:         cfg.Logger,
		events:         auth.NewBroadcaster(16, cfg.Logger),
	}, nil
}

// Close はイベントストリームとトークン更新タイマーを停止する。
// 保持しているセッションはサーバー側で破棄しない。
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopBackgroundLocked()
}

// Session は保持しているセッションのコピーを返す。
func (c *Client) Session() *model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// token は現在のアクセストークンを返す。
func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.ID
}

// errorBody はバックエンドのエラーレスポンス。
type errorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// do はJSONリクエストを送信し、2xxの場合はレスポンスをoutにデコードする。
// 2xx以外はレスポンスボディをmodel.APIErrorに変換して返す。
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any, bearer string) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("backend request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// decodeError は2xx以外のレスポンスをmodel.APIErrorに変換する。
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Code == "" {
		return &model.APIError{
			Code:     statusCode(resp.StatusCode),
			Message:  strings.TrimSpace(string(raw)),
			Category: "system",
			Err:      fmt.Errorf("backend returned status %d", resp.StatusCode),
		}
	}
	return &model.APIError{
		Code:     body.Code,
		Message:  body.Message,
		Category: body.Category,
		Action:   body.Action,
		Err:      fmt.Errorf("backend returned status %d", resp.StatusCode),
	}
}

func statusCode(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return model.ErrCodeUnauthorized
	case http.StatusNotFound:
		return "NOT_FOUND"
	default:
		return fmt.Sprintf("HTTP_%d", status)
	}
}

// isUnauthorized はエラーがトークン失効を示すかどうかを返す。
func isUnauthorized(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUnauthorized
}
