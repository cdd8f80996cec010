package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/civicdesk/internal/model"
)

// errStreamSignedOut はサーバーからSIGNED_OUTを受信してストリームを終了したことを示す。
var errStreamSignedOut = errors.New("session signed out by backend")

// streamLoop はtokenのセッションのイベントストリームを購読し続ける。
// 切断された場合はReconnectDelay後に再接続する。ctxがキャンセルされるか、
// セッションが失効した場合に終了する。
func (c *Client) streamLoop(ctx context.Context, token string) {
	for {
		err := c.readStream(ctx, token)
		if ctx.Err() != nil || errors.Is(err, errStreamSignedOut) {
			return
		}
		if isUnauthorized(err) {
			c.logger.Info("event stream rejected, dropping session")
			c.dropSession(token)
			return
		}
		if err != nil {
			c.logger.Warn("event stream disconnected",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", c.reconnectDelay),
			)
		}

		t := time.NewTimer(c.reconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// readStream はイベントストリームに1回接続し、切断されるまで通知を処理する。
func (c *Client) readStream(ctx context.Context, token string) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/auth/v1/events"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	c.logger.Debug("event stream connected")

	var eventType string
	var data strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				if c.dispatch(token, eventType, data.String()) {
					return errStreamSignedOut
				}
			}
			eventType = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// keepalive
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

// dispatch は受信した通知をローカルの状態に反映する。ストリームを終了すべき場合はtrueを返す。
func (c *Client) dispatch(token, eventType, data string) bool {
	var evt model.AuthEvent
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		c.logger.Warn("malformed auth event",
			slog.String("event", eventType),
			slog.String("error", err.Error()),
		)
		return false
	}
	if evt.Type == "" {
		evt.Type = model.AuthEventType(eventType)
	}

	switch evt.Type {
	case model.AuthEventTokenRefreshed:
		if evt.Session != nil {
			c.applyRefresh(evt.Session)
		}
	case model.AuthEventSignedOut:
		c.dropSession(token)
		return true
	}
	return false
}
