package auth

import (
	"context"
	"log/slog"
)

// Mailer はパスワード再設定メールの送信インターフェース。
type Mailer interface {
	SendRecovery(ctx context.Context, email, link string) error
}

// LogMailer はメールを送信せず、構造化ログに出力するMailer。
// 開発環境およびメール配信基盤を持たない環境で使用する。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerを生成する。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// SendRecovery は再設定リンクをログに出力する。
func (m *LogMailer) SendRecovery(ctx context.Context, email, link string) error {
	m.logger.InfoContext(ctx, "password recovery mail",
		slog.String("email", email),
		slog.String("link", link),
	)
	return nil
}
