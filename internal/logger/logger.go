package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel はLOG_LEVEL環境変数の値をslog.Levelに変換する。
// 未知の値や空文字列の場合はInfoを返す。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// レベルはLOG_LEVEL環境変数から決定する。
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(os.Getenv("LOG_LEVEL")),
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// writerが指定された場合はそのwriterに出力する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w)
	slog.SetDefault(logger)
}

// OpenFile は追記モードでログファイルを開く。
// 端末UIは標準出力を画面描画に使うため、ログをファイルへ退避する際に使用する。
func OpenFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
