// Command civicdesk は市民通報システムのバックエンドAPIサーバーと端末フロントエンドを提供する。
//
//	civicdesk serve        バックエンドAPIサーバー（既定）
//	civicdesk migrate      データベースマイグレーション
//	civicdesk healthcheck  コンテナ用ヘルスチェック
//	civicdesk tui          端末フロントエンド
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/civicdesk/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
