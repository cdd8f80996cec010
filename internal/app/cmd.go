package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はバックエンドAPIサーバーモードで起動することを示す。
	// 期限切れセッションの掃除ジョブも同じプロセスで動かす。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandTUI は端末フロントエンドを起動することを示す。
	CommandTUI Command = "tui"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "tui":
		return CommandTUI
	default:
		return CommandServe
	}
}
