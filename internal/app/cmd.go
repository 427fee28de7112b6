package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandFixture は検証用インメモリバックエンドを起動することを示す。
	CommandFixture Command = "fixture"
	// CommandSmoke はフィクスチャまたは実バックエンドに対して
	// 同期フロー一式を実行することを示す。
	CommandSmoke Command = "smoke"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandFixtureを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandFixture
	}

	switch args[0] {
	case "fixture":
		return CommandFixture
	case "smoke":
		return CommandSmoke
	default:
		return CommandFixture
	}
}
