// Package tui は端末向けのフロントエンドを提供する。
// ログイン・新規登録・パスワード再設定のフォームと、ログイン後の通報一覧を表示する。
package tui

import (
	"context"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hitoshi/civicdesk/internal/incident"
	"github.com/hitoshi/civicdesk/internal/model"
	"github.com/hitoshi/civicdesk/internal/session"
)

// SessionController はTUIが利用するセッション管理の操作。session.Managerが満たす。
type SessionController interface {
	Snapshot() session.Snapshot
	Watch() (<-chan session.Snapshot, func())
	SignUp(ctx context.Context, in session.SignUpInput) error
	SignIn(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error
}

var _ SessionController = (*session.Manager)(nil)

// Options はAppの設定。
type Options struct {
	// OnSelect は一覧で通報が選択されたときに呼ばれる。
	OnSelect func(model.Incident)
	Logger   *slog.Logger
}

// -- messages --

type snapshotMsg session.Snapshot

type watchClosedMsg struct{}

type signOutResultMsg struct {
	err error
}

// App はTUIのルートモデル。
type App struct {
	sessions  SessionController
	watch     <-chan session.Snapshot
	stopWatch func()
	snap      session.Snapshot
	auth      authModel
	incidents incidentsModel
	err       string
	width     int
	height    int
}

// NewApp はAppを生成し、セッション状態の監視を開始する。終了時にCloseを呼ぶこと。
func NewApp(sessions SessionController, source incident.Source, opts Options) *App {
	watch, stop := sessions.Watch()
	browser := incident.NewBrowser(source, incident.Options{OnSelect: opts.OnSelect, Logger: opts.Logger})
	return &App{
		sessions:  sessions,
		watch:     watch,
		stopWatch: stop,
		snap:      sessions.Snapshot(),
		auth:      newAuthModel(sessions),
		incidents: newIncidentsModel(browser),
	}
}

// Close はセッション状態の監視を解除する。
func (a *App) Close() {
	a.stopWatch()
}

// waitSnapshot はセッション状態の次の変化を待つコマンドを返す。
func waitSnapshot(ch <-chan session.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return watchClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (a *App) Init() tea.Cmd {
	return waitSnapshot(a.watch)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		bodyMsg := tea.WindowSizeMsg{Width: msg.Width, Height: msg.Height - 3}
		a.incidents, _ = a.incidents.Update(bodyMsg)
		return a, nil

	case snapshotMsg:
		prev := a.snap
		a.snap = session.Snapshot(msg)
		cmds := []tea.Cmd{waitSnapshot(a.watch)}
		if a.snap.Authenticated() && (!prev.Authenticated() || prev.Session.UserID != a.snap.Session.UserID) {
			a.incidents = newIncidentsModel(a.incidents.browser)
			a.incidents.loading = true
			cmds = append(cmds, a.incidents.load())
		}
		return a, tea.Batch(cmds...)

	case watchClosedMsg:
		return a, tea.Quit

	case authResultMsg:
		var cmd tea.Cmd
		a.auth, cmd = a.auth.Update(msg)
		return a, cmd

	case incidentsLoadedMsg:
		var cmd tea.Cmd
		a.incidents, cmd = a.incidents.Update(msg)
		return a, cmd

	case signOutResultMsg:
		if msg.err != nil {
			a.err = errorMessage(msg.err)
		}
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if !a.snap.Authenticated() {
			if a.restoring() {
				return a, nil
			}
			var cmd tea.Cmd
			a.auth, cmd = a.auth.Update(msg)
			return a, cmd
		}
		if !a.incidents.editing() {
			switch msg.String() {
			case "q":
				return a, tea.Quit
			case "o":
				a.err = ""
				return a, a.signOut()
			}
		}
		var cmd tea.Cmd
		a.incidents, cmd = a.incidents.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) signOut() tea.Cmd {
	sessions := a.sessions
	return func() tea.Msg {
		return signOutResultMsg{err: sessions.SignOut(context.Background())}
	}
}

// restoring はセッション復元中かどうかを返す。
func (a *App) restoring() bool {
	return a.snap.State == session.StateUninitialized || a.snap.State == session.StateRestoring
}

func (a *App) View() string {
	var b strings.Builder
	b.WriteString(accentStyle.Render("civicdesk"))
	if a.snap.Authenticated() {
		b.WriteString(metaStyle.Render("  " + a.viewerLabel()))
	}
	b.WriteString("\n\n")

	switch {
	case a.restoring():
		b.WriteString(dimStyle.Render("セッションを確認しています…"))
	case !a.snap.Authenticated():
		b.WriteString(a.auth.View())
	default:
		if a.snap.Loading {
			b.WriteString(dimStyle.Render("プロフィールを読み込んでいます…"))
			b.WriteString("\n")
		}
		b.WriteString(a.incidents.View(a.snap.Profile))
	}

	if a.err != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(a.err))
	}
	return b.String()
}

// viewerLabel はヘッダーに表示するログイン中のユーザー名とロール。
func (a *App) viewerLabel() string {
	p := a.snap.Profile
	if p == nil {
		return a.snap.Session.UserID
	}
	name := p.FullName
	if name == "" {
		name = p.Email
	}
	return name + " (" + string(p.Role) + ")"
}
