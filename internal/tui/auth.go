package tui

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hitoshi/civicdesk/internal/model"
	"github.com/hitoshi/civicdesk/internal/session"
)

// -- messages --

type authResultMsg struct {
	mode authMode
	err  error
}

// -- model --

type authMode int

const (
	modeSignIn authMode = iota
	modeSignUp
	modeReset
)

func (m authMode) title() string {
	switch m {
	case modeSignUp:
		return "新規登録"
	case modeReset:
		return "パスワード再設定"
	}
	return "ログイン"
}

type formField struct {
	key    string
	label  string
	secret bool
}

var (
	fieldEmail    = formField{key: "email", label: "メールアドレス"}
	fieldPassword = formField{key: "password", label: "パスワード", secret: true}
	fieldFullName = formField{key: "full_name", label: "氏名"}
	fieldPhone    = formField{key: "phone", label: "電話番号（任意）"}
)

var modeFields = map[authMode][]formField{
	modeSignIn: {fieldEmail, fieldPassword},
	modeSignUp: {fieldEmail, fieldPassword, fieldFullName, fieldPhone},
	modeReset:  {fieldEmail},
}

type authModel struct {
	sessions SessionController
	mode     authMode
	values   map[string]string
	focus    int
	busy     bool
	err      string
	notice   string
}

func newAuthModel(sessions SessionController) authModel {
	return authModel{sessions: sessions, values: make(map[string]string)}
}

func (m authModel) fields() []formField {
	return modeFields[m.mode]
}

// switchMode は入力中のメールアドレスを残して別のフォームに切り替える。
func (m authModel) switchMode(mode authMode) authModel {
	email := m.values[fieldEmail.key]
	m.mode = mode
	m.values = map[string]string{fieldEmail.key: email}
	m.focus = 0
	m.err = ""
	m.notice = ""
	return m
}

func (m authModel) Update(msg tea.Msg) (authModel, tea.Cmd) {
	switch msg := msg.(type) {
	case authResultMsg:
		m.busy = false
		if msg.err != nil {
			m.err = errorMessage(msg.err)
			return m, nil
		}
		m.err = ""
		if msg.mode == modeReset {
			m.notice = "再設定用のメールを送信しました"
		}
		delete(m.values, fieldPassword.key)
		return m, nil

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		fields := m.fields()
		switch msg.String() {
		case "ctrl+t":
			return m.switchMode((m.mode + 1) % 3), nil
		case "tab", "down":
			m.focus = (m.focus + 1) % len(fields)
		case "shift+tab", "up":
			m.focus = (m.focus + len(fields) - 1) % len(fields)
		case "enter":
			if m.focus < len(fields)-1 {
				m.focus++
				return m, nil
			}
			return m.submit()
		case "esc":
			m.err = ""
			m.notice = ""
		default:
			key := fields[m.focus].key
			m.values[key] = editRune(m.values[key], msg.String())
		}
	}
	return m, nil
}

// submit は入力内容を検証し、現在のフォームの操作を実行するコマンドを返す。
func (m authModel) submit() (authModel, tea.Cmd) {
	email := strings.TrimSpace(m.values[fieldEmail.key])
	password := m.values[fieldPassword.key]
	if email == "" {
		m.err = "メールアドレスを入力してください"
		return m, nil
	}
	if m.mode != modeReset && password == "" {
		m.err = "パスワードを入力してください"
		return m, nil
	}

	m.busy = true
	m.err = ""
	m.notice = ""
	sessions := m.sessions
	mode := m.mode

	switch mode {
	case modeSignUp:
		in := session.SignUpInput{
			Email:    email,
			Password: password,
			FullName: strings.TrimSpace(m.values[fieldFullName.key]),
		}
		if phone := strings.TrimSpace(m.values[fieldPhone.key]); phone != "" {
			in.Phone = &phone
		}
		return m, func() tea.Msg {
			return authResultMsg{mode: mode, err: sessions.SignUp(context.Background(), in)}
		}
	case modeReset:
		return m, func() tea.Msg {
			return authResultMsg{mode: mode, err: sessions.ResetPassword(context.Background(), email)}
		}
	default:
		return m, func() tea.Msg {
			return authResultMsg{mode: mode, err: sessions.SignIn(context.Background(), email, password)}
		}
	}
}

func (m authModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.mode.title()))
	b.WriteString("\n\n")

	for i, f := range m.fields() {
		value := m.values[f.key]
		if f.secret {
			value = strings.Repeat("*", len([]rune(value)))
		}
		label := padRight(f.label, 18)
		if i == m.focus {
			b.WriteString(accentStyle.Render("> ") + selectedStyle.Render(label) + normalStyle.Render(value) + accentStyle.Render("█"))
		} else {
			b.WriteString("  " + dimStyle.Render(label) + normalStyle.Render(value))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case m.busy:
		b.WriteString(dimStyle.Render("送信中…"))
	case m.err != "":
		b.WriteString(errorStyle.Render(m.err))
	case m.notice != "":
		b.WriteString(noticeStyle.Render(m.notice))
	}
	b.WriteString("\n\n")
	b.WriteString(renderHelp("tab", "次の項目", "enter", "送信", "ctrl+t", "フォーム切替", "ctrl+c", "終了"))
	return b.String()
}

// errorMessage はエラーを利用者向けのメッセージに変換する。
func errorMessage(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "処理に失敗しました"
}
