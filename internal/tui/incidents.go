package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hitoshi/civicdesk/internal/incident"
	"github.com/hitoshi/civicdesk/internal/model"
)

// -- messages --

type incidentsLoadedMsg struct{}

// -- model --

type incidentsModel struct {
	browser   *incident.Browser
	cursor    int
	searching bool
	search    string
	loading   bool
	detail    bool
	width     int
	height    int
}

func newIncidentsModel(browser *incident.Browser) incidentsModel {
	return incidentsModel{browser: browser}
}

// load は通報一覧を再取得するコマンドを返す。
func (m incidentsModel) load() tea.Cmd {
	b := m.browser
	return func() tea.Msg {
		b.Load(context.Background())
		return incidentsLoadedMsg{}
	}
}

// editing は検索語の入力中かどうかを返す。
func (m incidentsModel) editing() bool {
	return m.searching
}

func (m incidentsModel) Update(msg tea.Msg) (incidentsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case incidentsLoadedMsg:
		m.loading = false
		m.clampCursor()

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg), nil
		}
		switch msg.String() {
		case "/":
			m.searching = true
			m.detail = false
		case "s":
			m.browser.SetStatus(m.browser.Criteria().Status.Next())
			m.clampCursor()
		case "r":
			if !m.loading {
				m.loading = true
				return m, m.load()
			}
		case "j", "down":
			if m.cursor < len(m.browser.View())-1 {
				m.cursor++
			}
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}
		case "enter":
			m.detail = m.browser.Select(m.cursor)
		case "esc":
			m.detail = false
		}
	}
	return m, nil
}

func (m incidentsModel) updateSearch(msg tea.KeyMsg) incidentsModel {
	switch msg.String() {
	case "enter":
		m.searching = false
		return m
	case "esc":
		m.searching = false
		m.search = ""
	default:
		m.search = editRune(m.search, msg.String())
	}
	m.browser.SetSearch(m.search)
	m.clampCursor()
	return m
}

func (m *incidentsModel) clampCursor() {
	n := len(m.browser.View())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if n == 0 {
		m.detail = false
	}
}

func (m incidentsModel) View(viewer *model.Profile) string {
	var b strings.Builder
	criteria := m.browser.Criteria()
	rows := m.browser.Rows(viewer)

	b.WriteString(titleStyle.Render("通報一覧"))
	b.WriteString(metaStyle.Render(fmt.Sprintf("  %d/%d件", len(rows), m.browser.Total())))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("状態: "))
	if criteria.Status == incident.StatusAll {
		b.WriteString(normalStyle.Render("すべて"))
	} else {
		b.WriteString(renderStatus(model.IncidentStatus(criteria.Status)))
	}
	b.WriteString(dimStyle.Render("  検索: "))
	switch {
	case m.searching:
		b.WriteString(accentStyle.Render(m.search + "█"))
	case m.search != "":
		b.WriteString(normalStyle.Render(m.search))
	default:
		b.WriteString(metaStyle.Render("-"))
	}
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString(dimStyle.Render("読み込み中…"))
		b.WriteString("\n")
	case m.browser.Err() != nil:
		b.WriteString(errorStyle.Render(errorMessage(m.browser.Err())))
		b.WriteString("\n")
	case len(rows) == 0:
		b.WriteString(dimStyle.Render("該当する通報はありません"))
		b.WriteString("\n")
	}

	titleWidth := 40
	if m.width > 0 {
		titleWidth = max(m.width-40, 16)
	}
	for i, row := range rows {
		cursor := "  "
		titleRender := normalStyle.Render
		if i == m.cursor {
			cursor = accentStyle.Render("> ")
			titleRender = selectedStyle.Render
		}
		line := cursor + renderStatus(row.Status) + " " + titleRender(truncStr(row.Title, titleWidth))
		if cat := renderCategory(row.CategoryName, row.CategoryColor); cat != "" {
			line += " " + cat
		}
		if row.Address != "" {
			line += " " + metaStyle.Render(truncStr(row.Address, 24))
		}
		if row.ReporterName != "" {
			line += " " + dimStyle.Render("通報者: "+row.ReporterName)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.detail && m.cursor < len(rows) {
		b.WriteString("\n")
		b.WriteString(renderDetail(rows[m.cursor]))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.searching {
		b.WriteString(renderHelp("enter", "確定", "esc", "検索解除"))
	} else {
		b.WriteString(renderHelp("/", "検索", "s", "状態切替", "r", "再読込", "enter", "詳細", "o", "ログアウト", "q", "終了"))
	}
	return b.String()
}

func renderDetail(row incident.Row) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(row.Title))
	b.WriteString("\n")
	b.WriteString(renderStatus(row.Status))
	b.WriteString(metaStyle.Render(" 優先度: " + string(row.Priority)))
	if cat := renderCategory(row.CategoryName, row.CategoryColor); cat != "" {
		b.WriteString(" " + cat)
	}
	b.WriteString("\n")
	if row.Address != "" {
		b.WriteString(dimStyle.Render("住所: " + row.Address))
		b.WriteString("\n")
	}
	if !row.IncidentDate.IsZero() {
		b.WriteString(dimStyle.Render("発生日: " + row.IncidentDate.Format("2006-01-02")))
		b.WriteString("\n")
	}
	if row.ReporterName != "" {
		b.WriteString(dimStyle.Render("通報者: " + row.ReporterName))
		b.WriteString("\n")
	}
	b.WriteString(normalStyle.Render(row.Description))
	return detailBoxStyle.Render(b.String())
}
