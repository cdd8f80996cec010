package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hitoshi/civicdesk/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e4e4ec")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e4e4ec")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c0c4d0"))

	accentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ade80")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f87171"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ade80"))

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	helpLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	detailBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#505868")).
			Padding(0, 1)
)

// statusColors は対応状況ごとの表示色。
var statusColors = map[model.IncidentStatus]lipgloss.Color{
	model.IncidentStatusPending:    lipgloss.Color("#facc15"),
	model.IncidentStatusInProgress: lipgloss.Color("#60a5fa"),
	model.IncidentStatusResolved:   lipgloss.Color("#4ade80"),
	model.IncidentStatusRejected:   lipgloss.Color("#8890a0"),
}

// statusLabels は対応状況の表示名。
var statusLabels = map[model.IncidentStatus]string{
	model.IncidentStatusPending:    "未対応",
	model.IncidentStatusInProgress: "対応中",
	model.IncidentStatusResolved:   "解決済",
	model.IncidentStatusRejected:   "却下",
}

func renderStatus(status model.IncidentStatus) string {
	label, ok := statusLabels[status]
	if !ok {
		label = string(status)
	}
	color, ok := statusColors[status]
	if !ok {
		color = lipgloss.Color("#8890a0")
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true).Render(padRight(label, 6))
}

// renderCategory はカテゴリ名をカテゴリの表示色で描画する。
// 色が#RRGGBB形式でない場合は既定色を使う。
func renderCategory(name, color string) string {
	if name == "" {
		return ""
	}
	style := dimStyle
	if isHexColor(color) {
		style = lipgloss.NewStyle().Foreground(lipgloss.Color(color))
	}
	return style.Render("[" + name + "]")
}

func isHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	return strings.Trim(strings.ToLower(s[1:]), "0123456789abcdef") == ""
}

// renderHelp はキー操作の一覧を1行で描画する。pairsはキーと説明の組。
func renderHelp(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(helpKeyStyle.Render(pairs[i]))
		b.WriteString(" ")
		b.WriteString(helpLabelStyle.Render(pairs[i+1]))
	}
	return b.String()
}

func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}
