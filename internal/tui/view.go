package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/proteoflow/internal/stages"
)

var (
	headerStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")).MarginBottom(1)
	labelStyleReady   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleBlocked = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyleSkipped = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	labelStyleDefault = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	boxStyle          = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
)

func labelStyleForPhase(phase stages.Phase) lipgloss.Style {
	switch phase {
	case stages.PhaseCompleted:
		return labelStyleReady
	case stages.PhaseFailed:
		return labelStyleBlocked
	case stages.PhaseStarted:
		return labelStyleRunning
	case stages.PhaseSkipped:
		return labelStyleSkipped
	default:
		return labelStyleDefault
	}
}

func badgeText(phase stages.Phase) string {
	switch phase {
	case stages.PhaseCompleted:
		return "DONE"
	case stages.PhaseFailed:
		return "FAILED"
	case stages.PhaseStarted:
		return "RUNNING"
	case stages.PhaseSkipped:
		return "SKIPPED"
	default:
		return "PENDING"
	}
}

func (a *App) render() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("⬡ " + a.title))
	b.WriteString("\n")
	for i, row := range a.rows {
		b.WriteString(a.renderRow(i, row))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(a.renderFooter())
	out := b.String()
	if a.width > 0 {
		return boxStyle.Width(max(20, a.width-2)).Render(out)
	}
	return boxStyle.Render(out)
}

func (a *App) renderRow(i int, row stageRow) string {
	marker := " "
	if row.phase == stages.PhaseStarted && !a.done {
		marker = a.spinner.View()
	}
	badge := labelStyleForPhase(row.phase).Render(fmt.Sprintf("[%-7s]", badgeText(row.phase)))
	line := fmt.Sprintf("%s %s %d. %s", marker, badge, i+1, row.info.Name)
	if row.duration > 0 {
		line += detailTextStyle.Render(" " + row.duration.Round(time.Second).String())
	}
	if row.message != "" {
		line += "\n" + detailTextStyle.Render("      "+row.message)
	}
	return line
}

func (a *App) renderFooter() string {
	switch {
	case a.err != nil:
		return labelStyleBlocked.Render("pipeline stopped: " + a.err.Error())
	case a.aborted:
		return labelStyleBlocked.Render("aborted")
	case a.done:
		return labelStyleReady.Render("pipeline finished")
	default:
		return detailTextStyle.Render("q to abort")
	}
}
