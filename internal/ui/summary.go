package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tachikoma-bot/tachikoma/internal/runner"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMauve).
			Padding(1, 2)

	labelStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(16)
	valueStyle = lipgloss.NewStyle().Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(colorMuted)

	selectedStyle = lipgloss.NewStyle().Foreground(colorOrange).Bold(true)
)

// RenderSummary draws the end-of-run report.
func RenderSummary(s runner.Summary) string {
	player := s.Player
	if player == "" {
		player = "not logged in"
	}
	if s.Guest {
		player += " (guest)"
	}

	daily := "skipped"
	if s.DailyCollected {
		daily = "collected"
	}

	rows := []string{
		row("Player", player),
		row("Free starbux", fmt.Sprintf("%d/%d %s", s.FreeStarbux, s.StarbuxMax, RenderProgressBar(s.FreeStarbux, s.StarbuxMax, 10))),
		row("Starbux", strconv.Itoa(s.Credits)),
		row("Minerals", strconv.Itoa(s.Minerals)),
		row("Gas", strconv.Itoa(s.Gas)),
		row("Daily reward", daily),
		row("Messages", strconv.Itoa(s.MessagesClaimed)),
		row("Tasks", strconv.Itoa(s.TasksClaimed)),
		row("Heartbeats", strconv.Itoa(s.Heartbeats)),
		row("Duration", s.Duration().Round(time.Second).String()),
	}

	status := RenderStatus("complete", "Run finished")
	if len(s.Failed) > 0 {
		rows = append(rows, labelStyle.Render("Failed")+errorStyle.Render(strings.Join(s.Failed, ", ")))
		status = RenderStatus("warning", "Run finished with failed steps")
	}

	body := lipgloss.JoinVertical(lipgloss.Left, rows...)
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("tachikoma daily run"),
		boxStyle.Render(body),
		status,
	)
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}
