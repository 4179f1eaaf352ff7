// Package ui holds the terminal presentation of tachikoma: the interactive
// login prompt, status lines, the end-of-run summary and XML highlighting for
// raw responses.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	apperrors "github.com/tachikoma-bot/tachikoma/internal/errors"
	"github.com/tachikoma-bot/tachikoma/internal/session"
)

var (
	colorYellow = lipgloss.Color("#F9E2AF")
	colorGreen  = lipgloss.Color("#A6E3A1")
	colorRed    = lipgloss.Color("#F38BA8")
	colorOrange = lipgloss.Color("#FAB387")
	colorBlue   = lipgloss.Color("#89B4FA")
	colorMauve  = lipgloss.Color("#CBA6F7")
	colorMuted  = lipgloss.Color("#6C7086")
)

// statusStyles maps status strings to their corresponding visual style.
var statusStyles = map[string]lipgloss.Style{
	"pending":  lipgloss.NewStyle().Foreground(colorYellow),
	"success":  lipgloss.NewStyle().Foreground(colorGreen),
	"error":    lipgloss.NewStyle().Foreground(colorRed),
	"warning":  lipgloss.NewStyle().Foreground(colorOrange),
	"info":     lipgloss.NewStyle().Foreground(colorBlue),
	"running":  lipgloss.NewStyle().Foreground(colorYellow),
	"complete": lipgloss.NewStyle().Foreground(colorGreen),
}

var statusIcons = map[string]string{
	"pending":  "⏳",
	"success":  "✅",
	"error":    "❌",
	"warning":  "⚠️",
	"info":     "ℹ️",
	"running":  "🏃",
	"complete": "🏁",
}

// RenderStatus formats a message with the icon and color of status. Unknown
// statuses render unstyled.
func RenderStatus(status, message string) string {
	style, ok := statusStyles[status]
	if !ok {
		style = lipgloss.NewStyle()
	}
	icon, ok := statusIcons[status]
	if !ok {
		icon = "🔹"
	}
	return style.Render(fmt.Sprintf("%s %s", icon, message))
}

// sessionStatus maps a session state onto a status style.
var sessionStatus = map[session.State]string{
	session.Unauthenticated: "pending",
	session.TokenAcquired:   "running",
	session.LoggedIn:        "success",
	session.Active:          "complete",
	session.Reauthorizing:   "warning",
}

// RenderSessionState renders the state of a session with the player's name.
func RenderSessionState(state session.State, player string) string {
	status, ok := sessionStatus[state]
	if !ok {
		status = "info"
	}
	msg := state.String()
	if player != "" {
		msg = player + ": " + msg
	}
	return RenderStatus(status, msg)
}

// RenderProgressBar draws a textual bar of width cells for done out of total.
func RenderProgressBar(done, total, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if total > 0 {
		filled = min(max(done, 0), total) * width / total
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// RenderError formats a failure and the steps that may resolve it.
func RenderError(p *apperrors.Presentation) string {
	if p == nil {
		return ""
	}
	msg := p.Message
	if p.Code != "" {
		msg += " (code " + p.Code + ")"
	}
	lines := []string{RenderStatus("error", msg)}
	for _, hint := range p.Hints {
		lines = append(lines, helpStyle.Render("  → "+hint))
	}
	return strings.Join(lines, "\n")
}
