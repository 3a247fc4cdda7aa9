// Package theme holds the colors and styles of the CLI output.
package theme

import (
	"image/color"
	"strings"

	"charm.land/lipgloss/v2"
)

// Colors
var (
	Primary   = lipgloss.Color("#33A8FF")
	Secondary = lipgloss.Color("#163047")
	Muted     = lipgloss.Color("#6B7280")
	Success   = lipgloss.Color("#10B981")
	Warning   = lipgloss.Color("#F59E0B")
	Error     = lipgloss.Color("#EF4444")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	KeyStyle = lipgloss.NewStyle().
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(0, 1)
)

// StatusColor maps the outcome of a command to a theme color.
func StatusColor(status string) color.Color {
	switch strings.ToLower(status) {
	case "valid", "deployed", "destroyed", "running":
		return Success
	case "invalid", "failed", "rolled back":
		return Error
	case "pending", "deploying", "destroying":
		return Warning
	default:
		return Muted
	}
}

// RenderStatus renders a status string with a colored bullet.
func RenderStatus(status string) string {
	c := StatusColor(status)
	bullet := lipgloss.NewStyle().Foreground(c).Render("●")
	return bullet + " " + status
}

// KeyValue is one labelled line of a rendered block.
type KeyValue struct {
	Key   string
	Value string
}

// RenderOutputs renders labelled values as "<prefix>.<key> = <value>" lines
// under a title, in the given order.
func RenderOutputs(title, prefix string, values []KeyValue) string {
	lines := make([]string, 0, len(values)+1)
	lines = append(lines, TitleStyle.Render(title))
	for _, kv := range values {
		key := kv.Key
		if prefix != "" {
			key = prefix + "." + key
		}
		lines = append(lines, KeyStyle.Render(key)+" = "+kv.Value)
	}
	return strings.Join(lines, "\n")
}

// RenderViolations renders one line per failed constraint.
func RenderViolations(errs []error) string {
	lines := make([]string, 0, len(errs))
	for _, err := range errs {
		lines = append(lines, ErrorStyle.Render("✗")+" "+err.Error())
	}
	return strings.Join(lines, "\n")
}

// RenderList renders items in a rounded box under a title.
func RenderList(title string, items []string) string {
	body := TitleStyle.Render(title)
	if len(items) == 0 {
		body += "\n" + MutedStyle.Render("(none)")
	} else {
		body += "\n" + strings.Join(items, "\n")
	}
	return BoxStyle.Render(body)
}
