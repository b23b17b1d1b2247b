package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/dpshade/pocket-capsules/internal/models"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "125", Dark: "205"})
	idStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "24", Dark: "33"})
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "244"})
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "22", Dark: "10"})
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "136", Dark: "11"})
	tagStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "130", Dark: "214"})
)

func capsuleLine(c *models.Capsule) string {
	line := idStyle.Render(c.ID) + "  " + c.Headline()
	if summary := c.Summary(); summary != "" {
		line += "\n    " + mutedStyle.Render(summary)
	}
	return line
}
