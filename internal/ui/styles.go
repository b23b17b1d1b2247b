package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette. Every colour adapts to the terminal background.
var (
	ColorPrimary   = lipgloss.AdaptiveColor{Light: "125", Dark: "205"}
	ColorSecondary = lipgloss.AdaptiveColor{Light: "24", Dark: "33"}
	ColorAccent    = lipgloss.AdaptiveColor{Light: "130", Dark: "214"}

	ColorSuccess = lipgloss.AdaptiveColor{Light: "22", Dark: "10"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "136", Dark: "11"}
	ColorError   = lipgloss.AdaptiveColor{Light: "124", Dark: "9"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "25", Dark: "12"}

	ColorText      = lipgloss.AdaptiveColor{Light: "235", Dark: "252"}
	ColorTextMuted = lipgloss.AdaptiveColor{Light: "240", Dark: "244"}
	ColorBorder    = lipgloss.AdaptiveColor{Light: "250", Dark: "238"}
)

var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	StyleSubtitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	StyleTag = lipgloss.NewStyle().
			Foreground(ColorAccent)

	StyleHelp = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			MarginTop(1)

	StyleModal = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(1, 2)

	StyleInputLabel = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	StyleMain = lipgloss.NewStyle().
			Padding(1, 2)
)

var statusStyles = map[string]lipgloss.Style{
	"success": lipgloss.NewStyle().Foreground(ColorSuccess),
	"warning": lipgloss.NewStyle().Foreground(ColorWarning),
	"error":   lipgloss.NewStyle().Foreground(ColorError).Bold(true),
	"info":    lipgloss.NewStyle().Foreground(ColorInfo),
}

// CreateMainHeader renders the top-level title
func CreateMainHeader(title string) string {
	return StyleTitle.Render(title)
}

// CreateSubPageHeader renders a title with a breadcrumb back to the library
func CreateSubPageHeader(title string) string {
	return StyleMuted.Render("Library › ") + StyleSubtitle.Render(title)
}

func CreateHelp(text string) string {
	return StyleHelp.Render(text)
}

// CreateStatus styles a status line. Unknown kinds render as info.
func CreateStatus(text, kind string) string {
	style, ok := statusStyles[kind]
	if !ok {
		style = statusStyles["info"]
	}
	return style.Render(text)
}

// CreateSearchIndicator shows the active tag expression and its match count
func CreateSearchIndicator(expression string, count int) string {
	return StyleTag.Render("⚲ "+expression) + StyleMuted.Render(fmt.Sprintf("  %d matches · esc to clear", count))
}

// CreateTags renders tags as "#tag" chips
func CreateTags(tags []string) string {
	chips := make([]string, len(tags))
	for i, t := range tags {
		chips[i] = StyleTag.Render("#" + t)
	}
	return strings.Join(chips, " ")
}

// CenterModal places content in the middle of a width x height area
func CenterModal(content string, width, height int) string {
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, StyleModal.Render(content))
}

// CreateScrollIndicators returns the lines shown above and below a viewport
func CreateScrollIndicators(canScrollUp, canScrollDown bool, width int) (string, string) {
	var top, bottom string
	if canScrollUp {
		top = StyleMuted.Width(width).Align(lipgloss.Center).Render("▲ more")
	}
	if canScrollDown {
		bottom = StyleMuted.Width(width).Align(lipgloss.Center).Render("▼ more")
	}
	return top, bottom
}
