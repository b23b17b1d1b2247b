// Package renderer turns capsules into markdown, JSON and styled terminal output.
package renderer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/dpshade/pocket-capsules/internal/models"
)

// Renderer handles capsule rendering
type Renderer struct {
	capsule *models.Capsule
}

// NewRenderer creates a new renderer instance
func NewRenderer(capsule *models.Capsule) *Renderer {
	return &Renderer{capsule: capsule}
}

// RenderMarkdown renders the capsule as a markdown document. The code block
// is omitted when withCode is false or the capsule carries no code.
func (r *Renderer) RenderMarkdown(withCode bool) string {
	c := r.capsule
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", c.Headline())
	if c.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(c.Description))
	}

	b.WriteString("| Field | Value |\n|---|---|\n")
	row := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "| %s | %s |\n", name, escapeCell(value))
		}
	}
	row("ID", "`"+c.ID+"`")
	row("Category", c.Category)
	row("Platform", c.Platform)
	row("Version", c.Version)
	row("Author", c.Author)
	row("Package", c.NPMPackage)
	if len(c.Tags) > 0 {
		row("Tags", strings.Join(c.Tags, ", "))
	}
	if c.IsClientComponent() {
		row("Runtime", "client component")
	}
	b.WriteString("\n")

	writePorts(&b, "Inputs", c.Inputs)
	writePorts(&b, "Outputs", c.Outputs)

	if c.Documentation != "" {
		fmt.Fprintf(&b, "## Documentation\n\n%s\n\n", strings.TrimSpace(c.Documentation))
	}

	if withCode && c.Code != "" {
		fence := models.CodeFence(c.Code)
		fmt.Fprintf(&b, "## Code\n\n%stsx\n%s\n%s\n", fence, strings.TrimRight(c.Code, "\n"), fence)
	}

	return b.String()
}

func writePorts(b *strings.Builder, title string, ports []models.Port) {
	if len(ports) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, p := range ports {
		line := fmt.Sprintf("- **%s** `%s`", p.ID, p.Type)
		if p.Required {
			line += " (required)"
		}
		if p.Description != "" {
			line += " " + models.CleanLine(p.Description)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(models.CleanLine(s), "|", "\\|")
}

// RenderJSON renders the capsule as indented JSON
func (r *Renderer) RenderJSON(withCode bool) (string, error) {
	c := r.capsule
	if !withCode {
		c = c.WithoutCode()
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal capsule: %w", err)
	}
	return string(data), nil
}

// RenderTerminal renders the markdown form through glamour
func (r *Renderer) RenderTerminal(withCode bool, wordWrap int) (string, error) {
	tr, err := NewGlamourRenderer(wordWrap)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := tr.Render(r.RenderMarkdown(withCode))
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}

// NewGlamourRenderer picks a glamour style for the terminal. GLAMOUR_STYLE
// overrides detection.
func NewGlamourRenderer(wordWrap int) (*glamour.TermRenderer, error) {
	if style := os.Getenv("GLAMOUR_STYLE"); style != "" {
		return glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(wordWrap),
		)
	}

	profile := termenv.ColorProfile()
	if profile == termenv.Ascii {
		return glamour.NewTermRenderer(
			glamour.WithStandardStyle("notty"),
			glamour.WithWordWrap(wordWrap),
		)
	}

	style := "light"
	if lipgloss.HasDarkBackground() {
		style = "dark"
	}
	return glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithColorProfile(profile),
		glamour.WithWordWrap(wordWrap),
	)
}
