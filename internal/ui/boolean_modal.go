package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dpshade/pocket-capsules/internal/models"
)

// BooleanSearchModal edits a tag expression and previews its matches
type BooleanSearchModal struct {
	input         textinput.Model
	availableTags []string
	expression    *models.BooleanExpression
	parseErr      error
	results       []*models.Capsule
	searchFunc    func(*models.BooleanExpression) []*models.Capsule

	active         bool
	applyRequested bool
	saveRequested  bool
	width          int
	height         int
}

// NewBooleanSearchModal creates a modal that autocompletes the given tags
func NewBooleanSearchModal(availableTags []string, search func(*models.BooleanExpression) []*models.Capsule) *BooleanSearchModal {
	in := textinput.New()
	in.Placeholder = "forms AND (input OR select) AND NOT legacy"
	in.CharLimit = 500
	in.Width = 60
	in.SetSuggestions(availableTags)
	in.ShowSuggestions = true

	// tab moves focus in other views, so completion lives on ctrl+space and right
	km := textinput.DefaultKeyMap
	km.AcceptSuggestion = key.NewBinding(key.WithKeys("ctrl+space", "right"))
	in.KeyMap = km

	return &BooleanSearchModal{
		input:         in,
		availableTags: availableTags,
		searchFunc:    search,
	}
}

// Open activates the modal, optionally pre-filled with an expression
func (m *BooleanSearchModal) Open(current *models.BooleanExpression) tea.Cmd {
	m.active = true
	m.applyRequested = false
	m.saveRequested = false
	if current != nil {
		m.input.SetValue(current.Query())
		m.evaluate()
	}
	return m.input.Focus()
}

func (m *BooleanSearchModal) IsActive() bool { return m.active }

// Expression is the last expression that parsed successfully
func (m *BooleanSearchModal) Expression() *models.BooleanExpression { return m.expression }

// Results are the capsules matching Expression
func (m *BooleanSearchModal) Results() []*models.Capsule { return m.results }

// TakeApply reports and clears a pending request to filter the library
func (m *BooleanSearchModal) TakeApply() bool {
	v := m.applyRequested
	m.applyRequested = false
	return v
}

// TakeSave reports and clears a pending request to save the expression
func (m *BooleanSearchModal) TakeSave() bool {
	v := m.saveRequested
	m.saveRequested = false
	return v
}

func (m *BooleanSearchModal) Resize(width, height int) {
	m.width, m.height = width, height
	if w := width - 16; w > 20 {
		m.input.Width = min(w, 80)
	}
}

// Update handles input while the modal is active
func (m *BooleanSearchModal) Update(msg tea.Msg) tea.Cmd {
	if !m.active {
		return nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			m.active = false
			m.input.Blur()
			return nil
		case "enter":
			if m.expression != nil && m.parseErr == nil {
				m.applyRequested = true
				m.active = false
				m.input.Blur()
			}
			return nil
		case "ctrl+s":
			if m.expression != nil && m.parseErr == nil {
				m.saveRequested = true
				m.active = false
				m.input.Blur()
			}
			return nil
		}
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.updateAutocomplete()
	if m.input.Value() != before {
		m.evaluate()
	}
	return cmd
}

// evaluate parses the input and refreshes the live results
func (m *BooleanSearchModal) evaluate() {
	query := strings.TrimSpace(m.input.Value())
	if query == "" {
		m.expression, m.parseErr, m.results = nil, nil, nil
		return
	}

	expr, err := models.ParseBooleanExpression(query)
	if err != nil {
		// keep the previous results visible while the user is mid-edit
		m.parseErr = err
		return
	}
	m.expression, m.parseErr = expr, nil
	if m.searchFunc != nil {
		m.results = m.searchFunc(expr)
	}
}

// updateAutocomplete narrows suggestions to tags starting with the word at the cursor
func (m *BooleanSearchModal) updateAutocomplete() {
	if len(m.availableTags) == 0 {
		return
	}

	word := currentWord(m.input.Value(), m.input.Position())
	if word == "" {
		m.input.SetSuggestions(m.availableTags)
		return
	}

	// textinput matches suggestions against the whole value, so complete
	// by prefixing the text before the word
	prefix := m.input.Value()[:m.input.Position()-len(word)]
	var filtered []string
	lower := strings.ToLower(word)
	for _, tag := range m.availableTags {
		if strings.HasPrefix(strings.ToLower(tag), lower) {
			filtered = append(filtered, prefix+tag)
		}
	}
	m.input.SetSuggestions(filtered)
}

// currentWord returns the partial tag ending at pos, or "" for operators
func currentWord(text string, pos int) string {
	if pos < 0 || pos > len(text) {
		return ""
	}
	start := pos
	for start > 0 && !strings.ContainsRune(" ()", rune(text[start-1])) {
		start--
	}
	word := text[start:pos]
	if isOperatorWord(word) {
		return ""
	}
	return word
}

func isOperatorWord(w string) bool {
	switch strings.ToUpper(w) {
	case "AND", "OR", "NOT", "XOR":
		return true
	}
	return false
}

// View renders the modal body
func (m *BooleanSearchModal) View() string {
	var b strings.Builder
	b.WriteString(StyleTitle.Render("Boolean search"))
	b.WriteString("\n\n")
	b.WriteString(StyleInputLabel.Render("Expression"))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	switch {
	case m.parseErr != nil:
		b.WriteString(CreateStatus(m.parseErr.Error(), "error"))
	case m.expression == nil:
		b.WriteString(StyleMuted.Render("Operators: AND OR XOR NOT, parentheses for grouping"))
	default:
		b.WriteString(StyleMuted.Render(fmt.Sprintf("%d matches", len(m.results))))
		for i, c := range m.results {
			if i == 8 {
				b.WriteString("\n" + StyleMuted.Render(fmt.Sprintf("  … %d more", len(m.results)-i)))
				break
			}
			b.WriteString("\n  " + c.ID)
		}
	}

	b.WriteString("\n")
	b.WriteString(CreateHelp("enter apply · ctrl+s save · → complete tag · esc cancel"))
	return b.String()
}
