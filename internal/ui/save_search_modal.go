package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dpshade/pocket-capsules/internal/models"
)

// SaveSearchModal names a tag expression so it can be saved
type SaveSearchModal struct {
	nameInput        textinput.Model
	descriptionInput textinput.Model
	expression       *models.BooleanExpression
	textQuery        string
	focusIndex       int // 0=name, 1=description

	active      bool
	submitted   bool
	savedSearch *models.SavedSearch

	// set when editing an existing search
	originalSearch *models.SavedSearch
	errMsg         string
}

func NewSaveSearchModal() *SaveSearchModal {
	name := textinput.New()
	name.Placeholder = "media"
	name.CharLimit = 64
	name.Width = 40

	desc := textinput.New()
	desc.Placeholder = "Optional description"
	desc.CharLimit = 200
	desc.Width = 40

	return &SaveSearchModal{nameInput: name, descriptionInput: desc}
}

// Open activates the modal for a new search
func (m *SaveSearchModal) Open(expr *models.BooleanExpression, textQuery string) tea.Cmd {
	m.reset()
	m.expression = expr
	m.textQuery = textQuery
	m.active = true
	return m.nameInput.Focus()
}

// OpenEdit activates the modal pre-filled from an existing search, applying expr
func (m *SaveSearchModal) OpenEdit(original *models.SavedSearch, expr *models.BooleanExpression) tea.Cmd {
	m.reset()
	m.originalSearch = original
	m.expression = expr
	m.textQuery = original.TextQuery
	m.nameInput.SetValue(original.Name)
	m.descriptionInput.SetValue(original.Description)
	m.active = true
	return m.nameInput.Focus()
}

func (m *SaveSearchModal) reset() {
	m.nameInput.SetValue("")
	m.descriptionInput.SetValue("")
	m.descriptionInput.Blur()
	m.focusIndex = 0
	m.submitted = false
	m.savedSearch = nil
	m.originalSearch = nil
	m.errMsg = ""
}

func (m *SaveSearchModal) IsActive() bool    { return m.active }
func (m *SaveSearchModal) IsEditMode() bool  { return m.originalSearch != nil }
func (m *SaveSearchModal) IsSubmitted() bool { return m.submitted }

func (m *SaveSearchModal) GetOriginalSearch() *models.SavedSearch { return m.originalSearch }

// TakeSavedSearch returns the submitted search once and closes the modal
func (m *SaveSearchModal) TakeSavedSearch() *models.SavedSearch {
	if !m.submitted {
		return nil
	}
	s := m.savedSearch
	m.submitted = false
	m.active = false
	return s
}

// SetError keeps the modal open showing a save failure
func (m *SaveSearchModal) SetError(msg string) {
	m.errMsg = msg
	m.active = true
}

func (m *SaveSearchModal) Update(msg tea.Msg) tea.Cmd {
	if !m.active {
		return nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			m.active = false
			return nil
		case "tab", "shift+tab", "down", "up":
			m.focusIndex = (m.focusIndex + 1) % 2
			if m.focusIndex == 0 {
				m.descriptionInput.Blur()
				return m.nameInput.Focus()
			}
			m.nameInput.Blur()
			return m.descriptionInput.Focus()
		case "enter":
			name := strings.TrimSpace(m.nameInput.Value())
			if name == "" {
				m.errMsg = "name is required"
				return nil
			}
			m.savedSearch = &models.SavedSearch{
				Name:        name,
				Description: strings.TrimSpace(m.descriptionInput.Value()),
				Expression:  m.expression,
				TextQuery:   m.textQuery,
			}
			if m.originalSearch != nil {
				m.savedSearch.CreatedAt = m.originalSearch.CreatedAt
			}
			m.submitted = true
			m.errMsg = ""
			return nil
		}
	}

	var cmd tea.Cmd
	if m.focusIndex == 0 {
		m.nameInput, cmd = m.nameInput.Update(msg)
	} else {
		m.descriptionInput, cmd = m.descriptionInput.Update(msg)
	}
	return cmd
}

func (m *SaveSearchModal) View() string {
	title := "Save search"
	if m.IsEditMode() {
		title = "Edit saved search"
	}

	var b strings.Builder
	b.WriteString(StyleTitle.Render(title))
	b.WriteString("\n\n")
	if m.expression != nil {
		b.WriteString(StyleTag.Render(m.expression.String()))
		b.WriteString("\n\n")
	}
	b.WriteString(StyleInputLabel.Render("Name"))
	b.WriteString("\n" + m.nameInput.View() + "\n\n")
	b.WriteString(StyleInputLabel.Render("Description"))
	b.WriteString("\n" + m.descriptionInput.View())
	if m.errMsg != "" {
		b.WriteString("\n\n" + CreateStatus(m.errMsg, "error"))
	}
	b.WriteString("\n")
	b.WriteString(CreateHelp("enter save · tab next field · esc cancel"))
	return b.String()
}
