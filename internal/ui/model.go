// Package ui is the interactive catalog browser.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/dpshade/pocket-capsules/internal/catalog"
	"github.com/dpshade/pocket-capsules/internal/clipboard"
	"github.com/dpshade/pocket-capsules/internal/errors"
	"github.com/dpshade/pocket-capsules/internal/models"
	"github.com/dpshade/pocket-capsules/internal/renderer"
	"github.com/dpshade/pocket-capsules/internal/service"
)

type loadCompleteMsg struct {
	capsules []*models.Capsule
	searches []models.SavedSearch
	err      error
}

func loadCatalogCmd(svc *service.Service) tea.Cmd {
	return func() tea.Msg {
		searches, err := svc.ListSavedSearches()
		return loadCompleteMsg{
			capsules: svc.ListCapsules(catalog.Filter{}),
			searches: searches,
			err:      err,
		}
	}
}

// tickMsg counts down the status message
type tickMsg time.Time

func clearStatusCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// ViewMode is the screen currently shown
type ViewMode int

const (
	ViewLibrary ViewMode = iota
	ViewCapsuleDetail
	ViewSavedSearches
)

// capsuleItem adapts a capsule to the list component
type capsuleItem struct{ *models.Capsule }

func (i capsuleItem) Title() string       { return i.Headline() }
func (i capsuleItem) Description() string { return i.ID + " · " + i.Summary() }
func (i capsuleItem) FilterValue() string {
	return strings.Join([]string{i.ID, i.Name, i.Category, strings.Join(i.Tags, " ")}, " ")
}

type searchItem struct{ models.SavedSearch }

func (i searchItem) Title() string { return i.Name }
func (i searchItem) Description() string {
	d := i.Expression.String()
	if i.TextQuery != "" {
		d += " + \"" + i.TextQuery + "\""
	}
	if i.SavedSearch.Description != "" {
		d = i.SavedSearch.Description + " · " + d
	}
	return d
}
func (i searchItem) FilterValue() string { return i.Name }

// KeyMap defines the browser key bindings
type KeyMap struct {
	Enter         key.Binding
	Back          key.Binding
	Quit          key.Binding
	Help          key.Binding
	Copy          key.Binding
	CopyID        key.Binding
	CopyInstall   key.Binding
	ToggleCode    key.Binding
	BooleanSearch key.Binding
	SaveSearch    key.Binding
	SavedSearches key.Binding
	Edit          key.Binding
	Delete        key.Binding
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Enter, k.Copy, k.BooleanSearch, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Enter, k.Back, k.ToggleCode},
		{k.Copy, k.CopyID, k.CopyInstall},
		{k.BooleanSearch, k.SaveSearch, k.SavedSearches},
		{k.Edit, k.Delete, k.Help, k.Quit},
	}
}

var keys = KeyMap{
	Enter:         key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
	Back:          key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Quit:          key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Help:          key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Copy:          key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy code")),
	CopyID:        key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "copy id")),
	CopyInstall:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "copy npm install")),
	ToggleCode:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "show/hide code")),
	BooleanSearch: key.NewBinding(key.WithKeys("ctrl+f"), key.WithHelp("ctrl+f", "tag expression")),
	SaveSearch:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save expression")),
	SavedSearches: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "saved searches")),
	Edit:          key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit search")),
	Delete:        key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete search")),
}

// Model is the browser state
type Model struct {
	service  *service.Service
	logger   *zap.Logger
	errors   *errors.TUIErrorHandler
	viewMode ViewMode

	capsuleList list.Model
	searchList  list.Model
	viewport    viewport.Model
	help        help.Model
	keys        KeyMap

	capsules        []*models.Capsule
	loading         bool
	selected        *models.Capsule
	showCode        bool
	glamourRenderer *glamour.TermRenderer

	width  int
	height int

	statusMsg     string
	statusKind    string
	statusTimeout int

	booleanModal      *BooleanSearchModal
	saveModal         *SaveSearchModal
	currentExpression *models.BooleanExpression
	activeSearch      string

	// copy writes a capsule payload to the clipboard; tests replace it
	copy func(*models.Capsule, clipboard.Payload) (string, error)
}

// NewModel creates the browser. The catalog is loaded by Init.
func NewModel(svc *service.Service, logger *zap.Logger) (*Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	l := list.New(nil, list.NewDefaultDelegate(), 80, 20)
	l.Title = "Capsules"
	l.Styles.Title = StyleTitle
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)
	l.SetStatusBarItemName("capsule", "capsules")

	sl := list.New(nil, list.NewDefaultDelegate(), 80, 20)
	sl.Title = "Saved searches"
	sl.Styles.Title = StyleTitle
	sl.SetFilteringEnabled(false)
	sl.SetShowHelp(false)
	sl.SetStatusBarItemName("search", "searches")

	vp := viewport.New(80, 20)
	vp.Style = lipgloss.NewStyle()

	gr, err := renderer.NewGlamourRenderer(60)
	if err != nil {
		return nil, fmt.Errorf("failed to create glamour renderer: %w", err)
	}

	return &Model{
		service:         svc,
		logger:          logger.Named("ui"),
		errors:          errors.NewTUIErrorHandler(logger, false),
		viewMode:        ViewLibrary,
		capsuleList:     l,
		searchList:      sl,
		viewport:        vp,
		help:            help.New(),
		keys:            keys,
		loading:         true,
		showCode:        true,
		glamourRenderer: gr,
		booleanModal:    NewBooleanSearchModal(svc.Tags(), svc.SearchCapsulesByBooleanExpression),
		saveModal:       NewSaveSearchModal(),
		copy:            clipboard.CopyCapsule,
	}, nil
}

// Run opens the browser on the terminal and blocks until it quits
func Run(svc *service.Service, logger *zap.Logger) error {
	m, err := NewModel(svc, logger)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(*m, tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return loadCatalogCmd(m.service)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.statusTimeout > 0 {
			m.statusTimeout--
			if m.statusTimeout == 0 {
				m.statusMsg = ""
				return m, nil
			}
			return m, clearStatusCmd()
		}
		return m, nil

	case loadCompleteMsg:
		m.loading = false
		m.capsules = msg.capsules
		m.setSearchItems(msg.searches)
		cmd := m.showCapsules(m.capsules)
		if msg.err != nil {
			cmd = tea.Batch(cmd, m.setError(msg.err))
		}
		return m, cmd

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if m.saveModal.IsActive() {
			return m.updateSaveModal(msg)
		}
		if m.booleanModal.IsActive() {
			return m.updateBooleanModal(msg)
		}
		if key.Matches(msg, m.keys.Quit) && msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		switch m.viewMode {
		case ViewCapsuleDetail:
			return m.updateDetail(msg)
		case ViewSavedSearches:
			return m.updateSavedSearches(msg)
		default:
			return m.updateLibrary(msg)
		}
	}

	if m.viewMode == ViewLibrary {
		var cmd tea.Cmd
		m.capsuleList, cmd = m.capsuleList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateLibrary(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// while the filter prompt is open every key belongs to the list
	if m.capsuleList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.capsuleList, cmd = m.capsuleList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		if c := m.highlighted(); c != nil {
			m.selected = c
			m.viewMode = ViewCapsuleDetail
			m.resize(m.width, m.height)
			m.renderPreview()
		}
		return m, nil
	case key.Matches(msg, m.keys.Back):
		if m.capsuleList.FilterState() == list.Unfiltered && m.currentExpression != nil {
			m.currentExpression = nil
			m.activeSearch = ""
			cmd := m.showCapsules(m.capsules)
			return m, cmd
		}
	case key.Matches(msg, m.keys.Copy):
		cmd := m.copyPayload(m.highlighted(), clipboard.PayloadCode)
		return m, cmd
	case key.Matches(msg, m.keys.CopyID):
		cmd := m.copyPayload(m.highlighted(), clipboard.PayloadID)
		return m, cmd
	case key.Matches(msg, m.keys.CopyInstall):
		cmd := m.copyPayload(m.highlighted(), clipboard.PayloadInstall)
		return m, cmd
	case key.Matches(msg, m.keys.BooleanSearch):
		return m, m.booleanModal.Open(m.currentExpression)
	case key.Matches(msg, m.keys.SaveSearch):
		if m.currentExpression == nil {
			cmd := m.setStatus("Apply a tag expression with ctrl+f first", "warning")
			return m, cmd
		}
		return m, m.saveModal.Open(m.currentExpression, "")
	case key.Matches(msg, m.keys.SavedSearches):
		m.viewMode = ViewSavedSearches
		m.resize(m.width, m.height)
		return m, nil
	}

	var cmd tea.Cmd
	m.capsuleList, cmd = m.capsuleList.Update(msg)
	return m, cmd
}

func (m Model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.viewMode = ViewLibrary
		m.selected = nil
		m.resize(m.width, m.height)
		return m, nil
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.ToggleCode):
		m.showCode = !m.showCode
		m.renderPreview()
		return m, nil
	case key.Matches(msg, m.keys.Copy):
		cmd := m.copyPayload(m.selected, clipboard.PayloadCode)
		return m, cmd
	case key.Matches(msg, m.keys.CopyID):
		cmd := m.copyPayload(m.selected, clipboard.PayloadID)
		return m, cmd
	case key.Matches(msg, m.keys.CopyInstall):
		cmd := m.copyPayload(m.selected, clipboard.PayloadInstall)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) updateSavedSearches(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	item, _ := m.searchList.SelectedItem().(searchItem)

	switch {
	case key.Matches(msg, m.keys.Back):
		m.viewMode = ViewLibrary
		m.resize(m.width, m.height)
		return m, nil
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Enter):
		if item.Name == "" {
			return m, nil
		}
		results, err := m.service.ExecuteSavedSearch(item.Name, "")
		if err != nil {
			cmd := m.setError(err)
			return m, cmd
		}
		m.currentExpression = item.Expression
		m.activeSearch = item.Name
		m.viewMode = ViewLibrary
		m.resize(m.width, m.height)
		cmd := m.showCapsules(results)
		return m, cmd
	case key.Matches(msg, m.keys.Edit):
		if item.Name == "" {
			return m, nil
		}
		search := item.SavedSearch
		return m, m.saveModal.OpenEdit(&search, item.Expression)
	case key.Matches(msg, m.keys.Delete):
		if item.Name == "" {
			return m, nil
		}
		if err := m.service.DeleteSavedSearch(item.Name); err != nil {
			cmd := m.setError(err)
			return m, cmd
		}
		m.reloadSearches()
		cmd := m.setStatus("Deleted "+item.Name, "success")
		return m, cmd
	}

	var cmd tea.Cmd
	m.searchList, cmd = m.searchList.Update(msg)
	return m, cmd
}

func (m Model) updateBooleanModal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cmd := m.booleanModal.Update(msg)

	if m.booleanModal.TakeApply() {
		m.currentExpression = m.booleanModal.Expression()
		m.activeSearch = ""
		m.viewMode = ViewLibrary
		cmd = m.showCapsules(m.booleanModal.Results())
		return m, cmd
	}
	if m.booleanModal.TakeSave() {
		m.currentExpression = m.booleanModal.Expression()
		cmd = tea.Batch(m.showCapsules(m.booleanModal.Results()), m.saveModal.Open(m.currentExpression, ""))
		return m, cmd
	}
	return m, cmd
}

func (m Model) updateSaveModal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cmd := m.saveModal.Update(msg)
	if !m.saveModal.IsSubmitted() {
		return m, cmd
	}

	original := m.saveModal.GetOriginalSearch()
	search := m.saveModal.TakeSavedSearch()
	if original != nil && original.Name != search.Name {
		if err := m.service.DeleteSavedSearch(original.Name); err != nil {
			m.saveModal.SetError(m.errors.FormatError(err))
			return m, nil
		}
	}
	if err := m.service.SaveBooleanSearch(*search); err != nil {
		m.saveModal.SetError(m.errors.FormatError(err))
		return m, nil
	}

	m.logger.Debug("saved search stored", zap.String("name", search.Name))
	m.activeSearch = search.Name
	m.reloadSearches()
	cmd = m.setStatus("Saved search "+search.Name, "success")
	return m, cmd
}

func (m *Model) reloadSearches() {
	searches, err := m.service.ListSavedSearches()
	if err != nil {
		m.errors.HandleError(err)
		return
	}
	m.setSearchItems(searches)
}

func (m *Model) setSearchItems(searches []models.SavedSearch) {
	items := make([]list.Item, len(searches))
	for i, s := range searches {
		items[i] = searchItem{s}
	}
	m.searchList.SetItems(items)
}

func (m *Model) showCapsules(capsules []*models.Capsule) tea.Cmd {
	items := make([]list.Item, len(capsules))
	for i, c := range capsules {
		items[i] = capsuleItem{c}
	}
	m.capsuleList.ResetFilter()
	return m.capsuleList.SetItems(items)
}

func (m Model) highlighted() *models.Capsule {
	if item, ok := m.capsuleList.SelectedItem().(capsuleItem); ok {
		return item.Capsule
	}
	return nil
}

func (m *Model) copyPayload(c *models.Capsule, payload clipboard.Payload) tea.Cmd {
	if c == nil {
		return nil
	}
	msg, err := m.copy(c, payload)
	if err != nil {
		if _, ok := err.(*clipboard.ClipboardError); ok {
			return m.setStatus(err.Error()+". "+clipboard.GetInstallInstructions(), "error")
		}
		return m.setStatus(err.Error(), "error")
	}
	return m.setStatus(msg, "success")
}

func (m *Model) setStatus(text, kind string) tea.Cmd {
	m.statusMsg = text
	m.statusKind = kind
	m.statusTimeout = 3
	return clearStatusCmd()
}

func (m *Model) setError(err error) tea.Cmd {
	m.errors.HandleError(err)
	return m.setStatus(m.errors.FormatError(err), "error")
}

func (m *Model) resize(width, height int) {
	if width == 0 || height == 0 {
		return
	}
	m.width, m.height = width, height

	// title, help and status lines
	const reserved = 6
	available := max(height-reserved, 5)

	m.capsuleList.SetSize(width-4, available)
	m.searchList.SetSize(width-4, available)
	m.booleanModal.Resize(width, height)

	if m.viewMode == ViewCapsuleDetail {
		vw := max(width-8, 40)
		m.viewport.Width = vw
		m.viewport.Height = available
		if gr, err := renderer.NewGlamourRenderer(vw - 2); err == nil {
			m.glamourRenderer = gr
		}
		m.renderPreview()
	}
}

func (m *Model) renderPreview() {
	if m.selected == nil {
		return
	}
	md := renderer.NewRenderer(m.selected).RenderMarkdown(m.showCode)
	out, err := m.glamourRenderer.Render(md)
	if err != nil {
		m.logger.Warn("markdown render failed", zap.String("id", m.selected.ID), zap.Error(err))
		out = md
	}
	m.viewport.SetContent(out)
	m.viewport.GotoTop()
}

func (m Model) View() string {
	if m.loading {
		return StyleMain.Render("Loading catalog…")
	}

	var body string
	switch m.viewMode {
	case ViewCapsuleDetail:
		body = m.detailView()
	case ViewSavedSearches:
		body = m.searchList.View()
	default:
		body = m.libraryView()
	}

	view := StyleMain.Render(body + "\n" + m.footer())

	switch {
	case m.saveModal.IsActive():
		return CenterModal(m.saveModal.View(), m.width, m.height)
	case m.booleanModal.IsActive():
		return CenterModal(m.booleanModal.View(), m.width, m.height)
	}
	return view
}

func (m Model) libraryView() string {
	var b strings.Builder
	if m.currentExpression != nil {
		label := m.currentExpression.String()
		if m.activeSearch != "" {
			label = m.activeSearch + ": " + label
		}
		b.WriteString(CreateSearchIndicator(label, len(m.capsuleList.Items())))
		b.WriteString("\n")
	}
	b.WriteString(m.capsuleList.View())
	return b.String()
}

func (m Model) detailView() string {
	c := m.selected
	header := CreateSubPageHeader(c.Headline())
	meta := StyleMuted.Render(c.ID+" · "+c.Category) + "  " + CreateTags(c.Tags)

	top, bottom := CreateScrollIndicators(!m.viewport.AtTop(), !m.viewport.AtBottom(), m.viewport.Width)
	parts := []string{header, meta}
	if top != "" {
		parts = append(parts, top)
	}
	parts = append(parts, m.viewport.View())
	if bottom != "" {
		parts = append(parts, bottom)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) footer() string {
	var lines []string
	if m.statusMsg != "" {
		lines = append(lines, CreateStatus(m.statusMsg, m.statusKind))
	}
	lines = append(lines, m.help.View(m.keys))
	return strings.Join(lines, "\n")
}
