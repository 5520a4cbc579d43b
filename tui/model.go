// Package tui is the interactive terminal front end for the todo API.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"prism-todo/client"
	"prism-todo/domain"
)

const errEmptyTitle = "Title cannot be empty"

type mode int

const (
	modeBrowse mode = iota
	modeAdd
	modeEdit
	modeConfirmDelete
)

// stateMsg carries a controller snapshot into the update loop.
type stateMsg client.State

// listItem adapts domain.Todo to bubbles/list.Item
type listItem struct {
	todo domain.Todo
}

func (i listItem) Title() string       { return i.todo.Title }
func (i listItem) Description() string { return i.todo.Description }
func (i listItem) FilterValue() string { return i.todo.Title }

// itemDelegate renders one todo per line.
type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(listItem)
	if !ok {
		return
	}
	line := Line(it.todo.Completed, it.todo.Title)
	if it.todo.Description != "" {
		line += "  " + mutedStyle.Render(it.todo.Description)
	}
	prefix := "  "
	if index == m.Index() {
		prefix = selectedStyle.Render("> ")
	}
	fmt.Fprintln(w, prefix+line)
}

// Model is the Bubble Tea model. It holds only transient editing state;
// the todos themselves come from the controller.
type Model struct {
	ctrl *client.Controller
	ctx  context.Context

	list  list.Model
	state client.State

	mode    mode
	title   textinput.Model
	desc    textinput.Model
	focus   int
	editID  string
	formErr string

	deleteID    string
	deleteTitle string

	width, height int
}

// New builds a model driven by ctrl. Requests run with ctx.
func New(ctx context.Context, ctrl *client.Controller) Model {
	l := list.New(nil, itemDelegate{}, 76, 16)
	l.SetShowHelp(true)
	l.SetShowPagination(true)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(false)
	l.Styles.Title = titleStyle
	l.Styles.HelpStyle = helpStyle
	l.Styles.PaginationStyle = helpStyle
	l.SetStatusBarItemName("todo", "todos")

	bindings := []key.Binding{
		key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add")),
		key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
		key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle")),
		key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	}
	l.AdditionalShortHelpKeys = func() []key.Binding { return bindings }
	l.AdditionalFullHelpKeys = func() []key.Binding { return bindings }

	title := textinput.New()
	title.Prompt = "Title: "
	title.CharLimit = 200
	desc := textinput.New()
	desc.Prompt = "Notes: "
	desc.CharLimit = 500

	m := Model{
		ctrl:   ctrl,
		ctx:    ctx,
		list:   l,
		state:  ctrl.Snapshot(),
		title:  title,
		desc:   desc,
		width:  80,
		height: 24,
	}
	m.syncList()
	return m
}

// Run starts the program in the alternate screen and blocks until quit.
func Run(ctx context.Context, ctrl *client.Controller) error {
	p := newProgram(ctx, ctrl, tea.WithAltScreen())
	defer ctrl.OnChange(nil)
	_, err := p.Run()
	return err
}

// newProgram wires controller changes into the program's message loop.
// Controller calls must never run inside Update: Send blocks until the
// loop reads it.
func newProgram(ctx context.Context, ctrl *client.Controller, opts ...tea.ProgramOption) *tea.Program {
	opts = append(opts, tea.WithContext(ctx))
	p := tea.NewProgram(New(ctx, ctrl), opts...)
	ctrl.OnChange(func(s client.State) { p.Send(stateMsg(s)) })
	return p
}

func (m Model) Init() tea.Cmd {
	return m.dispatch(m.ctrl.Refresh)
}

// dispatch runs fn off the render loop and reports the resulting state.
func (m Model) dispatch(fn func(context.Context) error) tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		_ = fn(ctx)
		return stateMsg(ctrl.Snapshot())
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil
	case stateMsg:
		m.state = client.State(msg)
		m.syncList()
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.mode {
		case modeAdd, modeEdit:
			return m.updateForm(msg)
		case modeConfirmDelete:
			return m.updateConfirm(msg)
		}
		return m.updateBrowse(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if m.state.Error != "" {
			m.state.Error = ""
			return m, m.dispatch(func(context.Context) error {
				m.ctrl.ClearError()
				return nil
			})
		}
		return m, tea.Quit
	case "q":
		return m, tea.Quit
	case "r":
		m.state.Loading = true
		return m, m.dispatch(m.ctrl.Refresh)
	case "a":
		m.mode = modeAdd
		m.editID = ""
		return m, m.openForm("", "")
	case "e":
		if it, ok := m.selected(); ok {
			m.mode = modeEdit
			m.editID = it.todo.ID
			return m, m.openForm(it.todo.Title, it.todo.Description)
		}
		return m, nil
	case " ":
		if it, ok := m.selected(); ok {
			id := it.todo.ID
			return m, m.dispatch(func(ctx context.Context) error {
				_, err := m.ctrl.Toggle(ctx, id)
				return err
			})
		}
		return m, nil
	case "d":
		if it, ok := m.selected(); ok {
			m.mode = modeConfirmDelete
			m.deleteID = it.todo.ID
			m.deleteTitle = it.todo.Title
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closeForm()
		return m, nil
	case "tab", "shift+tab", "up", "down":
		return m, m.toggleFocus()
	case "enter":
		title := strings.TrimSpace(m.title.Value())
		if title == "" {
			m.formErr = errEmptyTitle
			return m, nil
		}
		desc := m.desc.Value()
		id, editing := m.editID, m.mode == modeEdit
		m.closeForm()
		if editing {
			return m, m.dispatch(func(ctx context.Context) error {
				_, err := m.ctrl.Update(ctx, id, domain.TodoPatch{Title: &title, Description: &desc})
				return err
			})
		}
		return m, m.dispatch(func(ctx context.Context) error {
			_, err := m.ctrl.Create(ctx, title, desc)
			return err
		})
	}

	var cmd tea.Cmd
	if m.focus == 0 {
		m.title, cmd = m.title.Update(msg)
	} else {
		m.desc, cmd = m.desc.Update(msg)
	}
	return m, cmd
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "y":
		id := m.deleteID
		m.mode = modeBrowse
		m.deleteID, m.deleteTitle = "", ""
		return m, m.dispatch(func(ctx context.Context) error {
			return m.ctrl.Delete(ctx, id)
		})
	case "n", "esc", "q":
		m.mode = modeBrowse
		m.deleteID, m.deleteTitle = "", ""
	}
	return m, nil
}

func (m *Model) openForm(title, desc string) tea.Cmd {
	m.formErr = ""
	m.focus = 0
	m.title.SetValue(title)
	m.title.CursorEnd()
	m.desc.SetValue(desc)
	m.desc.CursorEnd()
	m.desc.Blur()
	m.resize()
	return m.title.Focus()
}

func (m *Model) closeForm() {
	m.mode = modeBrowse
	m.editID = ""
	m.formErr = ""
	m.title.SetValue("")
	m.title.Blur()
	m.desc.SetValue("")
	m.desc.Blur()
	m.resize()
}

func (m *Model) toggleFocus() tea.Cmd {
	if m.focus == 0 {
		m.focus = 1
		m.title.Blur()
		return m.desc.Focus()
	}
	m.focus = 0
	m.desc.Blur()
	return m.title.Focus()
}

func (m Model) selected() (listItem, bool) {
	it, ok := m.list.SelectedItem().(listItem)
	return it, ok
}

// syncList rebuilds the list items from state, keeping the cursor on the
// same todo when it still exists.
func (m *Model) syncList() {
	var selectedID string
	if it, ok := m.selected(); ok {
		selectedID = it.todo.ID
	}
	items := make([]list.Item, 0, len(m.state.Todos))
	cursor := m.list.Index()
	for i, t := range m.state.Todos {
		items = append(items, listItem{todo: t})
		if t.ID == selectedID {
			cursor = i
		}
	}
	m.list.SetItems(items)
	if cursor >= len(items) {
		cursor = len(items) - 1
	}
	if cursor >= 0 {
		m.list.Select(cursor)
	}
	m.list.Title = m.header()
}

func (m Model) header() string {
	done, pending := m.state.Stats()
	return fmt.Sprintf("%s   %s %d  %s %d  %s %d",
		titleStyle.Render("Todos"),
		successStyle.Render("✔"), done,
		pendingStyle.Render("•"), pending,
		accentStyle.Render("Total"), len(m.state.Todos),
	)
}

func (m *Model) resize() {
	listHeight := m.height - 6
	if m.mode == modeAdd || m.mode == modeEdit {
		listHeight -= 4
	}
	if listHeight < 3 {
		listHeight = 3
	}
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	m.list.SetSize(width, listHeight)
}

func (m Model) View() string {
	var b strings.Builder
	if m.state.Loading {
		b.WriteString(mutedStyle.Render("Loading todos...") + "\n")
	}
	if m.state.Error != "" {
		b.WriteString(errorStyle.Render(m.state.Error) + "\n")
	}
	b.WriteString(m.list.View())

	switch m.mode {
	case modeAdd, modeEdit:
		heading := "Add todo"
		if m.mode == modeEdit {
			heading = "Edit todo"
		}
		if m.formErr != "" {
			heading += "  " + errorStyle.Render(m.formErr)
		}
		bar := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
		form := heading + "\n" + m.title.View() + "\n" + m.desc.View() + "\n" +
			helpStyle.Render("enter save • tab switch field • esc cancel")
		b.WriteString("\n" + bar.Render(form))
	case modeConfirmDelete:
		b.WriteString("\n" + errorStyle.Render(fmt.Sprintf("Delete %q? (y/n)", m.deleteTitle)))
	}
	return panelString(b.String())
}
