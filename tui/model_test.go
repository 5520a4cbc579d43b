package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prism-todo/client"
	"prism-todo/domain"
)

// memoryAPI is an in-memory client.TodoAPI.
type memoryAPI struct {
	mu      sync.Mutex
	todos   []domain.Todo
	seq     int
	err     error
	creates int
	lists   int
}

func (f *memoryAPI) List(ctx context.Context) ([]domain.Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Todo(nil), f.todos...), nil
}

func (f *memoryAPI) Create(ctx context.Context, in domain.NewTodo) (domain.Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.err != nil {
		return domain.Todo{}, f.err
	}
	f.seq++
	todo := in.Build(fmt.Sprintf("id-%d", f.seq), time.Date(2024, 3, 1, 9, 0, f.seq, 0, time.UTC))
	f.todos = append([]domain.Todo{todo}, f.todos...)
	return todo, nil
}

func (f *memoryAPI) Update(ctx context.Context, id string, patch domain.TodoPatch) (domain.Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Todo{}, f.err
	}
	for i := range f.todos {
		if f.todos[i].ID == id {
			f.todos[i] = patch.Apply(f.todos[i], f.todos[i].UpdatedAt.Add(time.Second))
			return f.todos[i], nil
		}
	}
	return domain.Todo{}, &client.APIError{Status: 404, Message: "Todo not found"}
}

func (f *memoryAPI) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for i := range f.todos {
		if f.todos[i].ID == id {
			f.todos = append(f.todos[:i], f.todos[i+1:]...)
			return nil
		}
	}
	return &client.APIError{Status: 404, Message: "Todo not found"}
}

func (f *memoryAPI) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func (f *memoryAPI) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// runCmd executes cmd and feeds any resulting state back into the model.
// Commands that do not answer quickly (cursor blink ticks) are ignored.
func runCmd(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()

	var msg tea.Msg
	select {
	case msg = <-done:
	case <-time.After(50 * time.Millisecond):
		return m
	}

	switch msg := msg.(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			m = runCmd(t, m, c)
		}
	case stateMsg:
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func press(t *testing.T, m Model, k string) Model {
	t.Helper()
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case " ":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	next, cmd := m.Update(msg)
	return runCmd(t, next.(Model), cmd)
}

func startModel(t *testing.T, api *memoryAPI) Model {
	t.Helper()
	m := New(context.Background(), client.NewController(api))
	return runCmd(t, m, m.Init())
}

func seeded() *memoryAPI {
	api := &memoryAPI{}
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	api.todos = []domain.Todo{
		domain.NewTodo{Title: "Water plants"}.Build("w", at.Add(time.Minute)),
		domain.NewTodo{Title: "Pay rent", Description: "before Friday"}.Build("p", at),
	}
	return api
}

func TestInitLoadsTodos(t *testing.T) {
	m := startModel(t, seeded())

	require.Len(t, m.list.Items(), 2)
	view := m.View()
	assert.Contains(t, view, "Water plants")
	assert.Contains(t, view, "Pay rent")
	assert.Contains(t, view, "before Friday")
	assert.NotContains(t, view, "Loading todos...")
}

func TestAddTodo(t *testing.T) {
	api := seeded()
	m := startModel(t, api)

	m = press(t, m, "a")
	assert.Equal(t, modeAdd, m.mode)
	m = press(t, m, "Buy milk")
	m = press(t, m, "tab")
	m = press(t, m, "2 liters")
	m = press(t, m, "enter")

	assert.Equal(t, modeBrowse, m.mode)
	require.Len(t, m.state.Todos, 3)
	assert.Equal(t, "Buy milk", m.state.Todos[0].Title)
	assert.Equal(t, "2 liters", m.state.Todos[0].Description)
	assert.Contains(t, m.View(), "Buy milk")
}

func TestAddRejectsBlankTitle(t *testing.T) {
	api := seeded()
	m := startModel(t, api)

	m = press(t, m, "a")
	m = press(t, m, "   ")
	m = press(t, m, "enter")

	assert.Equal(t, modeAdd, m.mode)
	assert.Equal(t, errEmptyTitle, m.formErr)
	assert.Contains(t, m.View(), errEmptyTitle)
	assert.Equal(t, 0, api.creates)

	m = press(t, m, "esc")
	assert.Equal(t, modeBrowse, m.mode)
	assert.Empty(t, m.formErr)
}

func TestEditSelectedTodo(t *testing.T) {
	m := startModel(t, seeded())

	m = press(t, m, "down")
	m = press(t, m, "e")
	require.Equal(t, modeEdit, m.mode)
	assert.Equal(t, "p", m.editID)
	assert.Equal(t, "Pay rent", m.title.Value())
	assert.Equal(t, "before Friday", m.desc.Value())

	m = press(t, m, " now")
	m = press(t, m, "enter")

	assert.Equal(t, modeBrowse, m.mode)
	assert.Equal(t, "Pay rent now", m.state.Todos[1].Title)
	assert.Equal(t, "before Friday", m.state.Todos[1].Description)
}

func TestToggleSelectedTodo(t *testing.T) {
	m := startModel(t, seeded())

	m = press(t, m, " ")
	assert.True(t, m.state.Todos[0].Completed)
	done, pending := m.state.Stats()
	assert.Equal(t, 1, done)
	assert.Equal(t, 1, pending)

	m = press(t, m, " ")
	assert.False(t, m.state.Todos[0].Completed)
}

func TestDeleteAsksForConfirmation(t *testing.T) {
	m := startModel(t, seeded())

	m = press(t, m, "d")
	require.Equal(t, modeConfirmDelete, m.mode)
	assert.Contains(t, m.View(), `Delete "Water plants"? (y/n)`)

	m = press(t, m, "n")
	assert.Equal(t, modeBrowse, m.mode)
	assert.Len(t, m.state.Todos, 2)

	m = press(t, m, "d")
	m = press(t, m, "y")
	assert.Equal(t, modeBrowse, m.mode)
	require.Len(t, m.state.Todos, 1)
	assert.Equal(t, "Pay rent", m.state.Todos[0].Title)
	require.Len(t, m.list.Items(), 1)
}

func TestRefreshShowsErrors(t *testing.T) {
	api := seeded()
	m := startModel(t, api)

	api.setErr(errors.New("dial tcp: connection refused"))
	m = press(t, m, "r")

	assert.Contains(t, m.View(), "Network error: dial tcp: connection refused")
	assert.Len(t, m.state.Todos, 2)

	api.setErr(nil)
	m = press(t, m, "r")
	assert.NotContains(t, m.View(), "Network error")
}

func TestEscDismissesErrorBeforeQuitting(t *testing.T) {
	api := seeded()
	m := startModel(t, api)

	api.setErr(errors.New("boom"))
	m = press(t, m, "r")
	require.Equal(t, "Network error: boom", m.state.Error)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.Empty(t, m.state.Error)
	m = runCmd(t, m, cmd)
	assert.Empty(t, m.state.Error)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestProgramStaysResponsiveAfterDismissingError(t *testing.T) {
	api := seeded()
	api.setErr(errors.New("offline"))
	ctrl := client.NewController(api)
	require.Error(t, ctrl.Refresh(context.Background()))

	p := newProgram(context.Background(), ctrl,
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutSignalHandler(),
	)
	t.Cleanup(func() { ctrl.OnChange(nil) })

	done := make(chan error, 1)
	go func() {
		_, err := p.Run()
		done <- err
	}()

	// Wait for the refresh issued by Init to settle with the error shown.
	require.Eventually(t, func() bool {
		s := ctrl.Snapshot()
		return api.listCalls() == 2 && !s.Loading && s.Error != ""
	}, 2*time.Second, 5*time.Millisecond)

	go p.Send(tea.KeyMsg{Type: tea.KeyEsc})
	require.Eventually(t, func() bool {
		return ctrl.Snapshot().Error == ""
	}, 2*time.Second, 5*time.Millisecond)

	go p.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		p.Kill()
		t.Fatal("program did not quit after the error was dismissed")
	}
}

func TestQuit(t *testing.T) {
	m := startModel(t, seeded())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestActionsOnEmptyListAreNoops(t *testing.T) {
	m := startModel(t, &memoryAPI{})

	m = press(t, m, "e")
	assert.Equal(t, modeBrowse, m.mode)
	m = press(t, m, "d")
	assert.Equal(t, modeBrowse, m.mode)
	m = press(t, m, " ")
	assert.Empty(t, m.state.Todos)
}

func TestWindowResize(t *testing.T) {
	m := startModel(t, seeded())

	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)
	assert.Equal(t, 116, m.list.Width())
	assert.Equal(t, 34, m.list.Height())
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[█████░░░░░]", ProgressBar(1, 2, 10))
	assert.Equal(t, "[░░░░]", ProgressBar(0, 0, 4))
}
