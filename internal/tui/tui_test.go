package tui_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"sidetask/backend"
	"sidetask/internal/notify"
	"sidetask/internal/tui"
	"sidetask/internal/utils"
)

// sendKeyAndWait sends a key message and waits briefly for processing.
func sendKeyAndWait(tm *teatest.TestModel, key tea.KeyMsg) {
	tm.Send(key)
	time.Sleep(20 * time.Millisecond)
}

func sendRunesAndWait(tm *teatest.TestModel, runes []rune) {
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyRunes, Runes: runes})
}

// mockService implements tui.Service over an in-memory category slice.
type mockService struct {
	mu         sync.Mutex
	categories []backend.Category
}

func newMockService() *mockService {
	return &mockService{
		categories: []backend.Category{
			{
				ID: "c1", Name: "Work", Color: "blue",
				Tasks: []backend.Task{
					{ID: "t1", Text: "Review report", DueDate: "2026-09-01"},
					{ID: "t2", Text: "Send invoices", Recurrence: &backend.RecurrenceRule{
						Type: backend.RecurMonthly,
					}},
				},
			},
			{ID: "c2", Name: "Home", Color: "green",
				Tasks: []backend.Task{{ID: "t3", Text: "Water plants"}}},
		},
	}
}

func (m *mockService) Categories(_ context.Context) []backend.Category {
	m.mu.Lock()
	defer m.mu.Unlock()
	return backend.CloneCategories(m.categories)
}

func (m *mockService) AddCategory(_ context.Context, name, seedTaskText string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cat := backend.Category{ID: backend.GenerateID(), Name: name}
	if seedTaskText != "" {
		cat.Tasks = append(cat.Tasks, backend.Task{ID: backend.GenerateID(), Text: seedTaskText})
	}
	m.categories = append(m.categories, cat)
	return cat.ID, nil
}

func (m *mockService) AddTask(_ context.Context, categoryID, text, dueDate string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.categories {
		if m.categories[i].ID == categoryID {
			task := backend.Task{ID: backend.GenerateID(), Text: text, DueDate: dueDate}
			m.categories[i].Tasks = append(m.categories[i].Tasks, task)
			return task.ID, nil
		}
	}
	return "", utils.ErrCategoryNotFound(categoryID)
}

func (m *mockService) EditTaskText(_ context.Context, categoryID, taskID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.findTask(categoryID, taskID); t != nil {
		t.Text = text
	}
	return nil
}

func (m *mockService) ToggleTaskCompleted(_ context.Context, categoryID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.findTask(categoryID, taskID); t != nil {
		t.Completed = !t.Completed
	}
	return nil
}

func (m *mockService) DeleteTask(_ context.Context, categoryID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.categories {
		if m.categories[i].ID != categoryID {
			continue
		}
		tasks := m.categories[i].Tasks
		for j := range tasks {
			if tasks[j].ID == taskID {
				m.categories[i].Tasks = append(tasks[:j], tasks[j+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (m *mockService) SetCategoryCollapsed(_ context.Context, categoryID string, collapsed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.categories {
		if m.categories[i].ID == categoryID {
			m.categories[i].IsCollapsed = collapsed
		}
	}
	return nil
}

func (m *mockService) SortCategoryTasks(_ context.Context, categoryID string) error {
	return nil
}

func (m *mockService) findTask(categoryID, taskID string) *backend.Task {
	for i := range m.categories {
		if m.categories[i].ID != categoryID {
			continue
		}
		for j := range m.categories[i].Tasks {
			if m.categories[i].Tasks[j].ID == taskID {
				return &m.categories[i].Tasks[j]
			}
		}
	}
	return nil
}

func newTestModel(t *testing.T, svc tui.Service) *teatest.TestModel {
	t.Helper()
	model := tui.New(svc, utils.DateFormatISO, nil, nil)
	return teatest.NewTestModel(t, model, teatest.WithInitialTermSize(80, 24))
}

func readAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	return out
}

func TestTUILaunch(t *testing.T) {
	tm := newTestModel(t, newMockService())

	time.Sleep(100 * time.Millisecond)
	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if len(out) == 0 {
		t.Error("expected TUI to render some output")
	}
}

func TestTUICategoryNavigation(t *testing.T) {
	tm := newTestModel(t, newMockService())

	time.Sleep(100 * time.Millisecond)
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyDown})
	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !bytes.Contains(out, []byte("Work")) {
		t.Error("expected 'Work' category to be visible")
	}
	if !bytes.Contains(out, []byte("Home")) {
		t.Error("expected 'Home' category to be visible after navigation")
	}
}

func TestTUITaskNavigation(t *testing.T) {
	tm := newTestModel(t, newMockService())

	time.Sleep(100 * time.Millisecond)
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyTab})
	sendRunesAndWait(tm, []rune{'j'})
	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !bytes.Contains(out, []byte("Review report")) {
		t.Error("expected 'Review report' to be visible")
	}
	if !bytes.Contains(out, []byte("Send invoices")) {
		t.Error("expected 'Send invoices' to be visible after navigation")
	}
}

func TestTUIAddTask(t *testing.T) {
	tm := newTestModel(t, newMockService())

	time.Sleep(100 * time.Millisecond)
	sendRunesAndWait(tm, []rune{'a'})
	for _, r := range "Book flights" {
		tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !bytes.Contains(out, []byte("Book flights")) {
		t.Error("expected new task to appear in list")
	}
}

func TestTUIAddCategory(t *testing.T) {
	tm := newTestModel(t, newMockService())

	time.Sleep(100 * time.Millisecond)
	sendRunesAndWait(tm, []rune{'A'})
	for _, r := range "Errands" {
		tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !bytes.Contains(out, []byte("Errands")) {
		t.Error("expected new category to appear in pane")
	}
}

func TestTUIToggleComplete(t *testing.T) {
	svc := newMockService()
	tm := newTestModel(t, svc)

	time.Sleep(100 * time.Millisecond)
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyTab})
	sendRunesAndWait(tm, []rune{'x'})
	sendRunesAndWait(tm, []rune{'q'})

	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if !svc.categories[0].Tasks[0].Completed {
		t.Error("expected first task to be completed after toggle")
	}
}

func TestTUIDeleteTaskConfirm(t *testing.T) {
	svc := newMockService()
	tm := newTestModel(t, svc)

	time.Sleep(100 * time.Millisecond)
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyTab})
	sendRunesAndWait(tm, []rune{'d'})
	sendRunesAndWait(tm, []rune{'y'})
	sendRunesAndWait(tm, []rune{'q'})

	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))

	svc.mu.Lock()
	defer svc.mu.Unlock()
	for _, task := range svc.categories[0].Tasks {
		if task.Text == "Review report" {
			t.Error("expected task to be deleted after confirmation")
		}
	}
}

func TestTUIDeleteTaskDeclined(t *testing.T) {
	svc := newMockService()
	tm := newTestModel(t, svc)

	time.Sleep(100 * time.Millisecond)
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyTab})
	sendRunesAndWait(tm, []rune{'d'})
	sendRunesAndWait(tm, []rune{'n'})
	sendRunesAndWait(tm, []rune{'q'})

	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.categories[0].Tasks) != 2 {
		t.Errorf("expected both tasks to survive declined delete, got %d", len(svc.categories[0].Tasks))
	}
}

func TestTUIRefreshEvent(t *testing.T) {
	svc := newMockService()
	b := notify.NewBroadcaster()
	defer b.Close()
	feed, unsubscribe := b.Subscribe()

	model := tui.New(svc, utils.DateFormatISO, feed, unsubscribe)
	tm := teatest.NewTestModel(t, model, teatest.WithInitialTermSize(80, 24))

	time.Sleep(100 * time.Millisecond)

	// Mutate behind the TUI's back, then broadcast a refresh.
	svc.mu.Lock()
	svc.categories[0].Tasks = append(svc.categories[0].Tasks,
		backend.Task{ID: "t9", Text: "Added externally"})
	svc.mu.Unlock()
	b.Refresh()

	time.Sleep(100 * time.Millisecond)
	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !bytes.Contains(out, []byte("Added externally")) {
		t.Error("expected refresh event to reload categories")
	}
}

func TestTUIHelp(t *testing.T) {
	tm := newTestModel(t, newMockService())

	time.Sleep(100 * time.Millisecond)
	sendRunesAndWait(tm, []rune{'?'})
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEsc})
	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !bytes.Contains(out, []byte("Keys")) {
		t.Error("expected help panel to show key bindings")
	}
}

func TestTUICollapse(t *testing.T) {
	svc := newMockService()
	tm := newTestModel(t, svc)

	time.Sleep(100 * time.Millisecond)
	sendRunesAndWait(tm, []rune{'z'})
	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !strings.Contains(string(out), "collapsed") {
		t.Error("expected collapsed marker in task pane")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if !svc.categories[0].IsCollapsed {
		t.Error("expected first category to be collapsed")
	}
}
