// Package tui provides a terminal sidebar for the task list: a categories
// pane and a tasks pane over the mutation service, redrawing on refresh
// events and flashing a sync indicator when another process touches the
// shared file.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sidetask/backend"
	"sidetask/internal/notify"
	"sidetask/internal/recur"
	"sidetask/internal/utils"
)

// Service is the subset of the mutation API the TUI drives.
type Service interface {
	Categories(ctx context.Context) []backend.Category
	AddCategory(ctx context.Context, name, seedTaskText string) (string, error)
	AddTask(ctx context.Context, categoryID, text, dueDate string) (string, error)
	EditTaskText(ctx context.Context, categoryID, taskID, text string) error
	ToggleTaskCompleted(ctx context.Context, categoryID, taskID string) error
	DeleteTask(ctx context.Context, categoryID, taskID string) error
	SetCategoryCollapsed(ctx context.Context, categoryID string, collapsed bool) error
	SortCategoryTasks(ctx context.Context, categoryID string) error
}

// Focus indicates which pane has focus
type Focus int

const (
	FocusCategories Focus = iota
	FocusTasks
)

// Mode indicates the current input mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeAddTask
	ModeAddCategory
	ModeEdit
	ModeHelp
	ModeConfirmDelete
)

// swatches maps palette names to terminal colors for the category marker.
var swatches = map[string]string{
	"red": "203", "orange": "214", "yellow": "227", "green": "84", "teal": "43",
	"blue": "75", "purple": "135", "pink": "212", "gray": "245",
}

// Message types
type categoriesLoadedMsg struct {
	categories []backend.Category
}

type feedEventMsg struct {
	event notify.Event
	ok    bool
}

type syncFadeMsg struct{}

type errMsg struct {
	err error
}

// Model represents the TUI state
type Model struct {
	svc        Service
	ctx        context.Context
	dateFormat utils.DateFormat

	feed        <-chan notify.Event
	unsubscribe func()

	categories []backend.Category

	catCursor  int
	taskCursor int
	focus      Focus

	mode      Mode
	textInput textinput.Model

	notice  string
	syncing bool

	width  int
	height int

	catPaneStyle   lipgloss.Style
	taskPaneStyle  lipgloss.Style
	selectedStyle  lipgloss.Style
	completedStyle lipgloss.Style
	dueStyle       lipgloss.Style
	helpStyle      lipgloss.Style
	dialogStyle    lipgloss.Style
	statusBarStyle lipgloss.Style
	syncStyle      lipgloss.Style
}

// New creates a new TUI model. The feed channel, when non-nil, delivers
// refresh/sync/notice events from the broadcaster; unsubscribe is called on
// quit.
func New(svc Service, dateFormat utils.DateFormat, feed <-chan notify.Event, unsubscribe func()) *Model {
	ti := textinput.New()
	ti.Placeholder = "Enter text..."
	ti.CharLimit = 256

	return &Model{
		svc:         svc,
		ctx:         context.Background(),
		dateFormat:  dateFormat,
		feed:        feed,
		unsubscribe: unsubscribe,
		textInput:   ti,
		focus:       FocusCategories,
		mode:        ModeNormal,
		catPaneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		taskPaneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		completedStyle: lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("240")),
		dueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("110")),
		helpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		dialogStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		statusBarStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
		syncStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("84")).
			Bold(true),
	}
}

// Init initializes the TUI
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadCategories(), m.waitForEvent())
}

func (m *Model) loadCategories() tea.Cmd {
	return func() tea.Msg {
		return categoriesLoadedMsg{m.svc.Categories(m.ctx)}
	}
}

// waitForEvent blocks on the broadcaster feed and turns each event into a
// bubbletea message.
func (m *Model) waitForEvent() tea.Cmd {
	if m.feed == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-m.feed
		return feedEventMsg{event: e, ok: ok}
	}
}

// do runs a mutation and reloads the snapshot.
func (m *Model) do(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return errMsg{err}
		}
		return categoriesLoadedMsg{m.svc.Categories(m.ctx)}
	}
}

func (m *Model) currentCategory() *backend.Category {
	if len(m.categories) == 0 || m.catCursor >= len(m.categories) {
		return nil
	}
	return &m.categories[m.catCursor]
}

func (m *Model) currentTask() *backend.Task {
	cat := m.currentCategory()
	if cat == nil || len(cat.Tasks) == 0 || m.taskCursor >= len(cat.Tasks) {
		return nil
	}
	return &cat.Tasks[m.taskCursor]
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case categoriesLoadedMsg:
		m.categories = msg.categories
		if m.catCursor >= len(m.categories) && m.catCursor > 0 {
			m.catCursor = len(m.categories) - 1
		}
		if cat := m.currentCategory(); cat != nil && m.taskCursor >= len(cat.Tasks) {
			m.taskCursor = 0
		}
		return m, nil

	case feedEventMsg:
		if !msg.ok {
			return m, nil
		}
		switch msg.event.Type {
		case notify.EventRefresh:
			return m, tea.Batch(m.loadCategories(), m.waitForEvent())
		case notify.EventSyncPulse:
			m.syncing = true
			fade := tea.Tick(time.Second, func(time.Time) tea.Msg { return syncFadeMsg{} })
			return m, tea.Batch(fade, m.waitForEvent())
		case notify.EventNotice:
			m.notice = msg.event.Message
			return m, m.waitForEvent()
		}
		return m, m.waitForEvent()

	case syncFadeMsg:
		m.syncing = false
		return m, nil

	case errMsg:
		m.notice = msg.err.Error()
		if e, ok := msg.err.(*utils.ErrorWithSuggestion); ok {
			m.notice = e.GetSuggestion()
		}
		return m, nil

	case tea.KeyMsg:
		m.notice = ""

		switch m.mode {
		case ModeAddTask, ModeAddCategory:
			return m.handleInputMode(msg)
		case ModeEdit:
			return m.handleEditMode(msg)
		case ModeHelp:
			return m.handleHelpMode(msg)
		case ModeConfirmDelete:
			return m.handleConfirmDeleteMode(msg)
		}

		switch msg.String() {
		case "q", "ctrl+c":
			if m.unsubscribe != nil {
				m.unsubscribe()
			}
			return m, tea.Quit

		case "tab":
			if m.focus == FocusCategories {
				m.focus = FocusTasks
			} else {
				m.focus = FocusCategories
			}
			return m, nil

		case "up", "k":
			if m.focus == FocusCategories {
				if m.catCursor > 0 {
					m.catCursor--
					m.taskCursor = 0
				}
			} else if m.taskCursor > 0 {
				m.taskCursor--
			}
			return m, nil

		case "down", "j":
			if m.focus == FocusCategories {
				if m.catCursor < len(m.categories)-1 {
					m.catCursor++
					m.taskCursor = 0
				}
			} else if cat := m.currentCategory(); cat != nil && m.taskCursor < len(cat.Tasks)-1 {
				m.taskCursor++
			}
			return m, nil

		case "a":
			if m.currentCategory() == nil {
				return m, nil
			}
			m.mode = ModeAddTask
			m.textInput.Reset()
			m.textInput.Placeholder = "New task..."
			m.textInput.Focus()
			return m, textinput.Blink

		case "A":
			m.mode = ModeAddCategory
			m.textInput.Reset()
			m.textInput.Placeholder = "New category..."
			m.textInput.Focus()
			return m, textinput.Blink

		case "e":
			if t := m.currentTask(); t != nil {
				m.mode = ModeEdit
				m.textInput.Reset()
				m.textInput.SetValue(t.Text)
				m.textInput.Focus()
				return m, textinput.Blink
			}
			return m, nil

		case " ", "x":
			cat := m.currentCategory()
			t := m.currentTask()
			if cat != nil && t != nil {
				catID, taskID := cat.ID, t.ID
				return m, m.do(func() error {
					return m.svc.ToggleTaskCompleted(m.ctx, catID, taskID)
				})
			}
			return m, nil

		case "d":
			if m.currentTask() != nil {
				m.mode = ModeConfirmDelete
			}
			return m, nil

		case "z":
			if cat := m.currentCategory(); cat != nil {
				catID, collapsed := cat.ID, !cat.IsCollapsed
				return m, m.do(func() error {
					return m.svc.SetCategoryCollapsed(m.ctx, catID, collapsed)
				})
			}
			return m, nil

		case "s":
			if cat := m.currentCategory(); cat != nil {
				catID := cat.ID
				return m, m.do(func() error {
					return m.svc.SortCategoryTasks(m.ctx, catID)
				})
			}
			return m, nil

		case "r":
			return m, m.loadCategories()

		case "?":
			m.mode = ModeHelp
			return m, nil
		}
	}

	if m.mode == ModeAddTask || m.mode == ModeAddCategory || m.mode == ModeEdit {
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleInputMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		value := m.textInput.Value()
		mode := m.mode
		m.mode = ModeNormal
		if value == "" {
			return m, nil
		}
		if mode == ModeAddCategory {
			return m, m.do(func() error {
				_, err := m.svc.AddCategory(m.ctx, value, "")
				return err
			})
		}
		cat := m.currentCategory()
		if cat == nil {
			return m, nil
		}
		catID := cat.ID
		return m, m.do(func() error {
			_, err := m.svc.AddTask(m.ctx, catID, value, "")
			return err
		})

	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleEditMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		value := m.textInput.Value()
		m.mode = ModeNormal
		cat := m.currentCategory()
		t := m.currentTask()
		if value == "" || cat == nil || t == nil {
			return m, nil
		}
		catID, taskID := cat.ID, t.ID
		return m, m.do(func() error {
			return m.svc.EditTaskText(m.ctx, catID, taskID, value)
		})

	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleHelpMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyEnter:
		m.mode = ModeNormal
		return m, nil
	}
	if msg.String() == "q" {
		m.mode = ModeNormal
		return m, nil
	}
	return m, nil
}

func (m *Model) handleConfirmDeleteMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.mode = ModeNormal
		cat := m.currentCategory()
		t := m.currentTask()
		if cat == nil || t == nil {
			return m, nil
		}
		catID, taskID := cat.ID, t.ID
		if m.taskCursor > 0 {
			m.taskCursor--
		}
		return m, m.do(func() error {
			return m.svc.DeleteTask(m.ctx, catID, taskID)
		})

	case "n", "N", "esc":
		m.mode = ModeNormal
		return m, nil
	}

	if msg.Type == tea.KeyEsc {
		m.mode = ModeNormal
	}
	return m, nil
}

// View renders the TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	switch m.mode {
	case ModeAddTask:
		return m.renderDialog("Add Task", m.textInput.View())
	case ModeAddCategory:
		return m.renderDialog("Add Category", m.textInput.View())
	case ModeEdit:
		return m.renderDialog("Edit Task", m.textInput.View())
	case ModeHelp:
		return m.renderHelpDialog()
	case ModeConfirmDelete:
		return m.renderDialog("Delete Task", "Delete this task? (y/n)")
	}

	catWidth := m.width / 4
	taskWidth := m.width - catWidth - 4

	catPane := m.catPaneStyle.Width(catWidth).Height(m.height - 4).
		Render(m.renderCategoryPane(catWidth - 4))
	taskPane := m.taskPaneStyle.Width(taskWidth).Height(m.height - 4).
		Render(m.renderTaskPane(taskWidth - 4))

	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, catPane, taskPane))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *Model) renderCategoryPane(width int) string {
	var b strings.Builder
	b.WriteString("Categories\n")
	b.WriteString(strings.Repeat("─", max(width, 1)))
	b.WriteString("\n")

	if len(m.categories) == 0 {
		b.WriteString("No categories\n")
		return b.String()
	}

	for i, cat := range m.categories {
		cursor := " "
		if i == m.catCursor && m.focus == FocusCategories {
			cursor = ">"
		}

		marker := "▪"
		if sw, ok := swatches[cat.Color]; ok {
			marker = lipgloss.NewStyle().Foreground(lipgloss.Color(sw)).Render("▪")
		}

		fold := "▾"
		if cat.IsCollapsed {
			fold = "▸"
		}

		name := fmt.Sprintf("%s %s %s (%d)", fold, marker, cat.Name, len(cat.Tasks))
		if i == m.catCursor && m.focus == FocusCategories {
			name = m.selectedStyle.Render(name)
		}
		b.WriteString(cursor + " " + name + "\n")
	}

	return b.String()
}

func (m *Model) renderTaskPane(width int) string {
	var b strings.Builder
	b.WriteString("Tasks\n")
	b.WriteString(strings.Repeat("─", max(width, 1)))
	b.WriteString("\n")

	cat := m.currentCategory()
	if cat == nil || len(cat.Tasks) == 0 {
		b.WriteString("No tasks\n")
		return b.String()
	}
	if cat.IsCollapsed {
		b.WriteString("(collapsed)\n")
		return b.String()
	}

	for i, task := range cat.Tasks {
		cursor := " "
		if i == m.taskCursor && m.focus == FocusTasks {
			cursor = ">"
		}

		status := "[ ]"
		if task.Completed {
			status = "[✓]"
		}

		text := task.Text
		if task.Completed {
			text = m.completedStyle.Render(text)
		} else if i == m.taskCursor && m.focus == FocusTasks {
			text = m.selectedStyle.Render(text)
		}

		line := cursor + " " + status + " " + text
		if task.DueDate != "" {
			line += " " + m.dueStyle.Render("("+utils.FormatDisplayDate(task.DueDate, m.dateFormat)+")")
		}
		if task.Recurrence.Active() {
			line += " " + m.helpStyle.Render("↻ "+recur.Describe(task.Recurrence))
		}
		b.WriteString(line + "\n")
	}

	return b.String()
}

func (m *Model) renderStatusBar() string {
	left := ""
	if cat := m.currentCategory(); cat != nil {
		left = cat.Name
	}
	if m.syncing {
		left += "  " + m.syncStyle.Render("⟳ sync")
	}
	if m.notice != "" {
		left += "  " + m.notice
	}

	right := "space:done  a:task  A:category  s:sort  z:fold  q:quit  ?:help"

	padding := m.width - lipgloss.Width(left) - len(right) - 2
	if padding < 1 {
		padding = 1
	}

	return m.statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}

func (m *Model) renderDialog(title, body string) string {
	return m.dialogStyle.Render(title + "\n\n" + body + "\n\n" + m.helpStyle.Render("enter:confirm  esc:cancel"))
}

func (m *Model) renderHelpDialog() string {
	help := `Keys

  tab        switch pane
  j/k        move cursor
  space/x    toggle completion (recurring tasks advance)
  a          add task        A   add category
  e          edit task text
  d          delete task (confirms)
  s          sort tasks by due date (toggles direction)
  z          collapse/expand category
  r          reload
  q          quit`
	return m.dialogStyle.Render(help)
}
