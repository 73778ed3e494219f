// Package tasks implements the mutation API: the single choke point through
// which all category and task changes flow. It is storage-mode-agnostic,
// routing persistence to the local blob store or the shared-file store based
// on the active context, and broadcasts a refresh after every persisted
// mutation.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"sidetask/backend"
	"sidetask/backend/local"
	"sidetask/backend/shared"
	"sidetask/internal/config"
	"sidetask/internal/journal"
	"sidetask/internal/notify"
	"sidetask/internal/recur"
	"sidetask/internal/utils"
	"sidetask/internal/watcher"
)

// ConfirmFunc asks the user to confirm a destructive operation. It is only
// consulted when confirm_task_deletion is enabled.
type ConfirmFunc func(prompt string) bool

// Service is the mutation API for categories and tasks.
type Service struct {
	cfg    *config.Config
	events *notify.Broadcaster

	localStore  *local.Store
	sharedStore *shared.Store // nil until a shared path is configured

	journal *journal.Recorder // optional completion journal
	confirm ConfirmFunc       // optional; nil means confirmation is granted
	watch   *watcher.Watcher

	configPath string // where config changes are persisted; "" for default
}

// NewService creates the mutation service for the given configuration.
func NewService(cfg *config.Config, events *notify.Broadcaster) *Service {
	s := &Service{
		cfg:        cfg,
		events:     events,
		localStore: local.New(cfg.GetDataPath()),
	}
	if cfg.SharedFilePath != "" {
		s.sharedStore = shared.New(cfg.SharedFilePath)
	}
	return s
}

// SetConfirm installs the confirmation prompt used for deletes.
func (s *Service) SetConfirm(fn ConfirmFunc) {
	s.confirm = fn
}

// SetJournal attaches a completion journal. The service closes it on Close.
func (s *Service) SetJournal(j *journal.Recorder) {
	s.journal = j
}

// SetConfigPath overrides where configuration changes are persisted.
func (s *Service) SetConfigPath(path string) {
	s.configPath = path
}

// Events returns the broadcaster rendering layers subscribe to.
func (s *Service) Events() *notify.Broadcaster {
	return s.events
}

// Close stops the watcher and releases storage resources.
func (s *Service) Close() error {
	s.StopWatch()
	_ = s.localStore.Close()
	if s.sharedStore != nil {
		_ = s.sharedStore.Close()
	}
	if s.journal != nil {
		return s.journal.Close()
	}
	return nil
}

// store resolves the active CategoryStore from the configured context.
func (s *Service) store() (backend.CategoryStore, error) {
	if s.cfg.IsShared() {
		if s.sharedStore == nil {
			return nil, utils.ErrSharedPathNotSet()
		}
		return s.sharedStore, nil
	}
	return s.localStore, nil
}

// notice converts a storage error into a developer log line plus a
// user-visible notice event. Errors never propagate uncaught into rendering.
func (s *Service) notice(err error) {
	utils.Errorf("storage: %v", err)
	msg := err.Error()
	var sugg *utils.ErrorWithSuggestion
	if e, ok := err.(*utils.ErrorWithSuggestion); ok {
		sugg = e
	}
	if sugg != nil {
		msg = sugg.GetSuggestion()
	}
	if s.events != nil {
		s.events.Notice(msg)
	}
}

// Categories returns a snapshot of the current category list. Storage
// failures degrade to an empty list plus a notice; the caller's view stays
// interactive.
func (s *Service) Categories(ctx context.Context) []backend.Category {
	st, err := s.store()
	if err != nil {
		s.notice(err)
		return []backend.Category{}
	}
	cats, err := st.GetCategories(ctx)
	if err != nil {
		s.notice(err)
		return []backend.Category{}
	}
	return cats
}

// mutate runs the read-apply-persist cycle every mutation shares: obtain the
// current category list, apply the in-memory change, save through the active
// store, then broadcast a refresh. A failed apply or save leaves prior
// persisted state untouched.
func (s *Service) mutate(ctx context.Context, apply func(cats []backend.Category) ([]backend.Category, error)) error {
	st, err := s.store()
	if err != nil {
		s.notice(err)
		return err
	}

	cats, err := st.GetCategories(ctx)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			// A present-but-unreadable data file must not be replaced with
			// an empty snapshot plus this one change; abort and leave the
			// on-disk state for the user to recover.
			s.notice(err)
			return err
		}
		// A missing file reads as an empty starting list.
		cats = []backend.Category{}
	}

	updated, err := apply(cats)
	if err != nil {
		return err
	}

	if err := st.SaveCategories(ctx, updated); err != nil {
		s.notice(err)
		return err
	}

	if s.events != nil {
		s.events.Refresh()
	}
	return nil
}

// confirmed consults the confirmation gate when configured.
func (s *Service) confirmed(prompt string) bool {
	if !s.cfg.GetConfirmTaskDeletion() {
		return true
	}
	if s.confirm == nil {
		return true
	}
	return s.confirm(prompt)
}

// =============================================================================
// Category operations
// =============================================================================

// AddCategory appends a new category, optionally seeded with one task.
// Returns the new category's ID.
func (s *Service) AddCategory(ctx context.Context, name, seedTaskText string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", utils.ErrEmptyCategoryName()
	}
	cat := backend.Category{
		ID:    backend.GenerateID(),
		Name:  name,
		Tasks: []backend.Task{},
	}
	if seedTaskText != "" {
		cat.Tasks = append(cat.Tasks, backend.Task{
			ID:   backend.GenerateID(),
			Text: seedTaskText,
		})
	}
	err := s.mutate(ctx, func(cats []backend.Category) ([]backend.Category, error) {
		return append(cats, cat), nil
	})
	if err != nil {
		return "", err
	}
	return cat.ID, nil
}

// RenameCategory changes a category's display name.
func (s *Service) RenameCategory(ctx context.Context, categoryID, name string) error {
	if strings.TrimSpace(name) == "" {
		return utils.ErrEmptyCategoryName()
	}
	return s.mutate(ctx, func(cats []backend.Category) ([]backend.Category, error) {
		ci := backend.FindCategory(cats, categoryID)
		if ci < 0 {
			return nil, utils.ErrCategoryNotFound(categoryID)
		}
		cats[ci].Name = name
		return cats, nil
	})
}

// DeleteCategory removes a category and its tasks after the confirmation
// gate. It uses the store's dedicated delete path so a concurrent writer's
// snapshot cannot resurrect the category in shared mode.
func (s *Service) DeleteCategory(ctx context.Context, categoryID string) error {
	st, err := s.store()
	if err != nil {
		s.notice(err)
		return err
	}
	if !s.confirmed("Delete this category and all its tasks?") {
		return nil
	}
	if err := st.DeleteCategory(ctx, categoryID); err != nil {
		s.notice(err)
		return err
	}
	if s.events != nil {
		s.events.Refresh()
	}
	return nil
}

// MoveCategory reorders the category list by removing the category and
// reinserting it at the target index (a stable single-element move).
func (s *Service) MoveCategory(ctx context.Context, categoryID string, targetIndex int) error {
	return s.mutate(ctx, func(cats []backend.Category) ([]backend.Category, error) {
		ci := backend.FindCategory(cats, categoryID)
		if ci < 0 {
			return nil, utils.ErrCategoryNotFound(categoryID)
		}
		moved := cats[ci]
		cats = append(cats[:ci], cats[ci+1:]...)
		if targetIndex < 0 {
			targetIndex = 0
		}
		if targetIndex > len(cats) {
			targetIndex = len(cats)
		}
		cats = append(cats[:targetIndex], append([]backend.Category{moved}, cats[targetIndex:]...)...)
		return cats, nil
	})
}

// SetCategoryColor assigns a palette swatch ("" for default).
func (s *Service) SetCategoryColor(ctx context.Context, categoryID, color string) error {
	if !backend.ValidColor(color) {
		return utils.ErrInvalidColor(color, backend.Palette)
	}
	return s.mutate(ctx, func(cats []backend.Category) ([]backend.Category, error) {
		ci := backend.FindCategory(cats, categoryID)
		if ci < 0 {
			return nil, utils.ErrCategoryNotFound(categoryID)
		}
		cats[ci].Color = color
		return cats, nil
	})
}

// SetCategoryCollapsed sets the collapse state.
func (s *Service) SetCategoryCollapsed(ctx context.Context, categoryID string, collapsed bool) error {
	return s.mutate(ctx, func(cats []backend.Category) ([]backend.Category, error) {
		ci := backend.FindCategory(cats, categoryID)
		if ci < 0 {
			return nil, utils.ErrCategoryNotFound(categoryID)
		}
		cats[ci].IsCollapsed = collapsed
		return cats, nil
	})
}

// SortCategories orders the category list alphabetically by name.
func (s *Service) SortCategories(ctx context.Context) error {
	return s.mutate(ctx, func(cats []backend.Category) ([]backend.Category, error) {
		sort.SliceStable(cats, func(i, j int) bool {
			return strings.ToLower(cats[i].Name) < strings.ToLower(cats[j].Name)
		})
		return cats, nil
	})
}

// SortCategoryTasks re-sorts a category's task sequence chronologically by
// due date, flipping direction from the category's remembered last sort.
// Tasks without a due date sort as if due today. The sort is stable.
func (s *Service) SortCategoryTasks(ctx context.Context, categoryID string) error {
	return s.mutate(ctx, func(cats []backend.Category) ([]backend.Category, error) {
		ci := backend.FindCategory(cats, categoryID)
		if ci < 0 {
			return nil, utils.ErrCategoryNotFound(categoryID)
		}

		order := backend.SortAsc
		if cats[ci].LastSortOrder == backend.SortAsc {
			order = backend.SortDesc
		}

		today := recur.Today()
		key := func(t backend.Task) int64 {
			if t.DueDate == "" {
				return today.Unix()
			}
			d, err := recur.ParseDate(t.DueDate)
			if err != nil {
				return today.Unix()
			}
			return d.Unix()
		}

		tasks := cats[ci].Tasks
		sort.SliceStable(tasks, func(i, j int) bool {
			if order == backend.SortAsc {
				return key(tasks[i]) < key(tasks[j])
			}
			return key(tasks[i]) > key(tasks[j])
		})
		cats[ci].LastSortOrder = order
		return cats, nil
	})
}

// =============================================================================
// Task operations
// =============================================================================

// AddTask appends a task to a category. dueDate may be empty or canonical
// YYYY-MM-DD. Returns the new task's ID.
func (s *Service) AddTask(ctx context.Context, categoryID, text, dueDate string) (string, error) {
	if dueDate != "" {
		if _, err := recur.ParseDate(dueDate); err != nil {
			return "", utils.ErrInvalidDate(dueDate)
		}
	}
	task := backend.Task{
		ID:      backend.GenerateID(),
		Text:    text,
		DueDate: dueDate,
	}
	err := s.mutate(ctx, func(cats []backend.Category) ([]backend.Category, error) {
		ci := backend.FindCategory(cats, categoryID)
		if ci < 0 {
			return nil, utils.ErrCategoryNotFound(categoryID)
		}
		cats[ci].Tasks = append(cats[ci].Tasks, task)
		return cats, nil
	})
	if err != nil {
		return "", err
	}
	return task.ID, nil
}

// withTask applies fn to one task located by identity.
func (s *Service) withTask(ctx context.Context, categoryID, taskID string, fn func(t *backend.Task) error) error {
	return s.mutate(ctx, func(cats []backend.Category) ([]backend.Category, error) {
		ci := backend.FindCategory(cats, categoryID)
		if ci < 0 {
			return nil, utils.ErrCategoryNotFound(categoryID)
		}
		ti := backend.FindTask(cats[ci].Tasks, taskID)
		if ti < 0 {
			return nil, utils.ErrTaskNotFound(taskID)
		}
		if err := fn(&cats[ci].Tasks[ti]); err != nil {
			return nil, err
		}
		return cats, nil
	})
}

// EditTaskText rewrites a task's display text.
func (s *Service) EditTaskText(ctx context.Context, categoryID, taskID, text string) error {
	return s.withTask(ctx, categoryID, taskID, func(t *backend.Task) error {
		t.Text = text
		return nil
	})
}

// SetTaskDueDate sets or clears ("" clears) a task's due date.
func (s *Service) SetTaskDueDate(ctx context.Context, categoryID, taskID, dueDate string) error {
	if dueDate != "" {
		if _, err := recur.ParseDate(dueDate); err != nil {
			return utils.ErrInvalidDate(dueDate)
		}
	}
	return s.withTask(ctx, categoryID, taskID, func(t *backend.Task) error {
		t.DueDate = dueDate
		return nil
	})
}

// SetTaskNote sets or clears the free-form scratchpad note.
func (s *Service) SetTaskNote(ctx context.Context, categoryID, taskID, note string) error {
	return s.withTask(ctx, categoryID, taskID, func(t *backend.Task) error {
		t.Scratchpad = note
		return nil
	})
}

// SetTaskRecurrence installs a recurrence rule after validating it, or clears
// it when rule is nil or has type none. Invalid input (non-positive interval,
// malformed dates) is rejected here and never reaches the calculator.
func (s *Service) SetTaskRecurrence(ctx context.Context, categoryID, taskID string, rule *backend.RecurrenceRule) error {
	if rule.Active() {
		if err := recur.ValidateRule(rule); err != nil {
			if rule.Type == backend.RecurCustomDays && rule.IntervalValue < 1 {
				return utils.ErrInvalidInterval(rule.IntervalValue)
			}
			return utils.WrapWithSuggestion(err, "Fix the recurrence rule and try again")
		}
	}
	return s.withTask(ctx, categoryID, taskID, func(t *backend.Task) error {
		if !rule.Active() {
			t.Recurrence = nil
			return nil
		}
		r := *rule
		r.ExceptionDates = append([]string(nil), rule.ExceptionDates...)
		t.Recurrence = &r
		return nil
	})
}

// AddExceptionDate marks one occurrence as skipped without ending the rule.
func (s *Service) AddExceptionDate(ctx context.Context, categoryID, taskID, date string) error {
	if _, err := recur.ParseDate(date); err != nil {
		return utils.ErrInvalidDate(date)
	}
	return s.withTask(ctx, categoryID, taskID, func(t *backend.Task) error {
		if !t.Recurrence.Active() {
			return utils.WrapWithSuggestion(
				fmt.Errorf("task %s has no recurrence rule", taskID),
				"Add a recurrence rule first with 'sidetask repeat'")
		}
		for _, d := range t.Recurrence.ExceptionDates {
			if d == date {
				return nil
			}
		}
		t.Recurrence.ExceptionDates = append(t.Recurrence.ExceptionDates, date)
		return nil
	})
}

// ToggleTaskCompleted flips a task's completion state.
//
// Marking complete on a task with an active recurrence rule does not complete
// it: the rule's next occurrence is computed from the current due date (or
// today when unset) and, when one exists within the rule's end bound, the
// task instance is reused with the advanced due date. Completion is
// advancement; recurring tasks never accumulate duplicate rows. Only when no
// further occurrence exists does the task become terminally completed.
// Un-checking is a plain flag flip with no recurrence interaction.
func (s *Service) ToggleTaskCompleted(ctx context.Context, categoryID, taskID string) error {
	var entry *journal.Entry

	err := s.withTask(ctx, categoryID, taskID, func(t *backend.Task) error {
		if t.Completed {
			t.Completed = false
			return nil
		}

		if !t.Recurrence.Active() {
			t.Completed = true
			entry = &journal.Entry{
				TaskID: t.ID, TaskText: t.Text, CategoryID: categoryID,
				PreviousDue: t.DueDate, Terminal: true,
			}
			return nil
		}

		anchor := recur.Today()
		if t.DueDate != "" {
			if d, err := recur.ParseDate(t.DueDate); err == nil {
				anchor = d
			}
		}

		previous := t.DueDate
		next, ok := recur.Next(t.Recurrence, anchor)
		if !ok {
			// Recurrence exhausted: terminal completion, due date unchanged.
			t.Completed = true
			entry = &journal.Entry{
				TaskID: t.ID, TaskText: t.Text, CategoryID: categoryID,
				PreviousDue: previous, Terminal: true,
			}
			return nil
		}

		t.Completed = false
		t.DueDate = recur.FormatDate(next)
		entry = &journal.Entry{
			TaskID: t.ID, TaskText: t.Text, CategoryID: categoryID,
			PreviousDue: previous, NextDue: t.DueDate, Terminal: false,
		}
		return nil
	})
	if err != nil {
		return err
	}

	if entry != nil && s.journal != nil {
		if jerr := s.journal.Record(ctx, *entry); jerr != nil {
			utils.Warnf("journal: %v", jerr)
		}
	}
	return nil
}

// DuplicateTask copies a task (fresh identity, completion reset) and inserts
// the copy immediately after the source.
func (s *Service) DuplicateTask(ctx context.Context, categoryID, taskID string) (string, error) {
	newID := backend.GenerateID()
	err := s.mutate(ctx, func(cats []backend.Category) ([]backend.Category, error) {
		ci := backend.FindCategory(cats, categoryID)
		if ci < 0 {
			return nil, utils.ErrCategoryNotFound(categoryID)
		}
		ti := backend.FindTask(cats[ci].Tasks, taskID)
		if ti < 0 {
			return nil, utils.ErrTaskNotFound(taskID)
		}

		dup := cats[ci].Tasks[ti]
		dup.ID = newID
		dup.Completed = false
		if dup.Recurrence != nil {
			r := *dup.Recurrence
			r.ExceptionDates = append([]string(nil), dup.Recurrence.ExceptionDates...)
			dup.Recurrence = &r
		}

		tasks := cats[ci].Tasks
		tasks = append(tasks[:ti+1], append([]backend.Task{dup}, tasks[ti+1:]...)...)
		cats[ci].Tasks = tasks
		return cats, nil
	})
	if err != nil {
		return "", err
	}
	return newID, nil
}

// MoveTask reorders a task within its category by removing it and reinserting
// at the target index. Tasks never move between categories.
func (s *Service) MoveTask(ctx context.Context, categoryID, taskID string, targetIndex int) error {
	return s.mutate(ctx, func(cats []backend.Category) ([]backend.Category, error) {
		ci := backend.FindCategory(cats, categoryID)
		if ci < 0 {
			return nil, utils.ErrCategoryNotFound(categoryID)
		}
		ti := backend.FindTask(cats[ci].Tasks, taskID)
		if ti < 0 {
			return nil, utils.ErrTaskNotFound(taskID)
		}
		tasks := cats[ci].Tasks
		moved := tasks[ti]
		tasks = append(tasks[:ti], tasks[ti+1:]...)
		if targetIndex < 0 {
			targetIndex = 0
		}
		if targetIndex > len(tasks) {
			targetIndex = len(tasks)
		}
		tasks = append(tasks[:targetIndex], append([]backend.Task{moved}, tasks[targetIndex:]...)...)
		cats[ci].Tasks = tasks
		return cats, nil
	})
}

// DeleteTask removes a task after the confirmation gate, via the store's
// dedicated delete path.
func (s *Service) DeleteTask(ctx context.Context, categoryID, taskID string) error {
	st, err := s.store()
	if err != nil {
		s.notice(err)
		return err
	}
	if !s.confirmed("Delete this task?") {
		return nil
	}
	if err := st.DeleteTasks(ctx, categoryID, taskID); err != nil {
		s.notice(err)
		return err
	}
	if s.events != nil {
		s.events.Refresh()
	}
	return nil
}

// ClearCompleted bulk-removes every completed task in a category through the
// dedicated delete path, so the removals survive concurrent writers.
func (s *Service) ClearCompleted(ctx context.Context, categoryID string) (int, error) {
	st, err := s.store()
	if err != nil {
		s.notice(err)
		return 0, err
	}

	cats := s.Categories(ctx)
	ci := backend.FindCategory(cats, categoryID)
	if ci < 0 {
		return 0, utils.ErrCategoryNotFound(categoryID)
	}

	var ids []string
	for _, t := range cats[ci].Tasks {
		if t.Completed {
			ids = append(ids, t.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if !s.confirmed("Remove all completed tasks in this category?") {
		return 0, nil
	}

	if err := st.DeleteTasks(ctx, categoryID, ids...); err != nil {
		s.notice(err)
		return 0, err
	}
	if s.events != nil {
		s.events.Refresh()
	}
	return len(ids), nil
}

// Preview enumerates a task's upcoming occurrences using the configured
// future-tasks count.
func (s *Service) Preview(ctx context.Context, categoryID, taskID string) (recur.Preview, error) {
	cats := s.Categories(ctx)
	ci := backend.FindCategory(cats, categoryID)
	if ci < 0 {
		return recur.Preview{}, utils.ErrCategoryNotFound(categoryID)
	}
	ti := backend.FindTask(cats[ci].Tasks, taskID)
	if ti < 0 {
		return recur.Preview{}, utils.ErrTaskNotFound(taskID)
	}

	t := cats[ci].Tasks[ti]
	anchor := recur.Today()
	if t.DueDate != "" {
		if d, err := recur.ParseDate(t.DueDate); err == nil {
			anchor = d
		}
	}
	return recur.Enumerate(t.Recurrence, anchor, s.cfg.GetFutureTasksCount()), nil
}

// ImportCategories appends externally produced categories (e.g. parsed from a
// markdown checklist) to the active store. Invalid recurrence rules are
// cleared rather than rejected, so one bad line cannot block an import.
func (s *Service) ImportCategories(ctx context.Context, imported []backend.Category) (int, error) {
	added := 0
	for i := range imported {
		for j := range imported[i].Tasks {
			t := &imported[i].Tasks[j]
			if t.Recurrence.Active() {
				if err := recur.ValidateRule(t.Recurrence); err != nil {
					utils.Warnf("import: dropping invalid recurrence on %q: %v", t.Text, err)
					t.Recurrence = nil
				}
			}
		}
		added += len(imported[i].Tasks)
	}

	err := s.mutate(ctx, func(cats []backend.Category) ([]backend.Category, error) {
		return append(cats, imported...), nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// =============================================================================
// Context and watcher lifecycle
// =============================================================================

// SetContext switches the active storage context and persists the change.
// Switching to shared requires a path, either already configured or supplied
// here. The shared-file watcher follows the new context.
func (s *Service) SetContext(ctx context.Context, mode, sharedPath string) error {
	switch mode {
	case config.ContextLocal:
		s.cfg.ActiveContext = config.ContextLocal
	case config.ContextShared:
		if sharedPath != "" {
			s.cfg.SharedFilePath = config.ExpandPath(sharedPath)
			s.sharedStore = shared.New(s.cfg.SharedFilePath)
		}
		if s.cfg.SharedFilePath == "" {
			return utils.ErrSharedPathNotSet()
		}
		s.cfg.ActiveContext = config.ContextShared
	default:
		return fmt.Errorf("unknown context %q (must be 'local' or 'shared')", mode)
	}

	if err := s.cfg.Save(s.configPath); err != nil {
		return err
	}

	s.restartWatch()
	if s.events != nil {
		s.events.Refresh()
	}
	return nil
}

// StartWatch establishes the shared-file change subscription when shared mode
// is active. A change detected on disk triggers a sync pulse and a refresh in
// every subscribed view.
func (s *Service) StartWatch() error {
	if !s.cfg.IsShared() || s.sharedStore == nil {
		return nil
	}

	debounce := time.Duration(s.cfg.GetSyncDebounceMs()) * time.Millisecond
	w, err := watcher.New(s.sharedStore.Path(), debounce, func() {
		if s.events != nil {
			s.events.SyncPulse()
			s.events.Refresh()
		}
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	s.watch = w
	return nil
}

// StopWatch tears the watcher down.
func (s *Service) StopWatch() {
	if s.watch != nil {
		s.watch.Stop()
		s.watch = nil
	}
}

// restartWatch re-establishes the watcher after a context or path change.
func (s *Service) restartWatch() {
	s.StopWatch()
	if err := s.StartWatch(); err != nil {
		utils.Warnf("watcher: %v", err)
	}
}
