package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"sidetask/backend"
	"sidetask/internal/config"
	"sidetask/internal/journal"
	"sidetask/internal/markdown"
	"sidetask/internal/notify"
	"sidetask/internal/recur"
	"sidetask/internal/shutdown"
	"sidetask/internal/tasks"
	"sidetask/internal/tui"
	"sidetask/internal/utils"
)

// Version is set at build time
var Version = "dev"

// Result codes for CLI output (used in no-prompt mode)
const (
	ResultActionCompleted = "ACTION_COMPLETED"
	ResultInfoOnly        = "INFO_ONLY"
	ResultError           = "ERROR"
)

// Config holds CLI-level configuration
type Config struct {
	NoPrompt   bool
	Verbose    bool
	ConfigPath string // path to the yaml config file (for testing)
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	rootCmd := NewSideTask(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		if containsJSONFlag(args) {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
			if e, ok := err.(*utils.ErrorWithSuggestion); ok {
				_, _ = fmt.Fprintln(stderr, "Hint:", e.GetSuggestion())
			}
			if cfg != nil && cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultError)
			}
		}
		return 1
	}
	return 0
}

func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

// NewSideTask creates the root command with injectable IO
func NewSideTask(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}

	cmd := &cobra.Command{
		Use:     "sidetask [category] [action] [task]",
		Short:   "A sidebar-style task manager",
		Long:    "sidetask manages categorized task lists with recurring tasks, stored locally or in a shared file synchronized across processes.",
		Version: Version,
		Args:    cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyGlobalFlags(cmd, cfg)

			if len(args) == 0 {
				return cmd.Help()
			}

			svc, appCfg, err := buildService(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			ctx := context.Background()
			categoryName := args[0]

			action := "get"
			var taskText string
			if len(args) >= 2 {
				action = resolveAction(args[1])
				if action == "" {
					return fmt.Errorf("unknown action: %s", args[1])
				}
			}
			if len(args) >= 3 {
				taskText = args[2]
			}

			cat, err := getOrCreateCategory(ctx, svc, categoryName, action)
			if err != nil {
				return err
			}

			jsonOutput, _ := cmd.Flags().GetBool("json")
			return executeAction(ctx, cmd, svc, appCfg, cat, action, taskText, cfg, stdout, jsonOutput)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("no-prompt", "y", false, "Disable interactive prompts")
	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().String("config", "", "Path to config file")

	// Action-specific flags
	cmd.Flags().StringP("due", "d", "", "Due date (YYYY-MM-DD, today, tomorrow, +Nd, +Nw, +Nm) for add/update, \"\" to clear")
	cmd.Flags().String("text", "", "New task text (for update)")
	cmd.Flags().String("note", "", "Scratchpad note for the task")
	cmd.Flags().StringP("every", "e", "", "Recurrence: daily, weekly, monthly, or Nd for every N days (for repeat)")
	cmd.Flags().String("until", "", "Last allowed occurrence date (for repeat)")
	cmd.Flags().Bool("stop", false, "Remove the recurrence rule (for repeat)")
	cmd.Flags().String("date", "", "Occurrence date to skip (for skip; defaults to the task's due date)")
	cmd.Flags().Int("to", 0, "Target position, 0-based (for move)")
	cmd.Flags().Bool("all", false, "Include completed tasks (for get)")

	cmd.AddCommand(newCategoryCmd(stdout, cfg))
	cmd.AddCommand(newExportCmd(stdout, cfg))
	cmd.AddCommand(newImportCmd(stdout, cfg))
	cmd.AddCommand(newContextCmd(stdout, cfg))
	cmd.AddCommand(newWatchCmd(stdout, stderr, cfg))
	cmd.AddCommand(newStatsCmd(stdout, cfg))
	cmd.AddCommand(newTUICmd(stdout, stderr, cfg))

	return cmd
}

// applyGlobalFlags folds persistent flag values into the CLI config.
func applyGlobalFlags(cmd *cobra.Command, cfg *Config) {
	if noPrompt, _ := cmd.Flags().GetBool("no-prompt"); noPrompt {
		cfg.NoPrompt = true
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Verbose = true
		utils.SetVerboseMode(true)
	}
	if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
		cfg.ConfigPath = configPath
	}
}

// buildService loads configuration and wires the mutation service for a
// one-shot command invocation.
func buildService(cfg *Config) (*tasks.Service, *config.Config, error) {
	appCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	svc := tasks.NewService(appCfg, nil)
	svc.SetConfigPath(cfg.ConfigPath)

	if !cfg.NoPrompt {
		svc.SetConfirm(utils.PromptYesNo)
	}

	if appCfg.IsJournalEnabled() {
		rec, err := journal.Open(appCfg.GetJournalPath())
		if err != nil {
			utils.Warnf("journal unavailable: %v", err)
		} else {
			svc.SetJournal(rec)
		}
	}

	return svc, appCfg, nil
}

// resolveAction maps action names and abbreviations to canonical action names
func resolveAction(s string) string {
	switch strings.ToLower(s) {
	case "get", "g":
		return "get"
	case "add", "a":
		return "add"
	case "update", "u":
		return "update"
	case "complete", "c", "done":
		return "complete"
	case "delete", "d", "rm":
		return "delete"
	case "dup", "duplicate":
		return "dup"
	case "move", "mv":
		return "move"
	case "repeat", "r":
		return "repeat"
	case "skip":
		return "skip"
	case "preview", "p":
		return "preview"
	case "sort", "s":
		return "sort"
	case "clear":
		return "clear"
	default:
		return ""
	}
}

// getOrCreateCategory finds a category by name (case-insensitive) or creates
// it. Read-only actions never create: a missing category is an error there.
func getOrCreateCategory(ctx context.Context, svc *tasks.Service, name, action string) (*backend.Category, error) {
	cats := svc.Categories(ctx)
	for i := range cats {
		if strings.EqualFold(cats[i].Name, name) {
			return &cats[i], nil
		}
	}

	switch action {
	case "get", "preview", "clear", "sort":
		return nil, utils.ErrCategoryNotFound(name)
	}

	id, err := svc.AddCategory(ctx, name, "")
	if err != nil {
		return nil, err
	}
	cats = svc.Categories(ctx)
	ci := backend.FindCategory(cats, id)
	if ci < 0 {
		return nil, utils.ErrCategoryNotFound(name)
	}
	return &cats[ci], nil
}

// findTask searches for a task by text using exact then partial matching.
func findTask(cat *backend.Category, searchTerm string, cfg *Config) (*backend.Task, error) {
	if searchTerm == "" {
		return nil, fmt.Errorf("task text is required")
	}

	for i := range cat.Tasks {
		if strings.EqualFold(cat.Tasks[i].Text, searchTerm) {
			return &cat.Tasks[i], nil
		}
	}

	searchLower := strings.ToLower(searchTerm)
	var matches []*backend.Task
	for i := range cat.Tasks {
		if strings.Contains(strings.ToLower(cat.Tasks[i].Text), searchLower) {
			matches = append(matches, &cat.Tasks[i])
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("no task found matching '%s'", searchTerm)
	}
	if len(matches) == 1 {
		return matches[0], nil
	}

	var matchNames []string
	for _, m := range matches {
		matchNames = append(matchNames, fmt.Sprintf("  - %s", m.Text))
	}
	return nil, fmt.Errorf("multiple tasks match '%s':\n%s", searchTerm, strings.Join(matchNames, "\n"))
}

// executeAction performs the requested action on the category
func executeAction(ctx context.Context, cmd *cobra.Command, svc *tasks.Service, appCfg *config.Config, cat *backend.Category, action, taskText string, cfg *Config, stdout io.Writer, jsonOutput bool) error {
	switch action {
	case "get":
		showAll, _ := cmd.Flags().GetBool("all")
		return doGet(svc, appCfg, cat, showAll, cfg, stdout, jsonOutput)

	case "add":
		dueFlag, _ := cmd.Flags().GetString("due")
		note, _ := cmd.Flags().GetString("note")
		return doAdd(ctx, svc, cat, taskText, dueFlag, note, cfg, stdout, jsonOutput)

	case "update":
		return doUpdate(ctx, cmd, svc, cat, taskText, cfg, stdout, jsonOutput)

	case "complete":
		return doComplete(ctx, svc, appCfg, cat, taskText, cfg, stdout, jsonOutput)

	case "delete":
		return doDelete(ctx, svc, cat, taskText, cfg, stdout, jsonOutput)

	case "dup":
		return doDuplicate(ctx, svc, cat, taskText, cfg, stdout, jsonOutput)

	case "move":
		target, _ := cmd.Flags().GetInt("to")
		return doMove(ctx, svc, cat, taskText, target, cfg, stdout)

	case "repeat":
		return doRepeat(ctx, cmd, svc, cat, taskText, cfg, stdout)

	case "skip":
		date, _ := cmd.Flags().GetString("date")
		return doSkip(ctx, svc, cat, taskText, date, cfg, stdout)

	case "preview":
		return doPreview(ctx, svc, appCfg, cat, taskText, cfg, stdout, jsonOutput)

	case "sort":
		return doSort(ctx, svc, cat, cfg, stdout)

	case "clear":
		return doClear(ctx, svc, cat, cfg, stdout)

	default:
		return fmt.Errorf("unknown action: %s", action)
	}
}

// doGet lists the tasks of a category in persisted order.
func doGet(svc *tasks.Service, appCfg *config.Config, cat *backend.Category, showAll bool, cfg *Config, stdout io.Writer, jsonOutput bool) error {
	taskList := cat.Tasks
	if !showAll {
		var open []backend.Task
		for _, t := range taskList {
			if !t.Completed {
				open = append(open, t)
			}
		}
		taskList = open
	}

	if jsonOutput {
		return outputTaskListJSON(taskList, cat, stdout)
	}

	if len(taskList) == 0 {
		_, _ = fmt.Fprintf(stdout, "No tasks in '%s'\n", cat.Name)
	} else {
		_, _ = fmt.Fprintf(stdout, "Tasks in '%s':\n", cat.Name)
		format := appCfg.GetDateFormat()
		for _, t := range taskList {
			printTaskLine(t, format, stdout)
		}
	}

	if cfg != nil && cfg.NoPrompt {
		_, _ = fmt.Fprintln(stdout, ResultInfoOnly)
	}
	return nil
}

// printTaskLine renders one task with its due date and recurrence markers.
func printTaskLine(t backend.Task, format utils.DateFormat, stdout io.Writer) {
	status := "[ ]"
	if t.Completed {
		status = "[x]"
	}
	line := fmt.Sprintf("  %s %s", status, t.Text)
	if t.DueDate != "" {
		line += fmt.Sprintf(" (due %s)", utils.FormatDisplayDate(t.DueDate, format))
	}
	if t.Recurrence.Active() {
		line += fmt.Sprintf(" [%s]", recur.Describe(t.Recurrence))
	}
	if t.Scratchpad != "" {
		line += " *"
	}
	_, _ = fmt.Fprintln(stdout, line)
}

// doAdd creates a new task
func doAdd(ctx context.Context, svc *tasks.Service, cat *backend.Category, text, dueFlag, note string, cfg *Config, stdout io.Writer, jsonOutput bool) error {
	if text == "" {
		return fmt.Errorf("task text is required")
	}

	dueDate := ""
	if dueFlag != "" {
		d, err := utils.ParseDateFlag(dueFlag)
		if err != nil {
			return err
		}
		dueDate = d
	}

	id, err := svc.AddTask(ctx, cat.ID, text, dueDate)
	if err != nil {
		return err
	}
	if note != "" {
		if err := svc.SetTaskNote(ctx, cat.ID, id, note); err != nil {
			return err
		}
	}

	if jsonOutput {
		return outputActionJSON("add", backend.Task{ID: id, Text: text, DueDate: dueDate, Scratchpad: note}, stdout)
	}

	_, _ = fmt.Fprintf(stdout, "Added task: %s\n", text)
	if cfg != nil && cfg.NoPrompt {
		_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
	}
	return nil
}

// doUpdate modifies an existing task's text, due date, or note
func doUpdate(ctx context.Context, cmd *cobra.Command, svc *tasks.Service, cat *backend.Category, taskText string, cfg *Config, stdout io.Writer, jsonOutput bool) error {
	task, err := findTask(cat, taskText, cfg)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("text") {
		newText, _ := cmd.Flags().GetString("text")
		if newText == "" {
			return fmt.Errorf("task text cannot be empty")
		}
		if err := svc.EditTaskText(ctx, cat.ID, task.ID, newText); err != nil {
			return err
		}
		task.Text = newText
	}

	if cmd.Flags().Changed("due") {
		dueFlag, _ := cmd.Flags().GetString("due")
		dueDate := ""
		if dueFlag != "" {
			d, err := utils.ParseDateFlag(dueFlag)
			if err != nil {
				return err
			}
			dueDate = d
		}
		if err := svc.SetTaskDueDate(ctx, cat.ID, task.ID, dueDate); err != nil {
			return err
		}
		task.DueDate = dueDate
	}

	if cmd.Flags().Changed("note") {
		note, _ := cmd.Flags().GetString("note")
		if err := svc.SetTaskNote(ctx, cat.ID, task.ID, note); err != nil {
			return err
		}
		task.Scratchpad = note
	}

	if jsonOutput {
		return outputActionJSON("update", *task, stdout)
	}

	_, _ = fmt.Fprintf(stdout, "Updated task: %s\n", task.Text)
	if cfg != nil && cfg.NoPrompt {
		_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
	}
	return nil
}

// doComplete toggles a task's completion. Recurring tasks advance to their
// next occurrence instead of completing.
func doComplete(ctx context.Context, svc *tasks.Service, appCfg *config.Config, cat *backend.Category, taskText string, cfg *Config, stdout io.Writer, jsonOutput bool) error {
	task, err := findTask(cat, taskText, cfg)
	if err != nil {
		return err
	}

	wasRecurring := task.Recurrence.Active() && !task.Completed
	if err := svc.ToggleTaskCompleted(ctx, cat.ID, task.ID); err != nil {
		return err
	}

	// Re-read to report what actually happened.
	cats := svc.Categories(ctx)
	ci := backend.FindCategory(cats, cat.ID)
	var after *backend.Task
	if ci >= 0 {
		if ti := backend.FindTask(cats[ci].Tasks, task.ID); ti >= 0 {
			after = &cats[ci].Tasks[ti]
		}
	}

	if jsonOutput && after != nil {
		return outputActionJSON("complete", *after, stdout)
	}

	switch {
	case after == nil:
		_, _ = fmt.Fprintf(stdout, "Completed task: %s\n", task.Text)
	case wasRecurring && !after.Completed:
		_, _ = fmt.Fprintf(stdout, "Advanced task: %s (next due %s)\n",
			after.Text, utils.FormatDisplayDate(after.DueDate, appCfg.GetDateFormat()))
	case after.Completed:
		_, _ = fmt.Fprintf(stdout, "Completed task: %s\n", after.Text)
	default:
		_, _ = fmt.Fprintf(stdout, "Reopened task: %s\n", after.Text)
	}

	if cfg != nil && cfg.NoPrompt {
		_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
	}
	return nil
}

// doDelete removes a task
func doDelete(ctx context.Context, svc *tasks.Service, cat *backend.Category, taskText string, cfg *Config, stdout io.Writer, jsonOutput bool) error {
	task, err := findTask(cat, taskText, cfg)
	if err != nil {
		return err
	}

	deleted := *task
	if err := svc.DeleteTask(ctx, cat.ID, task.ID); err != nil {
		return err
	}

	if jsonOutput {
		return outputActionJSON("delete", deleted, stdout)
	}

	_, _ = fmt.Fprintf(stdout, "Deleted task: %s\n", deleted.Text)
	if cfg != nil && cfg.NoPrompt {
		_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
	}
	return nil
}

// doDuplicate copies a task, placing the copy right after the source
func doDuplicate(ctx context.Context, svc *tasks.Service, cat *backend.Category, taskText string, cfg *Config, stdout io.Writer, jsonOutput bool) error {
	task, err := findTask(cat, taskText, cfg)
	if err != nil {
		return err
	}

	id, err := svc.DuplicateTask(ctx, cat.ID, task.ID)
	if err != nil {
		return err
	}

	if jsonOutput {
		dup := *task
		dup.ID = id
		dup.Completed = false
		return outputActionJSON("dup", dup, stdout)
	}

	_, _ = fmt.Fprintf(stdout, "Duplicated task: %s\n", task.Text)
	if cfg != nil && cfg.NoPrompt {
		_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
	}
	return nil
}

// doMove reorders a task within its category
func doMove(ctx context.Context, svc *tasks.Service, cat *backend.Category, taskText string, target int, cfg *Config, stdout io.Writer) error {
	task, err := findTask(cat, taskText, cfg)
	if err != nil {
		return err
	}

	if err := svc.MoveTask(ctx, cat.ID, task.ID, target); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(stdout, "Moved task '%s' to position %d\n", task.Text, target)
	if cfg != nil && cfg.NoPrompt {
		_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
	}
	return nil
}

// doRepeat installs, replaces, or removes a task's recurrence rule
func doRepeat(ctx context.Context, cmd *cobra.Command, svc *tasks.Service, cat *backend.Category, taskText string, cfg *Config, stdout io.Writer) error {
	task, err := findTask(cat, taskText, cfg)
	if err != nil {
		return err
	}

	if stop, _ := cmd.Flags().GetBool("stop"); stop {
		if err := svc.SetTaskRecurrence(ctx, cat.ID, task.ID, nil); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "Removed recurrence from: %s\n", task.Text)
		if cfg != nil && cfg.NoPrompt {
			_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
		}
		return nil
	}

	every, _ := cmd.Flags().GetString("every")
	if every == "" {
		return fmt.Errorf("--every is required (daily, weekly, monthly, or Nd)")
	}
	rule, err := parseRepeatFlag(every)
	if err != nil {
		return err
	}

	if until, _ := cmd.Flags().GetString("until"); until != "" {
		d, err := utils.ParseDateFlag(until)
		if err != nil {
			return err
		}
		rule.Until = d
	}

	if err := svc.SetTaskRecurrence(ctx, cat.ID, task.ID, rule); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(stdout, "Task '%s' now repeats %s\n", task.Text, recur.Describe(rule))
	if cfg != nil && cfg.NoPrompt {
		_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
	}
	return nil
}

// parseRepeatFlag maps an --every value to a recurrence rule.
// Accepts daily, weekly, monthly, or Nd for a custom day step.
func parseRepeatFlag(s string) (*backend.RecurrenceRule, error) {
	switch strings.ToLower(s) {
	case "daily", "day":
		return &backend.RecurrenceRule{Type: backend.RecurDaily}, nil
	case "weekly", "week":
		return &backend.RecurrenceRule{Type: backend.RecurWeekly}, nil
	case "monthly", "month":
		return &backend.RecurrenceRule{Type: backend.RecurMonthly}, nil
	}

	if n, ok := strings.CutSuffix(strings.ToLower(s), "d"); ok {
		interval, err := strconv.Atoi(n)
		if err != nil {
			return nil, fmt.Errorf("invalid repeat interval: %s", s)
		}
		if interval < 1 {
			return nil, utils.ErrInvalidInterval(interval)
		}
		return &backend.RecurrenceRule{Type: backend.RecurCustomDays, IntervalValue: interval}, nil
	}

	return nil, fmt.Errorf("invalid repeat value '%s' (use daily, weekly, monthly, or Nd)", s)
}

// doSkip marks one occurrence of a recurring task as skipped
func doSkip(ctx context.Context, svc *tasks.Service, cat *backend.Category, taskText, dateFlag string, cfg *Config, stdout io.Writer) error {
	task, err := findTask(cat, taskText, cfg)
	if err != nil {
		return err
	}

	date := task.DueDate
	if dateFlag != "" {
		d, err := utils.ParseDateFlag(dateFlag)
		if err != nil {
			return err
		}
		date = d
	}
	if date == "" {
		return fmt.Errorf("no date to skip: task has no due date and --date was not given")
	}

	if err := svc.AddExceptionDate(ctx, cat.ID, task.ID, date); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(stdout, "Skipping %s for: %s\n", date, task.Text)
	if cfg != nil && cfg.NoPrompt {
		_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
	}
	return nil
}

// doPreview shows the upcoming occurrences of a recurring task
func doPreview(ctx context.Context, svc *tasks.Service, appCfg *config.Config, cat *backend.Category, taskText string, cfg *Config, stdout io.Writer, jsonOutput bool) error {
	task, err := findTask(cat, taskText, cfg)
	if err != nil {
		return err
	}

	preview, err := svc.Preview(ctx, cat.ID, task.ID)
	if err != nil {
		return err
	}

	dates := make([]string, 0, len(preview.Dates))
	for _, d := range preview.Dates {
		dates = append(dates, recur.FormatDate(d))
	}

	if jsonOutput {
		type previewJSON struct {
			Task      string   `json:"task"`
			Dates     []string `json:"dates"`
			Truncated bool     `json:"truncated"`
			Remaining int      `json:"remaining,omitempty"`
			Repeats   string   `json:"repeats,omitempty"`
			Result    string   `json:"result"`
		}
		out := previewJSON{
			Task: task.Text, Dates: dates, Truncated: preview.Truncated,
			Remaining: preview.Remaining, Repeats: preview.Repeats,
			Result: ResultInfoOnly,
		}
		jsonBytes, err := json.Marshal(out)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(stdout, string(jsonBytes))
		return nil
	}

	if len(dates) == 0 {
		_, _ = fmt.Fprintf(stdout, "No upcoming occurrences for: %s\n", task.Text)
	} else {
		_, _ = fmt.Fprintf(stdout, "Upcoming occurrences of '%s':\n", task.Text)
		format := appCfg.GetDateFormat()
		for _, d := range dates {
			_, _ = fmt.Fprintf(stdout, "  %s\n", utils.FormatDisplayDate(d, format))
		}
		if preview.Truncated {
			if preview.Remaining > 0 {
				_, _ = fmt.Fprintf(stdout, "  ... and %d more\n", preview.Remaining)
			} else if preview.Repeats != "" {
				_, _ = fmt.Fprintf(stdout, "  ... continues %s\n", preview.Repeats)
			}
		}
	}

	if cfg != nil && cfg.NoPrompt {
		_, _ = fmt.Fprintln(stdout, ResultInfoOnly)
	}
	return nil
}

// doSort re-sorts a category's tasks chronologically, toggling direction
func doSort(ctx context.Context, svc *tasks.Service, cat *backend.Category, cfg *Config, stdout io.Writer) error {
	if err := svc.SortCategoryTasks(ctx, cat.ID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "Sorted tasks in '%s'\n", cat.Name)
	if cfg != nil && cfg.NoPrompt {
		_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
	}
	return nil
}

// doClear removes all completed tasks in a category
func doClear(ctx context.Context, svc *tasks.Service, cat *backend.Category, cfg *Config, stdout io.Writer) error {
	n, err := svc.ClearCompleted(ctx, cat.ID)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "Removed %d completed task(s) from '%s'\n", n, cat.Name)
	if cfg != nil && cfg.NoPrompt {
		_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
	}
	return nil
}

// =============================================================================
// category subcommand
// =============================================================================

// newCategoryCmd creates the 'category' subcommand for category management
func newCategoryCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	categoryCmd := &cobra.Command{
		Use:   "category",
		Short: "Manage categories",
		Long:  "View all categories or manage them with subcommands.",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyGlobalFlags(cmd, cfg)

			svc, _, err := buildService(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			jsonOutput, _ := cmd.Flags().GetBool("json")
			return doCategoryView(context.Background(), svc, cfg, stdout, jsonOutput)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	categoryCmd.AddCommand(newCategoryCreateCmd(stdout, cfg))
	categoryCmd.AddCommand(newCategoryRenameCmd(stdout, cfg))
	categoryCmd.AddCommand(newCategoryDeleteCmd(stdout, cfg))
	categoryCmd.AddCommand(newCategoryMoveCmd(stdout, cfg))
	categoryCmd.AddCommand(newCategoryColorCmd(stdout, cfg))
	categoryCmd.AddCommand(newCategorySortCmd(stdout, cfg))

	return categoryCmd
}

// doCategoryView displays all categories with their task counts
func doCategoryView(ctx context.Context, svc *tasks.Service, cfg *Config, stdout io.Writer, jsonOutput bool) error {
	cats := svc.Categories(ctx)

	if jsonOutput {
		type categoryJSON struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Color     string `json:"color,omitempty"`
			Tasks     int    `json:"tasks"`
			Collapsed bool   `json:"collapsed,omitempty"`
		}
		output := []categoryJSON{}
		for _, c := range cats {
			output = append(output, categoryJSON{
				ID: c.ID, Name: c.Name, Color: c.Color,
				Tasks: len(c.Tasks), Collapsed: c.IsCollapsed,
			})
		}
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(stdout, string(jsonBytes))
		return nil
	}

	if len(cats) == 0 {
		_, _ = fmt.Fprintln(stdout, "No categories found. Create one with: sidetask category create \"MyCategory\"")
		if cfg != nil && cfg.NoPrompt {
			_, _ = fmt.Fprintln(stdout, ResultInfoOnly)
		}
		return nil
	}

	_, _ = fmt.Fprintf(stdout, "Categories (%d):\n\n", len(cats))
	_, _ = fmt.Fprintf(stdout, "%-20s %-8s %s\n", "NAME", "COLOR", "TASKS")
	for _, c := range cats {
		color := c.Color
		if color == "" {
			color = "-"
		}
		_, _ = fmt.Fprintf(stdout, "%-20s %-8s %d\n", c.Name, color, len(c.Tasks))
	}

	if cfg != nil && cfg.NoPrompt {
		_, _ = fmt.Fprintln(stdout, ResultInfoOnly)
	}
	return nil
}

// newCategoryCreateCmd creates the 'category create' subcommand
func newCategoryCreateCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyGlobalFlags(cmd, cfg)

			svc, _, err := buildService(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			ctx := context.Background()
			name := args[0]

			for _, c := range svc.Categories(ctx) {
				if strings.EqualFold(c.Name, name) {
					return fmt.Errorf("category '%s' already exists", name)
				}
			}

			seed, _ := cmd.Flags().GetString("task")
			if _, err := svc.AddCategory(ctx, name, seed); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(stdout, "Created category: %s\n", name)
			if cfg != nil && cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().String("task", "", "Seed the new category with one task")
	return cmd
}

// newCategoryRenameCmd creates the 'category rename' subcommand
func newCategoryRenameCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "rename [name] [new-name]",
		Short: "Rename a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyGlobalFlags(cmd, cfg)

			svc, _, err := buildService(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			ctx := context.Background()
			cat, err := findCategory(ctx, svc, args[0])
			if err != nil {
				return err
			}

			if err := svc.RenameCategory(ctx, cat.ID, args[1]); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(stdout, "Renamed category '%s' to '%s'\n", args[0], args[1])
			if cfg != nil && cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newCategoryDeleteCmd creates the 'category delete' subcommand
func newCategoryDeleteCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [name]",
		Short: "Delete a category and all its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyGlobalFlags(cmd, cfg)

			svc, _, err := buildService(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			ctx := context.Background()
			cat, err := findCategory(ctx, svc, args[0])
			if err != nil {
				return err
			}

			if err := svc.DeleteCategory(ctx, cat.ID); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(stdout, "Deleted category: %s\n", cat.Name)
			if cfg != nil && cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newCategoryMoveCmd creates the 'category move' subcommand
func newCategoryMoveCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move [name]",
		Short: "Move a category to a new position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyGlobalFlags(cmd, cfg)

			svc, _, err := buildService(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			ctx := context.Background()
			cat, err := findCategory(ctx, svc, args[0])
			if err != nil {
				return err
			}

			target, _ := cmd.Flags().GetInt("to")
			if err := svc.MoveCategory(ctx, cat.ID, target); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(stdout, "Moved category '%s' to position %d\n", cat.Name, target)
			if cfg != nil && cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().Int("to", 0, "Target position, 0-based")
	return cmd
}

// newCategoryColorCmd creates the 'category color' subcommand
func newCategoryColorCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "color [name] [color]",
		Short: "Set a category's color",
		Long:  "Assign a palette color to a category. Valid colors: " + strings.Join(backend.Palette, ", ") + ". Use \"\" to reset.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyGlobalFlags(cmd, cfg)

			svc, _, err := buildService(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			ctx := context.Background()
			cat, err := findCategory(ctx, svc, args[0])
			if err != nil {
				return err
			}

			if err := svc.SetCategoryColor(ctx, cat.ID, args[1]); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(stdout, "Set color of '%s' to %s\n", cat.Name, args[1])
			if cfg != nil && cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newCategorySortCmd creates the 'category sort' subcommand
func newCategorySortCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sort",
		Short: "Sort categories alphabetically",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyGlobalFlags(cmd, cfg)

			svc, _, err := buildService(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			if err := svc.SortCategories(context.Background()); err != nil {
				return err
			}

			_, _ = fmt.Fprintln(stdout, "Sorted categories alphabetically")
			if cfg != nil && cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// findCategory locates a category by name (case-insensitive), never creating.
func findCategory(ctx context.Context, svc *tasks.Service, name string) (*backend.Category, error) {
	cats := svc.Categories(ctx)
	for i := range cats {
		if strings.EqualFold(cats[i].Name, name) {
			return &cats[i], nil
		}
	}
	return nil, utils.ErrCategoryNotFound(name)
}

// =============================================================================
// export / import subcommands
// =============================================================================

// newExportCmd creates the 'export' subcommand writing a markdown checklist
func newExportCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export all categories as a markdown checklist",
		Long:  "Renders every category and task as a markdown document. Writes to the given file, or stdout when omitted.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyGlobalFlags(cmd, cfg)

			svc, _, err := buildService(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			doc := markdown.Render(svc.Categories(context.Background()))

			if len(args) == 0 {
				_, _ = fmt.Fprint(stdout, doc)
				return nil
			}

			if err := os.WriteFile(args[0], []byte(doc), 0644); err != nil {
				return fmt.Errorf("failed to write export file: %w", err)
			}
			_, _ = fmt.Fprintf(stdout, "Exported to %s\n", args[0])
			if cfg != nil && cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newImportCmd creates the 'import' subcommand reading a markdown checklist
func newImportCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import categories from a markdown checklist",
		Long:  "Parses a markdown document (## headings as categories, checklist items as tasks) and appends the result to the active store.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyGlobalFlags(cmd, cfg)

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read import file: %w", err)
			}

			cats := markdown.Parse(string(data))
			if len(cats) == 0 {
				return fmt.Errorf("no tasks found in %s", args[0])
			}

			svc, _, err := buildService(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			n, err := svc.ImportCategories(context.Background(), cats)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(stdout, "Imported %d task(s) in %d categor(ies)\n", n, len(cats))
			if cfg != nil && cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// =============================================================================
// context subcommand
// =============================================================================

// newContextCmd creates the 'context' subcommand for switching storage mode
func newContextCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "context [local|shared] [path]",
		Short: "Show or switch the active storage context",
		Long:  "With no arguments, shows the active context. 'context local' switches to private storage; 'context shared <path>' switches to a shared file synchronized across processes.",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyGlobalFlags(cmd, cfg)

			svc, appCfg, err := buildService(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			if len(args) == 0 {
				_, _ = fmt.Fprintf(stdout, "Active context: %s\n", appCfg.GetActiveContext())
				if appCfg.SharedFilePath != "" {
					_, _ = fmt.Fprintf(stdout, "Shared file:    %s\n", appCfg.SharedFilePath)
				}
				if cfg != nil && cfg.NoPrompt {
					_, _ = fmt.Fprintln(stdout, ResultInfoOnly)
				}
				return nil
			}

			mode := args[0]
			sharedPath := ""
			if len(args) == 2 {
				sharedPath = args[1]
			}

			if err := svc.SetContext(context.Background(), mode, sharedPath); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(stdout, "Switched to %s context\n", mode)
			if cfg != nil && cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// =============================================================================
// watch subcommand
// =============================================================================

// newWatchCmd creates the 'watch' subcommand: follow shared-file changes and
// print a line per external modification until interrupted.
func newWatchCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow shared-file changes",
		Long:  "Watches the shared file and prints a line whenever another process modifies it. Requires the shared context.",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyGlobalFlags(cmd, cfg)

			appCfg, err := config.Load(cfg.ConfigPath)
			if err != nil {
				return err
			}
			if !appCfg.IsShared() {
				return utils.WrapWithSuggestion(
					fmt.Errorf("watch requires the shared context"),
					"Switch with 'sidetask context shared <path>' first")
			}

			events := notify.NewBroadcaster()
			svc := tasks.NewService(appCfg, events)
			svc.SetConfigPath(cfg.ConfigPath)
			defer func() { _ = svc.Close() }()

			if err := svc.StartWatch(); err != nil {
				return err
			}

			mgr := shutdown.NewManager()
			mgr.RegisterCleanup("watcher", func(context.Context) error {
				svc.StopWatch()
				return nil
			})

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			feed, unsubscribe := events.Subscribe()
			defer unsubscribe()

			_, _ = fmt.Fprintf(stdout, "Watching %s (ctrl+c to stop)\n", appCfg.SharedFilePath)
			for {
				select {
				case e := <-feed:
					switch e.Type {
					case notify.EventSyncPulse:
						_, _ = fmt.Fprintf(stdout, "%s  shared file changed\n", e.Timestamp.Format("15:04:05"))
					case notify.EventNotice:
						_, _ = fmt.Fprintf(stderr, "%s  %s\n", e.Timestamp.Format("15:04:05"), e.Message)
					}
				case <-sigCh:
					mgr.Shutdown()
					return nil
				}
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// =============================================================================
// stats subcommand
// =============================================================================

// newStatsCmd creates the 'stats' subcommand over the completion journal
func newStatsCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show completion statistics",
		Long:  "Summarizes recorded task completions: totals, recurring advancements, and the most recent entries.",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyGlobalFlags(cmd, cfg)

			appCfg, err := config.Load(cfg.ConfigPath)
			if err != nil {
				return err
			}
			if !appCfg.IsJournalEnabled() {
				return utils.WrapWithSuggestion(
					fmt.Errorf("the completion journal is disabled"),
					"Enable it by setting journal.enabled: true in the config file")
			}

			rec, err := journal.Open(appCfg.GetJournalPath())
			if err != nil {
				return err
			}
			defer func() { _ = rec.Close() }()

			days, _ := cmd.Flags().GetInt("days")
			ctx := context.Background()

			stats, err := rec.StatsSince(ctx, time.Now().AddDate(0, 0, -days))
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(stdout, "Completions in the last %d days:\n", days)
			_, _ = fmt.Fprintf(stdout, "  Total:     %d\n", stats.Total)
			_, _ = fmt.Fprintf(stdout, "  Advanced:  %d (recurring)\n", stats.Advanced)
			_, _ = fmt.Fprintf(stdout, "  Completed: %d\n", stats.Terminal)

			recent, err := rec.Recent(ctx, 5)
			if err != nil {
				return err
			}
			if len(recent) > 0 {
				_, _ = fmt.Fprintln(stdout, "\nMost recent:")
				for _, e := range recent {
					marker := "done"
					if !e.Terminal {
						marker = "next " + e.NextDue
					}
					_, _ = fmt.Fprintf(stdout, "  %s  %s (%s)\n",
						e.CompletedAt.Format("2006-01-02 15:04"), e.TaskText, marker)
				}
			}

			if cfg != nil && cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultInfoOnly)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().Int("days", 30, "Number of days to summarize")
	return cmd
}

// =============================================================================
// tui subcommand
// =============================================================================

// newTUICmd creates the 'tui' subcommand launching the terminal interface
func newTUICmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Launch the terminal interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyGlobalFlags(cmd, cfg)

			appCfg, err := config.Load(cfg.ConfigPath)
			if err != nil {
				return err
			}

			events := notify.NewBroadcaster()
			svc := tasks.NewService(appCfg, events)
			svc.SetConfigPath(cfg.ConfigPath)
			defer func() { _ = svc.Close() }()

			if appCfg.IsJournalEnabled() {
				rec, err := journal.Open(appCfg.GetJournalPath())
				if err != nil {
					utils.Warnf("journal unavailable: %v", err)
				} else {
					svc.SetJournal(rec)
				}
			}

			if err := svc.StartWatch(); err != nil {
				utils.Warnf("watcher: %v", err)
			}

			feed, unsubscribe := events.Subscribe()
			model := tui.New(svc, appCfg.GetDateFormat(), feed, unsubscribe)

			p := tea.NewProgram(model, tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// =============================================================================
// JSON output
// =============================================================================

type taskJSON struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Completed  bool     `json:"completed"`
	DueDate    string   `json:"due_date,omitempty"`
	Note       string   `json:"note,omitempty"`
	Repeats    string   `json:"repeats,omitempty"`
	Until      string   `json:"until,omitempty"`
	Exceptions []string `json:"exceptions,omitempty"`
}

type taskListResponse struct {
	Tasks    []taskJSON `json:"tasks"`
	Category string     `json:"category"`
	Count    int        `json:"count"`
	Result   string     `json:"result"`
}

type actionResponse struct {
	Action string   `json:"action"`
	Task   taskJSON `json:"task"`
	Result string   `json:"result"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   int    `json:"code"`
	Result string `json:"result"`
}

func taskToJSON(t backend.Task) taskJSON {
	out := taskJSON{
		ID:        t.ID,
		Text:      t.Text,
		Completed: t.Completed,
		DueDate:   t.DueDate,
		Note:      t.Scratchpad,
	}
	if t.Recurrence.Active() {
		out.Repeats = recur.Describe(t.Recurrence)
		out.Until = t.Recurrence.Until
		out.Exceptions = t.Recurrence.ExceptionDates
	}
	return out
}

func outputTaskListJSON(taskList []backend.Task, cat *backend.Category, stdout io.Writer) error {
	jsonTasks := []taskJSON{}
	for _, t := range taskList {
		jsonTasks = append(jsonTasks, taskToJSON(t))
	}

	response := taskListResponse{
		Tasks:    jsonTasks,
		Category: cat.Name,
		Count:    len(jsonTasks),
		Result:   ResultInfoOnly,
	}

	jsonBytes, err := json.Marshal(response)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
	return nil
}

func outputActionJSON(action string, task backend.Task, stdout io.Writer) error {
	response := actionResponse{
		Action: action,
		Task:   taskToJSON(task),
		Result: ResultActionCompleted,
	}

	jsonBytes, err := json.Marshal(response)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
	return nil
}

func outputErrorJSON(err error, stdout io.Writer) {
	response := errorResponse{
		Error:  err.Error(),
		Code:   1,
		Result: ResultError,
	}

	jsonBytes, _ := json.Marshal(response)
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
}
