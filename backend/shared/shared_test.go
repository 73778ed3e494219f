package shared

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sidetask/backend"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "tasks.json"))
}

func mustSave(t *testing.T, s *Store, cats []backend.Category) {
	t.Helper()
	if err := s.SaveCategories(context.Background(), cats); err != nil {
		t.Fatalf("SaveCategories failed: %v", err)
	}
}

func mustGet(t *testing.T, s *Store) []backend.Category {
	t.Helper()
	cats, err := s.GetCategories(context.Background())
	if err != nil {
		t.Fatalf("GetCategories failed: %v", err)
	}
	return cats
}

func TestGetCategoriesMissingFile(t *testing.T) {
	s := newTestStore(t)

	cats, err := s.GetCategories(context.Background())
	if err == nil {
		t.Fatal("expected an error for a missing shared file")
	}
	if cats == nil || len(cats) != 0 {
		t.Errorf("expected empty (non-nil) list alongside the error, got %+v", cats)
	}
}

func TestGetCategoriesMalformedFile(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	cats, err := s.GetCategories(context.Background())
	if err == nil {
		t.Fatal("expected an error for a malformed shared file")
	}
	if !strings.Contains(err.Error(), "could not parse") {
		t.Errorf("unexpected error: %v", err)
	}
	if len(cats) != 0 {
		t.Errorf("expected empty list alongside the error, got %+v", cats)
	}
}

func TestSaveCreatesFile(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, []backend.Category{{ID: "c1", Name: "Work"}})

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("shared file not created: %v", err)
	}
	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		t.Fatalf("written file is not valid JSON: %v", err)
	}
	if len(fd.Categories) != 1 || fd.Categories[0].Name != "Work" {
		t.Errorf("unexpected file content: %+v", fd.Categories)
	}
}

func TestSaveReconcilesConcurrentAddition(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, []backend.Category{{ID: "c1", Name: "Work"}})

	// Another process adds a category between our read and our next save.
	other := New(s.Path())
	mustSave(t, other, []backend.Category{
		{ID: "c1", Name: "Work"},
		{ID: "c2", Name: "Home"},
	})

	// Our stale snapshot only knows c1; the save must not drop c2.
	mustSave(t, s, []backend.Category{{ID: "c1", Name: "Work renamed"}})

	cats := mustGet(t, s)
	if len(cats) != 2 {
		t.Fatalf("concurrent addition lost: %+v", cats)
	}
	if cats[0].Name != "Work renamed" {
		t.Errorf("local rename lost: %+v", cats[0])
	}
	if cats[1].ID != "c2" {
		t.Errorf("expected disk-only category appended, got %+v", cats[1])
	}
}

func TestSaveAbortsOnMalformedFile(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	err := s.SaveCategories(context.Background(), []backend.Category{{ID: "c1", Name: "Work"}})
	if err == nil {
		t.Fatal("save against a malformed file must fail rather than merge with garbage")
	}

	// The garbage must still be on disk, untouched.
	data, _ := os.ReadFile(s.Path())
	if string(data) != "garbage" {
		t.Errorf("malformed file was overwritten: %q", data)
	}
}

func TestDeleteCategoryNotResurrected(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, []backend.Category{
		{ID: "c1", Name: "Work"},
		{ID: "c2", Name: "Home"},
	})

	if err := s.DeleteCategory(context.Background(), "c2"); err != nil {
		t.Fatalf("DeleteCategory failed: %v", err)
	}

	cats := mustGet(t, s)
	if len(cats) != 1 || cats[0].ID != "c1" {
		t.Fatalf("expected only c1 to remain, got %+v", cats)
	}
}

func TestDeleteTasksNotResurrected(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, []backend.Category{{ID: "c1", Name: "Work", Tasks: []backend.Task{
		{ID: "t1", Text: "keep"},
		{ID: "t2", Text: "drop"},
		{ID: "t3", Text: "drop too"},
	}}})

	if err := s.DeleteTasks(context.Background(), "c1", "t2", "t3"); err != nil {
		t.Fatalf("DeleteTasks failed: %v", err)
	}

	cats := mustGet(t, s)
	if len(cats[0].Tasks) != 1 || cats[0].Tasks[0].ID != "t1" {
		t.Fatalf("expected only t1 to remain, got %+v", cats[0].Tasks)
	}
}

func TestDeleteMissingCategoryIsNoop(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, []backend.Category{{ID: "c1", Name: "Work"}})

	if err := s.DeleteCategory(context.Background(), "nope"); err != nil {
		t.Fatalf("deleting an unknown category should not fail: %v", err)
	}
	if cats := mustGet(t, s); len(cats) != 1 {
		t.Fatalf("unexpected state after noop delete: %+v", cats)
	}
}

func TestSanitizeDropsEntriesWithoutIdentity(t *testing.T) {
	s := newTestStore(t)
	raw := `{"categories": [
		{"id": "", "name": "ghost"},
		{"id": "c1", "name": "Work", "tasks": [
			{"id": "", "text": "ghost task"},
			{"id": "t1", "text": "real task"}
		]}
	]}`
	if err := os.WriteFile(s.Path(), []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	cats := mustGet(t, s)
	if len(cats) != 1 || cats[0].ID != "c1" {
		t.Fatalf("id-less category not dropped: %+v", cats)
	}
	if len(cats[0].Tasks) != 1 || cats[0].Tasks[0].ID != "t1" {
		t.Fatalf("id-less task not dropped: %+v", cats[0].Tasks)
	}
}

func TestSanitizeResetsInvalidFields(t *testing.T) {
	s := newTestStore(t)
	raw := `{"categories": [
		{"id": "c1", "name": "Work", "color": "chartreuse", "lastSortOrder": "sideways", "tasks": [
			{"id": "t1", "text": "bad rule", "recurrence": {"type": "customDays", "intervalValue": 0}},
			{"id": "t2", "text": "good rule", "recurrence": {"type": "weekly"}}
		]}
	]}`
	if err := os.WriteFile(s.Path(), []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	cats := mustGet(t, s)
	c := cats[0]
	if c.Color != "" {
		t.Errorf("invalid color should reset to default, got %q", c.Color)
	}
	if c.LastSortOrder != "" {
		t.Errorf("invalid sort order should reset, got %q", c.LastSortOrder)
	}
	if c.Tasks[0].Recurrence != nil {
		t.Errorf("invalid recurrence should be cleared, got %+v", c.Tasks[0].Recurrence)
	}
	if !c.Tasks[1].Recurrence.Active() {
		t.Errorf("valid recurrence should survive, got %+v", c.Tasks[1].Recurrence)
	}
}

func TestWriteIsPrettyPrinted(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, []backend.Category{{ID: "c1", Name: "Work"}})

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  \"categories\"") {
		t.Errorf("expected 2-space indented output, got:\n%s", data)
	}
}
