package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"sidetask/backend"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "categories.json"))
}

func TestMissingFileReadsEmpty(t *testing.T) {
	s := newTestStore(t)

	cats, err := s.GetCategories(context.Background())
	if err != nil {
		t.Fatalf("missing file should read as empty, got error: %v", err)
	}
	if len(cats) != 0 {
		t.Fatalf("expected empty list, got %+v", cats)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.json")
	s := New(path)

	in := []backend.Category{{
		ID:   "c1",
		Name: "Work",
		Tasks: []backend.Task{{
			ID:      "t1",
			Text:    "write report",
			DueDate: "2026-09-01",
			Recurrence: &backend.RecurrenceRule{
				Type: backend.RecurWeekly,
			},
		}},
	}}
	if err := s.SaveCategories(context.Background(), in); err != nil {
		t.Fatalf("SaveCategories failed: %v", err)
	}

	// A fresh store instance must see the same state from disk.
	s2 := New(path)
	cats, err := s2.GetCategories(context.Background())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(cats) != 1 || cats[0].Name != "Work" {
		t.Fatalf("unexpected reload result: %+v", cats)
	}
	tk := cats[0].Tasks[0]
	if tk.DueDate != "2026-09-01" || !tk.Recurrence.Active() {
		t.Errorf("task fields lost on round trip: %+v", tk)
	}
}

func TestGetCategoriesReturnsSnapshot(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveCategories(context.Background(), []backend.Category{
		{ID: "c1", Name: "Work", Tasks: []backend.Task{{ID: "t1", Text: "original"}}},
	}); err != nil {
		t.Fatal(err)
	}

	cats, _ := s.GetCategories(context.Background())
	cats[0].Tasks[0].Text = "mutated by caller"

	again, _ := s.GetCategories(context.Background())
	if again[0].Tasks[0].Text != "original" {
		t.Error("caller mutation leaked into store state")
	}
}

func TestDeleteCategory(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveCategories(context.Background(), []backend.Category{
		{ID: "c1", Name: "Work"},
		{ID: "c2", Name: "Home"},
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteCategory(context.Background(), "c1"); err != nil {
		t.Fatalf("DeleteCategory failed: %v", err)
	}
	cats, _ := s.GetCategories(context.Background())
	if len(cats) != 1 || cats[0].ID != "c2" {
		t.Fatalf("expected only c2 to remain, got %+v", cats)
	}

	// An already-deleted identity is a no-op, matching the shared store.
	if err := s.DeleteCategory(context.Background(), "missing"); err != nil {
		t.Errorf("deleting an unknown category should be a no-op: %v", err)
	}
	cats, _ = s.GetCategories(context.Background())
	if len(cats) != 1 {
		t.Fatalf("noop delete must not change state: %+v", cats)
	}
}

func TestDeleteTasks(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveCategories(context.Background(), []backend.Category{
		{ID: "c1", Name: "Work", Tasks: []backend.Task{
			{ID: "t1", Text: "keep"},
			{ID: "t2", Text: "drop"},
			{ID: "t3", Text: "drop"},
		}},
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteTasks(context.Background(), "c1", "t2", "t3"); err != nil {
		t.Fatalf("DeleteTasks failed: %v", err)
	}
	cats, _ := s.GetCategories(context.Background())
	if len(cats[0].Tasks) != 1 || cats[0].Tasks[0].ID != "t1" {
		t.Fatalf("expected only t1 to remain, got %+v", cats[0].Tasks)
	}

	if err := s.DeleteTasks(context.Background(), "missing", "t1"); err != nil {
		t.Errorf("deleting from an unknown category should be a no-op: %v", err)
	}
}

func TestMalformedFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}

	s := New(path)
	if _, err := s.GetCategories(context.Background()); err == nil {
		t.Error("expected an error for a malformed data file")
	}
}
