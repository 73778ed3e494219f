// Package local implements a CategoryStore that keeps the category list in a
// private JSON data file owned by this process alone. Reads and writes are
// whole-blob operations; there is no external concurrency concern because only
// one process owns the file.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"sidetask/backend"
)

// fileData is the on-disk shape of the local blob.
type fileData struct {
	Categories []backend.Category `json:"categories"`
}

// Store implements backend.CategoryStore for local single-process storage.
type Store struct {
	path       string
	categories []backend.Category
	loaded     bool
}

// New creates a local store backed by the given data file. The file is
// created on first save; a missing file reads as an empty list.
func New(path string) *Store {
	return &Store{path: path}
}

// Close closes the store.
func (s *Store) Close() error {
	return nil
}

// GetCategories returns the current category list.
func (s *Store) GetCategories(ctx context.Context) ([]backend.Category, error) {
	if err := s.ensureLoaded(); err != nil {
		return []backend.Category{}, err
	}
	return backend.CloneCategories(s.categories), nil
}

// SaveCategories replaces the category list wholesale and rewrites the blob.
func (s *Store) SaveCategories(ctx context.Context, categories []backend.Category) error {
	s.categories = backend.CloneCategories(categories)
	s.loaded = true
	return s.saveFile()
}

// DeleteCategory removes a category by identity and rewrites the blob.
// Deleting an identity that is already gone is a no-op.
func (s *Store) DeleteCategory(ctx context.Context, categoryID string) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	idx := backend.FindCategory(s.categories, categoryID)
	if idx < 0 {
		return nil
	}
	s.categories = append(s.categories[:idx], s.categories[idx+1:]...)
	return s.saveFile()
}

// DeleteTasks removes tasks by identity and rewrites the blob once.
// An unknown category or task identity is a no-op.
func (s *Store) DeleteTasks(ctx context.Context, categoryID string, taskIDs ...string) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	ci := backend.FindCategory(s.categories, categoryID)
	if ci < 0 {
		return nil
	}
	drop := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		drop[id] = true
	}
	kept := make([]backend.Task, 0, len(s.categories[ci].Tasks))
	for _, t := range s.categories[ci].Tasks {
		if !drop[t.ID] {
			kept = append(kept, t)
		}
	}
	s.categories[ci].Tasks = kept
	return s.saveFile()
}

// ensureLoaded loads the file if not already loaded, or initializes empty state
func (s *Store) ensureLoaded() error {
	if s.loaded {
		return nil
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		s.categories = []backend.Category{}
		s.loaded = true
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read data file: %w", err)
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return fmt.Errorf("failed to parse data file: %w", err)
	}

	s.categories = fd.Categories
	if s.categories == nil {
		s.categories = []backend.Category{}
	}
	s.loaded = true
	return nil
}

// saveFile rewrites the whole blob.
func (s *Store) saveFile() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(fileData{Categories: s.categories}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode data file: %w", err)
	}

	return os.WriteFile(s.path, data, 0644)
}

// Verify interface compliance at compile time
var _ backend.CategoryStore = (*Store)(nil)
