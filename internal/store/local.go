package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
)

// Local keeps the entire dataset in a single JSON file. Every mutation
// rewrites the whole file through a temp file and rename, so a crash never
// leaves a half-written dataset behind.
type Local struct {
	path string
	mu   sync.Mutex
}

func NewLocal(path string) *Local {
	return &Local{path: path}
}

func (l *Local) Fetch(_ context.Context) (core.Dataset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *Local) AddTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	ds, err := l.load()
	if err != nil {
		return core.Transaction{}, err
	}
	ds.Transactions = append(ds.Transactions, tx)
	if err := l.save(ds); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

func (l *Local) DeleteTransaction(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ds, err := l.load()
	if err != nil {
		return err
	}
	kept := ds.Transactions[:0]
	found := false
	for _, tx := range ds.Transactions {
		if tx.ID == id {
			found = true
			continue
		}
		kept = append(kept, tx)
	}
	if !found {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	ds.Transactions = kept
	return l.save(ds)
}

func (l *Local) AddTodo(_ context.Context, todo core.Todo) (core.Todo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if todo.ID == "" {
		todo.ID = uuid.NewString()
	}
	if todo.CreatedAt.IsZero() {
		todo.CreatedAt = time.Now().UTC()
	}
	if err := todo.Validate(); err != nil {
		return core.Todo{}, err
	}

	ds, err := l.load()
	if err != nil {
		return core.Todo{}, err
	}
	ds.Todos = append(ds.Todos, todo)
	if err := l.save(ds); err != nil {
		return core.Todo{}, err
	}
	return todo, nil
}

func (l *Local) ToggleTodo(_ context.Context, id string, done bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ds, err := l.load()
	if err != nil {
		return err
	}
	for i := range ds.Todos {
		if ds.Todos[i].ID == id {
			ds.Todos[i].Done = done
			return l.save(ds)
		}
	}
	return fmt.Errorf("todo %s: %w", id, core.ErrNotFound)
}

func (l *Local) DeleteTodo(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ds, err := l.load()
	if err != nil {
		return err
	}
	kept := ds.Todos[:0]
	found := false
	for _, todo := range ds.Todos {
		if todo.ID == id {
			found = true
			continue
		}
		kept = append(kept, todo)
	}
	if !found {
		return fmt.Errorf("todo %s: %w", id, core.ErrNotFound)
	}
	ds.Todos = kept
	return l.save(ds)
}

// ReorderTodos overwrites the stored list with the given sequence.
func (l *Local) ReorderTodos(_ context.Context, todos []core.Todo) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, todo := range todos {
		if err := todo.Validate(); err != nil {
			return err
		}
	}

	ds, err := l.load()
	if err != nil {
		return err
	}
	ds.Todos = todos
	return l.save(ds)
}

func (l *Local) SaveCategories(_ context.Context, categories []core.Category) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, cat := range categories {
		if err := cat.Validate(); err != nil {
			return err
		}
	}

	ds, err := l.load()
	if err != nil {
		return err
	}
	ds.Categories = categories
	return l.save(ds)
}

// Categories reads only the category settings. The remote store uses this
// to merge local settings into fetched data.
func (l *Local) Categories(_ context.Context) ([]core.Category, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ds, err := l.load()
	if err != nil {
		return nil, err
	}
	return ds.Categories, nil
}

// load reads the data file. A missing file is a fresh install: an empty
// dataset seeded with the default categories.
func (l *Local) load() (core.Dataset, error) {
	raw, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		ds := core.Dataset{Categories: core.DefaultCategories()}
		ds.Normalize()
		return ds, nil
	}
	if err != nil {
		return core.Dataset{}, fmt.Errorf("read data file: %w", err)
	}

	var ds core.Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return core.Dataset{}, fmt.Errorf("parse data file %s: %w", l.path, err)
	}
	ds.Normalize()
	return ds, nil
}

func (l *Local) save(ds core.Dataset) error {
	ds.Normalize()
	raw, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tally-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace data file: %w", err)
	}
	return nil
}
