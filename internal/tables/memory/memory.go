// Package memory keeps the two tables in process memory. Used by tests and
// throwaway runs of the sync endpoint.
package memory

import (
	"context"
	"fmt"
	"sync"

	"tally/internal/core"
	"tally/internal/tables"
)

type Store struct {
	mu    sync.Mutex
	txs   []core.Transaction
	todos []core.Todo
}

var _ tables.Tables = (*Store)(nil)

func New() *Store {
	return &Store{}
}

func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.txs...), nil
}

func (s *Store) AppendTransaction(_ context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, tx)
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, tx := range s.txs {
		if tx.ID == id {
			s.txs = append(s.txs[:i], s.txs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
}

func (s *Store) ListTodos(_ context.Context) ([]core.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Todo(nil), s.todos...), nil
}

func (s *Store) AppendTodo(_ context.Context, td core.Todo) error {
	if err := td.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todos = append(s.todos, td)
	return nil
}

func (s *Store) SetTodoDone(_ context.Context, id string, done bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.todos {
		if s.todos[i].ID == id {
			s.todos[i].Done = done
			return nil
		}
	}
	return fmt.Errorf("todo %s: %w", id, core.ErrNotFound)
}

func (s *Store) DeleteTodo(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, td := range s.todos {
		if td.ID == id {
			s.todos = append(s.todos[:i], s.todos[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("todo %s: %w", id, core.ErrNotFound)
}

func (s *Store) ReplaceTodos(_ context.Context, todos []core.Todo) error {
	for _, td := range todos {
		if err := td.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todos = append([]core.Todo(nil), todos...)
	return nil
}
