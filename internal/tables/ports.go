// Package tables defines the persistence ports of the sync endpoint: two
// row tables with a fixed column layout.
//
// Transactions: id | date | type | category | amount | note
// Todos:        id | text | done | created  | due
//
// A todo's position is its row order. Reordering replaces the whole todo
// table with the sequence given.
package tables

import (
	"context"

	"tally/internal/core"
)

type (
	TransactionTable interface {
		ListTransactions(ctx context.Context) ([]core.Transaction, error)
		AppendTransaction(ctx context.Context, tx core.Transaction) error
		DeleteTransaction(ctx context.Context, id string) error
	}

	TodoTable interface {
		ListTodos(ctx context.Context) ([]core.Todo, error)
		AppendTodo(ctx context.Context, td core.Todo) error
		// SetTodoDone writes the given value regardless of the current one,
		// so repeating a toggle is a no-op.
		SetTodoDone(ctx context.Context, id string, done bool) error
		DeleteTodo(ctx context.Context, id string) error
		// ReplaceTodos overwrites the todo table with exactly this sequence.
		ReplaceTodos(ctx context.Context, todos []core.Todo) error
	}

	// Tables is the full table store behind the sync endpoint.
	Tables interface {
		TransactionTable
		TodoTable
	}
)
