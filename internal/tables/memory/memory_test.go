package memory

import (
	"context"
	"errors"
	"testing"

	"tally/internal/core"
)

func testTx(id string, day int, cents int64) core.Transaction {
	return core.Transaction{
		ID:       id,
		Date:     core.NewDate(2025, 3, day),
		Type:     core.Expense,
		Category: "groceries",
		Amount:   core.Money{Cents: cents},
	}
}

func TestAppendThenListTransactions(t *testing.T) {
	s := New()
	ctx := context.Background()

	tx := testTx("tx-1", 9, 1250)
	if err := s.AppendTransaction(ctx, tx); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.ListTransactions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "tx-1" || got[0].Amount.Cents != 1250 {
		t.Fatalf("unexpected transactions: %+v", got)
	}

	if err := s.AppendTransaction(ctx, core.Transaction{ID: "bad"}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestDeleteTransactionRemovesOnlyTarget(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		if err := s.AppendTransaction(ctx, testTx(id, i+1, 100)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	if err := s.DeleteTransaction(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := s.ListTransactions(ctx)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("unexpected survivors: %+v", got)
	}

	if err := s.DeleteTransaction(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetTodoDoneIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.AppendTodo(ctx, core.Todo{ID: "td-1", Text: "buy milk"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.SetTodoDone(ctx, "td-1", true); err != nil {
			t.Fatalf("set done (round %d): %v", i, err)
		}
		got, _ := s.ListTodos(ctx)
		if !got[0].Done {
			t.Fatalf("round %d: expected done", i)
		}
	}

	if err := s.SetTodoDone(ctx, "missing", true); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReplaceTodosKeepsExactSequence(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.AppendTodo(ctx, core.Todo{ID: id, Text: "item " + id}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	reordered := []core.Todo{
		{ID: "c", Text: "item c", Due: core.NewDate(2025, 3, 10)},
		{ID: "a", Text: "item a"},
		{ID: "b", Text: "item b", Done: true},
	}
	if err := s.ReplaceTodos(ctx, reordered); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, _ := s.ListTodos(ctx)
	if len(got) != 3 {
		t.Fatalf("expected 3 todos, got %d", len(got))
	}
	for i, want := range []string{"c", "a", "b"} {
		if got[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, got[i].ID)
		}
	}
	if got[0].Due.String() != "2025-03-10" {
		t.Fatalf("due date lost in replace: %+v", got[0])
	}
	if !got[2].Done {
		t.Fatalf("done flag lost in replace: %+v", got[2])
	}

	if err := s.ReplaceTodos(ctx, []core.Todo{{ID: "", Text: "x"}}); err == nil {
		t.Fatalf("expected validation error")
	}
}
