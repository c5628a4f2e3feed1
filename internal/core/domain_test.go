package core

import (
	"strings"
	"testing"
)

func TestTxTypeIsValid(t *testing.T) {
	cases := []struct {
		typ TxType
		ok  bool
	}{
		{Income, true},
		{Expense, true},
		{TxType(""), false},
		{TxType("transfer"), false},
	}
	for _, tc := range cases {
		if got := tc.typ.IsValid(); got != tc.ok {
			t.Fatalf("%q: expected %v, got %v", tc.typ, tc.ok, got)
		}
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		ID:       "tx-1",
		Date:     NewDate(2025, 3, 9),
		Type:     Expense,
		Category: "groceries",
		Amount:   Money{Cents: 1250},
		Note:     "weekly shop",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{ID: "", Date: NewDate(2025, 3, 9), Type: Expense, Category: "c", Amount: Money{Cents: 1}},
		{ID: "t", Date: Date{}, Type: Expense, Category: "c", Amount: Money{Cents: 1}},
		{ID: "t", Date: NewDate(2025, 3, 9), Type: "transfer", Category: "c", Amount: Money{Cents: 1}},
		{ID: "t", Date: NewDate(2025, 3, 9), Type: Expense, Category: "  ", Amount: Money{Cents: 1}},
		{ID: "t", Date: NewDate(2025, 3, 9), Type: Expense, Category: "c", Amount: Money{Cents: 0}},
		{ID: "t", Date: NewDate(2025, 3, 9), Type: Expense, Category: "c", Amount: Money{Cents: 1}, Note: strings.Repeat("x", 201)},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestTodoValidate(t *testing.T) {
	if err := (Todo{ID: "td-1", Text: "buy milk"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Todo{
		{ID: "", Text: "a"},
		{ID: "td", Text: "   "},
		{ID: "td", Text: strings.Repeat("x", 201)},
	}
	for i, td := range bads {
		if err := td.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestCategoryValidate(t *testing.T) {
	if err := (Category{ID: "groceries", Label: "Groceries"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Category{ID: "", Label: "x"}).Validate(); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if err := (Category{ID: "x", Label: " "}).Validate(); err == nil {
		t.Fatalf("expected error for empty label")
	}
}

func TestDatasetNormalize(t *testing.T) {
	var d Dataset
	d.Normalize()
	if d.Transactions == nil || d.Todos == nil || d.Categories == nil {
		t.Fatalf("expected non-nil slices, got %+v", d)
	}
}
