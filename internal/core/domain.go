package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TxType = "income"
	Expense TxType = "expense"
)

// maxTextLen caps free-text fields (notes, todo text).
const maxTextLen = 200

type (
	TxType string

	// Transaction is a single dated income or expense entry. Entries are
	// immutable once recorded; the only mutation is deletion.
	Transaction struct {
		ID       string `json:"id"`
		Date     Date   `json:"date"`
		Type     TxType `json:"type"`
		Category string `json:"category"`
		Amount   Money  `json:"amount"`
		Note     string `json:"note,omitempty"`
	}

	// Todo is one item of the to-do list. Due is optional; the position of
	// a todo is its index in the stored sequence.
	Todo struct {
		ID        string    `json:"id"`
		Text      string    `json:"text"`
		Done      bool      `json:"done"`
		CreatedAt time.Time `json:"createdAt"`
		Due       Date      `json:"due"`
	}

	// Category labels transactions. Deleting a category leaves the
	// transactions that reference it untouched.
	Category struct {
		ID    string `json:"id"`
		Label string `json:"label"`
		Icon  string `json:"icon,omitempty"`
		Color string `json:"color,omitempty"`
	}

	// Dataset is the whole application state: the shape of the local data
	// file and of a GET_DATA response.
	Dataset struct {
		Transactions []Transaction `json:"transactions"`
		Todos        []Todo        `json:"todos"`
		Categories   []Category    `json:"categories"`
	}
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidType   = errors.New("invalid transaction type")
	ErrEmptyCategory = errors.New("empty category")
	ErrEmptyText     = errors.New("empty text")
	ErrNotFound      = errors.New("not found")
)

func (t TxType) IsValid() bool {
	return t == Income || t == Expense
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("empty transaction id")
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(t.Note) > maxTextLen {
		return errors.New("note too long (max 200 characters)")
	}
	return nil
}

func (td Todo) Validate() error {
	if strings.TrimSpace(td.ID) == "" {
		return errors.New("empty todo id")
	}
	if len(strings.TrimSpace(td.Text)) == 0 {
		return ErrEmptyText
	}
	if len(td.Text) > maxTextLen {
		return errors.New("text too long (max 200 characters)")
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("empty category id")
	}
	if strings.TrimSpace(c.Label) == "" {
		return errors.New("empty category label")
	}
	return nil
}

// Normalize replaces nil slices so the dataset always encodes as JSON
// arrays, never null.
func (d *Dataset) Normalize() {
	if d.Transactions == nil {
		d.Transactions = []Transaction{}
	}
	if d.Todos == nil {
		d.Todos = []Todo{}
	}
	if d.Categories == nil {
		d.Categories = []Category{}
	}
}

// DefaultCategories seeds a dataset that has none yet.
func DefaultCategories() []Category {
	return []Category{
		{ID: "groceries", Label: "Groceries", Icon: "🛒", Color: "#4caf50"},
		{ID: "rent", Label: "Rent", Icon: "🏠", Color: "#2196f3"},
		{ID: "transport", Label: "Transport", Icon: "🚌", Color: "#ff9800"},
		{ID: "leisure", Label: "Leisure", Icon: "🎬", Color: "#9c27b0"},
		{ID: "health", Label: "Health", Icon: "💊", Color: "#f44336"},
		{ID: "salary", Label: "Salary", Icon: "💼", Color: "#607d8b"},
		{ID: "other", Label: "Other", Icon: "📦", Color: "#795548"},
	}
}
