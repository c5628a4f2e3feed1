// Package sqlite backs the sync endpoint's tables with an embedded SQLite
// database. Todo order lives in a position column; reordering rewrites the
// whole table inside one transaction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tally/internal/core"
	"tally/internal/tables"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

var _ tables.Tables = (*Store)(nil)

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, type, category, amount_cents, note FROM transactions ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			tx      core.Transaction
			rawDate string
			rawType string
		)
		if err := rows.Scan(&tx.ID, &rawDate, &rawType, &tx.Category, &tx.Amount.Cents, &tx.Note); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		date, err := core.ParseDate(rawDate)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		tx.Date = date
		tx.Type = core.TxType(rawType)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (s *Store) AppendTransaction(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, date, type, category, amount_cents, note) VALUES (?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Date.String(), string(tx.Type), tx.Category, tx.Amount.Cents, tx.Note)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "transaction saved to sqlite",
		"id", tx.ID,
		"type", tx.Type,
		"amount_cents", tx.Amount.Cents,
		"date", tx.Date.String())
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) ListTodos(ctx context.Context) ([]core.Todo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, done, created_at, due FROM todos ORDER BY position, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	var out []core.Todo
	for rows.Next() {
		var (
			td         core.Todo
			done       int64
			rawCreated string
			rawDue     string
		)
		if err := rows.Scan(&td.ID, &td.Text, &done, &rawCreated, &rawDue); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		td.Done = done != 0
		if rawCreated != "" {
			created, err := time.Parse(time.RFC3339, rawCreated)
			if err != nil {
				return nil, fmt.Errorf("todo %s created_at: %w", td.ID, err)
			}
			td.CreatedAt = created
		}
		due, err := core.ParseDate(rawDue)
		if err != nil {
			return nil, fmt.Errorf("todo %s: %w", td.ID, err)
		}
		td.Due = due
		out = append(out, td)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	return out, nil
}

func (s *Store) AppendTodo(ctx context.Context, td core.Todo) error {
	if err := td.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO todos (id, text, done, created_at, due, position)
		 VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM todos))`,
		td.ID, td.Text, boolToInt(td.Done), formatCreated(td.CreatedAt), td.Due.String())
	if err != nil {
		return fmt.Errorf("insert todo: %w", err)
	}

	slog.InfoContext(ctx, "todo saved to sqlite", "id", td.ID)
	return nil
}

func (s *Store) SetTodoDone(ctx context.Context, id string, done bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE todos SET done = ? WHERE id = ?`, boolToInt(done), id)
	if err != nil {
		return fmt.Errorf("update todo: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update todo: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("todo %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteTodo(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("todo %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) ReplaceTodos(ctx context.Context, todos []core.Todo) error {
	for _, td := range todos {
		if err := td.Validate(); err != nil {
			return err
		}
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace todos: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.ExecContext(ctx, `DELETE FROM todos`); err != nil {
		return fmt.Errorf("clear todos: %w", err)
	}
	for i, td := range todos {
		if _, err := dbTx.ExecContext(ctx,
			`INSERT INTO todos (id, text, done, created_at, due, position) VALUES (?, ?, ?, ?, ?, ?)`,
			td.ID, td.Text, boolToInt(td.Done), formatCreated(td.CreatedAt), td.Due.String(), i); err != nil {
			return fmt.Errorf("insert todo %s: %w", td.ID, err)
		}
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit replace todos: %w", err)
	}

	slog.InfoContext(ctx, "todos replaced in sqlite", "count", len(todos))
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func formatCreated(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
