// Package store is the data service the app talks to. It has two modes:
// when a remote sync endpoint is configured every read and mutation goes
// over HTTP, otherwise the whole dataset lives in one local JSON file.
package store

import (
	"context"

	"tally/internal/config"
	"tally/internal/core"
)

// Store reads and mutates the dataset. Add operations return the stored
// record so callers see server-assigned ids and timestamps.
type Store interface {
	Fetch(ctx context.Context) (core.Dataset, error)
	AddTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	AddTodo(ctx context.Context, todo core.Todo) (core.Todo, error)
	ToggleTodo(ctx context.Context, id string, done bool) error
	DeleteTodo(ctx context.Context, id string) error
	ReorderTodos(ctx context.Context, todos []core.Todo) error
	SaveCategories(ctx context.Context, categories []core.Category) error
}

// New selects the storage mode from the configuration. The local file is
// always created: in remote mode it still holds the category settings,
// which never leave the device.
func New(cfg config.Config) Store {
	local := NewLocal(cfg.DataFile)
	if cfg.RemoteURL == "" {
		return local
	}
	return NewRemote(cfg.RemoteURL, local)
}
