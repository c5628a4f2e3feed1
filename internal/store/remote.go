package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tally/internal/api"
	"tally/internal/core"
)

// Remote proxies every read and mutation to the sync endpoint. Categories
// are the exception: they are device settings and stay in the local file.
type Remote struct {
	url      string
	client   *http.Client
	settings *Local
}

func NewRemote(url string, settings *Local) *Remote {
	return &Remote{
		url:      url,
		client:   &http.Client{Timeout: 15 * time.Second},
		settings: settings,
	}
}

func (r *Remote) Fetch(ctx context.Context) (core.Dataset, error) {
	var ds core.Dataset
	if err := r.call(ctx, api.ActionGetData, nil, &ds); err != nil {
		return core.Dataset{}, err
	}
	categories, err := r.settings.Categories(ctx)
	if err != nil {
		return core.Dataset{}, err
	}
	ds.Categories = categories
	ds.Normalize()
	return ds, nil
}

func (r *Remote) AddTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	var stored core.Transaction
	if err := r.call(ctx, api.ActionAddTransaction, tx, &stored); err != nil {
		return core.Transaction{}, err
	}
	return stored, nil
}

func (r *Remote) DeleteTransaction(ctx context.Context, id string) error {
	return r.call(ctx, api.ActionDeleteTransaction, api.DeletePayload{ID: id}, nil)
}

func (r *Remote) AddTodo(ctx context.Context, todo core.Todo) (core.Todo, error) {
	var stored core.Todo
	if err := r.call(ctx, api.ActionAddTodo, todo, &stored); err != nil {
		return core.Todo{}, err
	}
	return stored, nil
}

func (r *Remote) ToggleTodo(ctx context.Context, id string, done bool) error {
	return r.call(ctx, api.ActionToggleTodo, api.TogglePayload{ID: id, Done: done}, nil)
}

func (r *Remote) DeleteTodo(ctx context.Context, id string) error {
	return r.call(ctx, api.ActionDeleteTodo, api.DeletePayload{ID: id}, nil)
}

func (r *Remote) ReorderTodos(ctx context.Context, todos []core.Todo) error {
	return r.call(ctx, api.ActionReorderTodos, api.ReorderPayload{Todos: todos}, nil)
}

func (r *Remote) SaveCategories(ctx context.Context, categories []core.Category) error {
	return r.settings.SaveCategories(ctx, categories)
}

// call posts one action request and decodes the response envelope. A reply
// with success=false becomes an error carrying the endpoint's message.
func (r *Remote) call(ctx context.Context, action api.Action, payload any, out any) error {
	req := api.Request{Action: action}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", action, err)
		}
		req.Payload = raw
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", action, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sync endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("sync endpoint: %s replied %s with unreadable body: %w", action, resp.Status, err)
	}
	if !env.Success {
		if env.Message == "" {
			env.Message = resp.Status
		}
		return fmt.Errorf("sync endpoint: %s: %s", action, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("sync endpoint: decode %s data: %w", action, err)
		}
	}
	return nil
}
