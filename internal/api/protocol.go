// Package api implements the sync endpoint: a single-URL action dispatcher
// over JSON, serialized by one global lock.
package api

import (
	"encoding/json"
	"fmt"

	"tally/internal/core"
)

// Action selects the operation a request performs.
type Action string

const (
	ActionGetData           Action = "GET_DATA"
	ActionAddTransaction    Action = "ADD_TRANSACTION"
	ActionDeleteTransaction Action = "DELETE_TRANSACTION"
	ActionAddTodo           Action = "ADD_TODO"
	ActionToggleTodo        Action = "TOGGLE_TODO"
	ActionDeleteTodo        Action = "DELETE_TODO"
	ActionReorderTodos      Action = "REORDER_TODOS"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionGetData, ActionAddTransaction, ActionDeleteTransaction,
		ActionAddTodo, ActionToggleTodo, ActionDeleteTodo, ActionReorderTodos:
		return true
	}
	return false
}

// Request is the wire format of every call: an action plus its payload.
type Request struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodePayload unmarshals the request payload into v.
func (r Request) DecodePayload(v any) error {
	if len(r.Payload) == 0 {
		return fmt.Errorf("action %s: missing payload", r.Action)
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("action %s: invalid payload: %w", r.Action, err)
	}
	return nil
}

// Response is the wire format of every reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func OK(data any) Response {
	return Response{Success: true, Data: data}
}

func Fail(message string) Response {
	return Response{Success: false, Message: message}
}

// DeletePayload targets a record by id (DELETE_TRANSACTION, DELETE_TODO).
type DeletePayload struct {
	ID string `json:"id"`
}

// TogglePayload carries the explicit desired done value, so resending the
// same toggle is a no-op.
type TogglePayload struct {
	ID   string `json:"id"`
	Done bool   `json:"done"`
}

// ReorderPayload carries the full todo sequence. The table is overwritten
// with exactly these rows, which is also how due-date reassignment and any
// other todo edit travels.
type ReorderPayload struct {
	Todos []core.Todo `json:"todos"`
}
