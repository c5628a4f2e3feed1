package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tally/internal/core"
	"tally/internal/tables"
	"tally/internal/tables/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// wireResponse keeps Data raw so tests can decode it per action.
type wireResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type recordedEvent struct {
	entity, op, id string
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEvents) PublishMutation(_ context.Context, entity, op, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{entity, op, id})
	return nil
}

func newTestServer(t *testing.T, backend tables.Tables, events EventPublisher) *Server {
	t.Helper()
	if backend == nil {
		backend = memory.New()
	}
	return NewServer(Options{Tables: backend, Events: events, CORSOrigins: []string{"*"}})
}

func post(t *testing.T, srv *Server, action Action, payload any) (wireResponse, int) {
	t.Helper()
	req := map[string]any{"action": action}
	if payload != nil {
		req["payload"] = payload
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	var resp wireResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return resp, w.Code
}

func fetchData(t *testing.T, srv *Server) core.Dataset {
	t.Helper()
	resp, status := post(t, srv, ActionGetData, nil)
	if status != http.StatusOK || !resp.Success {
		t.Fatalf("GET_DATA: status=%d success=%v message=%q", status, resp.Success, resp.Message)
	}
	var data core.Dataset
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode dataset: %v", err)
	}
	return data
}

func TestAddTransactionAndGetData(t *testing.T) {
	events := &fakeEvents{}
	srv := newTestServer(t, nil, events)

	tx := core.Transaction{
		ID:       "tx-1",
		Date:     core.NewDate(2025, 3, 5),
		Type:     core.Expense,
		Category: "groceries",
		Amount:   core.Money{Cents: 1250},
		Note:     "weekly shop",
	}
	resp, status := post(t, srv, ActionAddTransaction, tx)
	if status != http.StatusOK || !resp.Success {
		t.Fatalf("add: status=%d success=%v message=%q", status, resp.Success, resp.Message)
	}

	data := fetchData(t, srv)
	if len(data.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(data.Transactions))
	}
	got := data.Transactions[0]
	if got.ID != tx.ID || got.Category != tx.Category || got.Amount != tx.Amount || got.Note != tx.Note {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if data.Todos == nil || data.Categories == nil {
		t.Error("dataset slices should be normalized, not nil")
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.events) != 1 || events.events[0] != (recordedEvent{"transaction", "added", "tx-1"}) {
		t.Errorf("unexpected events: %+v", events.events)
	}
}

func TestAddAssignsIDWhenMissing(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	resp, _ := post(t, srv, ActionAddTransaction, map[string]any{
		"date":     "2025-03-05",
		"type":     "income",
		"category": "salary",
		"amount":   250000,
	})
	if !resp.Success {
		t.Fatalf("add failed: %s", resp.Message)
	}
	var tx core.Transaction
	if err := json.Unmarshal(resp.Data, &tx); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	if tx.ID == "" {
		t.Error("expected a generated transaction id")
	}

	resp, _ = post(t, srv, ActionAddTodo, map[string]any{"text": "water plants"})
	if !resp.Success {
		t.Fatalf("add todo failed: %s", resp.Message)
	}
	var todo core.Todo
	if err := json.Unmarshal(resp.Data, &todo); err != nil {
		t.Fatalf("decode todo: %v", err)
	}
	if todo.ID == "" {
		t.Error("expected a generated todo id")
	}
	if todo.CreatedAt.IsZero() {
		t.Error("expected createdAt to be stamped")
	}
}

func TestAddTransactionRejectsInvalid(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	resp, status := post(t, srv, ActionAddTransaction, map[string]any{
		"date":     "2025-03-05",
		"type":     "transfer",
		"category": "misc",
		"amount":   100,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if resp.Success {
		t.Fatal("expected failure for invalid type")
	}
	if resp.Message == "" {
		t.Error("expected an error message")
	}

	if data := fetchData(t, srv); len(data.Transactions) != 0 {
		t.Errorf("invalid transaction must not be stored, got %d", len(data.Transactions))
	}
}

func TestDeleteTransaction(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	post(t, srv, ActionAddTransaction, core.Transaction{
		ID:       "tx-1",
		Date:     core.NewDate(2025, 3, 5),
		Type:     core.Income,
		Category: "salary",
		Amount:   core.Money{Cents: 100},
	})

	resp, status := post(t, srv, ActionDeleteTransaction, DeletePayload{ID: "tx-1"})
	if status != http.StatusOK || !resp.Success {
		t.Fatalf("delete: status=%d success=%v message=%q", status, resp.Success, resp.Message)
	}
	if data := fetchData(t, srv); len(data.Transactions) != 0 {
		t.Errorf("expected empty table, got %d rows", len(data.Transactions))
	}

	resp, status = post(t, srv, ActionDeleteTransaction, DeletePayload{ID: "tx-1"})
	if status != http.StatusOK {
		t.Fatalf("missing id should stay a domain failure, got status %d", status)
	}
	if resp.Success {
		t.Error("expected failure for missing id")
	}
	if !strings.Contains(resp.Message, "not found") {
		t.Errorf("message = %q, want not found", resp.Message)
	}
}

func TestToggleTodoIsIdempotent(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	post(t, srv, ActionAddTodo, core.Todo{ID: "td-1", Text: "call plumber"})

	for i := 0; i < 2; i++ {
		resp, _ := post(t, srv, ActionToggleTodo, TogglePayload{ID: "td-1", Done: true})
		if !resp.Success {
			t.Fatalf("toggle %d failed: %s", i, resp.Message)
		}
	}

	data := fetchData(t, srv)
	if len(data.Todos) != 1 || !data.Todos[0].Done {
		t.Errorf("expected done todo, got %+v", data.Todos)
	}
}

func TestReorderTodosOverwritesSequence(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	for _, text := range []string{"alpha", "beta", "gamma"} {
		resp, _ := post(t, srv, ActionAddTodo, core.Todo{ID: "td-" + text, Text: text})
		if !resp.Success {
			t.Fatalf("add %s: %s", text, resp.Message)
		}
	}

	reordered := []core.Todo{
		{ID: "td-gamma", Text: "gamma", Due: core.NewDate(2025, 4, 1)},
		{ID: "td-alpha", Text: "alpha", Done: true},
		{ID: "td-beta", Text: "beta"},
	}
	resp, _ := post(t, srv, ActionReorderTodos, ReorderPayload{Todos: reordered})
	if !resp.Success {
		t.Fatalf("reorder failed: %s", resp.Message)
	}

	data := fetchData(t, srv)
	if len(data.Todos) != 3 {
		t.Fatalf("expected 3 todos, got %d", len(data.Todos))
	}
	for i, want := range []string{"td-gamma", "td-alpha", "td-beta"} {
		if data.Todos[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, data.Todos[i].ID, want)
		}
	}
	if data.Todos[0].Due.IsZero() {
		t.Error("due date assigned during reorder was lost")
	}
	if !data.Todos[1].Done {
		t.Error("done flag assigned during reorder was lost")
	}
}

func TestUnknownAction(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	resp, status := post(t, srv, Action("RENAME_TODO"), map[string]any{"id": "x"})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if resp.Success {
		t.Fatal("expected failure for unknown action")
	}
	if !strings.Contains(resp.Message, "unknown action") {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var resp wireResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success {
		t.Error("expected success=false")
	}
}

func TestGetDataViaQueryParameter(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	post(t, srv, ActionAddTodo, core.Todo{ID: "td-1", Text: "read"})

	r := httptest.NewRequest(http.MethodGet, "/?action=GET_DATA", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp wireResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got message %q", resp.Message)
	}

	r = httptest.NewRequest(http.MethodGet, "/?action=ADD_TODO", nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success {
		t.Error("mutations must not be reachable via GET")
	}
}

// overlapTables trips a flag when two requests reach the backend at the
// same time.
type overlapTables struct {
	*memory.Store
	inFlight   atomic.Int32
	overlapped atomic.Bool
}

func (o *overlapTables) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	if o.inFlight.Add(1) > 1 {
		o.overlapped.Store(true)
	}
	time.Sleep(5 * time.Millisecond)
	o.inFlight.Add(-1)
	return o.Store.ListTransactions(ctx)
}

func TestGlobalLockSerializesRequests(t *testing.T) {
	backend := &overlapTables{Store: memory.New()}
	srv := newTestServer(t, backend, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"action":%q}`, ActionGetData)
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, r)
			if w.Code != http.StatusOK {
				t.Errorf("request %d: status %d", n, w.Code)
			}
		}(i)
	}
	wg.Wait()

	if backend.overlapped.Load() {
		t.Error("two requests reached the backend concurrently")
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
