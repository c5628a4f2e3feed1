package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"tally/internal/core"
)

// fakeStore is an in-memory Store for handler tests. It mimics the real
// stores: adds assign ids, deletes of unknown ids report core.ErrNotFound.
type fakeStore struct {
	mu       sync.Mutex
	ds       core.Dataset
	nextID   int
	fetchErr error
	saveErr  error
}

func newFakeStore() *fakeStore {
	fs := &fakeStore{ds: core.Dataset{Categories: core.DefaultCategories()}}
	fs.ds.Normalize()
	return fs
}

func (f *fakeStore) Fetch(ctx context.Context) (core.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return core.Dataset{}, f.fetchErr
	}
	return f.ds, nil
}

func (f *fakeStore) AddTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	tx.ID = fmt.Sprintf("tx-%d", f.nextID)
	f.ds.Transactions = append(f.ds.Transactions, tx)
	return tx, nil
}

func (f *fakeStore) DeleteTransaction(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, tx := range f.ds.Transactions {
		if tx.ID == id {
			f.ds.Transactions = append(f.ds.Transactions[:i], f.ds.Transactions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
}

func (f *fakeStore) AddTodo(ctx context.Context, todo core.Todo) (core.Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	todo.ID = fmt.Sprintf("todo-%d", f.nextID)
	f.ds.Todos = append(f.ds.Todos, todo)
	return todo, nil
}

func (f *fakeStore) ToggleTodo(ctx context.Context, id string, done bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.ds.Todos {
		if f.ds.Todos[i].ID == id {
			f.ds.Todos[i].Done = done
			return nil
		}
	}
	return fmt.Errorf("todo %s: %w", id, core.ErrNotFound)
}

func (f *fakeStore) DeleteTodo(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, todo := range f.ds.Todos {
		if todo.ID == id {
			f.ds.Todos = append(f.ds.Todos[:i], f.ds.Todos[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("todo %s: %w", id, core.ErrNotFound)
}

func (f *fakeStore) ReorderTodos(ctx context.Context, todos []core.Todo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ds.Todos = todos
	return nil
}

func (f *fakeStore) SaveCategories(ctx context.Context, categories []core.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.ds.Categories = categories
	return nil
}

func newTestServer(t *testing.T, fs *fakeStore) *Server {
	t.Helper()
	srv := NewServer(Options{
		Addr:         ":0",
		AppTitle:     "Tally",
		BaseCurrency: "EUR",
		Store:        fs,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func postForm(srv *Server, path, form string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestIndexAndHealth(t *testing.T) {
	srv := newTestServer(t, newFakeStore())

	rr := get(srv, "/")
	if rr.Code != 200 {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Tally") {
		t.Fatalf("index body missing title")
	}
	if !strings.Contains(body, "Groceries") {
		t.Fatalf("index body missing default categories")
	}
	if !strings.Contains(body, "month-overview-slot") || !strings.Contains(body, "todo-list-slot") {
		t.Fatalf("index body missing partial slots")
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := get(srv, path)
		if rr.Code != 200 {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestIndexUnknownPathIs404(t *testing.T) {
	srv := newTestServer(t, newFakeStore())
	rr := get(srv, "/nope")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestIndexRendersWhenStoreIsDown(t *testing.T) {
	fs := newFakeStore()
	fs.fetchErr = fmt.Errorf("endpoint unreachable")
	srv := newTestServer(t, fs)

	rr := get(srv, "/")
	if rr.Code != 200 {
		t.Fatalf("expected 200 even when the store errors, got %d", rr.Code)
	}
	// The category picker falls back to the defaults.
	if !strings.Contains(rr.Body.String(), "Groceries") {
		t.Fatalf("expected default categories in fallback render")
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, newFakeStore())
	rr := get(srv, "/")

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rr.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if csp := rr.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "default-src 'self'") {
		t.Errorf("unexpected CSP: %q", csp)
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	srv := newTestServer(t, newFakeStore())

	var last *httptest.ResponseRecorder
	for i := 0; i <= requestsPerMinute; i++ {
		last = postForm(srv, "/todos", "text=task")
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d posts, got %d", requestsPerMinute+1, last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header on 429")
	}

	// Reads stay unthrottled.
	rr := get(srv, "/ui/todos")
	if rr.Code != 200 {
		t.Fatalf("expected GET to bypass the rate limit, got %d", rr.Code)
	}
}

func TestDatasetCacheInvalidation(t *testing.T) {
	fs := newFakeStore()
	srv := newTestServer(t, fs)

	if rr := get(srv, "/ui/todos"); !strings.Contains(rr.Body.String(), "0 open") {
		t.Fatalf("expected empty list first: %s", rr.Body.String())
	}

	if rr := postForm(srv, "/todos", "text=buy+milk"); rr.Code != 200 {
		t.Fatalf("create todo status=%d", rr.Code)
	}

	// The cached dataset was purged, so the next render sees the new todo.
	if rr := get(srv, "/ui/todos"); !strings.Contains(rr.Body.String(), "buy milk") {
		t.Fatalf("expected new todo in list: %s", rr.Body.String())
	}
}
