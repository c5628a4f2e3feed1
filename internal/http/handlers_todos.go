package http

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"tally/internal/core"
)

func (s *Server) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	text := sanitizeInput(r.Form.Get("text"))
	if text == "" {
		writeError(w, http.StatusUnprocessableEntity, "Missing todo text")
		return
	}

	due, err := core.ParseDate(strings.TrimSpace(r.Form.Get("due")))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid due date")
		return
	}

	stored, err := s.store.AddTodo(r.Context(), core.Todo{Text: text, Due: due})
	if err != nil {
		slog.ErrorContext(r.Context(), "todo append error", "error", err, "text", text)
		writeError(w, http.StatusInternalServerError, "Could not save the todo")
		return
	}

	s.invalidateData()
	w.Header().Set("HX-Trigger", "tally:todos")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Added: ` + template.HTMLEscapeString(stored.Text) + `</div>`))
}

func (s *Server) handleToggleTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := s.todoMutationID(w, r)
	if !ok {
		return
	}

	// The toggle carries the explicit target value, so a stale replay of
	// the same request cannot flip the state back.
	done := parseDone(r.Form.Get("done"))
	if err := s.store.ToggleTodo(r.Context(), id, done); err != nil {
		status, msg := deleteFailure(err)
		slog.ErrorContext(r.Context(), "todo toggle error", "error", err, "id", id)
		writeError(w, status, msg)
		return
	}

	s.finishTodoMutation(w, r)
}

func (s *Server) handleDeleteTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := s.todoMutationID(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteTodo(r.Context(), id); err != nil {
		status, msg := deleteFailure(err)
		slog.ErrorContext(r.Context(), "todo delete error", "error", err, "id", id)
		writeError(w, status, msg)
		return
	}

	s.finishTodoMutation(w, r)
}

// handleTodoDue assigns or clears a due date. The edit travels as a full
// reorder: the stored sequence is rewritten with the one todo updated.
func (s *Server) handleTodoDue(w http.ResponseWriter, r *http.Request) {
	id, ok := s.todoMutationID(w, r)
	if !ok {
		return
	}

	due, err := core.ParseDate(strings.TrimSpace(r.Form.Get("due")))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid due date")
		return
	}

	ds, err := s.getDataset(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "todo due error", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "Could not load todos")
		return
	}

	seq := make([]core.Todo, len(ds.Todos))
	copy(seq, ds.Todos)
	found := false
	for i := range seq {
		if seq[i].ID == id {
			seq[i].Due = due
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}

	if err := s.store.ReorderTodos(r.Context(), seq); err != nil {
		slog.ErrorContext(r.Context(), "todo due reorder error", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "Could not update the due date")
		return
	}

	s.finishTodoMutation(w, r)
}

// handleMoveTodo shifts one todo a single position up or down.
func (s *Server) handleMoveTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := s.todoMutationID(w, r)
	if !ok {
		return
	}

	dir := r.Form.Get("dir")
	if dir != "up" && dir != "down" {
		writeError(w, http.StatusUnprocessableEntity, "Invalid direction")
		return
	}

	ds, err := s.getDataset(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "todo move error", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "Could not load todos")
		return
	}

	seq := make([]core.Todo, len(ds.Todos))
	copy(seq, ds.Todos)
	idx := -1
	for i := range seq {
		if seq[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}

	swap := idx - 1
	if dir == "down" {
		swap = idx + 1
	}
	if swap >= 0 && swap < len(seq) {
		seq[idx], seq[swap] = seq[swap], seq[idx]
		if err := s.store.ReorderTodos(r.Context(), seq); err != nil {
			slog.ErrorContext(r.Context(), "todo move reorder error", "error", err, "id", id, "dir", dir)
			writeError(w, http.StatusInternalServerError, "Could not reorder todos")
			return
		}
	}

	s.finishTodoMutation(w, r)
}

// handleReorderTodos accepts the full id sequence (repeated "id" form
// fields, as sent by the drag-and-drop script) and overwrites the stored
// order with it.
func (s *Server) handleReorderTodos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	ids := r.Form["id"]
	if len(ids) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "Missing todo order")
		return
	}

	ds, err := s.getDataset(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "todo reorder error", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not load todos")
		return
	}

	seq, err := reorderByIDs(ds.Todos, ids)
	if err != nil {
		slog.WarnContext(r.Context(), "todo reorder rejected", "error", err)
		writeError(w, http.StatusUnprocessableEntity, "Stale todo order, refresh and try again")
		return
	}

	if err := s.store.ReorderTodos(r.Context(), seq); err != nil {
		slog.ErrorContext(r.Context(), "todo reorder store error", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not reorder todos")
		return
	}

	s.finishTodoMutation(w, r)
}

// todoMutationID does the shared method/form/id plumbing of the todo
// mutation handlers.
func (s *Server) todoMutationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return "", false
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return "", false
	}
	id := sanitizeInput(r.Form.Get("id"))
	if id == "" {
		writeError(w, http.StatusUnprocessableEntity, "Missing todo id")
		return "", false
	}
	return id, true
}

// finishTodoMutation invalidates the cache and re-renders the todo list so
// HTMX can swap it in place.
func (s *Server) finishTodoMutation(w http.ResponseWriter, r *http.Request) {
	s.invalidateData()
	s.handleTodoList(w, r)
}

// reorderByIDs arranges todos in the order given by ids. Every stored todo
// must appear exactly once, otherwise the client worked from a stale list.
func reorderByIDs(todos []core.Todo, ids []string) ([]core.Todo, error) {
	if len(ids) != len(todos) {
		return nil, fmt.Errorf("order has %d ids, store has %d todos", len(ids), len(todos))
	}
	byID := make(map[string]core.Todo, len(todos))
	for _, todo := range todos {
		byID[todo.ID] = todo
	}
	seq := make([]core.Todo, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		todo, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown todo id %s", id)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate todo id %s", id)
		}
		seen[id] = true
		seq = append(seq, todo)
	}
	return seq, nil
}

func parseDone(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "on", "1":
		return true
	}
	return false
}

// handleTodoList renders the ordered todo list partial.
func (s *Server) handleTodoList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	ds, err := s.getDataset(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "todo list error", "error", err)
		_, _ = w.Write([]byte(`<section id="todo-list" class="todo-list"><div class="placeholder">Could not load todos</div></section>`))
		return
	}

	if s.templates == nil {
		_, _ = w.Write([]byte(`<section id="todo-list" class="todo-list"><div class="placeholder">Todos: ` + fmt.Sprint(len(ds.Todos)) + `</div></section>`))
		return
	}

	type todoRow struct {
		ID       string
		Text     string
		Done     bool
		Due      string
		Overdue  bool
		Group    string
		NewGroup bool
		First    bool
		Last     bool
	}

	today := core.Today()
	data := struct {
		Count     int
		OpenCount int
		Rows      []todoRow
	}{Count: len(ds.Todos)}

	prevGroup := ""
	for i, todo := range ds.Todos {
		if !todo.Done {
			data.OpenCount++
		}
		group := dueGroupLabel(todo.Due, today)
		data.Rows = append(data.Rows, todoRow{
			ID:       todo.ID,
			Text:     todo.Text,
			Done:     todo.Done,
			Due:      todo.Due.String(),
			Overdue:  !todo.Done && !todo.Due.IsZero() && todo.Due.Before(today.Time),
			Group:    group,
			NewGroup: i == 0 || group != prevGroup,
			First:    i == 0,
			Last:     i == len(ds.Todos)-1,
		})
		prevGroup = group
	}

	if err := s.templates.ExecuteTemplate(w, "todo_list.html", data); err != nil {
		slog.ErrorContext(r.Context(), "template execution error", "error", err, "template", "todo_list.html")
		_, _ = w.Write([]byte(`<section id="todo-list" class="todo-list"><div class="placeholder">Could not render todos</div></section>`))
		return
	}
}

// dueGroupLabel names the date group a row belongs to. Rows keep their
// stored order; a header appears wherever the group changes.
func dueGroupLabel(due core.Date, today core.Date) string {
	tomorrow := today.Time.AddDate(0, 0, 1)
	switch {
	case due.IsZero():
		return "No date"
	case due.Before(today.Time):
		return "Overdue"
	case due.Equal(today.Time):
		return "Today"
	case due.Equal(tomorrow):
		return "Tomorrow"
	case due.Year() == today.Year():
		return due.Format("Mon Jan 2")
	default:
		return due.Format("Jan 2 2006")
	}
}
