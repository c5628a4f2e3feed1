package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/tables"
)

// EventPublisher broadcasts a mutation to interested consumers. Publishing is
// best effort: the mutation has already been committed when it runs.
type EventPublisher interface {
	PublishMutation(ctx context.Context, entity, op, id string) error
}

// Options configures the sync endpoint.
type Options struct {
	Tables      tables.Tables
	Events      EventPublisher
	CORSOrigins []string
}

// Server dispatches JSON action requests against a table backend. A single
// mutex serializes every request, so concurrent clients cannot interleave
// reads and writes.
type Server struct {
	engine *gin.Engine
	tables tables.Tables
	events EventPublisher
	logger *slog.Logger

	mu sync.Mutex
}

func NewServer(opts Options) *Server {
	s := &Server{
		engine: gin.New(),
		tables: opts.Tables,
		events: opts.Events,
		logger: slog.Default(),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestLogger())
	s.engine.Use(cors.New(corsConfig(opts.CORSOrigins)))

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	actions := s.engine.Group("/", s.globalLock())
	actions.POST("", s.handlePost)
	actions.GET("", s.handleGet)

	return s
}

// Handler exposes the engine for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

// globalLock holds one mutex for the whole of every request. Storage calls
// on both tables stay ordered without per-table coordination.
func (s *Server) globalLock() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) handlePost(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Fail("invalid request: "+err.Error()))
		return
	}
	resp, status := s.dispatch(c.Request.Context(), req)
	c.JSON(status, resp)
}

// handleGet serves read-only polling: only GET_DATA is reachable without a
// request body.
func (s *Server) handleGet(c *gin.Context) {
	action := Action(c.Query("action"))
	if action != ActionGetData {
		c.JSON(http.StatusOK, Fail("unsupported action for GET: "+string(action)))
		return
	}
	resp, status := s.dispatch(c.Request.Context(), Request{Action: action})
	c.JSON(status, resp)
}

// dispatch runs one action. Domain failures (unknown action, bad payload,
// missing record) answer 200 with success=false so clients only have the
// envelope to interpret; storage failures answer 500.
func (s *Server) dispatch(ctx context.Context, req Request) (Response, int) {
	switch req.Action {
	case ActionGetData:
		return s.getData(ctx)
	case ActionAddTransaction:
		return s.addTransaction(ctx, req)
	case ActionDeleteTransaction:
		return s.deleteTransaction(ctx, req)
	case ActionAddTodo:
		return s.addTodo(ctx, req)
	case ActionToggleTodo:
		return s.toggleTodo(ctx, req)
	case ActionDeleteTodo:
		return s.deleteTodo(ctx, req)
	case ActionReorderTodos:
		return s.reorderTodos(ctx, req)
	default:
		return Fail("unknown action: " + string(req.Action)), http.StatusOK
	}
}

func (s *Server) getData(ctx context.Context) (Response, int) {
	txs, err := s.tables.ListTransactions(ctx)
	if err != nil {
		return s.storeFail(ctx, "list transactions", err)
	}
	todos, err := s.tables.ListTodos(ctx)
	if err != nil {
		return s.storeFail(ctx, "list todos", err)
	}
	data := core.Dataset{Transactions: txs, Todos: todos}
	data.Normalize()
	return OK(data), http.StatusOK
}

func (s *Server) addTransaction(ctx context.Context, req Request) (Response, int) {
	var tx core.Transaction
	if err := req.DecodePayload(&tx); err != nil {
		return Fail(err.Error()), http.StatusOK
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if err := tx.Validate(); err != nil {
		return Fail(err.Error()), http.StatusOK
	}
	if err := s.tables.AppendTransaction(ctx, tx); err != nil {
		return s.storeFail(ctx, "append transaction", err)
	}
	s.notify(ctx, "transaction", "added", tx.ID)
	return OK(tx), http.StatusOK
}

func (s *Server) deleteTransaction(ctx context.Context, req Request) (Response, int) {
	var p DeletePayload
	if err := req.DecodePayload(&p); err != nil {
		return Fail(err.Error()), http.StatusOK
	}
	if p.ID == "" {
		return Fail("missing transaction id"), http.StatusOK
	}
	if err := s.tables.DeleteTransaction(ctx, p.ID); err != nil {
		return s.storeFail(ctx, "delete transaction", err)
	}
	s.notify(ctx, "transaction", "deleted", p.ID)
	return OK(nil), http.StatusOK
}

func (s *Server) addTodo(ctx context.Context, req Request) (Response, int) {
	var todo core.Todo
	if err := req.DecodePayload(&todo); err != nil {
		return Fail(err.Error()), http.StatusOK
	}
	if todo.ID == "" {
		todo.ID = uuid.NewString()
	}
	if todo.CreatedAt.IsZero() {
		todo.CreatedAt = time.Now().UTC()
	}
	if err := todo.Validate(); err != nil {
		return Fail(err.Error()), http.StatusOK
	}
	if err := s.tables.AppendTodo(ctx, todo); err != nil {
		return s.storeFail(ctx, "append todo", err)
	}
	s.notify(ctx, "todo", "added", todo.ID)
	return OK(todo), http.StatusOK
}

func (s *Server) toggleTodo(ctx context.Context, req Request) (Response, int) {
	var p TogglePayload
	if err := req.DecodePayload(&p); err != nil {
		return Fail(err.Error()), http.StatusOK
	}
	if p.ID == "" {
		return Fail("missing todo id"), http.StatusOK
	}
	if err := s.tables.SetTodoDone(ctx, p.ID, p.Done); err != nil {
		return s.storeFail(ctx, "toggle todo", err)
	}
	s.notify(ctx, "todo", "toggled", p.ID)
	return OK(nil), http.StatusOK
}

func (s *Server) deleteTodo(ctx context.Context, req Request) (Response, int) {
	var p DeletePayload
	if err := req.DecodePayload(&p); err != nil {
		return Fail(err.Error()), http.StatusOK
	}
	if p.ID == "" {
		return Fail("missing todo id"), http.StatusOK
	}
	if err := s.tables.DeleteTodo(ctx, p.ID); err != nil {
		return s.storeFail(ctx, "delete todo", err)
	}
	s.notify(ctx, "todo", "deleted", p.ID)
	return OK(nil), http.StatusOK
}

func (s *Server) reorderTodos(ctx context.Context, req Request) (Response, int) {
	var p ReorderPayload
	if err := req.DecodePayload(&p); err != nil {
		return Fail(err.Error()), http.StatusOK
	}
	for _, todo := range p.Todos {
		if err := todo.Validate(); err != nil {
			return Fail(err.Error()), http.StatusOK
		}
	}
	if err := s.tables.ReplaceTodos(ctx, p.Todos); err != nil {
		return s.storeFail(ctx, "replace todos", err)
	}
	s.notify(ctx, "todo", "reordered", "")
	return OK(nil), http.StatusOK
}

func (s *Server) storeFail(ctx context.Context, op string, err error) (Response, int) {
	if errors.Is(err, core.ErrNotFound) {
		return Fail(err.Error()), http.StatusOK
	}
	s.logger.ErrorContext(ctx, "storage operation failed", "op", op, "error", err)
	return Fail(op + " failed"), http.StatusInternalServerError
}

func (s *Server) notify(ctx context.Context, entity, op, id string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishMutation(ctx, entity, op, id); err != nil {
		s.logger.WarnContext(ctx, "publish event failed", "entity", entity, "op", op, "error", err)
	}
}
