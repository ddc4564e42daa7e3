// Package api implements the JSON HTTP API of the shopping assistant.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tiendamx/asistente-catalogo/internal/agent"
	"github.com/tiendamx/asistente-catalogo/internal/buildinfo"
	"github.com/tiendamx/asistente-catalogo/internal/llm"
	"github.com/tiendamx/asistente-catalogo/internal/session"
	"github.com/tiendamx/asistente-catalogo/internal/store"
	catsync "github.com/tiendamx/asistente-catalogo/internal/sync"
	"github.com/tiendamx/asistente-catalogo/internal/web"
)

// writeJSON encodes v as JSON to w. Encoding errors usually mean the
// client disconnected mid-response, so they are only logged at debug.
func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, logger *slog.Logger) {
	writeJSON(w, status, map[string]string{"error": msg}, logger)
}

// Server is the HTTP API server.
type Server struct {
	address    string
	port       int
	controller *agent.Controller
	sessions   *session.Store
	store      *store.Store
	syncWorker *catsync.Worker
	progress   *catsync.Tracker
	llm        llm.Client
	iva        float64
	branchSlug string
	logger     *slog.Logger
	server     *http.Server
}

// NewServer wires the API over the dialogue controller, session store,
// catalog and sync worker.
func NewServer(address string, port int, ctrl *agent.Controller, sessions *session.Store,
	st *store.Store, worker *catsync.Worker, progress *catsync.Tracker,
	client llm.Client, iva float64, branchSlug string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:    address,
		port:       port,
		controller: ctrl,
		sessions:   sessions,
		store:      st,
		syncWorker: worker,
		progress:   progress,
		llm:        client,
		iva:        iva,
		branchSlug: branchSlug,
		logger:     logger.With("component", "api"),
	}
}

// Handler builds the route table. Exposed so tests can drive the mux
// without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/clear", s.handleChatClear)
	mux.HandleFunc("GET /api/chat/history", s.handleChatHistory)
	mux.HandleFunc("GET /ws/chat", s.handleChatSocket)

	mux.HandleFunc("POST /api/sync", s.handleSyncStart)
	mux.HandleFunc("GET /api/sync/progress", s.handleSyncProgress)

	mux.HandleFunc("GET /api/products/{id}", s.handleProduct)

	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	web.RegisterRoutes(mux, s.sessions)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests and blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	s.logger.Info("starting API server", "address", s.address, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required", s.logger)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	sess, release, ok := s.sessions.TryAcquire(req.SessionID)
	if !ok {
		writeError(w, http.StatusConflict, "otra solicitud de esta sesión sigue en curso", s.logger)
		return
	}
	defer release()

	answer, err := s.controller.HandleTurn(r.Context(), sess, req.Message)
	if err != nil {
		s.logger.Error("turn failed", "session", req.SessionID, "error", err)
		writeError(w, http.StatusBadGateway, "No pude procesar tu solicitud. Intenta de nuevo.", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{SessionID: req.SessionID, Response: answer}, s.logger)
}

func (s *Server) handleChatClear(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required", s.logger)
		return
	}

	sess, release, ok := s.sessions.TryAcquire(req.SessionID)
	if !ok {
		writeError(w, http.StatusConflict, "otra solicitud de esta sesión sigue en curso", s.logger)
		return
	}
	defer release()

	greeting := s.controller.ClearSession(sess)
	writeJSON(w, http.StatusOK, chatResponse{SessionID: req.SessionID, Response: greeting}, s.logger)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session_id is required", s.logger)
		return
	}
	snap := s.sessions.Snapshot(id)
	if snap == nil {
		writeError(w, http.StatusNotFound, "session not found", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, snap, s.logger)
}

type syncRequest struct {
	UserID     string   `json:"user_id"`
	ProductIDs []string `json:"product_ids"`
	Query      string   `json:"query"`
}

func (s *Server) handleSyncStart(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", s.logger)
		return
	}
	if len(req.ProductIDs) == 0 && req.Query == "" {
		writeError(w, http.StatusBadRequest, "product_ids or query is required", s.logger)
		return
	}

	ids := req.ProductIDs
	if len(ids) == 0 {
		var err error
		ids, err = s.syncWorker.ResolveQuery(r.Context(), req.Query)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error(), s.logger)
			return
		}
		if len(ids) == 0 {
			writeError(w, http.StatusNotFound, "no supplier products match the query", s.logger)
			return
		}
	}

	// The run outlives this request; polling happens via /api/sync/progress.
	err := s.syncWorker.Start(context.WithoutCancel(r.Context()), req.UserID, ids)
	if errors.Is(err, catsync.ErrAlreadyRunning) {
		writeError(w, http.StatusConflict, "sync already running for this user", s.logger)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), s.logger)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"}, s.logger)
}

func (s *Server) handleSyncProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, s.progress.Get(userID), s.logger)
}

// productResponse is the public product shape, with the customer-facing
// MXN price alongside the raw tier price.
type productResponse struct {
	ID          int64    `json:"id"`
	SupplierID  string   `json:"supplier_id"`
	Title       string   `json:"title"`
	Model       string   `json:"model"`
	Brand       string   `json:"brand"`
	Price       string   `json:"price"`
	PriceMXN    float64  `json:"price_mxn,omitempty"`
	BranchStock int      `json:"branch_stock"`
	TotalStock  int      `json:"total_stock"`
	Categories  []string `json:"categories"`
	Features    []string `json:"features"`
	Description string   `json:"description"`
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id", s.logger)
		return
	}

	d, err := s.store.GetProduct(r.Context(), id, s.branchSlug)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Producto no encontrado.", s.logger)
		return
	}
	if err != nil {
		s.logger.Error("product lookup failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "catalog error", s.logger)
		return
	}

	mxn, err := s.store.MXNPrice(r.Context(), d.Price, s.iva)
	if err != nil {
		s.logger.Warn("MXN price unavailable", "id", id, "error", err)
	}

	writeJSON(w, http.StatusOK, productResponse{
		ID:          d.ID,
		SupplierID:  d.SupplierID,
		Title:       d.Title,
		Model:       d.Model,
		Brand:       d.Brand,
		Price:       store.FormatPrice(d.Price),
		PriceMXN:    mxn,
		BranchStock: d.BranchQty,
		TotalStock:  d.TotalQty,
		Categories:  d.Categories,
		Features:    d.Features,
		Description: d.Description,
	}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "asistente-catalogo",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "healthy"}
	code := http.StatusOK
	if err := s.llm.Ping(r.Context()); err != nil {
		status["status"] = "degraded"
		status["llm"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status, s.logger)
}
