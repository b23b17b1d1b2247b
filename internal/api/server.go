// Package api provides the HTTP API server for pocket-capsules.
//
// The server is a thin transport over the command layer: handlers turn the
// URL, query string and body into a parameter map, run the matching command
// through commands.CommandExecutor and write the result in the APIResponse
// envelope. Failed results are written by errors.HTTPErrorHandler so the
// status code follows the error code (400 for validation, 404 for missing
// capsules, 422 for verification failures and so on).
//
// ENDPOINTS:
// - GET  /api/v1/capsules               list, filtered by category, tag, platform
// - POST /api/v1/capsules               add a capsule to the library
// - GET  /api/v1/capsules/{id}          one capsule (?code=false drops the source)
// - DELETE /api/v1/capsules/{id}        remove a library capsule
// - GET  /api/v1/search?q=              fuzzy search
// - GET  /api/v1/boolean-search?expr=   tag expression search
// - GET  /api/v1/tags, /categories, /stats, /verify, /health
// - GET  /api/v1/compat?from=&to=       data type compatibility
// - GET  /api/v1/connect?from=&to=      port-to-port connection check
// - GET  /api/v1/suggest?type=          capsules that can follow a data type
// - GET  /api/v1/export                 catalog snapshot (?metadata_only=true)
// - POST /api/v1/forms/{schema}         validate a form submission
// - GET  /api/v1/saved-searches, /api/v1/saved-search/{name}
//
// Every route is wrapped by withMiddleware: request id, logging, CORS,
// content type and panic recovery, outermost first.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dpshade/pocket-capsules/internal/commands"
	"github.com/dpshade/pocket-capsules/internal/errors"
	"github.com/dpshade/pocket-capsules/internal/service"
	"github.com/dpshade/pocket-capsules/internal/validation"
)

// RequestIDHeader carries the per-request id in both directions
const RequestIDHeader = "X-Request-ID"

// APIServer provides HTTP API access to the capsule catalog
type APIServer struct {
	service      *service.Service
	executor     *commands.CommandExecutor
	errorHandler *errors.HTTPErrorHandler
	requests     *validation.RequestValidator
	logger       *zap.Logger
	port         int
	server       *http.Server
}

// NewAPIServer creates a new API server instance
func NewAPIServer(svc *service.Service, port int, logger *zap.Logger) *APIServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")

	s := &APIServer{
		service:      svc,
		executor:     commands.NewCommandExecutor(svc),
		errorHandler: errors.NewHTTPErrorHandler(logger, true),
		requests:     validation.NewRequestValidator(svc.Validator(), logger),
		logger:       logger,
		port:         port,
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/capsules", s.withMiddleware(s.handleCapsules))
	mux.HandleFunc("/api/v1/capsules/", s.withMiddleware(s.handleCapsulesWithID))
	mux.HandleFunc("/api/v1/search", s.withMiddleware(s.handleSearch))
	mux.HandleFunc("/api/v1/boolean-search", s.withMiddleware(s.handleBooleanSearch))
	mux.HandleFunc("/api/v1/tags", s.withMiddleware(s.commandHandler("list-tags")))
	mux.HandleFunc("/api/v1/categories", s.withMiddleware(s.commandHandler("list-categories")))
	mux.HandleFunc("/api/v1/stats", s.withMiddleware(s.commandHandler("stats")))
	mux.HandleFunc("/api/v1/verify", s.withMiddleware(s.commandHandler("verify")))
	mux.HandleFunc("/api/v1/health", s.withMiddleware(s.commandHandler("health")))
	mux.HandleFunc("/api/v1/compat", s.withMiddleware(s.handleCompat))
	mux.HandleFunc("/api/v1/connect", s.withMiddleware(s.handleConnect))
	mux.HandleFunc("/api/v1/suggest", s.withMiddleware(s.handleSuggest))
	mux.HandleFunc("/api/v1/export", s.withMiddleware(s.handleExport))
	mux.HandleFunc("/api/v1/forms/", s.withMiddleware(s.handleForms))
	mux.HandleFunc("/api/v1/themes/", s.withMiddleware(s.handleThemes))
	mux.HandleFunc("/api/v1/saved-searches", s.withMiddleware(s.commandHandler("list-saved-searches")))
	mux.HandleFunc("/api/v1/saved-search/", s.withMiddleware(s.handleExecuteSavedSearch))

	mux.HandleFunc("/api/docs", s.withMiddleware(s.handleOpenAPI))
	mux.HandleFunc("/api/openapi.json", s.withMiddleware(s.handleOpenAPISpec))

	return mux
}

// Start begins serving HTTP requests and blocks until the server stops
func (s *APIServer) Start() error {
	s.logger.Info("API server starting",
		zap.String("url", fmt.Sprintf("http://localhost:%d", s.port)),
		zap.String("docs", fmt.Sprintf("http://localhost:%d/api/docs", s.port)),
		zap.Int("capsules", s.service.Catalog().Len()))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// withMiddleware applies middleware to HTTP handlers
func (s *APIServer) withMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return s.requestIDMiddleware(
		s.loggingMiddleware(
			s.corsMiddleware(
				s.contentTypeMiddleware(
					s.errorMiddleware(handler),
				),
			),
		),
	)
}

type requestIDKey struct{}

// requestIDMiddleware reuses the caller's X-Request-ID or assigns a new one
func (s *APIServer) requestIDMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	}
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func (s *APIServer) loggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID(r.Context())),
			zap.String("remote", r.RemoteAddr))
	}
}

// corsMiddleware handles CORS headers
func (s *APIServer) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// contentTypeMiddleware sets default content type
func (s *APIServer) contentTypeMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next(w, r)
	}
}

// errorMiddleware turns panics into 500 responses
func (s *APIServer) errorMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in handler",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("request_id", requestID(r.Context())))
				s.writeError(w, errors.InternalError("Internal server error"))
			}
		}()
		next(w, r)
	}
}

// APIResponse represents a standardized API response
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Error     interface{} `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// writeResponse writes a standardized JSON response
func (s *APIServer) writeResponse(w http.ResponseWriter, data interface{}, message string, statusCode int) {
	response := APIResponse{
		Success:   statusCode < 400,
		Data:      data,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}

	jsonData, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		s.writeError(w, errors.Wrap(err, errors.ErrCodeInternalError, "Failed to encode response"))
		return
	}

	w.WriteHeader(statusCode)
	w.Write(jsonData)
}

// writeError writes an error response using the error handler
func (s *APIServer) writeError(w http.ResponseWriter, err error) {
	s.errorHandler.WriteHTTPError(w, err)
}

func methodNotAllowed(method string) *errors.AppError {
	return errors.NewAppError(errors.ErrCodeInvalidCommand, fmt.Sprintf("Method %s not allowed", method))
}

// execute runs a command and writes its result with the given success status
func (s *APIServer) execute(w http.ResponseWriter, r *http.Request, name string, params map[string]interface{}, status int) {
	result, err := s.executor.Execute(r.Context(), name, params)
	if err != nil {
		s.writeError(w, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "Request cancelled"))
		return
	}
	if !result.Success {
		s.writeError(w, result.AppError())
		return
	}
	s.writeResponse(w, result.Data, result.Message, status)
}

// commandHandler serves a parameterless GET command
func (s *APIServer) commandHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.writeError(w, methodNotAllowed(r.Method))
			return
		}
		s.execute(w, r, name, nil, http.StatusOK)
	}
}

// handleCapsules handles /api/v1/capsules
func (s *APIServer) handleCapsules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.execute(w, r, "list", validation.QueryParams(r.URL.Query()), http.StatusOK)
	case http.MethodPost:
		s.requests.ValidateRequest("capsule_submission")(s.handleCreateCapsule)(w, r)
	default:
		s.writeError(w, methodNotAllowed(r.Method))
	}
}

// handleCreateCapsule runs after the submission passed validation
func (s *APIServer) handleCreateCapsule(w http.ResponseWriter, r *http.Request) {
	data, _ := validation.ValidatedData(r.Context())
	created, err := s.service.SubmitCapsule(data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, created, fmt.Sprintf("Capsule '%s' created", created.ID), http.StatusCreated)
}

// handleCapsulesWithID handles /api/v1/capsules/{id}
func (s *APIServer) handleCapsulesWithID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/capsules/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, errors.ValidationError("Capsule ID is required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		params := validation.QueryParams(r.URL.Query())
		params["id"] = id
		s.execute(w, r, "get", params, http.StatusOK)
	case http.MethodDelete:
		if err := s.service.DeleteCapsule(id); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeResponse(w, map[string]string{"id": id}, fmt.Sprintf("Capsule '%s' deleted", id), http.StatusOK)
	default:
		s.writeError(w, methodNotAllowed(r.Method))
	}
}

// handleSearch handles GET /api/v1/search?q=
func (s *APIServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, methodNotAllowed(r.Method))
		return
	}
	s.execute(w, r, "search", validation.QueryParams(r.URL.Query()), http.StatusOK)
}

// handleBooleanSearch handles GET /api/v1/boolean-search?expr=
func (s *APIServer) handleBooleanSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, methodNotAllowed(r.Method))
		return
	}
	s.execute(w, r, "boolean-search", validation.QueryParams(r.URL.Query()), http.StatusOK)
}

// handleCompat handles GET /api/v1/compat?from=&to=
func (s *APIServer) handleCompat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, methodNotAllowed(r.Method))
		return
	}
	s.execute(w, r, "compat", validation.QueryParams(r.URL.Query()), http.StatusOK)
}

// handleConnect handles GET /api/v1/connect?from=capsule.port&to=capsule.port.
// output and input may name the ports separately.
func (s *APIServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, methodNotAllowed(r.Method))
		return
	}
	q := r.URL.Query()
	params := map[string]interface{}{
		"from":   q.Get("from"),
		"output": q.Get("output"),
		"to":     q.Get("to"),
		"input":  q.Get("input"),
	}
	s.execute(w, r, "connect", params, http.StatusOK)
}

// handleSuggest handles GET /api/v1/suggest?type=
func (s *APIServer) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, methodNotAllowed(r.Method))
		return
	}
	s.execute(w, r, "suggest", validation.QueryParams(r.URL.Query()), http.StatusOK)
}

// handleExport streams the catalog snapshot as a bare JSON document so the
// response can be saved and verified like an exported file.
func (s *APIServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, methodNotAllowed(r.Method))
		return
	}

	metadataOnly := false
	if raw := r.URL.Query().Get("metadata_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, errors.ValidationError("metadata_only must be a boolean"))
			return
		}
		metadataOnly = v
	}

	if err := s.service.Export(w, metadataOnly); err != nil {
		s.writeError(w, err)
	}
}

// handleForms handles POST /api/v1/forms/{schema}
func (s *APIServer) handleForms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, methodNotAllowed(r.Method))
		return
	}

	schema := strings.TrimPrefix(r.URL.Path, "/api/v1/forms/")
	if !validation.IsFormSchema(schema) {
		s.writeError(w, errors.SchemaNotFoundError(schema))
		return
	}

	data, err := s.requests.ExtractRequestData(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	delete(data, "schema")

	s.execute(w, r, "validate-form", map[string]interface{}{"schema": schema, "data": data}, http.StatusOK)
}

// handleThemes answers /api/v1/themes/{id}. Theme storage is not part of
// this server.
func (s *APIServer) handleThemes(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, errors.NotImplementedError("Theme endpoints"))
}

// handleExecuteSavedSearch handles GET /api/v1/saved-search/{name}?q=
func (s *APIServer) handleExecuteSavedSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, methodNotAllowed(r.Method))
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/v1/saved-search/")
	s.execute(w, r, "execute-saved-search", map[string]interface{}{
		"name":  name,
		"query": r.URL.Query().Get("q"),
	}, http.StatusOK)
}
