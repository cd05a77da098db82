// Package api provides the HTTP server and handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fruitsalade/filemanager/internal/events"
	"github.com/fruitsalade/filemanager/internal/filemanager"
	"github.com/fruitsalade/filemanager/internal/logging"
	"github.com/fruitsalade/filemanager/internal/metrics"
	"github.com/fruitsalade/filemanager/internal/ratelimit"
)

// RecentEvents lists persisted domain events, newest first.
type RecentEvents interface {
	Recent(ctx context.Context, limit int) ([]events.Event, error)
}

// Server is the HTTP server.
type Server struct {
	manager       *filemanager.Manager
	broadcaster   *events.Broadcaster
	audit         RecentEvents
	maxUploadSize int64
	limiter       *ratelimit.Limiter
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRateLimiter throttles every request per client IP.
func WithRateLimiter(l *ratelimit.Limiter) ServerOption {
	return func(s *Server) { s.limiter = l }
}

// NewServer creates a new server. broadcaster and audit may be nil.
func NewServer(manager *filemanager.Manager, broadcaster *events.Broadcaster, audit RecentEvents, maxUploadSize int64, opts ...ServerOption) *Server {
	s := &Server{
		manager:       manager,
		broadcaster:   broadcaster,
		audit:         audit,
		maxUploadSize: maxUploadSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler with logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Folders
	mux.HandleFunc("GET /api/v1/disks/{disk}/folder", s.handleListFolder)
	mux.HandleFunc("POST /api/v1/disks/{disk}/folder", s.handleCreateFolder)
	mux.HandleFunc("DELETE /api/v1/disks/{disk}/folder", s.handleDeleteFolder)

	// Uploads and downloads
	mux.HandleFunc("POST /api/v1/disks/{disk}/upload", s.handleUpload)
	mux.HandleFunc("POST /api/v1/disks/{disk}/upload-folder", s.handleUploadFolder)
	mux.HandleFunc("GET /api/v1/disks/{disk}/download", s.handleDownload)

	// Files
	mux.HandleFunc("GET /api/v1/disks/{disk}/file", s.handleDescribe)
	mux.HandleFunc("DELETE /api/v1/disks/{disk}/file", s.handleRemoveFile)
	mux.HandleFunc("POST /api/v1/disks/{disk}/duplicate", s.handleDuplicate)
	mux.HandleFunc("POST /api/v1/disks/{disk}/rename", s.handleRename)
	mux.HandleFunc("POST /api/v1/disks/{disk}/move", s.handleMove)

	// Events
	if s.broadcaster != nil {
		mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	}
	if s.audit != nil {
		mux.HandleFunc("GET /api/v1/events/recent", s.handleRecentEvents)
	}

	// metrics.Middleware reads r.Pattern, so it must wrap the mux directly.
	return logging.Middleware(ratelimit.Middleware(s.limiter)(metrics.Middleware(mux)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error      string   `json:"error"`
	Code       int      `json:"code"`
	Kind       string   `json:"kind,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, errorResponse{Error: message, Code: code})
}

// sendOpError maps a filemanager error kind to its HTTP status.
func (s *Server) sendOpError(w http.ResponseWriter, r *http.Request, err error) {
	code, kind := statusFor(err)
	resp := errorResponse{Error: err.Error(), Code: code, Kind: kind}

	var verr *filemanager.ValidationError
	if errors.As(err, &verr) {
		resp.Violations = verr.Violations
	}
	if code >= http.StatusInternalServerError {
		logging.WithContext(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
	}
	s.writeJSON(w, code, resp)
}

func statusFor(err error) (int, string) {
	switch filemanager.KindOf(err) {
	case filemanager.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case filemanager.ErrAlreadyExists:
		return http.StatusConflict, "already_exists"
	case filemanager.ErrValidation:
		return http.StatusUnprocessableEntity, "validation"
	case filemanager.ErrFeatureDisabled:
		return http.StatusForbidden, "feature_disabled"
	case filemanager.ErrPartialFailure:
		return http.StatusMultiStatus, "partial_failure"
	case filemanager.ErrInvalidPath:
		return http.StatusBadRequest, "invalid_path"
	default:
		return http.StatusInternalServerError, "backend_failure"
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("response encode failed", zap.Error(err))
	}
}

// decodeJSON reads a small JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
