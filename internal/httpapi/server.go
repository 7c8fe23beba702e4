package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/agentboard/boardfile/internal/board"
)

type ServerConfig struct {
	AuthToken    string
	MaxBodyBytes int64
}

// Server exposes the board over HTTP. Every mutating route goes through the
// controller so connected stream clients see the same pushes regardless of
// which surface triggered the change.
type Server struct {
	controller *board.Controller
	cfg        ServerConfig
}

func NewServer(controller *board.Controller) *Server {
	return NewServerWithConfig(controller, ServerConfig{})
}

func NewServerWithConfig(controller *board.Controller, cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Server{controller: controller, cfg: cfg}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if !strings.HasPrefix(r.URL.Path, "/v1/") {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
		return
	}

	switch {
	case r.URL.Path == "/v1/board" && r.Method == http.MethodGet:
		s.handleGetBoard(w, r)
	case r.URL.Path == "/v1/board" && r.Method == http.MethodPut:
		s.handlePutBoard(w, r)
	case r.URL.Path == "/v1/board/refresh" && r.Method == http.MethodPost:
		s.handleRefresh(w, r)
	case r.URL.Path == "/v1/board/seed" && r.Method == http.MethodPost:
		s.handleSeed(w, r)
	case r.URL.Path == "/v1/board/message" && r.Method == http.MethodPost:
		s.handleMessage(w, r)
	case r.URL.Path == "/v1/board/tasks/advance" && r.Method == http.MethodPost:
		s.handleTask(w, r, s.controller.Advance)
	case r.URL.Path == "/v1/board/tasks/toggle-blocked" && r.Method == http.MethodPost:
		s.handleTask(w, r, s.controller.ToggleBlocked)
	case r.URL.Path == "/v1/board/validate" && r.Method == http.MethodGet:
		s.handleValidate(w, r)
	case r.URL.Path == "/v1/board/progress" && r.Method == http.MethodGet:
		s.handleProgress(w, r)
	case r.URL.Path == "/v1/board/open" && r.Method == http.MethodPost:
		s.handleOpen(w, r)
	case r.URL.Path == "/v1/board/stream" && r.Method == http.MethodGet:
		s.handleStream(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix)) == s.cfg.AuthToken
}

func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	doc, err := s.controller.Snapshot(r.Context())
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handlePutBoard replaces the document last-write-wins. Clients that send
// an If-Match header with the revision their edit was based on get the
// optimistic guard instead and a 409 on a stale base.
func (s *Server) handlePutBoard(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "unable to read body")
		return
	}
	var doc board.Document
	if match := strings.TrimSpace(r.Header.Get("If-Match")); match != "" {
		expected, parseErr := strconv.Atoi(strings.Trim(match, `"`))
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "If-Match must be a revision number")
			return
		}
		doc, err = s.controller.SaveIfRevision(r.Context(), body, expected)
	} else {
		doc, err = s.controller.Save(r.Context(), body)
	}
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	doc, err := s.controller.Refresh(r.Context())
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	var payload board.SeedPayload
	if r.URL.Query().Get("confirm") == "true" {
		payload.Confirm = true
	} else {
		body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodyBytes))
		if err == nil && len(body) > 0 {
			_ = json.Unmarshal(body, &payload)
		}
	}
	doc, err := s.controller.Seed(r.Context(), payload.Confirm)
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "unable to read body")
		return
	}
	var payload board.ReplyPayload
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "body must be JSON")
			return
		}
	}
	if strings.TrimSpace(payload.Reply) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "reply must not be empty")
		return
	}
	prompter := board.StaticPrompter{MessageID: payload.MessageID, Reply: payload.Reply}
	result, err := s.controller.ProcessMessages(r.Context(), prompter)
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resolved": result.Resolved,
		"reply":    result.Reply,
		"document": result.Document,
	})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request, mutate func(ctx context.Context, taskID string) (board.Document, error)) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "unable to read body")
		return
	}
	var payload board.TaskPayload
	if len(body) > 0 {
		_ = json.Unmarshal(body, &payload)
	}
	doc, err := mutate(r.Context(), payload.TaskID)
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	findings, err := s.controller.Validate(r.Context())
	if err != nil {
		writeControllerError(w, err)
		return
	}
	if findings == nil {
		findings = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"issues": findings})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	doc, err := s.controller.Snapshot(r.Context())
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"milestones": board.MilestoneProgress(doc)})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	location, err := s.controller.OpenStateFile(r.Context())
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"location": location})
}

func writeControllerError(w http.ResponseWriter, err error) {
	var conflict *board.ConflictError
	switch {
	case errors.Is(err, board.ErrNoRoot):
		writeError(w, http.StatusServiceUnavailable, "no_root", "no workspace root is bound")
	case errors.Is(err, board.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, "invalid_payload", "payload is missing or not a document")
	case errors.Is(err, board.ErrConfirmationRequired):
		writeError(w, http.StatusBadRequest, "confirmation_required", "seeding requires confirm=true")
	case errors.Is(err, board.ErrNonePending):
		writeError(w, http.StatusConflict, "none_pending", "no unresolved messages from human")
	case errors.Is(err, board.ErrCancelled):
		writeError(w, http.StatusConflict, "cancelled", "message processing was cancelled")
	case errors.Is(err, board.ErrNotFound):
		writeError(w, http.StatusNotFound, "task_not_found", "no task with that id")
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "revision_conflict", conflict.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
