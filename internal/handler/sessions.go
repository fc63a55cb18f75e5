package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/tixagent/internal/middleware"
	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/internal/service"
	"github.com/capitalize-ai/tixagent/pkg/logger"
)

// SessionHandler handles session, turn and resume endpoints.
type SessionHandler struct {
	service *service.TurnService
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(svc *service.TurnService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		service: svc,
		logger:  log,
	}
}

// Routes mounts the session endpoints.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Reset)
		r.Post("/turns", h.Turn)
		r.Post("/resume", h.Resume)
		r.Get("/journal", h.Journal)
	})
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.service.Create(ctx, middleware.GetTenantID(ctx), middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, h.logger, "create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID})
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.service.Get(r.Context(), middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), id)
	if err != nil {
		writeServiceError(w, h.logger, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Reset handles DELETE /api/v1/sessions/{id}
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if _, err := h.service.Reset(r.Context(), middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), id); err != nil {
		writeServiceError(w, h.logger, "reset session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Turn handles POST /api/v1/sessions/{id}/turns
func (h *SessionHandler) Turn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req model.TurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTurnRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.Turn(ctx, middleware.GetTenantID(ctx), middleware.GetUserID(ctx), id, &req)
	if err != nil {
		writeServiceError(w, h.requestLogger(r, id), "process turn", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Resume handles POST /api/v1/sessions/{id}/resume
func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req model.ResumeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateResumeRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.Resume(ctx, middleware.GetTenantID(ctx), middleware.GetUserID(ctx), id, &req)
	if err != nil {
		writeServiceError(w, h.requestLogger(r, id), "resume booking", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Journal handles GET /api/v1/sessions/{id}/journal
// Supports ?limit=N (default 50, max 200).
func (h *SessionHandler) Journal(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	events, err := h.service.History(r.Context(), middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), id, limit)
	if err != nil {
		writeServiceError(w, h.logger, "read journal", err)
		return
	}
	if events == nil {
		events = []model.JournalEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *SessionHandler) requestLogger(r *http.Request, id string) *logger.Logger {
	ctx := r.Context()
	return h.logger.WithSession(middleware.GetCorrelationID(ctx), id, middleware.GetUserID(ctx))
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}
