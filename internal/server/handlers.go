package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/maauso/logomotion-api/internal/credential"
	"github.com/maauso/logomotion-api/internal/gemini"
	"github.com/maauso/logomotion-api/internal/session"
	"github.com/maauso/logomotion-api/internal/storage"
	"github.com/maauso/logomotion-api/internal/workflow"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	sessions    *session.Registry
	credentials *credential.Gate
	publisher   storage.Publisher
	validator   *validator.Validate
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithPublisher sets the artifact publisher. Without it publishing
// responds with PUBLISH_UNAVAILABLE.
func WithPublisher(p storage.Publisher) HandlerOption {
	return func(h *Handlers) {
		if p != nil {
			h.publisher = p
		}
	}
}

// WithAllowedOrigins restricts which origins may open event streams.
func WithAllowedOrigins(origins []string) HandlerOption {
	return func(h *Handlers) {
		h.upgrader.CheckOrigin = originChecker(origins)
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sessions *session.Registry, credentials *credential.Gate, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		sessions:    sessions,
		credentials: credentials,
		publisher:   storage.Disabled{},
		validator:   validator.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker([]string{"*"}),
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// GetCredential handles GET /credential requests.
func (h *Handlers) GetCredential(w http.ResponseWriter, r *http.Request) {
	ok, err := h.credentials.HasUsableCredential(r.Context())
	if err != nil {
		h.logger.Error("failed to check credential",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to check credential", "INTERNAL_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, CredentialResponse{
		HasUsableCredential: ok,
		SelectionEnabled:    h.credentials.Enabled(),
	})
}

// SelectCredential handles POST /credential requests.
func (h *Handlers) SelectCredential(w http.ResponseWriter, r *http.Request) {
	var req SelectCredentialRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.credentials.RequestSelection(r.Context(), req.APIKey); err != nil {
		switch {
		case errors.Is(err, credential.ErrBlankKey):
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		case errors.Is(err, credential.ErrSelectionNotConfirmed):
			writeError(w, http.StatusPreconditionFailed, "api key selection was not confirmed", "CREDENTIAL_REQUIRED")
		default:
			h.logger.Error("failed to select credential",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to select credential", "INTERNAL_ERROR")
		}
		return
	}

	// Report the re-checked state rather than assuming the selection worked.
	h.GetCredential(w, r)
}

// CreateSession handles POST /sessions requests.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create(r.Context())
	writeJSON(w, http.StatusCreated, toSessionResponse(s.ID, s.Controller.Snapshot(), true))
}

// ListSessions handles GET /sessions requests.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessions.List(r.Context())
	resp := SessionListResponse{Sessions: make([]SessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, toSessionResponse(s.ID, s.Controller.Snapshot(), false))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSession handles GET /sessions/{id} requests.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(s.ID, s.Controller.Snapshot(), true))
}

// DeleteSession handles DELETE /sessions/{id} requests.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete session", "INTERNAL_ERROR")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateImage handles POST /sessions/{id}/image requests.
func (h *Handlers) CreateImage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req CreateImageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required", "VALIDATION_ERROR")
		return
	}
	resolution, err := gemini.ParseResolution(req.Resolution)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	if !h.requireCredential(w, r) {
		return
	}

	// Use context.WithoutCancel so generation outlives the request
	done, err := s.Controller.StartImage(context.WithoutCancel(r.Context()), workflow.LogoRequest{
		Prompt:     req.Prompt,
		Resolution: resolution,
	})
	if err != nil {
		h.writeWorkflowError(w, s.ID, err)
		return
	}
	go h.awaitOutcome(s.ID, "image", done)

	h.logger.Info("image generation accepted",
		slog.String("session_id", s.ID),
		slog.String("resolution", string(resolution)),
	)
	writeJSON(w, http.StatusAccepted, toSessionResponse(s.ID, s.Controller.Snapshot(), false))
}

// CreateAnimation handles POST /sessions/{id}/animation requests.
func (h *Handlers) CreateAnimation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req CreateAnimationRequest
	if !h.decode(w, r, &req) {
		return
	}
	aspect, err := gemini.ParseAspectRatio(req.AspectRatio)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	if !h.requireCredential(w, r) {
		return
	}

	done, err := s.Controller.StartAnimation(context.WithoutCancel(r.Context()), workflow.AnimationRequest{
		Prompt:      req.Prompt,
		AspectRatio: aspect,
	})
	if err != nil {
		h.writeWorkflowError(w, s.ID, err)
		return
	}
	go h.awaitOutcome(s.ID, "animation", done)

	h.logger.Info("animation accepted",
		slog.String("session_id", s.ID),
		slog.String("aspect_ratio", string(aspect)),
	)
	writeJSON(w, http.StatusAccepted, toSessionResponse(s.ID, s.Controller.Snapshot(), false))
}

// CancelGeneration handles POST /sessions/{id}/cancel requests.
func (h *Handlers) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !s.Controller.Cancel() {
		writeError(w, http.StatusConflict, "no generation in progress", "INVALID_STATE")
		return
	}
	writeJSON(w, http.StatusAccepted, toSessionResponse(s.ID, s.Controller.Snapshot(), false))
}

// GetImage handles GET /sessions/{id}/image requests.
func (h *Handlers) GetImage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	img := s.Controller.Snapshot().Image
	if img == nil {
		writeError(w, http.StatusNotFound, "no image has been generated", "NOT_READY")
		return
	}
	writeBinary(w, img.MIMEType, img.Data)
}

// GetVideo handles GET /sessions/{id}/video requests.
func (h *Handlers) GetVideo(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	video := s.Controller.Snapshot().Video
	if video == nil {
		writeError(w, http.StatusNotFound, "no video has been generated", "NOT_READY")
		return
	}
	writeBinary(w, video.MIMEType, video.Data)
}

// Publish handles POST /sessions/{id}/publish requests.
func (h *Handlers) Publish(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req PublishRequest
	if !h.decode(w, r, &req) {
		return
	}

	kind := storage.Kind(req.Kind)
	if !kind.IsValid() {
		writeError(w, http.StatusBadRequest, "kind must be image or video", "VALIDATION_ERROR")
		return
	}
	snap := s.Controller.Snapshot()

	var data []byte
	var contentType string
	switch {
	case kind == storage.KindImage && snap.Image != nil:
		data, contentType = snap.Image.Data, snap.Image.MIMEType
	case kind == storage.KindVideo && snap.Video != nil:
		data, contentType = snap.Video.Data, snap.Video.MIMEType
	default:
		writeError(w, http.StatusNotFound, "no "+req.Kind+" has been generated", "NOT_READY")
		return
	}

	key := storage.ObjectKey(s.ID, kind, contentType)
	url, err := h.publisher.Publish(r.Context(), key, contentType, data)
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "publishing is not configured", "PUBLISH_UNAVAILABLE")
			return
		}
		h.logger.Error("failed to publish artifact",
			slog.String("session_id", s.ID),
			slog.String("kind", req.Kind),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to publish artifact", "PUBLISH_FAILED")
		return
	}

	h.logger.Info("artifact published",
		slog.String("session_id", s.ID),
		slog.String("kind", req.Kind),
		slog.String("key", key),
	)
	writeJSON(w, http.StatusOK, PublishResponse{Kind: req.Kind, Key: key, URL: url})
}

// lookup resolves the {id} path value to a session, writing a 404 if absent.
func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session ID is required", "MISSING_SESSION_ID")
		return nil, false
	}
	s, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
		return nil, false
	}
	return s, true
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// requireCredential writes a 412 when no usable API key is selected.
func (h *Handlers) requireCredential(w http.ResponseWriter, r *http.Request) bool {
	ok, err := h.credentials.HasUsableCredential(r.Context())
	if err != nil {
		h.logger.Error("failed to check credential",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to check credential", "INTERNAL_ERROR")
		return false
	}
	if !ok {
		writeError(w, http.StatusPreconditionFailed, "select an API key before generating", "CREDENTIAL_REQUIRED")
		return false
	}
	return true
}

func (h *Handlers) writeWorkflowError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, workflow.ErrBlankPrompt),
		errors.Is(err, gemini.ErrInvalidResolution),
		errors.Is(err, gemini.ErrInvalidAspectRatio):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, workflow.ErrBusy):
		writeError(w, http.StatusConflict, "a generation is already in progress", "BUSY")
	case errors.Is(err, workflow.ErrNoImage):
		writeError(w, http.StatusConflict, "generate an image before animating", "NO_IMAGE")
	case errors.Is(err, workflow.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error(), "INVALID_STATE")
	case errors.Is(err, workflow.ErrClosed):
		writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
	default:
		h.logger.Error("failed to start generation",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to start generation", "INTERNAL_ERROR")
	}
}

// awaitOutcome logs the result of a background generation.
func (h *Handlers) awaitOutcome(sessionID, kind string, done <-chan error) {
	if err := <-done; err != nil {
		h.logger.Warn("background generation failed",
			slog.String("session_id", sessionID),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("background generation finished",
		slog.String("session_id", sessionID),
		slog.String("kind", kind),
	)
}

func toSessionResponse(sessionID string, snap workflow.Snapshot, includeImage bool) SessionResponse {
	resp := SessionResponse{
		ID:        sessionID,
		Status:    string(snap.Status),
		Error:     snap.Error,
		HasImage:  snap.HasImage(),
		HasVideo:  snap.HasVideo(),
		UpdatedAt: snap.UpdatedAt,
	}
	if includeImage && snap.Image != nil {
		resp.ImageURL = snap.Image.DataURL()
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// writeBinary writes raw artifact bytes.
func writeBinary(w http.ResponseWriter, contentType string, data []byte) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("failed to write response body", slog.String("error", err.Error()))
	}
}
