package rag

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ragline-platform/ragline/internal/api"
)

// DefaultUserID scopes requests that carry no user identity.
const DefaultUserID = "global"

// doneSentinel terminates every SSE stream.
const doneSentinel = "[DONE]"

// maxUploadSize caps document uploads at 16 MiB.
const maxUploadSize = 16 << 20

// Handler exposes the conversational endpoints.
type Handler struct {
	engine    *Engine
	session   *Session
	ingestor  *Ingestor
	uploadDir string
	validate  *validator.Validate
}

// NewHandler creates the conversational HTTP handler.
func NewHandler(engine *Engine, session *Session, ingestor *Ingestor, uploadDir string) *Handler {
	return &Handler{
		engine:    engine,
		session:   session,
		ingestor:  ingestor,
		uploadDir: uploadDir,
		validate:  validator.New(),
	}
}

type askRequest struct {
	Question string `json:"question" validate:"required"`
	UserID   string `json:"user_id"`
	Stream   bool   `json:"stream"`
}

type askResponse struct {
	Answer  string           `json:"answer"`
	Sources []SourceDocument `json:"sources"`
	Model   string           `json:"model"`
}

// Ask answers a question, either as one JSON response or as an SSE stream
// when the request asks for it.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError("question is required"))
		return
	}
	if req.UserID == "" {
		req.UserID = DefaultUserID
	}

	if req.Stream || strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		h.askStream(w, r, req)
		return
	}

	answer, sources, err := h.engine.Ask(r.Context(), req.Question, req.UserID)
	if err != nil {
		slog.Error("answering question", "error", err, "user_id", req.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if sources == nil {
		sources = []SourceDocument{}
	}
	api.JSON(w, http.StatusOK, askResponse{
		Answer:  answer,
		Sources: sources,
		Model:   h.session.CurrentModel(),
	})
}

type sourcesFrame struct {
	Type string           `json:"type"`
	Data []SourceDocument `json:"data"`
}

// contentFrame carries an explicit "error":null on every chunk; clients key
// off that field to tell a healthy fragment from a failure.
type contentFrame struct {
	Type    string  `json:"type"`
	Content string  `json:"content"`
	Error   *string `json:"error"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (h *Handler) askStream(w http.ResponseWriter, r *http.Request, req askRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	writeFrame := func(frame any) {
		payload, err := json.Marshal(frame)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	for ev := range h.engine.AskStream(r.Context(), req.Question, req.UserID) {
		switch ev.Type {
		case EventSources:
			writeFrame(sourcesFrame{Type: "sources", Data: ev.Sources})
		case EventContent:
			writeFrame(contentFrame{Type: "content", Content: ev.Content})
		case EventError:
			writeFrame(errorFrame{Type: "error", Error: ev.Err.Error()})
		case EventDone:
			fmt.Fprintf(w, "data: %s\n\n", doneSentinel)
			flusher.Flush()
		}
	}
}

type modelsResponse struct {
	Current   string   `json:"current"`
	Available []string `json:"available"`
}

// Models reports the active model and every model the gateway serves.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, modelsResponse{
		Current:   h.session.CurrentModel(),
		Available: h.session.Available(),
	})
}

type switchModelRequest struct {
	Model string `json:"model" validate:"required"`
}

// SwitchModel changes the active model after validating it against the
// gateway.
func (h *Handler) SwitchModel(w http.ResponseWriter, r *http.Request) {
	var req switchModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError("model is required"))
		return
	}

	if err := h.engine.SwitchModel(r.Context(), req.Model); err != nil {
		if errors.Is(err, ErrUnknownModel) || errors.Is(err, ErrModelUnavailable) {
			slog.Warn("model switch rejected", "model", req.Model, "error", err)
			api.JSONErrorMessage(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.Error("switching model", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, fmt.Sprintf("active model is now %s", req.Model))
}

type historyResponse struct {
	Enabled bool `json:"enabled"`
}

// GetHistory reports whether history retrieval is enabled.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, historyResponse{Enabled: h.session.HistoryEnabled()})
}

type setHistoryRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetHistory flips history retrieval on or off.
func (h *Handler) SetHistory(w http.ResponseWriter, r *http.Request) {
	var req setHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		api.HandleError(w, api.NewBadRequestError("enabled flag is required"))
		return
	}

	h.session.SetHistoryEnabled(*req.Enabled)
	slog.Info("history retrieval toggled", "enabled", *req.Enabled)
	api.JSON(w, http.StatusOK, historyResponse{Enabled: *req.Enabled})
}

type uploadResponse struct {
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
}

// UploadDocument accepts a multipart text document, stages it on disk and
// ingests it into the memory store.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("file field is required"))
		return
	}
	defer file.Close()

	userID := r.FormValue("user_id")
	if userID == "" {
		userID = DefaultUserID
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		slog.Error("creating upload dir", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	// Stage under a fresh name so concurrent uploads of the same file
	// cannot clobber each other.
	staged := filepath.Join(h.uploadDir, uuid.NewString()+"-"+filepath.Base(header.Filename))
	dst, err := os.Create(staged)
	if err != nil {
		slog.Error("staging upload", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(staged)
		slog.Error("writing upload", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	dst.Close()

	chunks, err := h.ingestor.IngestFile(r.Context(), staged, userID)
	if err != nil {
		slog.Error("ingesting document", "error", err, "filename", header.Filename)
		api.HandleError(w, api.NewBadRequestError(err.Error()))
		return
	}

	api.JSON(w, http.StatusCreated, uploadResponse{
		Filename: header.Filename,
		Chunks:   chunks,
	})
}
