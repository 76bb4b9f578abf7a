package memory

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ragline-platform/ragline/internal/api"
)

// Handler exposes the administrative memory endpoints.
type Handler struct {
	store *Store
}

// NewHandler creates a new memory handler.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// List returns every memory entry, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.List(r.Context())
	if err != nil {
		slog.Error("listing memories", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	api.JSON(w, http.StatusOK, entries)
}

// Delete removes a single memory entry by id.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "memoryID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid memory ID"))
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			api.HandleError(w, api.NewNotFoundError("memory entry not found"))
			return
		}
		slog.Error("deleting memory", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "memory entry deleted")
}
