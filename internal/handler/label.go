package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chatdesk/internal/middleware"
	"github.com/chatdesk/internal/repository"
)

type LabelHandler struct {
	labels *repository.LabelRepo
}

func NewLabelHandler(labels *repository.LabelRepo) *LabelHandler {
	return &LabelHandler{labels: labels}
}

func (h *LabelHandler) List(w http.ResponseWriter, r *http.Request) {
	labels, err := h.labels.List(r.Context())
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, labels)
}

type createLabelRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (h *LabelHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	var req createLabelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Color == "" {
		req.Color = "#888888"
	}

	label, err := h.labels.Create(r.Context(), req.Name, req.Color, userID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, label)
}

func (h *LabelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	labelID := chi.URLParam(r, "labelID")
	if err := h.labels.Delete(r.Context(), labelID); err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
