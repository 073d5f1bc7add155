package handler

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chatdesk/internal/fileserver"
	"github.com/chatdesk/internal/middleware"
	"github.com/chatdesk/internal/model"
	"github.com/chatdesk/internal/repository"
)

type FileHandler struct {
	files    *fileserver.Service
	chats    *repository.ChatRepo
	messages *MessageHandler
}

func NewFileHandler(files *fileserver.Service, chats *repository.ChatRepo, messages *MessageHandler) *FileHandler {
	return &FileHandler{files: files, chats: chats, messages: messages}
}

// Upload takes a multipart file, validates and stores it, then sends an
// attachment message into the chat. Members only.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	chatID := chi.URLParam(r, "chatID")

	ok, err := h.chats.IsMember(r.Context(), chatID, userID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a member of this chat")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.files.MaxSize()+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "a file field is required")
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(header.Filename))
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	stored, err := h.files.ValidateAndStore(chatID, header.Filename, mimeType, header.Size, file)
	switch {
	case errors.Is(err, fileserver.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload size limit")
		return
	case errors.Is(err, fileserver.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported file type")
		return
	case err != nil:
		writeRepoError(w, err)
		return
	}

	msg, err := h.messages.deliver(r.Context(), userID, &model.Message{
		ChatID:         chatID,
		Content:        strings.TrimSpace(r.FormValue("content")),
		AttachmentURL:  stored.URL,
		AttachmentType: stored.Type,
		AttachmentName: stored.Name,
	})
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// Serve streams a stored attachment. Members of the owning chat only; the
// chat id is the second path segment of the stored URL.
func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	rel := chi.URLParam(r, "*")

	parts := strings.Split(rel, "/")
	if len(parts) != 3 || parts[0] != "chats" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	ok, err := h.chats.IsMember(r.Context(), parts[1], userID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a member of this chat")
		return
	}

	f, err := h.files.Open(rel)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	defer f.Close()

	if ct := mime.TypeByExtension(filepath.Ext(rel)); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Disposition", "inline")
	modTime := time.Time{}
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}
	http.ServeContent(w, r, filepath.Base(rel), modTime, f)
}
