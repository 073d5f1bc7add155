package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/chatdesk/internal/middleware"
	"github.com/chatdesk/internal/repository"
	"github.com/chatdesk/internal/service"
)

type AuthHandler struct {
	auth  *service.Auth
	users *repository.UserRepo
}

func NewAuthHandler(auth *service.Auth, users *repository.UserRepo) *AuthHandler {
	return &AuthHandler{auth: auth, users: users}
}

type signUpRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := h.auth.SignUp(r.Context(), req.Email, strings.TrimSpace(req.Name), req.Password)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user.ToPublic())
}

func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := h.auth.Verify(r.Context(), token); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "invalid or expired token")
			return
		}
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

type signInRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name"`
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	creds, err := h.auth.SignIn(r.Context(), req.Email, req.Password, req.DeviceName)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, service.ErrEmailNotVerified):
		writeError(w, http.StatusForbidden, "email not verified")
	case errors.Is(err, service.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "too many attempts, try again later")
	case err != nil:
		writeRepoError(w, err)
	default:
		writeJSON(w, http.StatusOK, creds)
	}
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFrom(r.Context())
	if err := h.auth.SignOut(r.Context(), sessionID); err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user.ToPublic())
}
