package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chatdesk/internal/logger"
	"github.com/chatdesk/internal/middleware"
	"github.com/chatdesk/internal/model"
	"github.com/chatdesk/internal/repository"
	"github.com/chatdesk/internal/resolver"
	"github.com/chatdesk/internal/view"
	"github.com/chatdesk/internal/ws"
)

type ChatHandler struct {
	chats    *repository.ChatRepo
	messages *repository.MessageRepo
	labels   *repository.LabelRepo
	resolver *resolver.ChatResolver
	views    view.ConversationBackend
	hub      *ws.Hub
}

func NewChatHandler(chats *repository.ChatRepo, messages *repository.MessageRepo, labels *repository.LabelRepo, res *resolver.ChatResolver, views view.ConversationBackend, hub *ws.Hub) *ChatHandler {
	return &ChatHandler{chats: chats, messages: messages, labels: labels, resolver: res, views: views, hub: hub}
}

// List renders the chat list: fetch, dedupe, derive display names, filter.
// Query params: search, label, kind (all|groups|dms).
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	details, err := h.chats.ChatDetailsFor(r.Context(), userID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	ids := make([]string, 0, len(details))
	for _, d := range details {
		ids = append(ids, d.Chat.ID)
	}
	latest, err := h.messages.LatestByChat(r.Context(), ids)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	entries := view.Derive(details, latest, userID)
	f := view.Filter{
		Search:  r.URL.Query().Get("search"),
		LabelID: r.URL.Query().Get("label"),
		Kind:    kindFromQuery(r.URL.Query().Get("kind")),
	}
	filtered := make([]view.Entry, 0, len(entries))
	for _, e := range entries {
		if f.Matches(e) {
			filtered = append(filtered, e)
		}
	}
	writeJSON(w, http.StatusOK, filtered)
}

func kindFromQuery(kind string) string {
	switch kind {
	case "groups", "group":
		return "group"
	case "dms", "direct":
		return "direct"
	default:
		return ""
	}
}

type createDirectRequest struct {
	UserID string `json:"user_id"`
}

// CreateDirect resolves the one-on-one chat with the given user, creating it
// only if none exists yet.
func (h *ChatHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	var req createDirectRequest
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.UserID == userID {
		writeError(w, http.StatusBadRequest, "cannot start a chat with yourself")
		return
	}

	chatID, created, err := h.resolver.Resolve(r.Context(), userID, req.UserID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if created {
		h.hub.SendToUsers([]string{userID, req.UserID}, ws.OutgoingMessage{
			Type:    ws.EventChatCreated,
			Payload: ws.ChatEventPayload{ChatID: chatID},
		})
	}

	chat, err := h.chats.Get(r.Context(), chatID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, chat)
}

type createGroupRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

// CreateGroup makes a group chat with the caller as admin.
func (h *ChatHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	var req createGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if len(req.MemberIDs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one member is required")
		return
	}

	chat, err := h.chats.Create(r.Context(), strings.TrimSpace(req.Name), true, userID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if err := h.chats.AddMember(r.Context(), chat.ID, userID, model.RoleAdmin); err != nil {
		h.cleanupHalfCreated(r, chat.ID)
		writeRepoError(w, err)
		return
	}
	recipients := []string{userID}
	for _, mid := range req.MemberIDs {
		if mid == userID {
			continue
		}
		if err := h.chats.AddMember(r.Context(), chat.ID, mid, model.RoleMember); err != nil {
			h.cleanupHalfCreated(r, chat.ID)
			writeRepoError(w, err)
			return
		}
		recipients = append(recipients, mid)
	}

	h.hub.SendToUsers(recipients, ws.OutgoingMessage{
		Type:    ws.EventChatCreated,
		Payload: ws.ChatEventPayload{ChatID: chat.ID},
	})
	writeJSON(w, http.StatusCreated, chat)
}

func (h *ChatHandler) cleanupHalfCreated(r *http.Request, chatID string) {
	if err := h.chats.Delete(r.Context(), chatID); err != nil {
		logger.Errorf("cleanup of half-created group %s: %v", chatID, err)
	}
}

// Get returns one chat with members and labels. Members only.
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	chatID := chi.URLParam(r, "chatID")

	if !h.requireMember(w, r, chatID, userID) {
		return
	}
	chat, err := h.chats.Get(r.Context(), chatID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	members, err := h.chats.Members(r.Context(), chatID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	detail := model.ChatDetail{Chat: *chat, Members: members}
	writeJSON(w, http.StatusOK, view.Entry{
		Detail:      detail,
		DisplayName: view.DisplayName(detail, userID),
	})
}

// Delete removes a group chat. Admins only; child rows go first so an
// interrupted cascade leaves no orphans.
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	chatID := chi.URLParam(r, "chatID")

	chat, err := h.chats.Get(r.Context(), chatID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if !chat.IsGroup {
		writeError(w, http.StatusBadRequest, "only group chats can be deleted")
		return
	}

	// Collect recipients before the member rows disappear.
	memberIDs, err := h.chats.MemberIDs(r.Context(), chatID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if err := view.DeleteGroup(r.Context(), h.views, chatID, userID); err != nil {
		if errors.Is(err, view.ErrNotAdmin) {
			writeError(w, http.StatusForbidden, "only group admins can delete a group")
			return
		}
		writeRepoError(w, err)
		return
	}

	h.hub.SendToUsers(memberIDs, ws.OutgoingMessage{
		Type:    ws.EventChatDeleted,
		Payload: ws.ChatEventPayload{ChatID: chatID},
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListMembers returns a chat's memberships with profiles. Members only.
func (h *ChatHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	chatID := chi.URLParam(r, "chatID")

	if !h.requireMember(w, r, chatID, userID) {
		return
	}
	members, err := h.chats.Members(r.Context(), chatID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// ListLabels returns the labels attached to a chat. Members only.
func (h *ChatHandler) ListLabels(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	chatID := chi.URLParam(r, "chatID")

	if !h.requireMember(w, r, chatID, userID) {
		return
	}
	labels, err := h.labels.ListByChat(r.Context(), chatID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, labels)
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
}

// AddMember adds a user to a group. Admins only.
func (h *ChatHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	chatID := chi.URLParam(r, "chatID")

	var req addMemberRequest
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if !h.requireGroupAdmin(w, r, chatID, userID) {
		return
	}

	if err := h.chats.AddMember(r.Context(), chatID, req.UserID, model.RoleMember); err != nil {
		writeRepoError(w, err)
		return
	}
	h.notifyMembers(r, chatID, ws.OutgoingMessage{
		Type:    ws.EventMemberAdded,
		Payload: ws.ChatEventPayload{ChatID: chatID, UserID: req.UserID},
	})
	writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

// RemoveMember removes a user from a group. Admins can remove anyone, a
// member can remove themself (leave).
func (h *ChatHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	chatID := chi.URLParam(r, "chatID")
	targetID := chi.URLParam(r, "userID")

	if targetID != userID {
		if !h.requireGroupAdmin(w, r, chatID, userID) {
			return
		}
	}

	// Collect recipients before the row disappears.
	memberIDs, err := h.chats.MemberIDs(r.Context(), chatID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if err := h.chats.RemoveMember(r.Context(), chatID, targetID); err != nil {
		writeRepoError(w, err)
		return
	}
	h.hub.SendToUsers(memberIDs, ws.OutgoingMessage{
		Type:    ws.EventMemberRemoved,
		Payload: ws.ChatEventPayload{ChatID: chatID, UserID: targetID},
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateRole promotes or demotes a group member. Admins only.
func (h *ChatHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	chatID := chi.URLParam(r, "chatID")
	targetID := chi.URLParam(r, "userID")

	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if req.Role != model.RoleAdmin && req.Role != model.RoleMember {
		writeError(w, http.StatusBadRequest, "role must be admin or member")
		return
	}
	if !h.requireGroupAdmin(w, r, chatID, userID) {
		return
	}

	if err := h.chats.UpdateMemberRole(r.Context(), chatID, targetID, req.Role); err != nil {
		writeRepoError(w, err)
		return
	}
	h.notifyMembers(r, chatID, ws.OutgoingMessage{
		Type:    ws.EventRoleChanged,
		Payload: ws.ChatEventPayload{ChatID: chatID, UserID: targetID, Role: req.Role},
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type attachLabelRequest struct {
	LabelID string `json:"label_id"`
}

// AttachLabel tags a chat with a label. Group admins only; direct chats have
// no admin role, so either member qualifies.
func (h *ChatHandler) AttachLabel(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	chatID := chi.URLParam(r, "chatID")

	var req attachLabelRequest
	if err := decodeJSON(r, &req); err != nil || req.LabelID == "" {
		writeError(w, http.StatusBadRequest, "label_id is required")
		return
	}
	if !h.requireLabelManager(w, r, chatID, userID) {
		return
	}
	if _, err := h.labels.Get(r.Context(), req.LabelID); err != nil {
		writeRepoError(w, err)
		return
	}

	if err := h.labels.Attach(r.Context(), chatID, req.LabelID); err != nil {
		writeRepoError(w, err)
		return
	}
	h.notifyMembers(r, chatID, ws.OutgoingMessage{
		Type:    ws.EventChatLabelsChanged,
		Payload: ws.ChatEventPayload{ChatID: chatID},
	})
	writeJSON(w, http.StatusCreated, map[string]string{"status": "attached"})
}

// DetachLabel removes a label from a chat. Same gate as AttachLabel.
func (h *ChatHandler) DetachLabel(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	chatID := chi.URLParam(r, "chatID")
	labelID := chi.URLParam(r, "labelID")

	if !h.requireLabelManager(w, r, chatID, userID) {
		return
	}
	if err := h.labels.Detach(r.Context(), chatID, labelID); err != nil {
		writeRepoError(w, err)
		return
	}
	h.notifyMembers(r, chatID, ws.OutgoingMessage{
		Type:    ws.EventChatLabelsChanged,
		Payload: ws.ChatEventPayload{ChatID: chatID},
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "detached"})
}

func (h *ChatHandler) requireMember(w http.ResponseWriter, r *http.Request, chatID, userID string) bool {
	ok, err := h.chats.IsMember(r.Context(), chatID, userID)
	if err != nil {
		writeRepoError(w, err)
		return false
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a member of this chat")
		return false
	}
	return true
}

func (h *ChatHandler) requireGroupAdmin(w http.ResponseWriter, r *http.Request, chatID, userID string) bool {
	role, err := h.chats.GetMemberRole(r.Context(), chatID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusForbidden, "not a member of this chat")
		return false
	}
	if err != nil {
		writeRepoError(w, err)
		return false
	}
	if role != model.RoleAdmin {
		writeError(w, http.StatusForbidden, "admin role required")
		return false
	}
	return true
}

// canManageLabels decides who may change a chat's labels: admins for groups,
// any member for direct chats.
func canManageLabels(isGroup bool, role string) bool {
	return !isGroup || role == model.RoleAdmin
}

func (h *ChatHandler) requireLabelManager(w http.ResponseWriter, r *http.Request, chatID, userID string) bool {
	chat, err := h.chats.Get(r.Context(), chatID)
	if err != nil {
		writeRepoError(w, err)
		return false
	}
	role, err := h.chats.GetMemberRole(r.Context(), chatID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusForbidden, "not a member of this chat")
		return false
	}
	if err != nil {
		writeRepoError(w, err)
		return false
	}
	if !canManageLabels(chat.IsGroup, role) {
		writeError(w, http.StatusForbidden, "only group admins can manage labels for this chat")
		return false
	}
	return true
}

func (h *ChatHandler) notifyMembers(r *http.Request, chatID string, msg ws.OutgoingMessage) {
	memberIDs, err := h.chats.MemberIDs(r.Context(), chatID)
	if err != nil {
		logger.Errorf("notify members of %s: %v", chatID, err)
		return
	}
	h.hub.SendToUsers(memberIDs, msg)
}
