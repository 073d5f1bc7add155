package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chatdesk/internal/logger"
	"github.com/chatdesk/internal/middleware"
	"github.com/chatdesk/internal/model"
	"github.com/chatdesk/internal/push"
	"github.com/chatdesk/internal/repository"
	"github.com/chatdesk/internal/ws"
)

type MessageHandler struct {
	messages *repository.MessageRepo
	chats    *repository.ChatRepo
	users    *repository.UserRepo
	hub      *ws.Hub
	notifier *push.Notifier
}

func NewMessageHandler(messages *repository.MessageRepo, chats *repository.ChatRepo, users *repository.UserRepo, hub *ws.Hub, notifier *push.Notifier) *MessageHandler {
	return &MessageHandler{messages: messages, chats: chats, users: users, hub: hub, notifier: notifier}
}

// List returns the full ordered log of a chat. Members only.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
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
	msgs, err := h.messages.ListByChat(r.Context(), chatID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// Send persists a text message and fans it out.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	chatID := chi.URLParam(r, "chatID")

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	stored, err := h.deliver(r.Context(), userID, &model.Message{
		ChatID:  chatID,
		Content: req.Content,
	})
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// MarkRead flags the chat's incoming messages as read and tells the other
// members.
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	chatID := chi.URLParam(r, "chatID")

	if err := h.markRead(r.Context(), userID, chatID); err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// HandleSend implements ws.MessageSink for messages sent over the socket.
func (h *MessageHandler) HandleSend(ctx context.Context, senderID string, p ws.SendMessagePayload) error {
	if strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("empty message")
	}
	_, err := h.deliver(ctx, senderID, &model.Message{ChatID: p.ChatID, Content: p.Content})
	return err
}

// HandleMarkRead implements ws.MessageSink.
func (h *MessageHandler) HandleMarkRead(ctx context.Context, readerID string, p ws.MarkReadPayload) error {
	return h.markRead(ctx, readerID, p.ChatID)
}

// deliver is the single path every message takes: membership check, persist,
// realtime fan-out, web push for the other members.
func (h *MessageHandler) deliver(ctx context.Context, senderID string, m *model.Message) (*model.Message, error) {
	ok, err := h.chats.IsMember(ctx, m.ChatID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("sender %s is not a member of chat %s", senderID, m.ChatID)
	}

	m.SenderID = senderID
	stored, err := h.messages.Create(ctx, m)
	if err != nil {
		return nil, err
	}
	senderName := senderID
	if sender, err := h.users.GetByID(ctx, senderID); err == nil {
		pub := sender.ToPublic()
		stored.Sender = &pub
		senderName = pub.DisplayName()
	}

	memberIDs, err := h.chats.MemberIDs(ctx, m.ChatID)
	if err != nil {
		logger.Errorf("fan-out lookup for chat %s: %v", m.ChatID, err)
		return stored, nil
	}
	h.hub.SendToUsers(memberIDs, ws.OutgoingMessage{Type: ws.EventNewMessage, Payload: *stored})

	if h.notifier != nil {
		recipients := memberIDs[:0:0]
		for _, id := range memberIDs {
			if id != senderID {
				recipients = append(recipients, id)
			}
		}
		go h.notifier.NotifyUsers(context.WithoutCancel(ctx), recipients, push.MessagePreview(stored, senderName))
	}
	return stored, nil
}

func (h *MessageHandler) markRead(ctx context.Context, readerID, chatID string) error {
	ok, err := h.chats.IsMember(ctx, chatID, readerID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("reader %s is not a member of chat %s", readerID, chatID)
	}
	if err := h.messages.MarkRead(ctx, chatID, readerID); err != nil {
		return err
	}
	if err := h.chats.UpdateMemberLastRead(ctx, chatID, readerID); err != nil {
		logger.Errorf("update last read for %s: %v", chatID, err)
	}

	memberIDs, err := h.chats.MemberIDs(ctx, chatID)
	if err != nil {
		return nil
	}
	h.hub.SendToUsers(memberIDs, ws.OutgoingMessage{
		Type:    ws.EventMessageRead,
		Payload: ws.ChatEventPayload{ChatID: chatID, UserID: readerID},
	})
	return nil
}
