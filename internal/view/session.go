package view

import (
	"context"

	"github.com/chatdesk/internal/logger"
	"github.com/chatdesk/internal/model"
	"github.com/chatdesk/internal/ws"
)

// Backend is the full persistence surface a session needs. Satisfied by
// RepoBackend.
type Backend interface {
	ListBackend
	ConversationBackend
}

// Session ties one websocket connection to its read models: the chat list and
// the open conversation. It drives both from a single hub subscription and
// pushes derived snapshots back down the connection, so a client gets its
// list and conversation ready-made instead of refetching over HTTP.
type Session struct {
	userID  string
	hub     *ws.Hub
	deliver func(ws.OutgoingMessage)
	list    *ListReconciler
	conv    *ConversationReconciler
}

func NewSession(userID string, backend Backend, hub *ws.Hub, deliver func(ws.OutgoingMessage)) *Session {
	return &Session{
		userID:  userID,
		hub:     hub,
		deliver: deliver,
		list:    NewListReconciler(userID, backend, hub),
		conv:    NewConversationReconciler(userID, backend, hub),
	}
}

// conversationState is the snapshot pushed whenever the open chat changes.
type conversationState struct {
	ChatID      string           `json:"chat_id"`
	DisplayName string           `json:"display_name"`
	Detail      model.ChatDetail `json:"chat"`
	Messages    []model.Message  `json:"messages"`
}

// Select opens a chat and pushes its state to the client.
func (s *Session) Select(ctx context.Context, chatID string) {
	if err := s.conv.Select(ctx, chatID); err != nil {
		logger.Errorf("session select %s: %v", chatID, err)
		s.deliver(ws.OutgoingMessage{Type: ws.EventError, Payload: ws.ErrorPayload{Message: "could not open chat"}})
		return
	}
	s.pushConversation()
}

// Run folds the user's realtime events into both read models until ctx is
// done, pushing a fresh snapshot after every change.
func (s *Session) Run(ctx context.Context) {
	events, release := s.hub.Listen(s.userID)
	defer release()

	s.refreshList(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.conv.Apply(ev)
			if listRelevant(ev.Type) {
				s.refreshList(ctx)
			}
			if conversationRelevant(ev.Type) && s.conv.ChatID() != "" {
				s.pushConversation()
			}
		}
	}
}

func (s *Session) refreshList(ctx context.Context) {
	if err := s.list.Refresh(ctx); err != nil {
		logger.Errorf("session list refresh for %s: %v", s.userID, err)
		return
	}
	s.pushList()
}

func (s *Session) pushList() {
	s.deliver(ws.OutgoingMessage{Type: ws.EventChatList, Payload: s.list.Entries(Filter{})})
}

func (s *Session) pushConversation() {
	s.deliver(ws.OutgoingMessage{Type: ws.EventConversationState, Payload: conversationState{
		ChatID:      s.conv.ChatID(),
		DisplayName: s.conv.DisplayName(),
		Detail:      s.conv.Detail(),
		Messages:    s.conv.Messages(),
	}})
}

// conversationRelevant is deliberately coarse: events for another chat cost
// one redundant snapshot, which beats unpacking every payload type here.
func conversationRelevant(eventType string) bool {
	switch eventType {
	case ws.EventNewMessage, ws.EventMessageRead, ws.EventMemberAdded,
		ws.EventMemberRemoved, ws.EventRoleChanged, ws.EventChatDeleted:
		return true
	}
	return false
}
