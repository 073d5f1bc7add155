package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatdesk/internal/logger"
	"github.com/chatdesk/internal/model"
	"github.com/chatdesk/internal/ws"
)

// ErrNotAdmin is returned when a non-admin member tries to delete a group.
var ErrNotAdmin = errors.New("only group admins can delete a group")

// Window inside which an incoming realtime message is treated as the echo of
// an optimistic send with the same sender and content.
const echoWindow = 5 * time.Second

// ConversationBackend is the persistence surface of the open conversation.
type ConversationBackend interface {
	ChatDetail(ctx context.Context, chatID string) (model.ChatDetail, error)
	ListByChat(ctx context.Context, chatID string) ([]model.Message, error)
	CreateMessage(ctx context.Context, m *model.Message) (*model.Message, error)
	MarkRead(ctx context.Context, chatID, readerID string) error
	GetMemberRole(ctx context.Context, chatID, userID string) (string, error)
	DeleteMessagesByChat(ctx context.Context, chatID string) error
	RemoveAllMembers(ctx context.Context, chatID string) error
	DetachAllLabels(ctx context.Context, chatID string) error
	DeleteChat(ctx context.Context, chatID string) error
}

// ConversationReconciler maintains the ordered message log of the chat a
// user has open. Sends are optimistic: the message appears immediately with
// Pending set and is reconciled against the realtime echo, or rolled back if
// the write fails.
type ConversationReconciler struct {
	userID  string
	backend ConversationBackend
	hub     *ws.Hub

	mu       sync.Mutex
	chatID   string
	epoch    uint64
	messages []model.Message
	detail   model.ChatDetail
}

func NewConversationReconciler(userID string, backend ConversationBackend, hub *ws.Hub) *ConversationReconciler {
	return &ConversationReconciler{userID: userID, backend: backend, hub: hub}
}

// Select opens a chat and loads its log. A fetch that completes after the
// user already switched away is discarded: the epoch recorded at fetch start
// no longer matches.
func (c *ConversationReconciler) Select(ctx context.Context, chatID string) error {
	defer logger.DeferLogDuration("conversation.Select", time.Now())()

	c.mu.Lock()
	c.epoch++
	e := c.epoch
	c.chatID = chatID
	c.messages = nil
	c.detail = model.ChatDetail{}
	c.mu.Unlock()

	detail, err := c.backend.ChatDetail(ctx, chatID)
	if err != nil {
		return fmt.Errorf("conversation.Select: %w", err)
	}
	msgs, err := c.backend.ListByChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("conversation.Select: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e != c.epoch {
		return nil // user switched chats while we were fetching
	}
	c.messages = msgs
	c.detail = detail
	return nil
}

// Detail returns the selected chat's metadata snapshot.
func (c *ConversationReconciler) Detail() model.ChatDetail {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detail
}

// DisplayName derives the header title for the open chat.
func (c *ConversationReconciler) DisplayName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chatID == "" {
		return ""
	}
	return DisplayName(c.detail, c.userID)
}

// refetchDetail reloads metadata after a membership or role event. The epoch
// guard drops the result when the user switched chats meanwhile.
func (c *ConversationReconciler) refetchDetail(chatID string) {
	c.mu.Lock()
	if chatID != c.chatID {
		c.mu.Unlock()
		return
	}
	e := c.epoch
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	detail, err := c.backend.ChatDetail(ctx, chatID)
	if err != nil {
		logger.Errorf("conversation: refetch detail for %s: %v", chatID, err)
		return
	}

	c.mu.Lock()
	if e == c.epoch && c.chatID == chatID {
		c.detail = detail
	}
	c.mu.Unlock()
}

// ChatID returns the currently selected chat ("" when none).
func (c *ConversationReconciler) ChatID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatID
}

// Messages returns a copy of the current log, pending entries included.
func (c *ConversationReconciler) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Send appends the message optimistically, persists it, then swaps the
// pending entry for the stored row. On failure the pending entry is removed
// and the error returned.
func (c *ConversationReconciler) Send(ctx context.Context, content string) (*model.Message, error) {
	return c.send(ctx, &model.Message{Content: content})
}

// SendAttachment sends a message carrying an uploaded file.
func (c *ConversationReconciler) SendAttachment(ctx context.Context, content, url string, attType model.AttachmentType, name string) (*model.Message, error) {
	return c.send(ctx, &model.Message{
		Content:        content,
		AttachmentURL:  url,
		AttachmentType: attType,
		AttachmentName: name,
	})
}

func (c *ConversationReconciler) send(ctx context.Context, m *model.Message) (*model.Message, error) {
	defer logger.DeferLogDuration("conversation.send", time.Now())()

	c.mu.Lock()
	chatID := c.chatID
	if chatID == "" {
		c.mu.Unlock()
		return nil, fmt.Errorf("conversation.send: no chat selected")
	}
	pending := *m
	pending.ID = "pending-" + uuid.NewString()
	pending.ChatID = chatID
	pending.SenderID = c.userID
	pending.CreatedAt = time.Now()
	pending.Pending = true
	c.messages = append(c.messages, pending)
	c.mu.Unlock()

	m.ChatID = chatID
	m.SenderID = c.userID
	stored, err := c.backend.CreateMessage(ctx, m)
	if err != nil {
		c.removeByID(pending.ID)
		return nil, fmt.Errorf("conversation.send: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].ID == pending.ID {
			c.messages[i] = *stored
			return stored, nil
		}
	}
	// The realtime echo already replaced it.
	return stored, nil
}

func (c *ConversationReconciler) removeByID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return
		}
	}
}

// merge folds a realtime message into the log. An entry with the same id is
// updated in place. Otherwise, a pending message from the same sender with
// the same content created within the echo window is treated as the
// optimistic original and replaced; this can merge two genuinely identical
// rapid sends, which is accepted over showing every message twice.
func (c *ConversationReconciler) merge(msg model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.ChatID != c.chatID {
		return
	}
	for i := range c.messages {
		if c.messages[i].ID == msg.ID {
			c.messages[i] = msg
			return
		}
	}
	for i := range c.messages {
		m := &c.messages[i]
		if m.Pending && m.SenderID == msg.SenderID && m.Content == msg.Content &&
			msg.CreatedAt.Sub(m.CreatedAt) < echoWindow && msg.CreatedAt.Sub(m.CreatedAt) > -echoWindow {
			c.messages[i] = msg
			return
		}
	}
	c.messages = append(c.messages, msg)
}

// MarkRead flags the other side's messages as read, locally and in the
// backend.
func (c *ConversationReconciler) MarkRead(ctx context.Context) error {
	c.mu.Lock()
	chatID := c.chatID
	for i := range c.messages {
		if c.messages[i].SenderID != c.userID {
			c.messages[i].IsRead = true
		}
	}
	c.mu.Unlock()
	if chatID == "" {
		return nil
	}
	if err := c.backend.MarkRead(ctx, chatID, c.userID); err != nil {
		return fmt.Errorf("conversation.MarkRead: %w", err)
	}
	return nil
}

// DeleteGroup removes a group chat and everything hanging off it. Only admins
// may do this; the role is checked before any delete is issued. Deletes run
// child-first (messages, members, labels, then the chat row) so an
// interrupted cascade leaves no orphaned children.
func DeleteGroup(ctx context.Context, b ConversationBackend, chatID, userID string) error {
	role, err := b.GetMemberRole(ctx, chatID, userID)
	if err != nil {
		return fmt.Errorf("view.DeleteGroup: %w", err)
	}
	if role != model.RoleAdmin {
		return ErrNotAdmin
	}

	if err := b.DeleteMessagesByChat(ctx, chatID); err != nil {
		return fmt.Errorf("view.DeleteGroup: messages: %w", err)
	}
	if err := b.RemoveAllMembers(ctx, chatID); err != nil {
		return fmt.Errorf("view.DeleteGroup: members: %w", err)
	}
	if err := b.DetachAllLabels(ctx, chatID); err != nil {
		return fmt.Errorf("view.DeleteGroup: labels: %w", err)
	}
	if err := b.DeleteChat(ctx, chatID); err != nil {
		return fmt.Errorf("view.DeleteGroup: chat: %w", err)
	}
	return nil
}

// DeleteGroup removes the selected group chat, then clears the selection.
func (c *ConversationReconciler) DeleteGroup(ctx context.Context) error {
	defer logger.DeferLogDuration("conversation.DeleteGroup", time.Now())()

	c.mu.Lock()
	chatID := c.chatID
	c.mu.Unlock()
	if chatID == "" {
		return fmt.Errorf("conversation.DeleteGroup: no chat selected")
	}

	if err := DeleteGroup(ctx, c.backend, chatID, c.userID); err != nil {
		return err
	}

	c.mu.Lock()
	if c.chatID == chatID {
		c.chatID = ""
		c.messages = nil
		c.detail = model.ChatDetail{}
		c.epoch++
	}
	c.mu.Unlock()
	return nil
}

// Run folds the user's realtime events into the open conversation until ctx
// is done.
func (c *ConversationReconciler) Run(ctx context.Context) {
	events, release := c.hub.Listen(c.userID)
	defer release()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.Apply(ev)
		}
	}
}

// Apply folds one realtime event into the open conversation.
func (c *ConversationReconciler) Apply(ev ws.OutgoingMessage) {
	switch ev.Type {
	case ws.EventNewMessage:
		if msg, ok := ev.Payload.(model.Message); ok {
			c.merge(msg)
		} else if msg, ok := ev.Payload.(*model.Message); ok && msg != nil {
			c.merge(*msg)
		}
	case ws.EventMessageRead:
		p, ok := ev.Payload.(ws.ChatEventPayload)
		if !ok {
			return
		}
		c.mu.Lock()
		if p.ChatID == c.chatID {
			for i := range c.messages {
				if c.messages[i].SenderID == c.userID {
					c.messages[i].IsRead = true
				}
			}
		}
		c.mu.Unlock()
	case ws.EventMemberAdded, ws.EventMemberRemoved, ws.EventRoleChanged:
		if p, ok := ev.Payload.(ws.ChatEventPayload); ok {
			c.refetchDetail(p.ChatID)
		}
	case ws.EventChatDeleted:
		p, ok := ev.Payload.(ws.ChatEventPayload)
		if !ok {
			return
		}
		c.mu.Lock()
		if p.ChatID == c.chatID {
			c.chatID = ""
			c.messages = nil
			c.detail = model.ChatDetail{}
			c.epoch++
		}
		c.mu.Unlock()
	}
}
