package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chatdesk/internal/model"
	"github.com/chatdesk/internal/ws"
)

type fakeConvBackend struct {
	mu       sync.Mutex
	logs     map[string][]model.Message
	roles    map[string]string // userID -> role for the test chat
	nextID   int
	failSend bool

	ops []string // recorded mutation order
}

func newFakeConvBackend() *fakeConvBackend {
	return &fakeConvBackend{
		logs:  map[string][]model.Message{},
		roles: map[string]string{},
	}
}

func (f *fakeConvBackend) ChatDetail(_ context.Context, chatID string) (model.ChatDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := make([]model.ChatMember, 0, len(f.roles))
	for uid, role := range f.roles {
		members = append(members, model.ChatMember{ChatID: chatID, UserID: uid, Role: role})
	}
	return model.ChatDetail{
		Chat:    model.Chat{ID: chatID, IsGroup: true, Name: "Test Group"},
		Members: members,
	}, nil
}

func (f *fakeConvBackend) ListByChat(_ context.Context, chatID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.logs[chatID]...), nil
}

func (f *fakeConvBackend) CreateMessage(_ context.Context, m *model.Message) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return nil, errors.New("insert failed")
	}
	f.nextID++
	stored := *m
	stored.ID = fmt.Sprintf("m-%d", f.nextID)
	stored.CreatedAt = time.Now()
	f.logs[m.ChatID] = append(f.logs[m.ChatID], stored)
	f.ops = append(f.ops, "create")
	return &stored, nil
}

func (f *fakeConvBackend) MarkRead(_ context.Context, chatID, readerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "mark_read")
	return nil
}

func (f *fakeConvBackend) GetMemberRole(_ context.Context, chatID, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[userID]
	if !ok {
		return "", errors.New("not found")
	}
	return role, nil
}

func (f *fakeConvBackend) DeleteMessagesByChat(_ context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "delete_messages")
	return nil
}

func (f *fakeConvBackend) RemoveAllMembers(_ context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "remove_members")
	return nil
}

func (f *fakeConvBackend) DetachAllLabels(_ context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "detach_labels")
	return nil
}

func (f *fakeConvBackend) DeleteChat(_ context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "delete_chat")
	return nil
}

func (f *fakeConvBackend) mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func newConv(t *testing.T, backend ConversationBackend) *ConversationReconciler {
	t.Helper()
	c := NewConversationReconciler("me", backend, ws.NewHub())
	if err := c.Select(context.Background(), "chat1"); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSendOptimisticThenPersisted(t *testing.T) {
	backend := newFakeConvBackend()
	c := newConv(t, backend)

	stored, err := c.Send(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	msgs := c.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Pending {
		t.Error("message still pending after successful persist")
	}
	if msgs[0].ID != stored.ID {
		t.Errorf("log holds %s, persisted id is %s", msgs[0].ID, stored.ID)
	}
}

func TestSendAttachmentCarriesFileFields(t *testing.T) {
	backend := newFakeConvBackend()
	c := newConv(t, backend)

	stored, err := c.SendAttachment(context.Background(), "", "chats/chat1/x.png", model.AttachmentImage, "photo.png")
	if err != nil {
		t.Fatal(err)
	}
	if stored.AttachmentURL != "chats/chat1/x.png" || stored.AttachmentType != model.AttachmentImage {
		t.Errorf("attachment fields lost: %+v", stored)
	}
	if stored.AttachmentName != "photo.png" {
		t.Errorf("display name = %q", stored.AttachmentName)
	}
}

func TestSendFailureRollsBackOptimisticEntry(t *testing.T) {
	backend := newFakeConvBackend()
	c := newConv(t, backend)
	backend.failSend = true

	if _, err := c.Send(context.Background(), "hello"); err == nil {
		t.Fatal("expected error")
	}
	if got := c.Messages(); len(got) != 0 {
		t.Fatalf("optimistic entry not rolled back: %v", got)
	}
}

func TestMergeReplacesEchoWithinWindow(t *testing.T) {
	backend := newFakeConvBackend()
	c := newConv(t, backend)

	// Simulate the optimistic entry still pending (persist raced with echo).
	c.mu.Lock()
	c.messages = append(c.messages, model.Message{
		ID: "pending-x", ChatID: "chat1", SenderID: "me",
		Content: "hello", CreatedAt: time.Now(), Pending: true,
	})
	c.mu.Unlock()

	echo := model.Message{
		ID: "m-1", ChatID: "chat1", SenderID: "me",
		Content: "hello", CreatedAt: time.Now(),
	}
	c.merge(echo)

	msgs := c.Messages()
	if len(msgs) != 1 {
		t.Fatalf("echo duplicated the message: %v", msgs)
	}
	if msgs[0].ID != "m-1" || msgs[0].Pending {
		t.Errorf("pending entry not replaced by echo: %+v", msgs[0])
	}
}

// Two pending entries with identical content each get matched to one echo,
// first pending first, so rapid identical sends still end up as two rows.
func TestMergeMatchesEchoesToPendingInOrder(t *testing.T) {
	backend := newFakeConvBackend()
	c := newConv(t, backend)

	now := time.Now()
	c.mu.Lock()
	c.messages = append(c.messages,
		model.Message{ID: "pending-a", ChatID: "chat1", SenderID: "me", Content: "ok", CreatedAt: now, Pending: true},
		model.Message{ID: "pending-b", ChatID: "chat1", SenderID: "me", Content: "ok", CreatedAt: now, Pending: true},
	)
	c.mu.Unlock()

	c.merge(model.Message{ID: "m-1", ChatID: "chat1", SenderID: "me", Content: "ok", CreatedAt: now})
	c.merge(model.Message{ID: "m-2", ChatID: "chat1", SenderID: "me", Content: "ok", CreatedAt: now})

	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "m-1" || msgs[1].ID != "m-2" {
		t.Errorf("echoes matched wrong entries: %+v", msgs)
	}
}

// Content-based matching can swallow a same-content message sent from another
// device inside the window. Accepted trade-off over duplicating every echo;
// this test pins it so a change here is deliberate.
func TestMergeFalseMergeWithinWindowIsAccepted(t *testing.T) {
	backend := newFakeConvBackend()
	c := newConv(t, backend)

	now := time.Now()
	c.mu.Lock()
	c.messages = append(c.messages, model.Message{
		ID: "pending-a", ChatID: "chat1", SenderID: "me",
		Content: "ok", CreatedAt: now, Pending: true,
	})
	c.mu.Unlock()

	// Echo of a different message with the same sender and content.
	c.merge(model.Message{ID: "m-other-tab", ChatID: "chat1", SenderID: "me", Content: "ok", CreatedAt: now})

	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].ID != "m-other-tab" {
		t.Fatalf("expected the echo to claim the pending slot: %+v", msgs)
	}
}

func TestMergeAppendsForeignAndLateMessages(t *testing.T) {
	backend := newFakeConvBackend()
	c := newConv(t, backend)

	// Message from another sender always appends.
	c.merge(model.Message{ID: "m-1", ChatID: "chat1", SenderID: "bob", Content: "hi", CreatedAt: time.Now()})
	// Same sender and content but outside the window appends too.
	c.mu.Lock()
	c.messages = append(c.messages, model.Message{
		ID: "pending-old", ChatID: "chat1", SenderID: "me",
		Content: "hi", CreatedAt: time.Now().Add(-10 * time.Second), Pending: true,
	})
	c.mu.Unlock()
	c.merge(model.Message{ID: "m-2", ChatID: "chat1", SenderID: "me", Content: "hi", CreatedAt: time.Now()})

	if got := len(c.Messages()); got != 3 {
		t.Fatalf("got %d messages, want 3", got)
	}
}

func TestMergeIgnoresOtherChats(t *testing.T) {
	backend := newFakeConvBackend()
	c := newConv(t, backend)

	c.merge(model.Message{ID: "m-1", ChatID: "other", SenderID: "bob", Content: "hi"})
	if got := len(c.Messages()); got != 0 {
		t.Fatalf("message for another chat leaked in: %d", got)
	}
}

func TestSelectDiscardsStaleFetch(t *testing.T) {
	backend := newFakeConvBackend()
	backend.logs["chat1"] = []model.Message{{ID: "a", ChatID: "chat1"}}
	backend.logs["chat2"] = []model.Message{{ID: "b", ChatID: "chat2"}}

	c := NewConversationReconciler("me", backend, ws.NewHub())
	if err := c.Select(context.Background(), "chat2"); err != nil {
		t.Fatal(err)
	}

	// A fetch for chat1 that resolves after chat2 was selected must not
	// clobber the log. Simulate by replaying merge-time state directly:
	// Select for chat1 started first, chat2 won.
	c.mu.Lock()
	staleEpoch := c.epoch - 1
	c.mu.Unlock()
	msgs, _ := backend.ListByChat(context.Background(), "chat1")
	c.mu.Lock()
	if staleEpoch == c.epoch {
		c.messages = msgs
	}
	c.mu.Unlock()

	got := c.Messages()
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("stale select applied: %+v", got)
	}
	if c.ChatID() != "chat2" {
		t.Errorf("selected chat = %s", c.ChatID())
	}
}

func TestSelectLoadsMetadata(t *testing.T) {
	backend := newFakeConvBackend()
	backend.roles["me"] = model.RoleMember
	c := newConv(t, backend)

	if got := c.DisplayName(); got != "Test Group" {
		t.Errorf("display name = %q", got)
	}
	if got := len(c.Detail().Members); got != 1 {
		t.Errorf("members = %d, want 1", got)
	}
}

func TestMemberEventRefetchesMetadata(t *testing.T) {
	backend := newFakeConvBackend()
	backend.roles["me"] = model.RoleMember
	c := newConv(t, backend)

	backend.mu.Lock()
	backend.roles["bob"] = model.RoleMember
	backend.mu.Unlock()

	c.Apply(ws.OutgoingMessage{
		Type:    ws.EventMemberAdded,
		Payload: ws.ChatEventPayload{ChatID: "chat1", UserID: "bob"},
	})
	if got := len(c.Detail().Members); got != 2 {
		t.Errorf("members after refetch = %d, want 2", got)
	}

	// Events for other chats leave the snapshot alone.
	backend.mu.Lock()
	backend.roles["carol"] = model.RoleMember
	backend.mu.Unlock()
	c.Apply(ws.OutgoingMessage{
		Type:    ws.EventMemberAdded,
		Payload: ws.ChatEventPayload{ChatID: "other", UserID: "carol"},
	})
	if got := len(c.Detail().Members); got != 2 {
		t.Errorf("foreign event changed metadata: %d members", got)
	}
}

func TestDeleteGroupRequiresAdmin(t *testing.T) {
	backend := newFakeConvBackend()
	backend.roles["me"] = model.RoleMember
	c := newConv(t, backend)

	err := c.DeleteGroup(context.Background())
	if !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("got %v, want ErrNotAdmin", err)
	}
	if ops := backend.mutations(); len(ops) != 0 {
		t.Fatalf("deletes issued for non-admin: %v", ops)
	}
}

func TestDeleteGroupCascadesChildFirst(t *testing.T) {
	backend := newFakeConvBackend()
	backend.roles["me"] = model.RoleAdmin
	c := newConv(t, backend)

	if err := c.DeleteGroup(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{"delete_messages", "remove_members", "detach_labels", "delete_chat"}
	got := backend.mutations()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cascade order %v, want %v", got, want)
		}
	}
	if c.ChatID() != "" {
		t.Error("deleted chat still selected")
	}
}
