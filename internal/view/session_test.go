package view

import (
	"context"
	"sync"
	"testing"

	"github.com/chatdesk/internal/model"
	"github.com/chatdesk/internal/ws"
)

type fakeSessionBackend struct {
	*fakeListBackend
	*fakeConvBackend
}

type snapshotRecorder struct {
	mu   sync.Mutex
	msgs []ws.OutgoingMessage
}

func (r *snapshotRecorder) deliver(msg ws.OutgoingMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

// lastOf returns the most recent snapshot of the given type, if any.
func (r *snapshotRecorder) lastOf(eventType string) (ws.OutgoingMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Type == eventType {
			return r.msgs[i], true
		}
	}
	return ws.OutgoingMessage{}, false
}

func newSessionFixture(t *testing.T) (*Session, *fakeSessionBackend, *ws.Hub, *snapshotRecorder) {
	t.Helper()
	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	backend := &fakeSessionBackend{
		fakeListBackend: &fakeListBackend{latest: map[string]model.Message{}},
		fakeConvBackend: newFakeConvBackend(),
	}
	rec := &snapshotRecorder{}
	s := NewSession("me", backend, hub, rec.deliver)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	// The initial list push doubles as proof the subscription is live.
	waitFor(t, func() bool {
		_, ok := rec.lastOf(ws.EventChatList)
		return ok
	})
	return s, backend, hub, rec
}

func TestSessionPushesListOnEvents(t *testing.T) {
	_, backend, hub, rec := newSessionFixture(t)

	me := member("me", "Me", "")
	bob := member("bob", "Bob", "")
	backend.fakeListBackend.set([]model.ChatDetail{directChat("c1", me, bob)})
	hub.SendToUser("me", ws.OutgoingMessage{
		Type:    ws.EventChatCreated,
		Payload: ws.ChatEventPayload{ChatID: "c1"},
	})

	waitFor(t, func() bool {
		msg, ok := rec.lastOf(ws.EventChatList)
		if !ok {
			return false
		}
		entries, ok := msg.Payload.([]Entry)
		return ok && len(entries) == 1 && entries[0].DisplayName == "Bob"
	})
}

func TestSessionSelectPushesConversation(t *testing.T) {
	s, backend, hub, rec := newSessionFixture(t)

	backend.fakeConvBackend.logs["chat1"] = []model.Message{
		{ID: "m-0", ChatID: "chat1", SenderID: "bob", Content: "hi"},
	}
	s.Select(context.Background(), "chat1")

	msg, ok := rec.lastOf(ws.EventConversationState)
	if !ok {
		t.Fatal("no conversation snapshot pushed after select")
	}
	state, ok := msg.Payload.(conversationState)
	if !ok {
		t.Fatalf("unexpected payload %T", msg.Payload)
	}
	if state.ChatID != "chat1" || len(state.Messages) != 1 {
		t.Fatalf("snapshot = %+v", state)
	}
	if state.DisplayName != "Test Group" {
		t.Errorf("display name = %q", state.DisplayName)
	}

	// A realtime message for the open chat lands in the next snapshot.
	hub.SendToUser("me", ws.OutgoingMessage{
		Type:    ws.EventNewMessage,
		Payload: model.Message{ID: "m-1", ChatID: "chat1", SenderID: "bob", Content: "again"},
	})
	waitFor(t, func() bool {
		msg, ok := rec.lastOf(ws.EventConversationState)
		if !ok {
			return false
		}
		state, ok := msg.Payload.(conversationState)
		return ok && len(state.Messages) == 2
	})
}
