package view

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chatdesk/internal/model"
	"github.com/chatdesk/internal/ws"
)

type fakeListBackend struct {
	mu      sync.Mutex
	details []model.ChatDetail
	latest  map[string]model.Message
	calls   int
	block   chan struct{} // when set, ChatDetailsFor waits on it once
}

func (f *fakeListBackend) ChatDetailsFor(ctx context.Context, userID string) ([]model.ChatDetail, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.block = nil
	details := append([]model.ChatDetail(nil), f.details...)
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return details, nil
}

func (f *fakeListBackend) LatestByChat(ctx context.Context, chatIDs []string) (map[string]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]model.Message{}
	for _, id := range chatIDs {
		if m, ok := f.latest[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func (f *fakeListBackend) set(details []model.ChatDetail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details = details
}

func TestListRefreshDerivesEntries(t *testing.T) {
	me := member("me", "Me", "")
	bob := member("bob", "Bob", "")
	backend := &fakeListBackend{
		details: []model.ChatDetail{
			directChat("c1", me, bob),
			directChat("c2", me, bob), // dedupe victim
			{Chat: model.Chat{ID: "g1", IsGroup: true, Name: "Team"}, Members: []model.ChatMember{me, bob}},
		},
		latest: map[string]model.Message{
			"c1": {ID: "m1", ChatID: "c1", Content: "hi"},
		},
	}
	l := NewListReconciler("me", backend, ws.NewHub())

	if err := l.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	entries := l.Entries(Filter{})
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].DisplayName != "Bob" {
		t.Errorf("display name = %q", entries[0].DisplayName)
	}
	if entries[0].LastMessage == nil || entries[0].LastMessage.ID != "m1" {
		t.Error("missing last message preview")
	}
	if got := l.Entries(Filter{Kind: "group"}); len(got) != 1 || got[0].Detail.Chat.ID != "g1" {
		t.Errorf("group filter got %v", got)
	}
}

func TestListStaleSnapshotDiscarded(t *testing.T) {
	me := member("me", "Me", "")
	bob := member("bob", "Bob", "")
	backend := &fakeListBackend{
		details: []model.ChatDetail{directChat("c1", me, bob)},
		latest:  map[string]model.Message{},
	}
	l := NewListReconciler("me", backend, ws.NewHub())

	// First refresh stalls inside the backend fetch.
	release := make(chan struct{})
	backend.block = release
	done := make(chan error, 1)
	go func() { done <- l.Refresh(context.Background()) }()

	// Wait for the slow refresh to claim its epoch.
	for {
		backend.mu.Lock()
		started := backend.calls >= 1 && backend.block == nil
		backend.mu.Unlock()
		if started {
			break
		}
		time.Sleep(time.Millisecond)
	}

	// A second refresh completes with newer data.
	carol := member("carol", "Carol", "")
	backend.set([]model.ChatDetail{directChat("c2", me, carol)})
	if err := l.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Now the stalled first refresh finishes with the old snapshot.
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	entries := l.Entries(Filter{})
	if len(entries) != 1 || entries[0].Detail.Chat.ID != "c2" {
		t.Fatalf("stale snapshot overwrote newer one: %+v", entries)
	}
}

func TestListRunRefreshesOnEvents(t *testing.T) {
	me := member("me", "Me", "")
	bob := member("bob", "Bob", "")
	backend := &fakeListBackend{latest: map[string]model.Message{}}
	hub := ws.NewHub()
	go hub.Run()
	defer hub.Stop()

	l := NewListReconciler("me", backend, hub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	// Initial refresh sees an empty list.
	waitFor(t, func() bool { return backend.callCount() >= 1 })
	if got := l.Entries(Filter{}); len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}

	backend.set([]model.ChatDetail{directChat("c1", me, bob)})
	hub.SendToUser("me", ws.OutgoingMessage{
		Type:    ws.EventChatCreated,
		Payload: ws.ChatEventPayload{ChatID: "c1"},
	})

	waitFor(t, func() bool { return len(l.Entries(Filter{})) == 1 })
}

func (f *fakeListBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
