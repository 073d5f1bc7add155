package view

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chatdesk/internal/logger"
	"github.com/chatdesk/internal/model"
	"github.com/chatdesk/internal/ws"
)

// ListBackend is what the list reconciler reads from. Satisfied by
// RepoBackend; tests use a fake.
type ListBackend interface {
	ChatDetailsFor(ctx context.Context, userID string) ([]model.ChatDetail, error)
	LatestByChat(ctx context.Context, chatIDs []string) (map[string]model.Message, error)
}

// ListReconciler keeps one user's chat list in sync. Every relevant realtime
// event triggers a full refetch; the derived entries are the only state,
// which keeps the projection trivially consistent with the backend.
type ListReconciler struct {
	userID  string
	backend ListBackend
	hub     *ws.Hub

	mu      sync.Mutex
	entries []Entry
	epoch   uint64 // incremented per refresh start
	applied uint64 // epoch of the snapshot currently held
}

func NewListReconciler(userID string, backend ListBackend, hub *ws.Hub) *ListReconciler {
	return &ListReconciler{userID: userID, backend: backend, hub: hub}
}

// Refresh refetches the full list. Overlapping refreshes are resolved by
// epoch: a snapshot is dropped when a newer one has already been applied, so
// a slow early fetch can never overwrite a fresher list.
func (l *ListReconciler) Refresh(ctx context.Context) error {
	defer logger.DeferLogDuration("list.Refresh", time.Now())()

	l.mu.Lock()
	l.epoch++
	e := l.epoch
	l.mu.Unlock()

	details, err := l.backend.ChatDetailsFor(ctx, l.userID)
	if err != nil {
		return fmt.Errorf("list.Refresh: %w", err)
	}
	ids := make([]string, 0, len(details))
	for _, d := range details {
		ids = append(ids, d.Chat.ID)
	}
	latest, err := l.backend.LatestByChat(ctx, ids)
	if err != nil {
		return fmt.Errorf("list.Refresh: %w", err)
	}
	entries := Derive(details, latest, l.userID)

	l.mu.Lock()
	defer l.mu.Unlock()
	if e <= l.applied {
		return nil // superseded by a newer snapshot
	}
	l.applied = e
	l.entries = entries
	return nil
}

// Entries returns the current list, filtered.
func (l *ListReconciler) Entries(f Filter) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Run subscribes to the user's event stream and refetches on every event
// that can change the list, until ctx is done.
func (l *ListReconciler) Run(ctx context.Context) {
	events, release := l.hub.Listen(l.userID)
	defer release()

	if err := l.Refresh(ctx); err != nil {
		logger.Errorf("list initial refresh for %s: %v", l.userID, err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !listRelevant(ev.Type) {
				continue
			}
			if err := l.Refresh(ctx); err != nil {
				logger.Errorf("list refresh for %s: %v", l.userID, err)
			}
		}
	}
}

func listRelevant(eventType string) bool {
	switch eventType {
	case ws.EventNewMessage, ws.EventChatCreated, ws.EventChatDeleted,
		ws.EventMemberAdded, ws.EventMemberRemoved, ws.EventChatLabelsChanged:
		return true
	}
	return false
}
