// Package resolver implements direct-chat resolution: find the existing
// one-on-one chat between two users or create it, never leaving a duplicate
// behind.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/chatdesk/internal/logger"
	"github.com/chatdesk/internal/model"
)

// Store is the narrow persistence surface the resolver needs. *repository
// types satisfy it; tests use an in-memory fake.
type Store interface {
	// ChatIDsOf returns the ids of every chat the user belongs to.
	ChatIDsOf(ctx context.Context, userID string) ([]string, error)
	// ChatIDsOfIn returns the subset of chatIDs the user belongs to.
	ChatIDsOfIn(ctx context.Context, userID string, chatIDs []string) ([]string, error)
	MemberCount(ctx context.Context, chatID string) (int, error)
	Get(ctx context.Context, chatID string) (*model.Chat, error)
	Create(ctx context.Context, name string, isGroup bool, createdBy string) (*model.Chat, error)
	AddMember(ctx context.Context, chatID, userID, role string) error
	Delete(ctx context.Context, chatID string) error
}

type ChatResolver struct {
	store Store
}

func New(store Store) *ChatResolver {
	return &ChatResolver{store: store}
}

// Resolve returns the id of the direct chat between currentUserID and
// targetUserID, creating it if none exists. created reports whether a new
// chat was made.
//
// A chat qualifies as "the" direct chat when both users are members, it is
// not a group, and it has exactly two members. Group chats that happen to
// contain both users never match.
//
// Creation is not transactional across the chat row and the two member rows;
// if adding a member fails the chat row is deleted so no orphan remains.
// Two racing calls can still each create a chat, the same way two browser
// tabs could; the list view deduplicates by participant so the duplicate is
// invisible until cleaned up.
func (r *ChatResolver) Resolve(ctx context.Context, currentUserID, targetUserID string) (chatID string, created bool, err error) {
	defer logger.DeferLogDuration("resolver.Resolve", time.Now())()

	if currentUserID == targetUserID {
		return "", false, fmt.Errorf("resolver.Resolve: cannot open a direct chat with yourself")
	}

	targetChats, err := r.store.ChatIDsOf(ctx, targetUserID)
	if err != nil {
		return "", false, fmt.Errorf("resolver.Resolve: %w", err)
	}

	shared, err := r.store.ChatIDsOfIn(ctx, currentUserID, targetChats)
	if err != nil {
		return "", false, fmt.Errorf("resolver.Resolve: %w", err)
	}
	// Deterministic candidate order regardless of store iteration order.
	sort.Strings(shared)

	for _, id := range shared {
		chat, err := r.store.Get(ctx, id)
		if err != nil {
			return "", false, fmt.Errorf("resolver.Resolve: %w", err)
		}
		if chat.IsGroup {
			continue
		}
		n, err := r.store.MemberCount(ctx, id)
		if err != nil {
			return "", false, fmt.Errorf("resolver.Resolve: %w", err)
		}
		if n == 2 {
			return id, false, nil
		}
	}

	chat, err := r.store.Create(ctx, "", false, currentUserID)
	if err != nil {
		return "", false, fmt.Errorf("resolver.Resolve: create: %w", err)
	}
	for _, uid := range []string{currentUserID, targetUserID} {
		if err := r.store.AddMember(ctx, chat.ID, uid, model.RoleMember); err != nil {
			if delErr := r.store.Delete(ctx, chat.ID); delErr != nil {
				logger.Errorf("resolver: cleanup of half-created chat %s: %v", chat.ID, delErr)
			}
			return "", false, fmt.Errorf("resolver.Resolve: add member: %w", err)
		}
	}
	return chat.ID, true, nil
}
