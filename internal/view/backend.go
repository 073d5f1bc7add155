package view

import (
	"context"

	"github.com/chatdesk/internal/model"
	"github.com/chatdesk/internal/repository"
)

// RepoBackend adapts the repositories to the reconciler interfaces.
type RepoBackend struct {
	Users    *repository.UserRepo
	Chats    *repository.ChatRepo
	Messages *repository.MessageRepo
	Labels   *repository.LabelRepo
}

var (
	_ ListBackend         = (*RepoBackend)(nil)
	_ ConversationBackend = (*RepoBackend)(nil)
)

func (b *RepoBackend) ChatDetailsFor(ctx context.Context, userID string) ([]model.ChatDetail, error) {
	return b.Chats.ChatDetailsFor(ctx, userID)
}

func (b *RepoBackend) LatestByChat(ctx context.Context, chatIDs []string) (map[string]model.Message, error) {
	return b.Messages.LatestByChat(ctx, chatIDs)
}

func (b *RepoBackend) ChatDetail(ctx context.Context, chatID string) (model.ChatDetail, error) {
	chat, err := b.Chats.Get(ctx, chatID)
	if err != nil {
		return model.ChatDetail{}, err
	}
	members, err := b.Chats.Members(ctx, chatID)
	if err != nil {
		return model.ChatDetail{}, err
	}
	return model.ChatDetail{Chat: *chat, Members: members}, nil
}

func (b *RepoBackend) ListByChat(ctx context.Context, chatID string) ([]model.Message, error) {
	return b.Messages.ListByChat(ctx, chatID)
}

func (b *RepoBackend) CreateMessage(ctx context.Context, m *model.Message) (*model.Message, error) {
	return b.Messages.Create(ctx, m)
}

func (b *RepoBackend) MarkRead(ctx context.Context, chatID, readerID string) error {
	return b.Messages.MarkRead(ctx, chatID, readerID)
}

func (b *RepoBackend) GetMemberRole(ctx context.Context, chatID, userID string) (string, error) {
	return b.Chats.GetMemberRole(ctx, chatID, userID)
}

func (b *RepoBackend) DeleteMessagesByChat(ctx context.Context, chatID string) error {
	return b.Messages.DeleteByChat(ctx, chatID)
}

func (b *RepoBackend) RemoveAllMembers(ctx context.Context, chatID string) error {
	return b.Chats.RemoveAllMembers(ctx, chatID)
}

func (b *RepoBackend) DetachAllLabels(ctx context.Context, chatID string) error {
	return b.Labels.DetachAll(ctx, chatID)
}

func (b *RepoBackend) DeleteChat(ctx context.Context, chatID string) error {
	return b.Chats.Delete(ctx, chatID)
}
