package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatdesk/internal/logger"
	"github.com/chatdesk/internal/model"
)

type MessageRepo struct {
	db *pgxpool.Pool
}

func NewMessageRepo(db *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) Create(ctx context.Context, m *model.Message) (*model.Message, error) {
	defer logger.DeferLogDuration("messageRepo.Create", time.Now())()

	out := *m
	err := r.db.QueryRow(ctx, `
		INSERT INTO messages (chat_id, sender_id, content, attachment_url, attachment_type, attachment_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		m.ChatID, m.SenderID, m.Content, m.AttachmentURL, m.AttachmentType, m.AttachmentName,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.Create: %w", err)
	}
	return &out, nil
}

func (r *MessageRepo) Get(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("messageRepo.Get", time.Now())()

	m := &model.Message{}
	err := r.db.QueryRow(ctx, `
		SELECT id, chat_id, sender_id, content, attachment_url, attachment_type, attachment_name, is_read, created_at
		FROM messages WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.AttachmentURL,
		&m.AttachmentType, &m.AttachmentName, &m.IsRead, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("messageRepo.Get: %w", err)
	}
	return m, nil
}

// ListByChat returns all of a chat's messages with sender profiles, oldest
// first, the order the conversation log renders in.
func (r *MessageRepo) ListByChat(ctx context.Context, chatID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("messageRepo.ListByChat", time.Now())()

	rows, err := r.db.Query(ctx, `
		SELECT m.id, m.chat_id, m.sender_id, m.content, m.attachment_url,
		       m.attachment_type, m.attachment_name, m.is_read, m.created_at,
		       u.id, u.email, u.name, u.avatar_url
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = $1
		ORDER BY m.created_at ASC, m.id ASC`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListByChat: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var u model.UserPublic
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.AttachmentURL,
			&m.AttachmentType, &m.AttachmentName, &m.IsRead, &m.CreatedAt,
			&u.ID, &u.Email, &u.Name, &u.AvatarURL); err != nil {
			return nil, fmt.Errorf("messageRepo.ListByChat scan: %w", err)
		}
		m.Sender = &u
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// LatestByChat returns the newest message per chat, for list previews.
func (r *MessageRepo) LatestByChat(ctx context.Context, chatIDs []string) (map[string]model.Message, error) {
	defer logger.DeferLogDuration("messageRepo.LatestByChat", time.Now())()

	if len(chatIDs) == 0 {
		return map[string]model.Message{}, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT ON (chat_id)
		       id, chat_id, sender_id, content, attachment_url, attachment_type, attachment_name, is_read, created_at
		FROM messages
		WHERE chat_id = ANY($1)
		ORDER BY chat_id, created_at DESC, id DESC`,
		chatIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.LatestByChat: %w", err)
	}
	defer rows.Close()

	latest := make(map[string]model.Message, len(chatIDs))
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.AttachmentURL,
			&m.AttachmentType, &m.AttachmentName, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("messageRepo.LatestByChat scan: %w", err)
		}
		latest[m.ChatID] = m
	}
	return latest, rows.Err()
}

// MarkRead flags all messages in a chat not sent by the user as read.
func (r *MessageRepo) MarkRead(ctx context.Context, chatID, readerID string) error {
	defer logger.DeferLogDuration("messageRepo.MarkRead", time.Now())()

	if _, err := r.db.Exec(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE chat_id = $1 AND sender_id <> $2 AND NOT is_read`,
		chatID, readerID); err != nil {
		return fmt.Errorf("messageRepo.MarkRead: %w", err)
	}
	return nil
}

func (r *MessageRepo) DeleteByChat(ctx context.Context, chatID string) error {
	defer logger.DeferLogDuration("messageRepo.DeleteByChat", time.Now())()

	if _, err := r.db.Exec(ctx,
		`DELETE FROM messages WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("messageRepo.DeleteByChat: %w", err)
	}
	return nil
}
