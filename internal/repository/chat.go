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

type ChatRepo struct {
	db *pgxpool.Pool
}

func NewChatRepo(db *pgxpool.Pool) *ChatRepo {
	return &ChatRepo{db: db}
}

func (r *ChatRepo) Create(ctx context.Context, name string, isGroup bool, createdBy string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chatRepo.Create", time.Now())()

	c := &model.Chat{Name: name, IsGroup: isGroup, CreatedBy: createdBy}
	err := r.db.QueryRow(ctx, `
		INSERT INTO chats (name, is_group, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		name, isGroup, createdBy,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.Create: %w", err)
	}
	return c, nil
}

func (r *ChatRepo) Get(ctx context.Context, chatID string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chatRepo.Get", time.Now())()

	c := &model.Chat{}
	err := r.db.QueryRow(ctx, `
		SELECT id, name, is_group, created_by, created_at
		FROM chats WHERE id = $1`,
		chatID,
	).Scan(&c.ID, &c.Name, &c.IsGroup, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatRepo.Get: %w", err)
	}
	return c, nil
}

// Delete removes a chat row. Messages, members and label links go with it via
// ON DELETE CASCADE, but callers that need a deterministic order (group
// deletion) remove those explicitly first.
func (r *ChatRepo) Delete(ctx context.Context, chatID string) error {
	defer logger.DeferLogDuration("chatRepo.Delete", time.Now())()

	tag, err := r.db.Exec(ctx, `DELETE FROM chats WHERE id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("chatRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ChatIDsOf returns the ids of every chat the user belongs to.
func (r *ChatRepo) ChatIDsOf(ctx context.Context, userID string) ([]string, error) {
	defer logger.DeferLogDuration("chatRepo.ChatIDsOf", time.Now())()

	rows, err := r.db.Query(ctx,
		`SELECT chat_id FROM chat_members WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.ChatIDsOf: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows, "chatRepo.ChatIDsOf")
}

// ChatIDsOfIn returns the subset of chatIDs the user belongs to.
func (r *ChatRepo) ChatIDsOfIn(ctx context.Context, userID string, chatIDs []string) ([]string, error) {
	defer logger.DeferLogDuration("chatRepo.ChatIDsOfIn", time.Now())()

	if len(chatIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT chat_id FROM chat_members WHERE user_id = $1 AND chat_id = ANY($2)`,
		userID, chatIDs)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.ChatIDsOfIn: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows, "chatRepo.ChatIDsOfIn")
}

func (r *ChatRepo) MemberCount(ctx context.Context, chatID string) (int, error) {
	defer logger.DeferLogDuration("chatRepo.MemberCount", time.Now())()

	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM chat_members WHERE chat_id = $1`, chatID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("chatRepo.MemberCount: %w", err)
	}
	return n, nil
}

func (r *ChatRepo) MemberIDs(ctx context.Context, chatID string) ([]string, error) {
	defer logger.DeferLogDuration("chatRepo.MemberIDs", time.Now())()

	rows, err := r.db.Query(ctx,
		`SELECT user_id FROM chat_members WHERE chat_id = $1`, chatID)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.MemberIDs: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows, "chatRepo.MemberIDs")
}

// Members returns chat memberships joined with user profiles.
func (r *ChatRepo) Members(ctx context.Context, chatID string) ([]model.ChatMember, error) {
	defer logger.DeferLogDuration("chatRepo.Members", time.Now())()

	rows, err := r.db.Query(ctx, `
		SELECT m.chat_id, m.user_id, m.role, m.joined_at, m.last_read_at,
		       u.id, u.email, u.name, u.avatar_url
		FROM chat_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.chat_id = $1
		ORDER BY m.joined_at`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.Members: %w", err)
	}
	defer rows.Close()

	var members []model.ChatMember
	for rows.Next() {
		var m model.ChatMember
		var u model.UserPublic
		if err := rows.Scan(&m.ChatID, &m.UserID, &m.Role, &m.JoinedAt, &m.LastReadAt,
			&u.ID, &u.Email, &u.Name, &u.AvatarURL); err != nil {
			return nil, fmt.Errorf("chatRepo.Members scan: %w", err)
		}
		m.User = &u
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *ChatRepo) AddMember(ctx context.Context, chatID, userID, role string) error {
	defer logger.DeferLogDuration("chatRepo.AddMember", time.Now())()

	_, err := r.db.Exec(ctx, `
		INSERT INTO chat_members (chat_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, user_id) DO NOTHING`,
		chatID, userID, role,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.AddMember: %w", err)
	}
	return nil
}

func (r *ChatRepo) RemoveMember(ctx context.Context, chatID, userID string) error {
	defer logger.DeferLogDuration("chatRepo.RemoveMember", time.Now())()

	tag, err := r.db.Exec(ctx,
		`DELETE FROM chat_members WHERE chat_id = $1 AND user_id = $2`, chatID, userID)
	if err != nil {
		return fmt.Errorf("chatRepo.RemoveMember: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ChatRepo) RemoveAllMembers(ctx context.Context, chatID string) error {
	defer logger.DeferLogDuration("chatRepo.RemoveAllMembers", time.Now())()

	if _, err := r.db.Exec(ctx,
		`DELETE FROM chat_members WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("chatRepo.RemoveAllMembers: %w", err)
	}
	return nil
}

func (r *ChatRepo) GetMemberRole(ctx context.Context, chatID, userID string) (string, error) {
	defer logger.DeferLogDuration("chatRepo.GetMemberRole", time.Now())()

	var role string
	err := r.db.QueryRow(ctx,
		`SELECT role FROM chat_members WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("chatRepo.GetMemberRole: %w", err)
	}
	return role, nil
}

func (r *ChatRepo) UpdateMemberRole(ctx context.Context, chatID, userID, role string) error {
	defer logger.DeferLogDuration("chatRepo.UpdateMemberRole", time.Now())()

	tag, err := r.db.Exec(ctx,
		`UPDATE chat_members SET role = $3 WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID, role)
	if err != nil {
		return fmt.Errorf("chatRepo.UpdateMemberRole: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ChatRepo) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	defer logger.DeferLogDuration("chatRepo.IsMember", time.Now())()

	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_members WHERE chat_id = $1 AND user_id = $2)`,
		chatID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("chatRepo.IsMember: %w", err)
	}
	return exists, nil
}

func (r *ChatRepo) UpdateMemberLastRead(ctx context.Context, chatID, userID string) error {
	defer logger.DeferLogDuration("chatRepo.UpdateMemberLastRead", time.Now())()

	if _, err := r.db.Exec(ctx,
		`UPDATE chat_members SET last_read_at = now() WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID); err != nil {
		return fmt.Errorf("chatRepo.UpdateMemberLastRead: %w", err)
	}
	return nil
}

// ChatDetailsFor loads every chat the user belongs to, with members and
// labels, ordered by creation time. One query per relation, assembled in Go.
func (r *ChatRepo) ChatDetailsFor(ctx context.Context, userID string) ([]model.ChatDetail, error) {
	defer logger.DeferLogDuration("chatRepo.ChatDetailsFor", time.Now())()

	rows, err := r.db.Query(ctx, `
		SELECT c.id, c.name, c.is_group, c.created_by, c.created_at
		FROM chats c
		JOIN chat_members cm ON cm.chat_id = c.id
		WHERE cm.user_id = $1
		ORDER BY c.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.ChatDetailsFor: %w", err)
	}
	defer rows.Close()

	var details []model.ChatDetail
	var ids []string
	byID := map[string]int{}
	for rows.Next() {
		var c model.Chat
		if err := rows.Scan(&c.ID, &c.Name, &c.IsGroup, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("chatRepo.ChatDetailsFor scan: %w", err)
		}
		byID[c.ID] = len(details)
		ids = append(ids, c.ID)
		details = append(details, model.ChatDetail{Chat: c})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatRepo.ChatDetailsFor rows: %w", err)
	}
	if len(details) == 0 {
		return nil, nil
	}

	mrows, err := r.db.Query(ctx, `
		SELECT m.chat_id, m.user_id, m.role, m.joined_at, m.last_read_at,
		       u.id, u.email, u.name, u.avatar_url
		FROM chat_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.chat_id = ANY($1)
		ORDER BY m.joined_at`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.ChatDetailsFor members: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var m model.ChatMember
		var u model.UserPublic
		if err := mrows.Scan(&m.ChatID, &m.UserID, &m.Role, &m.JoinedAt, &m.LastReadAt,
			&u.ID, &u.Email, &u.Name, &u.AvatarURL); err != nil {
			return nil, fmt.Errorf("chatRepo.ChatDetailsFor members scan: %w", err)
		}
		m.User = &u
		i := byID[m.ChatID]
		details[i].Members = append(details[i].Members, m)
	}
	if err := mrows.Err(); err != nil {
		return nil, fmt.Errorf("chatRepo.ChatDetailsFor members rows: %w", err)
	}

	lrows, err := r.db.Query(ctx, `
		SELECT cl.chat_id, l.id, l.name, l.color, l.created_by, l.created_at
		FROM chat_labels cl
		JOIN labels l ON l.id = cl.label_id
		WHERE cl.chat_id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.ChatDetailsFor labels: %w", err)
	}
	defer lrows.Close()
	for lrows.Next() {
		var chatID string
		var l model.Label
		if err := lrows.Scan(&chatID, &l.ID, &l.Name, &l.Color, &l.CreatedBy, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("chatRepo.ChatDetailsFor labels scan: %w", err)
		}
		i := byID[chatID]
		details[i].Labels = append(details[i].Labels, l)
	}
	return details, lrows.Err()
}

func scanIDs(rows pgx.Rows, site string) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s scan: %w", site, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
