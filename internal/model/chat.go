package model

import "time"

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Chat struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsGroup   bool      `json:"is_group"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatMember struct {
	ChatID     string      `json:"chat_id"`
	UserID     string      `json:"user_id"`
	Role       string      `json:"role"`
	JoinedAt   time.Time   `json:"joined_at"`
	LastReadAt *time.Time  `json:"last_read_at,omitempty"`
	User       *UserPublic `json:"user,omitempty"`
}

// ChatDetail is a chat joined with its member list (profiles included) and
// labels, the shape the list and conversation views consume.
type ChatDetail struct {
	Chat    Chat         `json:"chat"`
	Members []ChatMember `json:"members"`
	Labels  []Label      `json:"labels"`
}
