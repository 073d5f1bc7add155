package model

import "time"

// Label is a global catalogue entry; chats reference labels through the
// chat_labels join table.
type Label struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatLabel struct {
	ChatID  string `json:"chat_id"`
	LabelID string `json:"label_id"`
	Label   *Label `json:"label,omitempty"`
}
