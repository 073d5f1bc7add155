package model

import "time"

// AttachmentType categorizes what an attachment URL points at.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentVideo    AttachmentType = "video"
	AttachmentDocument AttachmentType = "document"
	AttachmentAudio    AttachmentType = "audio"
)

type Message struct {
	ID             string         `json:"id"`
	ChatID         string         `json:"chat_id"`
	SenderID       string         `json:"sender_id"`
	Content        string         `json:"content"`
	AttachmentURL  string         `json:"attachment_url,omitempty"`
	AttachmentType AttachmentType `json:"attachment_type,omitempty"`
	AttachmentName string         `json:"attachment_name,omitempty"`
	IsRead         bool           `json:"is_read"`
	CreatedAt      time.Time      `json:"created_at"`
	Sender         *UserPublic    `json:"sender,omitempty"`

	// Pending marks an optimistic local entry that the backend has not
	// confirmed yet. Never persisted.
	Pending bool `json:"pending,omitempty"`
}
