// Package view holds the per-session read models: the chat list and the open
// conversation. Both subscribe to the realtime hub and refetch or merge on
// events; the pure derivation helpers here are shared with the HTTP handlers.
package view

import (
	"strconv"
	"strings"

	"github.com/chatdesk/internal/model"
)

// Entry is one row of the chat list.
type Entry struct {
	Detail      model.ChatDetail `json:"chat"`
	DisplayName string           `json:"display_name"`
	LastMessage *model.Message   `json:"last_message,omitempty"`
}

// Filter narrows the chat list. Zero value matches everything; set fields
// combine with AND.
type Filter struct {
	Search  string // case-insensitive substring of the display name
	LabelID string // chat must carry this label
	Kind    string // "group", "direct" or ""
}

// DisplayName derives what the list shows for a chat, from the viewpoint of
// currentUserID. Groups use their name, falling back to "Group (<n>)" with
// the member count. Direct chats use the other participant's name, then
// email, then a generic fallback.
func DisplayName(d model.ChatDetail, currentUserID string) string {
	if d.Chat.IsGroup {
		if d.Chat.Name != "" {
			return d.Chat.Name
		}
		return "Group (" + strconv.Itoa(len(d.Members)) + ")"
	}
	// Direct chats always show the peer; whatever the chat row is named is a
	// storage artifact and never displayed.
	if other := otherParticipant(d, currentUserID); other != nil {
		if other.Name != "" {
			return other.Name
		}
		if other.Email != "" {
			return other.Email
		}
	}
	return "Direct Message"
}

func otherParticipant(d model.ChatDetail, currentUserID string) *model.UserPublic {
	for _, m := range d.Members {
		if m.UserID != currentUserID && m.User != nil {
			return m.User
		}
	}
	return nil
}

// Dedupe removes duplicate rows from a raw chat slice: groups collapse by
// chat id, direct chats by the other participant, so two racing direct-chat
// creations never show twice. First occurrence wins; order is preserved.
func Dedupe(details []model.ChatDetail, currentUserID string) []model.ChatDetail {
	seenChat := make(map[string]bool)
	seenPeer := make(map[string]bool)
	out := details[:0:0]
	for _, d := range details {
		if seenChat[d.Chat.ID] {
			continue
		}
		if !d.Chat.IsGroup {
			if other := otherParticipant(d, currentUserID); other != nil {
				if seenPeer[other.ID] {
					continue
				}
				seenPeer[other.ID] = true
			}
		}
		seenChat[d.Chat.ID] = true
		out = append(out, d)
	}
	return out
}

// Matches reports whether an entry passes the filter.
func (f Filter) Matches(e Entry) bool {
	if f.Kind == "group" && !e.Detail.Chat.IsGroup {
		return false
	}
	if f.Kind == "direct" && e.Detail.Chat.IsGroup {
		return false
	}
	if f.LabelID != "" {
		found := false
		for _, l := range e.Detail.Labels {
			if l.ID == f.LabelID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Search != "" && !searchMatches(e, f.Search) {
		return false
	}
	return true
}

// searchMatches checks the display name, and for groups also every member's
// name, so "find the group Bob is in" works.
func searchMatches(e Entry, query string) bool {
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(e.DisplayName), q) {
		return true
	}
	if !e.Detail.Chat.IsGroup {
		return false
	}
	for _, m := range e.Detail.Members {
		if m.User != nil && strings.Contains(strings.ToLower(m.User.Name), q) {
			return true
		}
	}
	return false
}

// Derive turns raw chat details into deduplicated, named list entries.
func Derive(details []model.ChatDetail, latest map[string]model.Message, currentUserID string) []Entry {
	deduped := Dedupe(details, currentUserID)
	entries := make([]Entry, 0, len(deduped))
	for _, d := range deduped {
		e := Entry{Detail: d, DisplayName: DisplayName(d, currentUserID)}
		if m, ok := latest[d.Chat.ID]; ok {
			msg := m
			e.LastMessage = &msg
		}
		entries = append(entries, e)
	}
	return entries
}
