// Package document turns chat messages into search documents.
package document

import "strings"

// SearchDocument is what gets indexed for one logical message.
// EventID is the primary key; an edit produces a document with the original
// message's EventID so that submitting it replaces the earlier version.
type SearchDocument struct {
	EventID           string `json:"event_id"`
	Body              string `json:"body"`
	ExternalURL       string `json:"external_url,omitempty"`
	SenderID          string `json:"sender_id"`
	SenderDisplayName string `json:"sender_display_name,omitempty"`
	SenderAvatar      string `json:"sender_avatar,omitempty"`
	Timestamp         int64  `json:"timestamp"`
	RoomID            string `json:"room_id"`
	OCRBody           string `json:"ocr_body,omitempty"`
}

// NormalizeEventID strips the protocol's "$" sigil from an event id.
func NormalizeEventID(id string) string {
	return strings.TrimPrefix(id, "$")
}
