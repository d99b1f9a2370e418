// Package dm holds the direct-messaging domain: conversation identity,
// message and summary records, and the pure unread derivation.
package dm

import "time"

// Message is one entry of a conversation's message log.
type Message struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"conversation_id"`
	SenderID       string               `json:"sender_id"`
	Body           string               `json:"body"`
	SentAt         time.Time            `json:"sent_at"`
	SeenBy         map[string]time.Time `json:"seen_by,omitempty"`
}

// SeenByUser reports whether userID has acknowledged the message.
func (m Message) SeenByUser(userID string) bool {
	_, ok := m.SeenBy[userID]
	return ok
}

// ConversationSummary is a user's directory entry for one conversation.
type ConversationSummary struct {
	ConversationID     string    `json:"conversation_id"`
	PeerID             string    `json:"peer_id"`
	PeerDisplayName    string    `json:"peer_display_name,omitempty"`
	LastMessagePreview string    `json:"last_message_preview"`
	LastActivityAt     time.Time `json:"last_activity_at"`
	UnreadCount        int       `json:"unread_count"`
	HasUnread          bool      `json:"has_unread"`
}

// ConversationList is the directory of one user with the cross-conversation total.
type ConversationList struct {
	UserID        string                `json:"user_id"`
	Conversations []ConversationSummary `json:"conversations"`
	TotalUnread   int                   `json:"total_unread"`
}

// NotificationKind classifies inbox records.
type NotificationKind string

// NotificationKindMessage is created by message fan-out.
const NotificationKindMessage NotificationKind = "message"

// NotificationPayload references the conversation a notification is about.
type NotificationPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	Preview        string `json:"preview,omitempty"`
}

// NotificationRecord is an entry of a recipient's inbox.
type NotificationRecord struct {
	ID         string              `json:"id"`
	Kind       NotificationKind    `json:"kind"`
	FromUserID string              `json:"from_user_id"`
	Payload    NotificationPayload `json:"payload"`
	CreatedAt  time.Time           `json:"created_at"`
	Read       bool                `json:"read"`
}

// PresenceRecord is the last heartbeat state of a user.
type PresenceRecord struct {
	LastSeenAt time.Time `json:"last_seen_at"`
	IsOnline   bool      `json:"is_online"`
}

// StatusKind is the coarse presence bucket shown next to a user.
type StatusKind string

// Presence buckets, from most to least recent.
const (
	StatusActiveNow        StatusKind = "active_now"
	StatusActiveMinutesAgo StatusKind = "active_minutes_ago"
	StatusActiveHoursAgo   StatusKind = "active_hours_ago"
	StatusActiveDaysAgo    StatusKind = "active_days_ago"
	StatusLastSeenRecently StatusKind = "last_seen_recently"
)

// PresenceStatus is the derived presence of a user.
type PresenceStatus struct {
	UserID     string     `json:"user_id"`
	Kind       StatusKind `json:"kind"`
	Amount     int        `json:"amount,omitempty"`
	LastSeenAt time.Time  `json:"last_seen_at"`
	IsOnline   bool       `json:"is_online"`
	Label      string     `json:"label"`
}
