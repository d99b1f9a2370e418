package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// MessageSentEvent is emitted after a message has been appended to a conversation.
// RecipientViewing is sampled from the active-view registry at send time.
type MessageSentEvent struct {
	ConversationID   string    `json:"conversation_id"`
	MessageID        string    `json:"message_id"`
	SenderID         string    `json:"sender_id"`
	RecipientID      string    `json:"recipient_id"`
	Preview          string    `json:"preview"`
	SentAt           time.Time `json:"sent_at"`
	RecipientViewing bool      `json:"recipient_viewing"`
}

// ConversationDeletedEvent is emitted when a participant deletes a conversation.
type ConversationDeletedEvent struct {
	ConversationID string    `json:"conversation_id"`
	DeletedBy      string    `json:"deleted_by"`
	Participants   []string  `json:"participants"`
	DeletedAt      time.Time `json:"deleted_at"`
}

// ProfileUpdatedEvent is emitted when a user changes their display name.
type ProfileUpdatedEvent struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Event definitions for the messaging domain.
var (
	// Subject: events.messaging.v1.message-sent
	MessageSentV1 = helper.EventDefinition[MessageSentEvent](
		"messaging",
		"MessageSent",
		"v1",
	)

	ConversationDeletedV1 = helper.EventDefinition[ConversationDeletedEvent](
		"messaging",
		"ConversationDeleted",
		"v1",
	)

	ProfileUpdatedV1 = helper.EventDefinition[ProfileUpdatedEvent](
		"directory",
		"ProfileUpdated",
		"v1",
	)
)
