package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/campusmesh-dm/domain/dm"
	"github.com/example/campusmesh-dm/store"
)

// messageRecord is the stored form of a message; id and receipts live in the key space.
type messageRecord struct {
	SenderID string    `json:"sender_id"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
}

// conversationRecord is the stored conversation header.
type conversationRecord struct {
	Participants       []string  `json:"participants"`
	LastMessagePreview string    `json:"last_message_preview"`
	LastActivityAt     time.Time `json:"last_activity_at"`
}

// summaryRecord is a user's stored directory entry.
type summaryRecord struct {
	ConversationID     string    `json:"conversation_id"`
	PeerID             string    `json:"peer_id"`
	LastMessagePreview string    `json:"last_message_preview"`
	LastActivityAt     time.Time `json:"last_activity_at"`
}

func conversationKey(conversationID string) string {
	return store.Key("conversations", conversationID)
}

func messagesPrefix(conversationID string) string {
	return store.Key("conversations", conversationID, "messages")
}

func messageKey(conversationID, messageID string) string {
	return store.Key("conversations", conversationID, "messages", messageID)
}

func seenKey(conversationID, messageID, viewerID string) string {
	return store.Key("conversations", conversationID, "messages", messageID, "seenBy", viewerID)
}

func userConversationsPrefix(userID string) string {
	return store.Key("userConversations", userID)
}

func userConversationKey(userID, conversationID string) string {
	return store.Key("userConversations", userID, conversationID)
}

// decodeMessages rebuilds the ordered log from the entries below the
// messages prefix of conversationID.
func decodeMessages(conversationID string, entries []store.Entry) ([]dm.Message, error) {
	prefix := messagesPrefix(conversationID)
	byID := make(map[string]*dm.Message)
	receipts := make(map[string]map[string]time.Time)

	for _, e := range entries {
		rest, ok := store.Relative(prefix, e.Key)
		if !ok {
			continue
		}
		switch {
		case len(rest) == 1:
			var rec messageRecord
			if err := json.Unmarshal(e.Value, &rec); err != nil {
				return nil, fmt.Errorf("failed to decode message %s: %w", rest[0], err)
			}
			byID[rest[0]] = &dm.Message{
				ID:             rest[0],
				ConversationID: conversationID,
				SenderID:       rec.SenderID,
				Body:           rec.Body,
				SentAt:         rec.SentAt,
			}
		case len(rest) == 3 && rest[1] == "seenBy":
			var at time.Time
			if err := json.Unmarshal(e.Value, &at); err != nil {
				return nil, fmt.Errorf("failed to decode receipt %s: %w", e.Key, err)
			}
			if receipts[rest[0]] == nil {
				receipts[rest[0]] = make(map[string]time.Time)
			}
			receipts[rest[0]][rest[2]] = at
		}
	}

	messages := make([]dm.Message, 0, len(byID))
	for id, m := range byID {
		if seen := receipts[id]; len(seen) > 0 {
			m.SeenBy = seen
		}
		messages = append(messages, *m)
	}
	dm.SortMessages(messages)
	return messages, nil
}

func decodeSummary(data []byte) (summaryRecord, error) {
	var rec summaryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to decode conversation summary: %w", err)
	}
	return rec, nil
}
