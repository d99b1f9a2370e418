package dm

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// MaxBodyLength is the maximum size of a message body in bytes.
const MaxBodyLength = 5000

// PreviewLength is the number of runes kept in a conversation preview.
const PreviewLength = 80

// ValidateBody rejects empty, whitespace-only, oversized or non UTF-8 bodies.
func ValidateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return Validationf("message body cannot be empty")
	}
	if len(body) > MaxBodyLength {
		return Validationf("message body exceeds %d bytes", MaxBodyLength)
	}
	if !utf8.ValidString(body) {
		return Validationf("message body is not valid UTF-8")
	}
	return nil
}

// Preview shortens a body for the conversation directory.
func Preview(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if utf8.RuneCountInString(body) <= PreviewLength {
		return body
	}
	runes := []rune(body)
	return string(runes[:PreviewLength-1]) + "…"
}

// SortMessages orders messages by (SentAt, ID) ascending in place.
func SortMessages(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if !messages[i].SentAt.Equal(messages[j].SentAt) {
			return messages[i].SentAt.Before(messages[j].SentAt)
		}
		return messages[i].ID < messages[j].ID
	})
}

// IsUnreadFor reports whether m counts as unread for userID.
func IsUnreadFor(m Message, userID string) bool {
	return m.SenderID != userID && !m.SeenByUser(userID)
}

// UnreadCount counts the messages not authored by, and not yet seen by, userID.
func UnreadCount(messages []Message, userID string) int {
	n := 0
	for _, m := range messages {
		if IsUnreadFor(m, userID) {
			n++
		}
	}
	return n
}

// Unseen returns the messages a viewer still has to acknowledge.
func Unseen(messages []Message, viewerID string) []Message {
	var out []Message
	for _, m := range messages {
		if IsUnreadFor(m, viewerID) {
			out = append(out, m)
		}
	}
	return out
}

// SortSummaries orders a directory by LastActivityAt descending, most recent first.
func SortSummaries(summaries []ConversationSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		if !summaries[i].LastActivityAt.Equal(summaries[j].LastActivityAt) {
			return summaries[i].LastActivityAt.After(summaries[j].LastActivityAt)
		}
		return summaries[i].ConversationID < summaries[j].ConversationID
	})
}

// TotalUnread sums the unread counts of a directory.
func TotalUnread(summaries []ConversationSummary) int {
	total := 0
	for _, s := range summaries {
		total += s.UnreadCount
	}
	return total
}
