package dm

import (
	"regexp"
	"sort"
	"strings"
)

// Separator joins the two participant ids of a conversation id.
const Separator = "_"

// MaxUserIDLength bounds the length of a user id.
const MaxUserIDLength = 128

// User ids may not contain the separator nor store path delimiters.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9=-]+$`)

// ValidateUserID reports whether id can be used as a participant identifier.
func ValidateUserID(id string) error {
	if id == "" {
		return Validationf("user id is required")
	}
	if len(id) > MaxUserIDLength {
		return Validationf("user id exceeds %d characters", MaxUserIDLength)
	}
	if !userIDPattern.MatchString(id) {
		return Validationf("malformed user id %q", id)
	}
	return nil
}

// ConversationID returns the canonical id for the conversation between a
// and b. The pair is sorted so that ConversationID(a, b) == ConversationID(b, a).
// A self-chat (a == b) yields a distinct, valid id.
func ConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + Separator + pair[1]
}

// OpenConversationID validates both ids and returns their conversation id.
func OpenConversationID(userID, peerID string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	if err := ValidateUserID(peerID); err != nil {
		return "", err
	}
	return ConversationID(userID, peerID), nil
}

// Participants is the ordered pair of users in a conversation.
type Participants struct {
	First  string
	Second string
}

// ParseConversationID splits a canonical conversation id into its participants.
func ParseConversationID(conversationID string) (Participants, error) {
	parts := strings.Split(conversationID, Separator)
	if len(parts) != 2 {
		return Participants{}, Validationf("malformed conversation id %q", conversationID)
	}
	for _, p := range parts {
		if err := ValidateUserID(p); err != nil {
			return Participants{}, Validationf("malformed conversation id %q", conversationID)
		}
	}
	if parts[0] > parts[1] {
		return Participants{}, Validationf("conversation id %q is not canonical", conversationID)
	}
	return Participants{First: parts[0], Second: parts[1]}, nil
}

// Includes reports whether userID is one of the participants.
func (p Participants) Includes(userID string) bool {
	return userID == p.First || userID == p.Second
}

// IsSelf reports whether the conversation is a self-chat.
func (p Participants) IsSelf() bool {
	return p.First == p.Second
}

// Peer returns the other participant from userID's point of view.
// For a self-chat the peer is the user themself.
func (p Participants) Peer(userID string) string {
	if userID == p.First {
		return p.Second
	}
	return p.First
}

// Users returns the distinct participant ids.
func (p Participants) Users() []string {
	if p.IsSelf() {
		return []string{p.First}
	}
	return []string{p.First, p.Second}
}
