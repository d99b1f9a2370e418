package api

import (
	"encoding/json"

	"github.com/example/campusmesh-dm/domain/dm"
)

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// OpenConversationRequest is the API request to open a conversation.
type OpenConversationRequest struct {
	PeerID string `json:"peer_id"`
}

// OpenConversationResponse is the API response for an opened conversation.
type OpenConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

// SendMessageRequest is the API request to send a message.
type SendMessageRequest struct {
	Body string `json:"body"`
}

// MessagesResponse is the API response for a conversation's messages.
type MessagesResponse struct {
	ConversationID string       `json:"conversation_id"`
	Messages       []dm.Message `json:"messages"`
}

// UnreadResponse is the API response for one conversation's unread count.
type UnreadResponse struct {
	ConversationID string `json:"conversation_id"`
	UnreadCount    int    `json:"unread_count"`
	HasUnread      bool   `json:"has_unread"`
}

// DisplayNameResponse is the API response for a resolved display name.
type DisplayNameResponse struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// UpdateProfileRequest is the API request to change the caller's display name.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// NotificationsResponse is the API response for the caller's inbox.
type NotificationsResponse struct {
	Notifications []dm.NotificationRecord `json:"notifications"`
	Unread        int                     `json:"unread"`
}

// Client frame types.
const (
	FrameOpen                 = "open"
	FrameClose                = "close"
	FrameWatchConversations   = "watch_conversations"
	FrameUnwatchConversations = "unwatch_conversations"
	FrameSend                 = "send"
	FramePing                 = "ping"
)

// Server frame types.
const (
	FrameOpened            = "opened"
	FrameMessages          = "messages"
	FrameConversations     = "conversations"
	FrameNotificationCount = "notification_count"
	FrameSent              = "sent"
	FrameError             = "error"
	FramePong              = "pong"
)

// WebSocketMessage is one frame exchanged over the WebSocket.
type WebSocketMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// OpenPayload is the payload of an open frame.
type OpenPayload struct {
	PeerID string `json:"peer_id"`
}

// SendPayload is the payload of a send frame.
type SendPayload struct {
	Body string `json:"body"`
}

// OpenedPayload confirms the conversation a session is viewing.
type OpenedPayload struct {
	ConversationID  string             `json:"conversation_id"`
	PeerID          string             `json:"peer_id"`
	PeerDisplayName string             `json:"peer_display_name,omitempty"`
	PeerPresence    *dm.PresenceStatus `json:"peer_presence,omitempty"`
}

// NotificationCountPayload carries the caller's unread notification count.
type NotificationCountPayload struct {
	Unread int `json:"unread"`
}
