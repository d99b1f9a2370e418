package messaging

import "github.com/example/campusmesh-dm/domain/dm"

// Service names.
const (
	ServiceOpenConversation   = "open-conversation"
	ServiceSendMessage        = "send-message"
	ServiceListMessages       = "list-messages"
	ServiceMarkSeen           = "mark-seen"
	ServiceUnreadCount        = "unread-count"
	ServiceListConversations  = "list-conversations"
	ServiceTotalUnread        = "total-unread"
	ServiceDeleteConversation = "delete-conversation"
)

// OpenConversationRequest is the request for resolving a conversation id.
type OpenConversationRequest struct {
	UserID string `json:"user_id"`
	PeerID string `json:"peer_id"`
}

// OpenConversationResponse is the response for resolving a conversation id.
type OpenConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

// SendMessageRequest is the request for sending a message.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Body           string `json:"body"`
}

// SendMessageResponse is the response for sending a message.
type SendMessageResponse struct {
	Message dm.Message `json:"message"`
}

// ListMessagesRequest is the request for a conversation's messages.
type ListMessagesRequest struct {
	ConversationID string `json:"conversation_id"`
	RequesterID    string `json:"requester_id"`
}

// ListMessagesResponse is the response for a conversation's messages.
type ListMessagesResponse struct {
	Messages []dm.Message `json:"messages"`
}

// MarkSeenRequest is the request for acknowledging a conversation.
type MarkSeenRequest struct {
	ConversationID string `json:"conversation_id"`
	ViewerID       string `json:"viewer_id"`
}

// MarkSeenResponse is the response for acknowledging a conversation.
type MarkSeenResponse struct {
	Marked int `json:"marked"`
}

// UnreadCountRequest is the request for one conversation's unread count.
type UnreadCountRequest struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// UnreadCountResponse is the response for one conversation's unread count.
type UnreadCountResponse struct {
	ConversationID string `json:"conversation_id"`
	UnreadCount    int    `json:"unread_count"`
	HasUnread      bool   `json:"has_unread"`
}

// ListConversationsRequest is the request for a user's conversations.
type ListConversationsRequest struct {
	UserID string `json:"user_id"`
}

// ListConversationsResponse is the response for a user's conversations.
type ListConversationsResponse struct {
	List dm.ConversationList `json:"list"`
}

// TotalUnreadRequest is the request for a user's unread total.
type TotalUnreadRequest struct {
	UserID string `json:"user_id"`
}

// TotalUnreadResponse is the response for a user's unread total.
type TotalUnreadResponse struct {
	TotalUnread int `json:"total_unread"`
}

// DeleteConversationRequest is the request for deleting a conversation.
type DeleteConversationRequest struct {
	ConversationID string `json:"conversation_id"`
	RequesterID    string `json:"requester_id"`
}

// DeleteConversationResponse is the response for deleting a conversation.
type DeleteConversationResponse struct {
	Success bool `json:"success"`
}
