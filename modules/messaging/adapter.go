package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/campusmesh-dm/domain/dm"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// MessagingPort defines the conversation operations available to other modules.
type MessagingPort interface {
	OpenConversation(ctx context.Context, userID, peerID string) (string, error)
	Send(ctx context.Context, conversationID, senderID, body string) (dm.Message, error)
	ListMessages(ctx context.Context, conversationID, requesterID string) ([]dm.Message, error)
	MarkSeen(ctx context.Context, conversationID, viewerID string) (int, error)
	UnreadCount(ctx context.Context, conversationID, userID string) (int, error)
	ListConversations(ctx context.Context, userID string) (dm.ConversationList, error)
	TotalUnread(ctx context.Context, userID string) (int, error)
	DeleteConversation(ctx context.Context, conversationID, requesterID string) error
}

var _ MessagingPort = (*Service)(nil)

// MessagingAdapter implements MessagingPort using the service container.
type MessagingAdapter struct {
	container mono.ServiceContainer
}

// NewMessagingAdapter creates a new MessagingAdapter.
func NewMessagingAdapter(container mono.ServiceContainer) MessagingPort {
	if container == nil {
		panic("messaging: ServiceContainer is nil")
	}
	return &MessagingAdapter{container: container}
}

// OpenConversation resolves the conversation id of a user pair.
func (a *MessagingAdapter) OpenConversation(ctx context.Context, userID, peerID string) (string, error) {
	req := OpenConversationRequest{UserID: userID, PeerID: peerID}
	var resp OpenConversationResponse
	if err := callService(ctx, a.container, ServiceOpenConversation, &req, &resp); err != nil {
		return "", fmt.Errorf("failed to open conversation: %w", err)
	}
	return resp.ConversationID, nil
}

// Send appends a message to a conversation.
func (a *MessagingAdapter) Send(ctx context.Context, conversationID, senderID, body string) (dm.Message, error) {
	req := SendMessageRequest{ConversationID: conversationID, SenderID: senderID, Body: body}
	var resp SendMessageResponse
	if err := callService(ctx, a.container, ServiceSendMessage, &req, &resp); err != nil {
		return dm.Message{}, fmt.Errorf("failed to send message: %w", err)
	}
	return resp.Message, nil
}

// ListMessages returns the ordered messages of a conversation.
func (a *MessagingAdapter) ListMessages(ctx context.Context, conversationID, requesterID string) ([]dm.Message, error) {
	req := ListMessagesRequest{ConversationID: conversationID, RequesterID: requesterID}
	var resp ListMessagesResponse
	if err := callService(ctx, a.container, ServiceListMessages, &req, &resp); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return resp.Messages, nil
}

// MarkSeen acknowledges every unseen message of a conversation.
func (a *MessagingAdapter) MarkSeen(ctx context.Context, conversationID, viewerID string) (int, error) {
	req := MarkSeenRequest{ConversationID: conversationID, ViewerID: viewerID}
	var resp MarkSeenResponse
	if err := callService(ctx, a.container, ServiceMarkSeen, &req, &resp); err != nil {
		return 0, fmt.Errorf("failed to mark seen: %w", err)
	}
	return resp.Marked, nil
}

// UnreadCount returns the unread count of one conversation.
func (a *MessagingAdapter) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	req := UnreadCountRequest{ConversationID: conversationID, UserID: userID}
	var resp UnreadCountResponse
	if err := callService(ctx, a.container, ServiceUnreadCount, &req, &resp); err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return resp.UnreadCount, nil
}

// ListConversations returns a user's conversations.
func (a *MessagingAdapter) ListConversations(ctx context.Context, userID string) (dm.ConversationList, error) {
	req := ListConversationsRequest{UserID: userID}
	var resp ListConversationsResponse
	if err := callService(ctx, a.container, ServiceListConversations, &req, &resp); err != nil {
		return dm.ConversationList{}, fmt.Errorf("failed to list conversations: %w", err)
	}
	return resp.List, nil
}

// TotalUnread returns a user's unread total.
func (a *MessagingAdapter) TotalUnread(ctx context.Context, userID string) (int, error) {
	req := TotalUnreadRequest{UserID: userID}
	var resp TotalUnreadResponse
	if err := callService(ctx, a.container, ServiceTotalUnread, &req, &resp); err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return resp.TotalUnread, nil
}

// DeleteConversation removes a conversation.
func (a *MessagingAdapter) DeleteConversation(ctx context.Context, conversationID, requesterID string) error {
	req := DeleteConversationRequest{ConversationID: conversationID, RequesterID: requesterID}
	var resp DeleteConversationResponse
	if err := callService(ctx, a.container, ServiceDeleteConversation, &req, &resp); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

func callService[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req *Req, resp *Resp) error {
	err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	)
	return dm.ClassifyRemote(err)
}
