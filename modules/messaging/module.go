package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/campusmesh-dm/events"
	"github.com/example/campusmesh-dm/modules/directory"
	"github.com/example/campusmesh-dm/store"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module provides the conversation services and emits messaging events.
type Module struct {
	store    store.Store
	service  *Service
	eventBus mono.EventBus
	logger   types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ Publisher                  = (*Module)(nil)
)

// NewModule creates a messaging module over st. views samples whether a
// recipient has the conversation open at send time.
func NewModule(st store.Store, views ViewRegistry, logger types.Logger) *Module {
	m := &Module{
		store:  st,
		logger: logger,
	}
	m.service = NewService(st, views, nil, m, logger)
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return "messaging"
}

// Dependencies returns the modules this module depends on.
func (m *Module) Dependencies() []string {
	return []string{"directory"}
}

// SetDependencyServiceContainer wires the directory adapter for peer names.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	if dependency == "directory" {
		m.service.names = directory.NewDirectoryAdapter(container)
	}
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessageSentV1.ToBase(),
		events.ConversationDeletedV1.ToBase(),
	}
}

// PublishMessageSent publishes a MessageSent event.
func (m *Module) PublishMessageSent(event events.MessageSentEvent) error {
	if m.eventBus == nil {
		return fmt.Errorf("event bus not set")
	}
	return events.MessageSentV1.Publish(m.eventBus, event, nil)
}

// PublishConversationDeleted publishes a ConversationDeleted event.
func (m *Module) PublishConversationDeleted(event events.ConversationDeletedEvent) error {
	if m.eventBus == nil {
		return fmt.Errorf("event bus not set")
	}
	return events.ConversationDeletedV1.Publish(m.eventBus, event, nil)
}

// Live returns the push-based queries for client sessions.
func (m *Module) Live() LiveQueries {
	return m.service
}

// Service returns the messaging service.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterServices registers the messaging request/reply services.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceOpenConversation, json.Unmarshal, json.Marshal, m.openConversation,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceOpenConversation, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceSendMessage, json.Unmarshal, json.Marshal, m.sendMessage,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceSendMessage, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListMessages, json.Unmarshal, json.Marshal, m.listMessages,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListMessages, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceMarkSeen, json.Unmarshal, json.Marshal, m.markSeen,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceMarkSeen, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceUnreadCount, json.Unmarshal, json.Marshal, m.unreadCount,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceUnreadCount, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListConversations, json.Unmarshal, json.Marshal, m.listConversations,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListConversations, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceTotalUnread, json.Unmarshal, json.Marshal, m.totalUnread,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceTotalUnread, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceDeleteConversation, json.Unmarshal, json.Marshal, m.deleteConversation,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceDeleteConversation, err)
	}

	m.logger.Info("Registered services", "count", 8)
	return nil
}

func (m *Module) openConversation(ctx context.Context, req OpenConversationRequest, _ *mono.Msg) (OpenConversationResponse, error) {
	id, err := m.service.OpenConversation(ctx, req.UserID, req.PeerID)
	if err != nil {
		return OpenConversationResponse{}, err
	}
	return OpenConversationResponse{ConversationID: id}, nil
}

func (m *Module) sendMessage(ctx context.Context, req SendMessageRequest, _ *mono.Msg) (SendMessageResponse, error) {
	msg, err := m.service.Send(ctx, req.ConversationID, req.SenderID, req.Body)
	if err != nil {
		return SendMessageResponse{}, err
	}
	return SendMessageResponse{Message: msg}, nil
}

func (m *Module) listMessages(ctx context.Context, req ListMessagesRequest, _ *mono.Msg) (ListMessagesResponse, error) {
	messages, err := m.service.ListMessages(ctx, req.ConversationID, req.RequesterID)
	if err != nil {
		return ListMessagesResponse{}, err
	}
	return ListMessagesResponse{Messages: messages}, nil
}

func (m *Module) markSeen(ctx context.Context, req MarkSeenRequest, _ *mono.Msg) (MarkSeenResponse, error) {
	n, err := m.service.MarkSeen(ctx, req.ConversationID, req.ViewerID)
	if err != nil {
		return MarkSeenResponse{}, err
	}
	return MarkSeenResponse{Marked: n}, nil
}

func (m *Module) unreadCount(ctx context.Context, req UnreadCountRequest, _ *mono.Msg) (UnreadCountResponse, error) {
	n, err := m.service.UnreadCount(ctx, req.ConversationID, req.UserID)
	if err != nil {
		return UnreadCountResponse{}, err
	}
	return UnreadCountResponse{ConversationID: req.ConversationID, UnreadCount: n, HasUnread: n > 0}, nil
}

func (m *Module) listConversations(ctx context.Context, req ListConversationsRequest, _ *mono.Msg) (ListConversationsResponse, error) {
	list, err := m.service.ListConversations(ctx, req.UserID)
	if err != nil {
		return ListConversationsResponse{}, err
	}
	return ListConversationsResponse{List: list}, nil
}

func (m *Module) totalUnread(ctx context.Context, req TotalUnreadRequest, _ *mono.Msg) (TotalUnreadResponse, error) {
	n, err := m.service.TotalUnread(ctx, req.UserID)
	if err != nil {
		return TotalUnreadResponse{}, err
	}
	return TotalUnreadResponse{TotalUnread: n}, nil
}

func (m *Module) deleteConversation(ctx context.Context, req DeleteConversationRequest, _ *mono.Msg) (DeleteConversationResponse, error) {
	if err := m.service.DeleteConversation(ctx, req.ConversationID, req.RequesterID); err != nil {
		return DeleteConversationResponse{}, err
	}
	return DeleteConversationResponse{Success: true}, nil
}

// Start initializes the module.
func (m *Module) Start(_ context.Context) error {
	if m.eventBus == nil {
		m.logger.Warn("EventBus not set, MessageSent events will not be published")
	}
	m.logger.Info("Messaging module started", "store", m.store.Backend())
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Messaging module stopped")
	return nil
}

// Health reports whether the store is reachable.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if err := m.store.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("store unavailable: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"store": m.store.Backend(),
		},
	}
}
