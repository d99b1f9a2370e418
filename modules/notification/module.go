package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/campusmesh-dm/events"
	"github.com/example/campusmesh-dm/store"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module fans MessageSent events out into recipient inboxes.
type Module struct {
	store  store.Store
	inbox  *Inbox
	logger types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a notification module over st.
func NewModule(st store.Store, logger types.Logger) (*Module, error) {
	inbox, err := NewInbox(st)
	if err != nil {
		return nil, err
	}
	return &Module{
		store:  st,
		inbox:  inbox,
		logger: logger,
	}, nil
}

// Name returns the module name.
func (m *Module) Name() string {
	return "notification"
}

// Inbox returns the notification inbox.
func (m *Module) Inbox() *Inbox {
	return m.inbox
}

// RegisterEventConsumers registers event handlers for messaging events.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.MessageSentV1, m.handleMessageSent, m); err != nil {
		return fmt.Errorf("failed to register MessageSent consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.ConversationDeletedV1, m.handleConversationDeleted, m); err != nil {
		return fmt.Errorf("failed to register ConversationDeleted consumer: %w", err)
	}

	m.logger.Info("Registered event consumers", "events", []string{"MessageSent", "ConversationDeleted"})
	return nil
}

// handleMessageSent never fails the delivery: errors are logged and dropped.
func (m *Module) handleMessageSent(ctx context.Context, event events.MessageSentEvent, _ *mono.Msg) error {
	rec, err := m.inbox.Deliver(ctx, event)
	if err != nil {
		m.logger.Error("Failed to create notification",
			"recipientID", event.RecipientID,
			"messageID", event.MessageID,
			"error", err)
		return nil
	}
	if rec == nil {
		return nil
	}
	m.logger.Debug("Notification created", "recipientID", event.RecipientID, "notificationID", rec.ID, "read", rec.Read)
	return nil
}

func (m *Module) handleConversationDeleted(ctx context.Context, event events.ConversationDeletedEvent, _ *mono.Msg) error {
	for _, u := range event.Participants {
		if _, err := m.inbox.Purge(ctx, u, event.ConversationID); err != nil {
			m.logger.Warn("Failed to purge notifications", "userID", u, "conversationID", event.ConversationID, "error", err)
		}
	}
	return nil
}

// RegisterServices registers the inbox request/reply services.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListNotifications, json.Unmarshal, json.Marshal, m.listNotifications,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListNotifications, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceMarkNotificationRead, json.Unmarshal, json.Marshal, m.markNotificationRead,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceMarkNotificationRead, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceUnreadNotifications, json.Unmarshal, json.Marshal, m.unreadNotifications,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceUnreadNotifications, err)
	}

	m.logger.Info("Registered services",
		"services", []string{ServiceListNotifications, ServiceMarkNotificationRead, ServiceUnreadNotifications})
	return nil
}

func (m *Module) listNotifications(ctx context.Context, req ListNotificationsRequest, _ *mono.Msg) (ListNotificationsResponse, error) {
	records, err := m.inbox.List(ctx, req.UserID)
	if err != nil {
		return ListNotificationsResponse{}, err
	}
	return ListNotificationsResponse{Notifications: records}, nil
}

func (m *Module) markNotificationRead(ctx context.Context, req MarkNotificationReadRequest, _ *mono.Msg) (MarkNotificationReadResponse, error) {
	rec, err := m.inbox.MarkRead(ctx, req.UserID, req.NotificationID)
	if err != nil {
		return MarkNotificationReadResponse{}, err
	}
	return MarkNotificationReadResponse{Notification: rec}, nil
}

func (m *Module) unreadNotifications(ctx context.Context, req UnreadNotificationsRequest, _ *mono.Msg) (UnreadNotificationsResponse, error) {
	n, err := m.inbox.UnreadCount(ctx, req.UserID)
	if err != nil {
		return UnreadNotificationsResponse{}, err
	}
	return UnreadNotificationsResponse{Unread: n}, nil
}

// Health reports whether the store is reachable.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if err := m.store.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("store unavailable: %v", err),
		}
	}
	return mono.HealthStatus{Healthy: true, Message: "operational"}
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Notification module started - listening for message events")
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Notification module stopped")
	return nil
}
