package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/campusmesh-dm/domain/dm"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// NotificationPort defines the inbox operations available to other modules.
type NotificationPort interface {
	List(ctx context.Context, userID string) ([]dm.NotificationRecord, error)
	MarkRead(ctx context.Context, userID, notificationID string) (dm.NotificationRecord, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

var _ NotificationPort = (*Inbox)(nil)

// NotificationAdapter implements NotificationPort using the service container.
type NotificationAdapter struct {
	container mono.ServiceContainer
}

// NewNotificationAdapter creates a new NotificationAdapter.
func NewNotificationAdapter(container mono.ServiceContainer) NotificationPort {
	if container == nil {
		panic("notification: ServiceContainer is nil")
	}
	return &NotificationAdapter{container: container}
}

// List returns a user's notifications, newest first.
func (a *NotificationAdapter) List(ctx context.Context, userID string) ([]dm.NotificationRecord, error) {
	req := ListNotificationsRequest{UserID: userID}
	var resp ListNotificationsResponse
	if err := callService(ctx, a.container, ServiceListNotifications, &req, &resp); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return resp.Notifications, nil
}

// MarkRead flags one notification as read.
func (a *NotificationAdapter) MarkRead(ctx context.Context, userID, notificationID string) (dm.NotificationRecord, error) {
	req := MarkNotificationReadRequest{UserID: userID, NotificationID: notificationID}
	var resp MarkNotificationReadResponse
	if err := callService(ctx, a.container, ServiceMarkNotificationRead, &req, &resp); err != nil {
		return dm.NotificationRecord{}, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return resp.Notification, nil
}

// UnreadCount returns the number of unread notifications.
func (a *NotificationAdapter) UnreadCount(ctx context.Context, userID string) (int, error) {
	req := UnreadNotificationsRequest{UserID: userID}
	var resp UnreadNotificationsResponse
	if err := callService(ctx, a.container, ServiceUnreadNotifications, &req, &resp); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return resp.Unread, nil
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
