package notification

import "github.com/example/campusmesh-dm/domain/dm"

// Service names.
const (
	ServiceListNotifications    = "list-notifications"
	ServiceMarkNotificationRead = "mark-notification-read"
	ServiceUnreadNotifications  = "unread-notifications"
)

// ListNotificationsRequest is the request for a user's inbox.
type ListNotificationsRequest struct {
	UserID string `json:"user_id"`
}

// ListNotificationsResponse is the response for a user's inbox.
type ListNotificationsResponse struct {
	Notifications []dm.NotificationRecord `json:"notifications"`
}

// MarkNotificationReadRequest is the request for marking a notification read.
type MarkNotificationReadRequest struct {
	UserID         string `json:"user_id"`
	NotificationID string `json:"notification_id"`
}

// MarkNotificationReadResponse is the response for marking a notification read.
type MarkNotificationReadResponse struct {
	Notification dm.NotificationRecord `json:"notification"`
}

// UnreadNotificationsRequest is the request for a user's unread notification count.
type UnreadNotificationsRequest struct {
	UserID string `json:"user_id"`
}

// UnreadNotificationsResponse is the response for a user's unread notification count.
type UnreadNotificationsResponse struct {
	Unread int `json:"unread"`
}
