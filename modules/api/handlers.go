package api

import (
	"github.com/example/campusmesh-dm/modules/auth"
	"github.com/gofiber/fiber/v2"
)

// Handlers contains the REST handlers. Every route except /health runs
// behind auth.Middleware, so the caller id is always present.
type Handlers struct {
	m *Module
}

// HealthCheck handles health check requests (GET /health).
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "healthy",
		"service":  "campusmesh-dm",
		"sessions": h.m.sessions.Total(),
	})
}

// ListConversations handles GET /api/v1/conversations.
func (h *Handlers) ListConversations(c *fiber.Ctx) error {
	list, err := h.m.messages.ListConversations(c.UserContext(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// OpenConversation handles POST /api/v1/conversations/open.
func (h *Handlers) OpenConversation(c *fiber.Ctx) error {
	var req OpenConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	id, err := h.m.messages.OpenConversation(c.UserContext(), auth.UserID(c), req.PeerID)
	if err != nil {
		return err
	}
	return c.JSON(OpenConversationResponse{ConversationID: id})
}

// ListMessages handles GET /api/v1/conversations/:id/messages.
func (h *Handlers) ListMessages(c *fiber.Ctx) error {
	cid := c.Params("id")
	messages, err := h.m.messages.ListMessages(c.UserContext(), cid, auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(MessagesResponse{ConversationID: cid, Messages: messages})
}

// SendMessage handles POST /api/v1/conversations/:id/messages.
func (h *Handlers) SendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	msg, err := h.m.messages.Send(c.UserContext(), c.Params("id"), auth.UserID(c), req.Body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// MarkSeen handles POST /api/v1/conversations/:id/seen.
func (h *Handlers) MarkSeen(c *fiber.Ctx) error {
	n, err := h.m.messages.MarkSeen(c.UserContext(), c.Params("id"), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"marked": n})
}

// UnreadCount handles GET /api/v1/conversations/:id/unread.
func (h *Handlers) UnreadCount(c *fiber.Ctx) error {
	cid := c.Params("id")
	n, err := h.m.messages.UnreadCount(c.UserContext(), cid, auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(UnreadResponse{ConversationID: cid, UnreadCount: n, HasUnread: n > 0})
}

// DeleteConversation handles DELETE /api/v1/conversations/:id.
func (h *Handlers) DeleteConversation(c *fiber.Ctx) error {
	if err := h.m.messages.DeleteConversation(c.UserContext(), c.Params("id"), auth.UserID(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

// Heartbeat handles POST /api/v1/presence/heartbeat.
func (h *Handlers) Heartbeat(c *fiber.Ctx) error {
	rec, err := h.m.presence.Heartbeat(c.UserContext(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

// GoOffline handles POST /api/v1/presence/offline. It is best-effort.
func (h *Handlers) GoOffline(c *fiber.Ctx) error {
	userID := auth.UserID(c)
	if err := h.m.presence.GoOffline(c.UserContext(), userID); err != nil {
		h.m.logger.Warn("Failed to mark user offline", "userID", userID, "error", err)
		return c.JSON(fiber.Map{"success": false})
	}
	return c.JSON(fiber.Map{"success": true})
}

// PresenceStatus handles GET /api/v1/presence/:userId.
func (h *Handlers) PresenceStatus(c *fiber.Ctx) error {
	st, err := h.m.presence.Status(c.UserContext(), c.Params("userId"))
	if err != nil {
		return err
	}
	return c.JSON(st)
}

// DisplayName handles GET /api/v1/users/:userId/display-name.
func (h *Handlers) DisplayName(c *fiber.Ctx) error {
	userID := c.Params("userId")
	name, err := h.m.directory.ResolveDisplayName(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(DisplayNameResponse{UserID: userID, DisplayName: name})
}

// UpdateProfile handles PUT /api/v1/profile.
func (h *Handlers) UpdateProfile(c *fiber.Ctx) error {
	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	profile, err := h.m.directory.UpdateProfile(c.UserContext(), auth.UserID(c), req.DisplayName)
	if err != nil {
		return err
	}
	return c.JSON(profile)
}

// ListNotifications handles GET /api/v1/notifications.
func (h *Handlers) ListNotifications(c *fiber.Ctx) error {
	records, err := h.m.notifications.List(c.UserContext(), auth.UserID(c))
	if err != nil {
		return err
	}
	unread := 0
	for _, r := range records {
		if !r.Read {
			unread++
		}
	}
	return c.JSON(NotificationsResponse{Notifications: records, Unread: unread})
}

// MarkNotificationRead handles POST /api/v1/notifications/:id/read.
func (h *Handlers) MarkNotificationRead(c *fiber.Ctx) error {
	rec, err := h.m.notifications.MarkRead(c.UserContext(), auth.UserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(rec)
}
