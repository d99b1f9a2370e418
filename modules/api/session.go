package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/example/campusmesh-dm/domain/dm"
	"github.com/example/campusmesh-dm/modules/auth"
	"github.com/example/campusmesh-dm/modules/ratelimit"
	"github.com/example/campusmesh-dm/store"
	"github.com/example/campusmesh-dm/subscription"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// offlineTimeout bounds the goOffline call made after the last session closes.
const offlineTimeout = 5 * time.Second

// frameConn is the part of a WebSocket connection a session uses.
type frameConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
}

// handleWebSocket serves one authenticated client connection.
func (m *Module) handleWebSocket(c *websocket.Conn) {
	defer c.Close()

	userID, _ := c.Locals(auth.UserIDLocal).(string)
	if userID == "" {
		return
	}
	newSession(m, userID, c).run(context.Background())
}

// session is one client connection. Live queries run under its own
// supervisor and end with the connection.
type session struct {
	id     string
	m      *Module
	userID string
	conn   frameConn
	subs   *subscription.Supervisor

	writeMu sync.Mutex

	// active is the conversation open in this session. It is only touched
	// by the read loop.
	active string
}

func newSession(m *Module, userID string, conn frameConn) *session {
	s := &session{
		id:     uuid.NewString(),
		m:      m,
		userID: userID,
		conn:   conn,
	}
	s.subs = subscription.NewSupervisor(m.logger, subscription.WithErrorHandler(func(_ subscription.Key, err error) {
		s.sendErr(err)
	}))
	return s
}

func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.connect(ctx)
	defer s.disconnect()

	if interval := s.m.cfg.HeartbeatInterval; interval > 0 {
		go s.heartbeatLoop(ctx, interval)
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.m.logger.Error("WebSocket error", "session", s.id, "userID", s.userID, "error", err)
			}
			return
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError("validation", "Invalid message format")
			continue
		}
		s.handle(ctx, msg)
	}
}

func (s *session) connect(ctx context.Context) {
	n := s.m.sessions.Open(s.userID)
	s.heartbeat(ctx)

	key := subscription.Key{Path: store.Key("notifications", s.userID), Subscriber: s.userID}
	_ = s.subs.Subscribe(key, func(ctx context.Context) error {
		return s.m.unread.WatchUnreadCount(ctx, s.userID, func(count int) error {
			return s.send(FrameNotificationCount, NotificationCountPayload{Unread: count})
		})
	})

	s.m.logger.Info("WebSocket connected", "session", s.id, "userID", s.userID, "sessions", n)
}

func (s *session) disconnect() {
	s.subs.Close()
	if s.active != "" {
		s.m.views.ClearIf(s.userID, s.active)
	}

	if s.m.sessions.Close(s.userID) {
		ctx, cancel := context.WithTimeout(context.Background(), offlineTimeout)
		defer cancel()
		if err := s.m.presence.GoOffline(ctx, s.userID); err != nil {
			s.m.logger.Warn("Failed to mark user offline", "userID", s.userID, "error", err)
		}
	}

	s.m.logger.Info("WebSocket disconnected", "session", s.id, "userID", s.userID)
}

func (s *session) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.heartbeat(ctx)
		}
	}
}

func (s *session) heartbeat(ctx context.Context) {
	if _, err := s.m.presence.Heartbeat(ctx, s.userID); err != nil && ctx.Err() == nil {
		s.m.logger.Warn("Failed to record heartbeat", "userID", s.userID, "error", err)
	}
}

// handle processes one client frame.
func (s *session) handle(ctx context.Context, msg WebSocketMessage) {
	switch msg.Type {
	case FrameOpen:
		s.handleOpen(ctx, msg.Payload)
	case FrameClose:
		s.closeActive()
	case FrameWatchConversations:
		s.watchConversations()
	case FrameUnwatchConversations:
		s.subs.Unsubscribe(s.conversationsKey())
	case FrameSend:
		s.handleSend(ctx, msg.Payload)
	case FramePing:
		s.heartbeat(ctx)
		_ = s.send(FramePong, nil)
	default:
		s.sendError("validation", "Unknown message type: "+msg.Type)
	}
}

func (s *session) messagesKey(conversationID string) subscription.Key {
	return subscription.Key{Path: store.Key("conversations", conversationID, "messages"), Subscriber: s.userID}
}

func (s *session) conversationsKey() subscription.Key {
	return subscription.Key{Path: store.Key("userConversations", s.userID), Subscriber: s.userID}
}

func (s *session) handleOpen(ctx context.Context, payload json.RawMessage) {
	var req OpenPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError("validation", "Invalid open payload")
		return
	}

	cid, err := s.m.messages.OpenConversation(ctx, s.userID, req.PeerID)
	if err != nil {
		s.sendErr(err)
		return
	}

	if s.active != cid {
		s.closeActive()
	}
	s.active = cid
	s.m.views.SetActiveConversation(s.userID, cid)

	opened := OpenedPayload{ConversationID: cid, PeerID: req.PeerID}
	if name, err := s.m.directory.ResolveDisplayName(ctx, req.PeerID); err == nil {
		opened.PeerDisplayName = name
	}
	if st, err := s.m.presence.Status(ctx, req.PeerID); err == nil {
		opened.PeerPresence = &st
	}
	_ = s.send(FrameOpened, opened)

	key := s.messagesKey(cid)
	if s.subs.Has(key) {
		return
	}
	_ = s.subs.Subscribe(key, func(ctx context.Context) error {
		return s.m.live.WatchMessages(ctx, cid, s.userID, true, func(messages []dm.Message) error {
			return s.send(FrameMessages, MessagesResponse{ConversationID: cid, Messages: messages})
		})
	})
}

// closeActive stops viewing the open conversation, if any.
func (s *session) closeActive() {
	if s.active == "" {
		return
	}
	s.subs.Unsubscribe(s.messagesKey(s.active))
	s.m.views.ClearIf(s.userID, s.active)
	s.active = ""
}

func (s *session) watchConversations() {
	key := s.conversationsKey()
	if s.subs.Has(key) {
		return
	}
	_ = s.subs.Subscribe(key, func(ctx context.Context) error {
		return s.m.live.WatchConversations(ctx, s.userID, func(list dm.ConversationList) error {
			return s.send(FrameConversations, list)
		})
	})
}

func (s *session) handleSend(ctx context.Context, payload json.RawMessage) {
	if s.active == "" {
		s.sendError("validation", "No conversation open")
		return
	}

	var req SendPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError("validation", "Invalid send payload")
		return
	}

	if s.m.limiter != nil {
		if limiter := s.m.limiter.Limiter(); limiter != nil {
			res, err := limiter.Allow(ctx, s.userID)
			switch {
			case err != nil:
				s.m.logger.Warn("Rate limiter unavailable", "userID", s.userID, "error", err)
			case !res.Allowed:
				s.sendError("rate_limited", fmt.Sprintf("Rate limit exceeded. Please retry after %d seconds.", ratelimit.RetryAfterSeconds(res)))
				return
			}
		}
	}

	msg, err := s.m.messages.Send(ctx, s.active, s.userID, req.Body)
	if err != nil {
		s.sendErr(err)
		return
	}
	_ = s.send(FrameSent, msg)
}

// send writes a typed frame. It is safe for concurrent use.
func (s *session) send(frameType string, data any) error {
	msg := WebSocketMessage{Type: frameType}
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", frameType, err)
		}
		msg.Payload = payload
	}
	return s.write(msg)
}

func (s *session) sendErr(err error) {
	_, code := errorKind(err)
	s.sendError(code, err.Error())
}

func (s *session) sendError(code, message string) {
	if err := s.write(WebSocketMessage{Type: FrameError, Error: message, Code: code}); err != nil {
		s.m.logger.Error("Failed to send error message", "userID", s.userID, "error", err)
	}
}

func (s *session) write(msg WebSocketMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal WebSocket message: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send WebSocket message: %w", err)
	}
	return nil
}
