package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/campusmesh-dm/domain/dm"
	"github.com/example/campusmesh-dm/events"
	"github.com/example/campusmesh-dm/modules/auth"
	"github.com/example/campusmesh-dm/modules/directory"
	"github.com/example/campusmesh-dm/modules/messaging"
	"github.com/example/campusmesh-dm/modules/notification"
	"github.com/example/campusmesh-dm/modules/presence"
	"github.com/example/campusmesh-dm/modules/ratelimit"
	"github.com/example/campusmesh-dm/store"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)          {}
func (m *mockLogger) Info(msg string, args ...any)           {}
func (m *mockLogger) Warn(msg string, args ...any)           {}
func (m *mockLogger) Error(msg string, args ...any)          {}
func (m *mockLogger) With(args ...any) types.Logger          { return m }
func (m *mockLogger) WithError(err error) types.Logger       { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

// inboxPublisher delivers messaging events straight into the inbox.
type inboxPublisher struct {
	inbox *notification.Inbox
}

func (p inboxPublisher) PublishMessageSent(event events.MessageSentEvent) error {
	_, err := p.inbox.Deliver(context.Background(), event)
	return err
}

func (p inboxPublisher) PublishConversationDeleted(event events.ConversationDeletedEvent) error {
	for _, u := range event.Participants {
		if _, err := p.inbox.Purge(context.Background(), u, event.ConversationID); err != nil {
			return err
		}
	}
	return nil
}

// fakeDirectory keeps profiles in memory and falls back to placeholders.
type fakeDirectory struct {
	mu    sync.Mutex
	names map[string]string
}

func (d *fakeDirectory) ResolveDisplayName(_ context.Context, userID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if name, ok := d.names[userID]; ok {
		return name, nil
	}
	return directory.Placeholder(userID), nil
}

func (d *fakeDirectory) ResolveDisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		out[id], _ = d.ResolveDisplayName(ctx, id)
	}
	return out, nil
}

func (d *fakeDirectory) UpdateProfile(_ context.Context, userID, displayName string) (*directory.Profile, error) {
	name, err := directory.ValidateDisplayName(displayName)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[userID] = name
	return &directory.Profile{UserID: userID, DisplayName: name}, nil
}

// denyLimiter rejects every send.
type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (*ratelimit.Result, error) {
	return &ratelimit.Result{
		Allowed:    false,
		ResetAt:    time.Now().Add(2 * time.Second),
		RetryAfter: 2 * time.Second,
	}, nil
}

type denySendLimiter struct{}

func (denySendLimiter) Limiter() ratelimit.Limiter { return denyLimiter{} }

func (denySendLimiter) Middleware() fiber.Handler {
	return ratelimit.PerUser(denyLimiter{}, 1, &mockLogger{})
}

type testEnv struct {
	m        *Module
	app      *fiber.App
	store    *store.Memory
	svc      *messaging.Service
	inbox    *notification.Inbox
	tracker  *presence.Tracker
	views    *presence.Views
	sessions *presence.Sessions
	verifier *auth.Verifier
}

// newTestEnv wires the api module to in-process services over one memory store.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewMemory()
	t.Cleanup(func() { _ = st.Close() })

	inbox, err := notification.NewInbox(st)
	require.NoError(t, err)

	views := presence.NewViews()
	sessions := presence.NewSessions()
	names := &fakeDirectory{names: make(map[string]string)}
	svc := messaging.NewService(st, views, names, inboxPublisher{inbox: inbox}, &mockLogger{})
	tracker := presence.NewTracker(st, time.Minute)
	verifier := auth.NewVerifier(auth.Config{
		Secret: "test-secret-key-that-is-at-least-32-bytes",
		Issuer: "campusmesh",
	})

	m := NewModule(Config{Addr: ":0", CORSAllowedOrigins: "*"}, &mockLogger{})
	m.messages = svc
	m.presence = tracker
	m.directory = names
	m.notifications = inbox
	m.auth = auth.LocalPort(verifier)
	m.SetLiveQueries(svc, inbox)
	m.SetPresenceRegistry(views, sessions)
	require.NoError(t, m.checkWiring())

	return &testEnv{
		m:        m,
		app:      m.buildApp(),
		store:    st,
		svc:      svc,
		inbox:    inbox,
		tracker:  tracker,
		views:    views,
		sessions: sessions,
		verifier: verifier,
	}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.verifier.Issue(userID, time.Hour)
	require.NoError(t, err)
	return token
}

// request performs an HTTP request as userID; an empty userID sends no token.
// A string body is sent verbatim, anything else as JSON.
func (e *testEnv) request(t *testing.T, method, path, userID string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[map[string]any](t, body)
	assert.Equal(t, "healthy", got["status"])
	assert.Equal(t, float64(0), got["sessions"])
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header"},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "garbage token", header: "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := env.app.Test(req, -1)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestConversationFlow(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodPost, "/api/v1/conversations/open", "alice", OpenConversationRequest{PeerID: "bob"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	cid := decode[OpenConversationResponse](t, body).ConversationID
	assert.Equal(t, "alice_bob", cid)

	resp, body = env.request(t, http.MethodPost, "/api/v1/conversations/"+cid+"/messages", "alice", SendMessageRequest{Body: "hello"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	sent := decode[dm.Message](t, body)
	assert.Equal(t, "alice", sent.SenderID)
	assert.Equal(t, "hello", sent.Body)
	assert.NotEmpty(t, sent.ID)

	resp, body = env.request(t, http.MethodGet, "/api/v1/conversations/"+cid+"/unread", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, UnreadResponse{ConversationID: cid, UnreadCount: 1, HasUnread: true}, decode[UnreadResponse](t, body))

	resp, body = env.request(t, http.MethodGet, "/api/v1/conversations", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[dm.ConversationList](t, body)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, "alice", list.Conversations[0].PeerID)
	assert.Equal(t, "User_alice", list.Conversations[0].PeerDisplayName)
	assert.Equal(t, "hello", list.Conversations[0].LastMessagePreview)
	assert.Equal(t, 1, list.TotalUnread)

	resp, body = env.request(t, http.MethodPost, "/api/v1/conversations/"+cid+"/seen", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), decode[map[string]any](t, body)["marked"])

	resp, body = env.request(t, http.MethodGet, "/api/v1/conversations/"+cid+"/messages", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	messages := decode[MessagesResponse](t, body)
	require.Len(t, messages.Messages, 1)
	assert.True(t, messages.Messages[0].SeenByUser("bob"))

	resp, body = env.request(t, http.MethodGet, "/api/v1/conversations/"+cid+"/unread", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, decode[UnreadResponse](t, body).UnreadCount)

	resp, _ = env.request(t, http.MethodDelete, "/api/v1/conversations/"+cid, "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.request(t, http.MethodGet, "/api/v1/conversations", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[dm.ConversationList](t, body).Conversations)
}

func TestErrorStatuses(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Send(context.Background(), "alice_bob", "alice", "hi")
	require.NoError(t, err)

	tests := []struct {
		name     string
		method   string
		path     string
		user     string
		body     any
		wantCode int
		wantKind string
	}{
		{
			name:     "stranger sends",
			method:   http.MethodPost,
			path:     "/api/v1/conversations/alice_bob/messages",
			user:     "carol",
			body:     SendMessageRequest{Body: "hi"},
			wantCode: http.StatusForbidden,
			wantKind: "not_participant",
		},
		{
			name:     "stranger reads",
			method:   http.MethodGet,
			path:     "/api/v1/conversations/alice_bob/messages",
			user:     "carol",
			wantCode: http.StatusForbidden,
			wantKind: "not_participant",
		},
		{
			name:     "empty body",
			method:   http.MethodPost,
			path:     "/api/v1/conversations/alice_bob/messages",
			user:     "alice",
			body:     SendMessageRequest{Body: "   "},
			wantCode: http.StatusBadRequest,
			wantKind: "validation",
		},
		{
			name:     "malformed conversation id",
			method:   http.MethodGet,
			path:     "/api/v1/conversations/a_b_c/messages",
			user:     "alice",
			wantCode: http.StatusBadRequest,
			wantKind: "validation",
		},
		{
			name:     "malformed peer",
			method:   http.MethodPost,
			path:     "/api/v1/conversations/open",
			user:     "alice",
			body:     OpenConversationRequest{PeerID: "bad_peer"},
			wantCode: http.StatusBadRequest,
			wantKind: "validation",
		},
		{
			name:     "invalid json",
			method:   http.MethodPost,
			path:     "/api/v1/conversations/open",
			user:     "alice",
			body:     "{",
			wantCode: http.StatusBadRequest,
			wantKind: "request_error",
		},
		{
			name:     "missing notification",
			method:   http.MethodPost,
			path:     "/api/v1/notifications/V1StGXR8_Z5jdHi6B-myT/read",
			user:     "alice",
			wantCode: http.StatusNotFound,
			wantKind: "not_found",
		},
		{
			name:     "empty display name",
			method:   http.MethodPut,
			path:     "/api/v1/profile",
			user:     "alice",
			body:     UpdateProfileRequest{DisplayName: " "},
			wantCode: http.StatusBadRequest,
			wantKind: "validation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.request(t, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.wantCode, resp.StatusCode, string(body))
			assert.Equal(t, tt.wantKind, decode[ErrorResponse](t, body).Error)
		})
	}
}

func TestNotificationRoutes(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Send(context.Background(), "alice_bob", "bob", "are you there?")
	require.NoError(t, err)

	resp, body := env.request(t, http.MethodGet, "/api/v1/notifications", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	inbox := decode[NotificationsResponse](t, body)
	require.Len(t, inbox.Notifications, 1)
	assert.Equal(t, 1, inbox.Unread)
	assert.Equal(t, "bob", inbox.Notifications[0].FromUserID)
	assert.Equal(t, "alice_bob", inbox.Notifications[0].Payload.ConversationID)

	id := inbox.Notifications[0].ID
	resp, body = env.request(t, http.MethodPost, "/api/v1/notifications/"+id+"/read", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.True(t, decode[dm.NotificationRecord](t, body).Read)

	resp, body = env.request(t, http.MethodGet, "/api/v1/notifications", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, decode[NotificationsResponse](t, body).Unread)
}

func TestPresenceRoutes(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodPost, "/api/v1/presence/heartbeat", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.True(t, decode[dm.PresenceRecord](t, body).IsOnline)

	resp, body = env.request(t, http.MethodGet, "/api/v1/presence/alice", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[dm.PresenceStatus](t, body)
	assert.Equal(t, dm.StatusActiveNow, st.Kind)
	assert.True(t, st.IsOnline)

	resp, body = env.request(t, http.MethodPost, "/api/v1/presence/offline", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode[map[string]any](t, body)["success"])

	resp, body = env.request(t, http.MethodGet, "/api/v1/presence/alice", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[dm.PresenceStatus](t, body).IsOnline)

	resp, body = env.request(t, http.MethodGet, "/api/v1/presence/nobody", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, dm.StatusLastSeenRecently, decode[dm.PresenceStatus](t, body).Kind)
}

func TestProfileRoutes(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodGet, "/api/v1/users/alice/display-name", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, DisplayNameResponse{UserID: "alice", DisplayName: "User_alice"}, decode[DisplayNameResponse](t, body))

	resp, body = env.request(t, http.MethodPut, "/api/v1/profile", "alice", UpdateProfileRequest{DisplayName: "  Alice  "})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "Alice", decode[directory.Profile](t, body).DisplayName)

	resp, body = env.request(t, http.MethodGet, "/api/v1/users/alice/display-name", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Alice", decode[DisplayNameResponse](t, body).DisplayName)
}

func TestSendRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.m.SetSendLimiter(denySendLimiter{})
	env.app = env.m.buildApp()

	resp, body := env.request(t, http.MethodPost, "/api/v1/conversations/alice_bob/messages", "alice", SendMessageRequest{Body: "hi"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode, string(body))
	assert.Equal(t, "2", resp.Header.Get("Retry-After"))

	messages, err := env.svc.ListMessages(context.Background(), "alice_bob", "alice")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{"fiber error", fiber.NewError(fiber.StatusBadRequest, "bad"), fiber.StatusBadRequest, "request_error"},
		{"validation", dm.Validationf("empty"), fiber.StatusBadRequest, "validation"},
		{"stranger send", dm.NotParticipantError("alice_bob", "carol"), fiber.StatusForbidden, "not_participant"},
		{"not found", fmt.Errorf("profile %w", dm.ErrNotFound), fiber.StatusNotFound, "not_found"},
		{"transient", fmt.Errorf("read: %w", dm.ErrTransientIO), fiber.StatusServiceUnavailable, "unavailable"},
		{"remote not participant", dm.ClassifyRemote(errors.New("not a participant: user carol")), fiber.StatusForbidden, "not_participant"},
		{"unknown", errors.New("boom"), fiber.StatusInternalServerError, "server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, kind := errorKind(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestModule_Wiring(t *testing.T) {
	m := NewModule(Config{Addr: ":0"}, &mockLogger{})
	assert.Equal(t, "api", m.Name())
	assert.ElementsMatch(t, []string{"messaging", "presence", "directory", "notification", "auth"}, m.Dependencies())
	assert.Error(t, m.Start(context.Background()))
	assert.False(t, m.Health(context.Background()).Healthy)
}

// fakeConn is an in-memory WebSocket connection. Closing in ends the read loop.
type fakeConn struct {
	in  chan []byte
	out chan WebSocketMessage

	// pending holds frames skipped by expect, in arrival order.
	pending []WebSocketMessage
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:  make(chan []byte, 16),
		out: make(chan WebSocketMessage, 256),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.in
	if !ok {
		return 0, nil, io.EOF
	}
	return websocket.TextMessage, data, nil
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	var msg WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	select {
	case c.out <- msg:
		return nil
	default:
		return errors.New("output buffer full")
	}
}

func (c *fakeConn) push(t *testing.T, frameType string, payload any) {
	t.Helper()
	msg := WebSocketMessage{Type: frameType}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		msg.Payload = data
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	c.in <- data
}

// expect returns the first frame of frameType that satisfies match. Frames
// that do not match are kept for later calls.
func (c *fakeConn) expect(t *testing.T, frameType string, match func(WebSocketMessage) bool) WebSocketMessage {
	t.Helper()
	matches := func(msg WebSocketMessage) bool {
		return msg.Type == frameType && (match == nil || match(msg))
	}

	for i, msg := range c.pending {
		if matches(msg) {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return msg
		}
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg := <-c.out:
			if matches(msg) {
				return msg
			}
			c.pending = append(c.pending, msg)
		case <-timeout:
			t.Fatalf("timed out waiting for %s frame", frameType)
			return WebSocketMessage{}
		}
	}
}

func payloadOf[T any](t *testing.T, msg WebSocketMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Payload, &v))
	return v
}

func messageCount(n int) func(WebSocketMessage) bool {
	return func(msg WebSocketMessage) bool {
		var resp MessagesResponse
		return json.Unmarshal(msg.Payload, &resp) == nil && len(resp.Messages) == n
	}
}

// startSession runs a session for userID and returns a func that ends it.
func startSession(t *testing.T, env *testEnv, userID string) (*fakeConn, func()) {
	t.Helper()
	conn := newFakeConn()
	done := make(chan struct{})
	go func() {
		newSession(env.m, userID, conn).run(context.Background())
		close(done)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(conn.in)
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("session did not stop")
			}
		})
	}
	t.Cleanup(stop)
	return conn, stop
}

func TestSession_OpenSendAndReceive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	conn, stop := startSession(t, env, "alice")
	conn.expect(t, FrameNotificationCount, nil)

	conn.push(t, FrameOpen, OpenPayload{PeerID: "bob"})
	opened := payloadOf[OpenedPayload](t, conn.expect(t, FrameOpened, nil))
	assert.Equal(t, "alice_bob", opened.ConversationID)
	assert.Equal(t, "bob", opened.PeerID)
	assert.Equal(t, "User_bob", opened.PeerDisplayName)
	require.NotNil(t, opened.PeerPresence)
	assert.Equal(t, dm.StatusLastSeenRecently, opened.PeerPresence.Kind)
	assert.True(t, env.views.IsViewing("alice", "alice_bob"))
	assert.Equal(t, 1, env.sessions.Count("alice"))

	conn.expect(t, FrameMessages, messageCount(0))

	conn.push(t, FrameSend, SendPayload{Body: "hi bob"})
	sent := payloadOf[dm.Message](t, conn.expect(t, FrameSent, nil))
	assert.Equal(t, "hi bob", sent.Body)
	conn.expect(t, FrameMessages, messageCount(1))

	_, err := env.svc.Send(ctx, "alice_bob", "bob", "hi alice")
	require.NoError(t, err)
	conn.expect(t, FrameMessages, messageCount(2))

	// The open view acknowledges incoming messages.
	assert.Eventually(t, func() bool {
		n, err := env.svc.UnreadCount(ctx, "alice_bob", "alice")
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	// A message delivered while viewing is already read.
	unread, err := env.inbox.UnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	conn.push(t, FramePing, nil)
	conn.expect(t, FramePong, nil)

	stop()
	assert.Equal(t, 0, env.sessions.Count("alice"))
	assert.False(t, env.views.IsViewing("alice", "alice_bob"))

	rec, err := env.tracker.Record(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.IsOnline)
}

func TestSession_Errors(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := startSession(t, env, "alice")

	conn.push(t, FrameSend, SendPayload{Body: "nobody is listening"})
	msg := conn.expect(t, FrameError, nil)
	assert.Equal(t, "validation", msg.Code)

	conn.push(t, "shout", nil)
	msg = conn.expect(t, FrameError, nil)
	assert.Equal(t, "validation", msg.Code)
	assert.Contains(t, msg.Error, "shout")

	conn.in <- []byte("{not json")
	msg = conn.expect(t, FrameError, nil)
	assert.Equal(t, "Invalid message format", msg.Error)

	conn.push(t, FrameOpen, OpenPayload{PeerID: "bad_peer"})
	msg = conn.expect(t, FrameError, nil)
	assert.Equal(t, "validation", msg.Code)
	assert.Empty(t, env.views.ActiveConversation("alice"))

	conn.push(t, FrameOpen, OpenPayload{PeerID: "bob"})
	conn.expect(t, FrameOpened, nil)
	conn.push(t, FrameSend, SendPayload{Body: ""})
	msg = conn.expect(t, FrameError, nil)
	assert.Equal(t, "validation", msg.Code)
}

func TestSession_RateLimitedSend(t *testing.T) {
	env := newTestEnv(t)
	env.m.SetSendLimiter(denySendLimiter{})
	conn, _ := startSession(t, env, "alice")

	conn.push(t, FrameOpen, OpenPayload{PeerID: "bob"})
	conn.expect(t, FrameOpened, nil)

	conn.push(t, FrameSend, SendPayload{Body: "spam"})
	msg := conn.expect(t, FrameError, nil)
	assert.Equal(t, "rate_limited", msg.Code)
	assert.Contains(t, msg.Error, "2 seconds")

	messages, err := env.svc.ListMessages(context.Background(), "alice_bob", "alice")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestSession_WatchConversations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conn, _ := startSession(t, env, "alice")

	conn.push(t, FrameWatchConversations, nil)
	first := payloadOf[dm.ConversationList](t, conn.expect(t, FrameConversations, nil))
	assert.Empty(t, first.Conversations)

	_, err := env.svc.Send(ctx, "alice_bob", "bob", "ping")
	require.NoError(t, err)

	conn.expect(t, FrameConversations, func(msg WebSocketMessage) bool {
		var list dm.ConversationList
		return json.Unmarshal(msg.Payload, &list) == nil && len(list.Conversations) == 1 && list.TotalUnread == 1
	})
	conn.expect(t, FrameNotificationCount, func(msg WebSocketMessage) bool {
		var p NotificationCountPayload
		return json.Unmarshal(msg.Payload, &p) == nil && p.Unread == 1
	})

	conn.push(t, FrameUnwatchConversations, nil)
	conn.push(t, FramePing, nil)
	conn.expect(t, FramePong, nil)
}

func TestSession_SecondDeviceKeepsUserOnline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	phone, stopPhone := startSession(t, env, "alice")
	laptop, _ := startSession(t, env, "alice")
	phone.expect(t, FrameNotificationCount, nil)
	laptop.expect(t, FrameNotificationCount, nil)
	assert.Equal(t, 2, env.sessions.Count("alice"))

	phone.push(t, FrameOpen, OpenPayload{PeerID: "bob"})
	phone.expect(t, FrameOpened, nil)
	laptop.push(t, FrameOpen, OpenPayload{PeerID: "carol"})
	laptop.expect(t, FrameOpened, nil)
	assert.Equal(t, "alice_carol", env.views.ActiveConversation("alice"))

	stopPhone()
	assert.Equal(t, 1, env.sessions.Count("alice"))
	assert.Equal(t, "alice_carol", env.views.ActiveConversation("alice"))

	rec, err := env.tracker.Record(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.IsOnline)
}
