// Package api exposes the messaging core over REST and WebSocket.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/example/campusmesh-dm/modules/auth"
	"github.com/example/campusmesh-dm/modules/directory"
	"github.com/example/campusmesh-dm/modules/messaging"
	"github.com/example/campusmesh-dm/modules/notification"
	"github.com/example/campusmesh-dm/modules/presence"
	"github.com/example/campusmesh-dm/modules/ratelimit"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Config configures the HTTP server.
type Config struct {
	Addr               string
	CORSAllowedOrigins string
	HeartbeatInterval  time.Duration
}

// UnreadWatcher pushes a user's unread notification count.
type UnreadWatcher interface {
	WatchUnreadCount(ctx context.Context, userID string, emit func(count int) error) error
}

// SendLimiter throttles message sends.
type SendLimiter interface {
	Limiter() ratelimit.Limiter
	Middleware() fiber.Handler
}

// Module is the HTTP and WebSocket surface.
type Module struct {
	cfg    Config
	app    *fiber.App
	logger types.Logger

	// Request/reply ports, wired from dependency containers.
	messages      messaging.MessagingPort
	presence      presence.PresencePort
	directory     directory.DirectoryPort
	notifications notification.NotificationPort
	auth          auth.AuthPort

	// In-process collaborators, injected by main.
	live     messaging.LiveQueries
	unread   UnreadWatcher
	views    *presence.Views
	sessions *presence.Sessions
	limiter  SendLimiter
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the API module.
func NewModule(cfg Config, logger types.Logger) *Module {
	return &Module{
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"messaging", "presence", "directory", "notification", "auth"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "messaging":
		m.messages = messaging.NewMessagingAdapter(container)
	case "presence":
		m.presence = presence.NewPresenceAdapter(container)
	case "directory":
		m.directory = directory.NewDirectoryAdapter(container)
	case "notification":
		m.notifications = notification.NewNotificationAdapter(container)
	case "auth":
		m.auth = auth.NewAuthAdapter(container)
	}
}

// SetLiveQueries sets the push-based queries behind WebSocket sessions.
func (m *Module) SetLiveQueries(live messaging.LiveQueries, unread UnreadWatcher) {
	m.live = live
	m.unread = unread
}

// SetPresenceRegistry sets the shared active-view and session registries.
func (m *Module) SetPresenceRegistry(views *presence.Views, sessions *presence.Sessions) {
	m.views = views
	m.sessions = sessions
}

// SetSendLimiter enables send throttling.
func (m *Module) SetSendLimiter(limiter SendLimiter) {
	m.limiter = limiter
}

func (m *Module) checkWiring() error {
	switch {
	case m.messages == nil:
		return fmt.Errorf("messaging dependency not set")
	case m.presence == nil:
		return fmt.Errorf("presence dependency not set")
	case m.directory == nil:
		return fmt.Errorf("directory dependency not set")
	case m.notifications == nil:
		return fmt.Errorf("notification dependency not set")
	case m.auth == nil:
		return fmt.Errorf("auth dependency not set")
	case m.live == nil || m.unread == nil:
		return fmt.Errorf("live queries not set")
	case m.views == nil || m.sessions == nil:
		return fmt.Errorf("presence registry not set")
	}
	return nil
}

// Start builds the Fiber app and starts listening.
func (m *Module) Start(_ context.Context) error {
	if err := m.checkWiring(); err != nil {
		return err
	}
	m.app = m.buildApp()

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.cfg.Addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "addr", m.cfg.Addr)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (m *Module) Stop(ctx context.Context) error {
	if m.app != nil {
		if err := m.app.ShutdownWithContext(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Health reports whether the server is running.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{"addr": m.cfg.Addr}
	if m.sessions != nil {
		details["sessions"] = m.sessions.Total()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: details,
	}
}

func (m *Module) buildApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "CampusMesh DM",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: m.cfg.CORSAllowedOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.registerRoutes(app)
	return app
}

// registerRoutes sets up all HTTP and WebSocket routes.
func (m *Module) registerRoutes(app *fiber.App) {
	h := &Handlers{m: m}

	app.Get("/health", h.HealthCheck)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, auth.Middleware(m.auth))
	app.Get("/ws", websocket.New(m.handleWebSocket))

	v1 := app.Group("/api/v1", auth.Middleware(m.auth))

	v1.Get("/conversations", h.ListConversations)
	v1.Post("/conversations/open", h.OpenConversation)
	v1.Get("/conversations/:id/messages", h.ListMessages)
	v1.Post("/conversations/:id/messages", m.sendThrottle(), h.SendMessage)
	v1.Post("/conversations/:id/seen", h.MarkSeen)
	v1.Get("/conversations/:id/unread", h.UnreadCount)
	v1.Delete("/conversations/:id", h.DeleteConversation)

	v1.Post("/presence/heartbeat", h.Heartbeat)
	v1.Post("/presence/offline", h.GoOffline)
	v1.Get("/presence/:userId", h.PresenceStatus)

	v1.Get("/users/:userId/display-name", h.DisplayName)
	v1.Put("/profile", h.UpdateProfile)

	v1.Get("/notifications", h.ListNotifications)
	v1.Post("/notifications/:id/read", h.MarkNotificationRead)
}

func (m *Module) sendThrottle() fiber.Handler {
	if m.limiter == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return m.limiter.Middleware()
}

// errorHandler maps domain errors onto HTTP statuses.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code, kind := errorKind(err)
	message := err.Error()
	if code == fiber.StatusInternalServerError {
		message = "Internal Server Error"
	}
	if code >= fiber.StatusInternalServerError {
		m.logger.Error("HTTP error", "code", code, "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(ErrorResponse{
		Error:   kind,
		Message: message,
	})
}
