package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/example/campusmesh-dm/config"
	"github.com/example/campusmesh-dm/modules/api"
	"github.com/example/campusmesh-dm/modules/auth"
	"github.com/example/campusmesh-dm/modules/directory"
	"github.com/example/campusmesh-dm/modules/messaging"
	"github.com/example/campusmesh-dm/modules/notification"
	"github.com/example/campusmesh-dm/modules/presence"
	"github.com/example/campusmesh-dm/modules/ratelimit"
	"github.com/example/campusmesh-dm/store"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

func main() {
	log.Println("=== CampusMesh DM - Fiber + NATS JetStream ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel := mono.LogLevelInfo
	if strings.EqualFold(cfg.LogLevel, "error") {
		logLevel = mono.LogLevelError
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(logLevel),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	st, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	// Create modules
	presenceModule := presence.NewModule(st, cfg.PresenceStaleAfter, logger)
	directoryModule := directory.NewModule(directory.Config{
		Driver:        cfg.DirectoryDriver,
		DSN:           cfg.DirectoryDSN,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		CacheTTL:      cfg.DisplayNameCacheTTL,
	}, logger)
	messagingModule := messaging.NewModule(st, presenceModule.Views(), logger)
	notificationModule, err := notification.NewModule(st, logger)
	if err != nil {
		log.Fatalf("Failed to create notification module: %v", err)
	}
	authModule := auth.NewModule(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, logger)
	apiModule := api.NewModule(api.Config{
		Addr:               cfg.HTTPAddr,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HeartbeatInterval:  cfg.PresenceHeartbeatInterval,
	}, logger)

	// Live queries, the view registry and the limiter are shared in process,
	// not through the ServiceContainer.
	apiModule.SetLiveQueries(messagingModule.Live(), notificationModule.Inbox())
	apiModule.SetPresenceRegistry(presenceModule.Views(), presenceModule.Sessions())

	var rateLimitModule *ratelimit.Module
	if cfg.RateLimitEnabled() {
		rateLimitModule = ratelimit.NewModule(cfg.RedisAddr, cfg.RedisPassword, ratelimit.Config{
			Limit:  cfg.SendRateLimit,
			Window: cfg.SendRateWindow,
		}, logger)
		apiModule.SetSendLimiter(rateLimitModule)
	}

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - presence, directory, auth: ServiceProviderModules
	// - messaging: conversations + event emitter (depends on directory)
	// - notification: event consumer for MessageSent/ConversationDeleted
	// - api: Driving adapter (Fiber HTTP/WebSocket server)
	app.Register(presenceModule)
	app.Register(directoryModule)
	app.Register(authModule)
	if rateLimitModule != nil {
		app.Register(rateLimitModule)
	}
	app.Register(messagingModule)
	app.Register(notificationModule)
	app.Register(apiModule)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg, st.Backend())

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				if err := app.Stop(ctx); err != nil {
					return err
				}
				return st.Close()
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.StoreBackend == config.StoreJetStream {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return store.NewJetStream(ctx, cfg.NATSURL, cfg.KVBucket)
	}
	return store.NewMemory(), nil
}

func printStartupInfo(cfg *config.Config, backend string) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Println("  - Event Bus: NATS JetStream (internal pubsub)")
	log.Printf("  - Store: %s", backend)
	log.Printf("  - Directory: %s", cfg.DirectoryDriver)
	if cfg.RateLimitEnabled() {
		log.Printf("  - Send rate limit: %d per %s (Redis %s)", cfg.SendRateLimit, cfg.SendRateWindow, cfg.RedisAddr)
	} else {
		log.Println("  - Send rate limit: disabled (REDIS_ADDR not set)")
	}
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost%s):", cfg.HTTPAddr)
	log.Println("  GET    /health                              - Health check")
	log.Println("  GET    /api/v1/conversations                - List conversations")
	log.Println("  POST   /api/v1/conversations/open           - Open a conversation")
	log.Println("  GET    /api/v1/conversations/:id/messages   - List messages")
	log.Println("  POST   /api/v1/conversations/:id/messages   - Send a message")
	log.Println("  POST   /api/v1/conversations/:id/seen       - Mark messages seen")
	log.Println("  GET    /api/v1/conversations/:id/unread     - Unread count")
	log.Println("  DELETE /api/v1/conversations/:id            - Delete a conversation")
	log.Println("  POST   /api/v1/presence/heartbeat           - Presence heartbeat")
	log.Println("  POST   /api/v1/presence/offline             - Go offline")
	log.Println("  GET    /api/v1/presence/:userId             - Presence status")
	log.Println("  GET    /api/v1/users/:userId/display-name   - Display name")
	log.Println("  PUT    /api/v1/profile                      - Update display name")
	log.Println("  GET    /api/v1/notifications                - List notifications")
	log.Println("  POST   /api/v1/notifications/:id/read       - Mark notification read")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost%s/ws?token=<jwt>):", cfg.HTTPAddr)
	log.Println("  Client frames: open, close, watch_conversations, unwatch_conversations, send, ping")
	log.Println("  Server frames: opened, messages, conversations, notification_count, sent, error, pong")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
