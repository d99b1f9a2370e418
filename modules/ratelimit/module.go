package ratelimit

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix prefixes every rate limit key in Redis.
const KeyPrefix = "dm:ratelimit:send:"

// Module owns the Redis connection behind the send limiter.
type Module struct {
	addr     string
	password string
	config   Config
	client   *redis.Client
	limiter  *SlidingWindowLimiter
	logger   types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a rate limiting module for the Redis server at addr.
func NewModule(addr, password string, config Config, logger types.Logger) *Module {
	return &Module{
		addr:     addr,
		password: password,
		config:   config,
		logger:   logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "ratelimit"
}

// Start connects to Redis and creates the limiter.
func (m *Module) Start(ctx context.Context) error {
	m.client = redis.NewClient(&redis.Options{
		Addr:     m.addr,
		Password: m.password,
	})
	if err := m.client.Ping(ctx).Err(); err != nil {
		_ = m.client.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	m.limiter = NewSlidingWindowLimiter(m.client, m.config, KeyPrefix)
	m.logger.Info("Rate limiter started", "addr", m.addr, "limit", m.config.Limit, "window", m.config.Window.String())
	return nil
}

// Stop closes the Redis connection.
func (m *Module) Stop(_ context.Context) error {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			m.logger.Error("Error closing Redis connection", "error", err)
		}
	}
	m.logger.Info("Rate limiter stopped")
	return nil
}

// Health pings Redis.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.client == nil {
		return mono.HealthStatus{Healthy: false, Message: "not started"}
	}
	if err := m.client.Ping(ctx).Err(); err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("redis unavailable: %v", err)}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"limit": m.config.Limit, "window": m.config.Window.String()},
	}
}

// Limiter returns the send limiter. It is nil until Start succeeds.
func (m *Module) Limiter() Limiter {
	if m.limiter == nil {
		return nil
	}
	return m.limiter
}

// Middleware returns the per-user send throttle. Requests pass through
// until the limiter is started.
func (m *Module) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		limiter := m.Limiter()
		if limiter == nil {
			return c.Next()
		}
		return PerUser(limiter, m.config.Limit, m.logger)(c)
	}
}
