package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/campusmesh-dm/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Config selects the profile database and the optional Redis cache.
type Config struct {
	Driver        string
	DSN           string
	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration
}

// Module resolves display names for the messaging surface.
type Module struct {
	cfg      Config
	repo     ProfileRepository
	cache    Cache
	resolver *Resolver
	eventBus mono.EventBus
	logger   types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
)

// NewModule creates a directory module that opens its repository on Start.
func NewModule(cfg Config, logger types.Logger) *Module {
	return &Module{cfg: cfg, logger: logger}
}

// NewModuleWithRepository creates a directory module over an open repository.
// This constructor enables dependency injection for testing.
func NewModuleWithRepository(repo ProfileRepository, cache Cache, ttl time.Duration, logger types.Logger) *Module {
	m := &Module{
		cfg:    Config{CacheTTL: ttl},
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
	m.resolver = NewResolver(repo, cache, ttl, logger)
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return "directory"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.ProfileUpdatedV1.ToBase(),
	}
}

// Resolver returns the display-name resolver.
func (m *Module) Resolver() *Resolver {
	return m.resolver
}

// RegisterServices registers the directory request/reply services.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceResolveDisplayName, json.Unmarshal, json.Marshal, m.handleResolveDisplayName,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceResolveDisplayName, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceResolveDisplayNames, json.Unmarshal, json.Marshal, m.handleResolveDisplayNames,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceResolveDisplayNames, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceUpdateProfile, json.Unmarshal, json.Marshal, m.handleUpdateProfile,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceUpdateProfile, err)
	}

	m.logger.Info("Registered services",
		"services", []string{ServiceResolveDisplayName, ServiceResolveDisplayNames, ServiceUpdateProfile})
	return nil
}

func (m *Module) handleResolveDisplayName(ctx context.Context, req ResolveDisplayNameRequest, _ *mono.Msg) (ResolveDisplayNameResponse, error) {
	name, err := m.resolver.ResolveDisplayName(ctx, req.UserID)
	if err != nil {
		return ResolveDisplayNameResponse{}, err
	}
	return ResolveDisplayNameResponse{UserID: req.UserID, DisplayName: name}, nil
}

func (m *Module) handleResolveDisplayNames(ctx context.Context, req ResolveDisplayNamesRequest, _ *mono.Msg) (ResolveDisplayNamesResponse, error) {
	names, err := m.resolver.ResolveDisplayNames(ctx, req.UserIDs)
	if err != nil {
		return ResolveDisplayNamesResponse{}, err
	}
	return ResolveDisplayNamesResponse{DisplayNames: names}, nil
}

func (m *Module) handleUpdateProfile(ctx context.Context, req UpdateProfileRequest, _ *mono.Msg) (UpdateProfileResponse, error) {
	p, err := m.resolver.UpdateProfile(ctx, req.UserID, req.DisplayName)
	if err != nil {
		return UpdateProfileResponse{}, err
	}

	if m.eventBus != nil {
		event := events.ProfileUpdatedEvent{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			UpdatedAt:   p.UpdatedAt,
		}
		if err := events.ProfileUpdatedV1.Publish(m.eventBus, event, nil); err != nil {
			m.logger.Warn("Failed to publish ProfileUpdated event", "userID", p.UserID, "error", err)
		}
	}

	m.logger.Info("Profile updated", "userID", p.UserID)
	return UpdateProfileResponse{Profile: p}, nil
}

// Start opens the profile repository and the optional cache.
func (m *Module) Start(ctx context.Context) error {
	if m.repo == nil {
		repo, err := OpenRepository(ctx, m.cfg.Driver, m.cfg.DSN)
		if err != nil {
			return err
		}
		m.repo = repo
		if m.cfg.RedisAddr != "" {
			m.cache = NewRedisCache(m.cfg.RedisAddr, m.cfg.RedisPassword)
		}
		m.resolver = NewResolver(m.repo, m.cache, m.cfg.CacheTTL, m.logger)
	}

	m.logger.Info("Directory module started",
		"driver", m.repo.Driver(),
		"cache", m.cache != nil)
	return nil
}

// Stop closes the repository and the cache.
func (m *Module) Stop(_ context.Context) error {
	if m.cache != nil {
		if err := m.cache.Close(); err != nil {
			m.logger.Warn("Failed to close display name cache", "error", err)
		}
	}
	if m.repo != nil {
		if err := m.repo.Close(); err != nil {
			return fmt.Errorf("failed to close profile repository: %w", err)
		}
	}
	m.logger.Info("Directory module stopped")
	return nil
}

// Health performs a health check on the profile database.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.repo == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "repository not initialized",
		}
	}

	if err := m.repo.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver": m.repo.Driver(),
			"cache":  m.cache != nil,
		},
	}
}
