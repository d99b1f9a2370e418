package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/campusmesh-dm/store"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module tracks heartbeats, open conversations and live sessions.
type Module struct {
	tracker  *Tracker
	views    *Views
	sessions *Sessions
	logger   types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a presence module over st.
func NewModule(st store.Store, staleAfter time.Duration, logger types.Logger) *Module {
	return &Module{
		tracker:  NewTracker(st, staleAfter),
		views:    NewViews(),
		sessions: NewSessions(),
		logger:   logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "presence"
}

// Views returns the active-view registry shared with messaging and the API.
func (m *Module) Views() *Views {
	return m.views
}

// Sessions returns the live session counter.
func (m *Module) Sessions() *Sessions {
	return m.sessions
}

// Tracker returns the heartbeat tracker.
func (m *Module) Tracker() *Tracker {
	return m.tracker
}

// RegisterServices registers the presence request/reply services.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceHeartbeat, json.Unmarshal, json.Marshal, m.handleHeartbeat,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceHeartbeat, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceOffline, json.Unmarshal, json.Marshal, m.handleOffline,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceOffline, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceStatus, json.Unmarshal, json.Marshal, m.handleStatus,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceStatus, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceStatuses, json.Unmarshal, json.Marshal, m.handleStatuses,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceStatuses, err)
	}

	m.logger.Info("Registered services",
		"services", []string{ServiceHeartbeat, ServiceOffline, ServiceStatus, ServiceStatuses})
	return nil
}

func (m *Module) handleHeartbeat(ctx context.Context, req HeartbeatRequest, _ *mono.Msg) (HeartbeatResponse, error) {
	rec, err := m.tracker.Heartbeat(ctx, req.UserID)
	if err != nil {
		return HeartbeatResponse{}, err
	}
	return HeartbeatResponse{Record: rec}, nil
}

// handleOffline is best-effort: store failures are logged, not returned.
func (m *Module) handleOffline(ctx context.Context, req OfflineRequest, _ *mono.Msg) (OfflineResponse, error) {
	if err := m.tracker.GoOffline(ctx, req.UserID); err != nil {
		m.logger.Warn("Failed to mark user offline", "userID", req.UserID, "error", err)
		return OfflineResponse{Success: false}, nil
	}
	return OfflineResponse{Success: true}, nil
}

func (m *Module) handleStatus(ctx context.Context, req StatusRequest, _ *mono.Msg) (StatusResponse, error) {
	st, err := m.tracker.Status(ctx, req.UserID)
	if err != nil {
		return StatusResponse{}, err
	}
	return StatusResponse{Status: st}, nil
}

func (m *Module) handleStatuses(ctx context.Context, req StatusesRequest, _ *mono.Msg) (StatusesResponse, error) {
	sts, err := m.tracker.Statuses(ctx, req.UserIDs)
	if err != nil {
		return StatusesResponse{}, err
	}
	return StatusesResponse{Statuses: sts}, nil
}

// Health reports the store backend and the number of live sessions.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if err := m.tracker.store.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("store unavailable: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"store":    m.tracker.store.Backend(),
			"sessions": m.sessions.Total(),
		},
	}
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Presence module started", "store", m.tracker.store.Backend())
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Presence module stopped")
	return nil
}
