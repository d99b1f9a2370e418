package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/campusmesh-dm/domain/dm"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// PresencePort defines the presence operations available to other modules.
type PresencePort interface {
	Heartbeat(ctx context.Context, userID string) (dm.PresenceRecord, error)
	GoOffline(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (dm.PresenceStatus, error)
	Statuses(ctx context.Context, userIDs []string) ([]dm.PresenceStatus, error)
}

// PresenceAdapter implements PresencePort using the service container.
type PresenceAdapter struct {
	container mono.ServiceContainer
}

// NewPresenceAdapter creates a new PresenceAdapter.
func NewPresenceAdapter(container mono.ServiceContainer) PresencePort {
	if container == nil {
		panic("presence: ServiceContainer is nil")
	}
	return &PresenceAdapter{container: container}
}

// Heartbeat marks the user online.
func (a *PresenceAdapter) Heartbeat(ctx context.Context, userID string) (dm.PresenceRecord, error) {
	req := HeartbeatRequest{UserID: userID}
	var resp HeartbeatResponse
	if err := callService(ctx, a.container, ServiceHeartbeat, &req, &resp); err != nil {
		return dm.PresenceRecord{}, fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return resp.Record, nil
}

// GoOffline marks the user offline.
func (a *PresenceAdapter) GoOffline(ctx context.Context, userID string) error {
	req := OfflineRequest{UserID: userID}
	var resp OfflineResponse
	if err := callService(ctx, a.container, ServiceOffline, &req, &resp); err != nil {
		return fmt.Errorf("failed to go offline: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("failed to go offline: %w", dm.ErrTransientIO)
	}
	return nil
}

// Status returns the presence of one user.
func (a *PresenceAdapter) Status(ctx context.Context, userID string) (dm.PresenceStatus, error) {
	req := StatusRequest{UserID: userID}
	var resp StatusResponse
	if err := callService(ctx, a.container, ServiceStatus, &req, &resp); err != nil {
		return dm.PresenceStatus{}, fmt.Errorf("failed to get presence: %w", err)
	}
	return resp.Status, nil
}

// Statuses returns the presence of several users.
func (a *PresenceAdapter) Statuses(ctx context.Context, userIDs []string) ([]dm.PresenceStatus, error) {
	req := StatusesRequest{UserIDs: userIDs}
	var resp StatusesResponse
	if err := callService(ctx, a.container, ServiceStatuses, &req, &resp); err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}
	return resp.Statuses, nil
}

// callService calls a presence service and restores the error kind lost in transit.
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
