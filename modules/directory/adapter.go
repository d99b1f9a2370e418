package directory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/campusmesh-dm/domain/dm"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// DirectoryPort defines the display-name operations available to other modules.
type DirectoryPort interface {
	ResolveDisplayName(ctx context.Context, userID string) (string, error)
	ResolveDisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
	UpdateProfile(ctx context.Context, userID, displayName string) (*Profile, error)
}

// DirectoryAdapter implements DirectoryPort using the service container.
type DirectoryAdapter struct {
	container mono.ServiceContainer
}

// NewDirectoryAdapter creates a new DirectoryAdapter.
func NewDirectoryAdapter(container mono.ServiceContainer) DirectoryPort {
	if container == nil {
		panic("directory: ServiceContainer is nil")
	}
	return &DirectoryAdapter{container: container}
}

// ResolveDisplayName returns the display name of a user.
func (a *DirectoryAdapter) ResolveDisplayName(ctx context.Context, userID string) (string, error) {
	req := ResolveDisplayNameRequest{UserID: userID}
	var resp ResolveDisplayNameResponse
	if err := callService(ctx, a.container, ServiceResolveDisplayName, &req, &resp); err != nil {
		return "", fmt.Errorf("failed to resolve display name: %w", err)
	}
	return resp.DisplayName, nil
}

// ResolveDisplayNames returns the display names of several users.
func (a *DirectoryAdapter) ResolveDisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	req := ResolveDisplayNamesRequest{UserIDs: userIDs}
	var resp ResolveDisplayNamesResponse
	if err := callService(ctx, a.container, ServiceResolveDisplayNames, &req, &resp); err != nil {
		return nil, fmt.Errorf("failed to resolve display names: %w", err)
	}
	return resp.DisplayNames, nil
}

// UpdateProfile sets the display name of a user.
func (a *DirectoryAdapter) UpdateProfile(ctx context.Context, userID, displayName string) (*Profile, error) {
	req := UpdateProfileRequest{UserID: userID, DisplayName: displayName}
	var resp UpdateProfileResponse
	if err := callService(ctx, a.container, ServiceUpdateProfile, &req, &resp); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return resp.Profile, nil
}

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
