package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// AuthPort authenticates callers for other modules.
type AuthPort interface {
	// Authenticate returns the user id carried by a valid token.
	Authenticate(ctx context.Context, token string) (string, error)
}

// AuthAdapter implements AuthPort using the service container.
type AuthAdapter struct {
	container mono.ServiceContainer
}

// NewAuthAdapter creates a new AuthAdapter.
func NewAuthAdapter(container mono.ServiceContainer) *AuthAdapter {
	return &AuthAdapter{
		container: container,
	}
}

// Authenticate validates a token through the auth module.
func (a *AuthAdapter) Authenticate(ctx context.Context, token string) (string, error) {
	req := ValidateTokenRequest{Token: token}
	var resp ValidateTokenResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceValidateToken,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return "", fmt.Errorf("%s request failed: %w", ServiceValidateToken, err)
	}

	if !resp.Valid {
		return "", fmt.Errorf("token validation failed: %s", resp.Error)
	}
	return resp.UserID, nil
}
