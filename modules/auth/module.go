// Package auth verifies the access tokens presented by clients.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module provides token validation as a request/reply service.
type Module struct {
	verifier *Verifier
	logger   types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
)

// NewModule creates an auth module.
func NewModule(config Config, logger types.Logger) *Module {
	return &Module{
		verifier: NewVerifier(config),
		logger:   logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "auth"
}

// Verifier returns the token verifier.
func (m *Module) Verifier() *Verifier {
	return m.verifier
}

// RegisterServices registers the validate-token service.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceValidateToken,
		json.Unmarshal,
		json.Marshal,
		m.handleValidateToken,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceValidateToken, err)
	}

	m.logger.Info("Registered services", "services", []string{ServiceValidateToken})
	return nil
}

// handleValidateToken reports validation failures in the response, not as errors.
func (m *Module) handleValidateToken(_ context.Context, req ValidateTokenRequest, _ *mono.Msg) (ValidateTokenResponse, error) {
	claims, err := m.verifier.Verify(req.Token)
	if err != nil {
		errMsg := "invalid token"
		if errors.Is(err, ErrExpiredToken) {
			errMsg = "token expired"
		}
		return ValidateTokenResponse{Valid: false, Error: errMsg}, nil
	}
	return ValidateTokenResponse{Valid: true, UserID: claims.UserID}, nil
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Auth module started", "issuer", m.verifier.config.Issuer)
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Auth module stopped")
	return nil
}
