package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserIDLocal is the fiber.Ctx local holding the authenticated user id.
const UserIDLocal = "user_id"

// TokenQueryParam carries the token on WebSocket upgrades, where browsers
// cannot set headers.
const TokenQueryParam = "token"

// ErrorResponse is the body of a rejected request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Middleware rejects requests without a valid access token and stores the
// caller's id in c.Locals(UserIDLocal).
func Middleware(port AuthPort) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query(TokenQueryParam)
		if token == "" {
			authHeader := c.Get("Authorization")
			if authHeader == "" {
				return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
					Error:   "unauthorized",
					Message: "Authorization header is required",
				})
			}
			if !strings.HasPrefix(authHeader, "Bearer ") {
				return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
					Error:   "unauthorized",
					Message: "Invalid authorization header format. Use: Bearer <token>",
				})
			}
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}

		userID, err := port.Authenticate(c.UserContext(), token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: "Invalid or expired token",
			})
		}

		c.Locals(UserIDLocal, userID)
		return c.Next()
	}
}

// UserID returns the authenticated user id stored by Middleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(UserIDLocal).(string)
	return id
}

// localVerifier adapts a Verifier to AuthPort without the service container.
type localVerifier struct {
	verifier *Verifier
}

// LocalPort returns an AuthPort that verifies tokens in process.
func LocalPort(v *Verifier) AuthPort {
	return localVerifier{verifier: v}
}

func (l localVerifier) Authenticate(_ context.Context, token string) (string, error) {
	claims, err := l.verifier.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
