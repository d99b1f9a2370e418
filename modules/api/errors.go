package api

import (
	"errors"

	"github.com/example/campusmesh-dm/domain/dm"
	"github.com/gofiber/fiber/v2"
)

// errorKind maps an error onto an HTTP status and a short machine code.
// NotParticipant is checked first: a stranger's send carries both kinds.
func errorKind(err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code, "request_error"
	case errors.Is(err, dm.ErrNotParticipant):
		return fiber.StatusForbidden, "not_participant"
	case errors.Is(err, dm.ErrValidation):
		return fiber.StatusBadRequest, "validation"
	case errors.Is(err, dm.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, dm.ErrTransientIO):
		return fiber.StatusServiceUnavailable, "unavailable"
	default:
		return fiber.StatusInternalServerError, "server_error"
	}
}
