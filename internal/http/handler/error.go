package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"fortunemagnet/internal/http/middleware"
	"fortunemagnet/internal/service"
)

// errorPayload defines the standardized error response body.
// Error stays a plain string because clients read it directly.
type errorPayload struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_FORTUNE_ID", "FORBIDDEN", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		Error:     message,
		Code:      code,
		RequestID: middleware.RequestIDFrom(c),
	})
}

var serviceErrors = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrUnauthenticated, fiber.StatusUnauthorized, "UNAUTHENTICATED"},
	{service.ErrInvalidFortuneID, fiber.StatusBadRequest, "INVALID_FORTUNE_ID"},
	{service.ErrUnsupportedMime, fiber.StatusBadRequest, "UNSUPPORTED_MIME"},
	{service.ErrInvalidBucket, fiber.StatusBadRequest, "INVALID_BUCKET"},
	{service.ErrInvalidPath, fiber.StatusBadRequest, "INVALID_PATH"},
	{service.ErrInvalidDimension, fiber.StatusBadRequest, "INVALID_DIMENSIONS"},
	{service.ErrNotOwner, fiber.StatusForbidden, "FORBIDDEN"},
	{service.ErrNoEntitlement, fiber.StatusForbidden, "ENTITLEMENT_REQUIRED"},
	{service.ErrFortuneNotFound, fiber.StatusNotFound, "FORTUNE_NOT_FOUND"},
	{service.ErrMediaNotFound, fiber.StatusNotFound, "MEDIA_NOT_FOUND"},
	{service.ErrObjectMissing, fiber.StatusNotFound, "OBJECT_NOT_FOUND"},
}

// writeServiceError maps a service error onto the status taxonomy.
// Internal failures only expose the step that failed.
func writeServiceError(c *fiber.Ctx, err error) error {
	for _, e := range serviceErrors {
		if errors.Is(err, e.err) {
			return writeError(c, e.status, e.code, e.err.Error())
		}
	}
	var se *service.StepError
	if errors.As(err, &se) {
		return writeError(c, fiber.StatusInternalServerError,
			strings.ToUpper(se.Step)+"_FAILED", se.Step+" failed")
	}
	return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusUnauthorized:
			return writeError(c, status, "UNAUTHENTICATED", "unauthorized")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
