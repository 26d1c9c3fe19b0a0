package handlers

import "github.com/gofiber/fiber/v2"

// Stable error codes returned in every error body.
const (
	CodeInvalidRequest        = "invalid_request"
	CodeNotFound              = "not_found"
	CodeDependencyTimeout     = "dependency_timeout"
	CodeDependencyUnavailable = "dependency_unavailable"
	CodeConfigurationError    = "configuration_error"
	CodeInternal              = "internal_error"
)

func errorJSON(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   true,
		"code":    code,
		"message": message,
	})
}
