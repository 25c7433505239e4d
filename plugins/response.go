package plugins

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/linht/radioconf/calc"
	"github.com/linht/radioconf/phy"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// SendSuccess sends a successful response
func SendSuccess(c *fiber.Ctx, data interface{}, message string) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// SendError sends an error response
func SendError(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// SendErrorMessage sends an error response with a custom message
func SendErrorMessage(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   message,
	})
}

// calcStatus maps a calculation error to an HTTP status. Unknown families
// and profiles are 404, other problems with the request itself are 400, and
// a well formed request the calculations cannot satisfy is 422.
func calcStatus(err error) int {
	var ce *calc.CalculationError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, phy.ErrUnknownFamily), errors.Is(err, phy.ErrUnknownProfile):
		return fiber.StatusNotFound
	case errors.As(err, &ce), errors.Is(err, phy.ErrUnsupported):
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusBadRequest
}
