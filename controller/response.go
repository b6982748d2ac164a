package controller

import (
	"errors"

	"realty-messenger/service"

	"github.com/gofiber/fiber/v2"
)

func success(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  "success",
		"message": nil,
		"data":    data,
	})
}

func failure(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": message,
		"data":    nil,
	})
}

// StatusOf maps a service error kind to an HTTP status.
func StatusOf(err error) int {
	switch service.KindOf(err) {
	case service.KindValidation, service.KindOwnershipMismatch:
		return fiber.StatusBadRequest
	case service.KindInvalidParticipants, service.KindForbidden:
		return fiber.StatusForbidden
	case service.KindNotFound:
		return fiber.StatusNotFound
	case service.KindRateLimited:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

func serviceError(c *fiber.Ctx, err error) error {
	return failure(c, StatusOf(err), service.PublicMessage(err))
}

// ErrorHandler renders framework errors (unknown routes, body limits, panics)
// in the same envelope as handler errors.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return failure(c, code, message)
}
