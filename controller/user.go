package controller

import (
	"realty-messenger/utils"

	"github.com/gofiber/fiber/v2"
)

// UnreadCount handles GET /messages/unread-count for the current user.
func (h *Messenger) UnreadCount(c *fiber.Ctx) error {
	userID, err := utils.UserID(c)
	if err != nil {
		return unauthorized(c)
	}

	n, err := h.svc.UnreadCount(c.UserContext(), userID)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":  "success",
		"message": nil,
		"data": fiber.Map{
			"unreadCount": n,
		},
	})
}
