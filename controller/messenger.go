package controller

import (
	"realty-messenger/service"
	"realty-messenger/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

type StartConversationInput struct {
	PropertyID uint `json:"property_id" validate:"required,gt=0"`
	AgentID    uint `json:"agent_id" validate:"required,gt=0"`
}

type SendMessageInput struct {
	Body string `json:"body" validate:"required"`
}

// Messenger serves the conversation endpoints.
type Messenger struct {
	svc *service.Messenger
}

func NewMessenger(svc *service.Messenger) *Messenger {
	return &Messenger{svc: svc}
}

func unauthorized(c *fiber.Ctx) error {
	return failure(c, fiber.StatusUnauthorized, "Invalid or expired JWT")
}

func paramID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}

// StartConversation handles POST /conversations.
func (h *Messenger) StartConversation(c *fiber.Ctx) error {
	userID, err := utils.UserID(c)
	if err != nil {
		return unauthorized(c)
	}

	input := new(StartConversationInput)
	if err := c.BodyParser(input); err != nil {
		return failure(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Struct(input); err != nil {
		return failure(c, fiber.StatusBadRequest, "property_id and agent_id are required")
	}

	conv, created, err := h.svc.StartOrResume(c.UserContext(), userID, input.PropertyID, input.AgentID)
	if err != nil {
		return serviceError(c, err)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return success(c, status, fiber.Map{"conversation": conv})
}

func (h *Messenger) ListConversations(c *fiber.Ctx) error {
	userID, err := utils.UserID(c)
	if err != nil {
		return unauthorized(c)
	}

	items, err := h.svc.ListConversations(c.UserContext(), userID)
	if err != nil {
		return serviceError(c, err)
	}
	return success(c, fiber.StatusOK, fiber.Map{"conversations": items})
}

func (h *Messenger) GetConversation(c *fiber.Ctx) error {
	userID, err := utils.UserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := paramID(c, "id")
	if !ok {
		return failure(c, fiber.StatusBadRequest, "Invalid conversation id")
	}

	conv, err := h.svc.FetchConversation(c.UserContext(), userID, id)
	if err != nil {
		return serviceError(c, err)
	}
	return success(c, fiber.StatusOK, fiber.Map{"conversation": conv})
}

// GetMessages handles GET /conversations/:id/messages?limit&offset. Viewing
// marks the counterpart's messages read.
func (h *Messenger) GetMessages(c *fiber.Ctx) error {
	userID, err := utils.UserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := paramID(c, "id")
	if !ok {
		return failure(c, fiber.StatusBadRequest, "Invalid conversation id")
	}

	page, err := h.svc.FetchMessages(c.UserContext(), userID, id, c.QueryInt("limit", 0), c.QueryInt("offset", 0))
	if err != nil {
		return serviceError(c, err)
	}
	return success(c, fiber.StatusOK, page)
}

func (h *Messenger) SendMessage(c *fiber.Ctx) error {
	userID, err := utils.UserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := paramID(c, "id")
	if !ok {
		return failure(c, fiber.StatusBadRequest, "Invalid conversation id")
	}

	input := new(SendMessageInput)
	if err := c.BodyParser(input); err != nil {
		return failure(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Struct(input); err != nil {
		return failure(c, fiber.StatusBadRequest, "Message body is required")
	}

	msg, err := h.svc.SendMessage(c.UserContext(), userID, id, input.Body)
	if err != nil {
		return serviceError(c, err)
	}
	return success(c, fiber.StatusCreated, fiber.Map{"message": msg})
}

func (h *Messenger) MarkRead(c *fiber.Ctx) error {
	userID, err := utils.UserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := paramID(c, "id")
	if !ok {
		return failure(c, fiber.StatusBadRequest, "Invalid conversation id")
	}

	n, err := h.svc.MarkRead(c.UserContext(), userID, id)
	if err != nil {
		return serviceError(c, err)
	}
	return success(c, fiber.StatusOK, fiber.Map{"updatedCount": n})
}

// DeleteMessage handles DELETE /conversations/:convId/messages/:msgId.
func (h *Messenger) DeleteMessage(c *fiber.Ctx) error {
	userID, err := utils.UserID(c)
	if err != nil {
		return unauthorized(c)
	}
	convID, ok := paramID(c, "convId")
	if !ok {
		return failure(c, fiber.StatusBadRequest, "Invalid conversation id")
	}
	msgID, ok := paramID(c, "msgId")
	if !ok {
		return failure(c, fiber.StatusBadRequest, "Invalid message id")
	}

	if err := h.svc.DeleteMessage(c.UserContext(), userID, convID, msgID); err != nil {
		return serviceError(c, err)
	}
	return success(c, fiber.StatusOK, nil)
}
