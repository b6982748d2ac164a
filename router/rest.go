package router

import (
	"realty-messenger/controller"
	"realty-messenger/middleware"
	"realty-messenger/ratelimit"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

type RestDeps struct {
	Messenger *controller.Messenger
	JWTKey    string
	Enforcer  middleware.Enforcer
	Limiter   ratelimit.Limiter
	Log       *zap.Logger
	// AccessLog enables the per-request log line.
	AccessLog bool
}

// App builds the Fiber application with the shared error envelope.
func App(name string) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StrictRouting:         true,
		AppName:               name,
		ErrorHandler:          controller.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New())

	return app
}

func Rest(app *fiber.App, d RestDeps) {
	var handlers []fiber.Handler
	if d.AccessLog {
		handlers = append(handlers, logger.New())
	}
	handlers = append(handlers,
		middleware.JWT(d.JWTKey),
		middleware.OTP(),
		middleware.RBAC(d.Enforcer, d.Log),
	)
	api := app.Group("/v1", handlers...)

	// Conversations
	conversations := api.Group("/conversations")
	conversations.Post("", d.Messenger.StartConversation)
	conversations.Get("", d.Messenger.ListConversations)
	conversations.Get("/:id", d.Messenger.GetConversation)
	conversations.Get("/:id/messages", d.Messenger.GetMessages)
	conversations.Post("/:id/messages", middleware.RateLimit(d.Limiter, d.Log), d.Messenger.SendMessage)
	conversations.Post("/:id/read", d.Messenger.MarkRead)
	conversations.Delete("/:convId/messages/:msgId", d.Messenger.DeleteMessage)

	// Messages
	messages := api.Group("/messages")
	messages.Get("/unread-count", d.Messenger.UnreadCount)
}
