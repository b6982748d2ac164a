package socketio

import (
	"context"
	"fmt"
	"time"

	"realty-messenger/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"github.com/zishang520/engine.io/v2/log"
	"github.com/zishang520/socket.io-go-redis/adapter"
	r_type "github.com/zishang520/socket.io-go-redis/types"
	"github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

// UserRoom is the addressable channel every authenticated socket joins.
func UserRoom(id uint) socket.Room {
	return socket.Room(fmt.Sprintf("user_%d", id))
}

// ConversationRoom carries typing signals; sockets join it explicitly.
func ConversationRoom(id uint) socket.Room {
	return socket.Room(fmt.Sprintf("conversation_%d", id))
}

type Options struct {
	// JWTKey verifies the handshake token.
	JWTKey string
	// Redis, when set, fans emits out to every instance through the adapter.
	Redis *redis.Client
	Debug bool
}

// Gateway is the real-time delivery channel.
type Gateway struct {
	server  *socket.Server
	options *socket.ServerOptions
	log     *zap.Logger
}

func New(opts Options, logger *zap.Logger) *Gateway {
	log.DEBUG = opts.Debug

	options := socket.DefaultServerOptions()
	options.SetServeClient(false)
	options.SetAllowEIO3(true)
	options.SetPingInterval(25 * time.Second)
	options.SetPingTimeout(20 * time.Second)
	options.SetMaxHttpBufferSize(1000000)
	options.SetConnectTimeout(45 * time.Second)
	if opts.Redis != nil {
		options.SetAdapter(&adapter.RedisAdapterBuilder{
			Redis: r_type.NewRedisClient(context.Background(), opts.Redis),
			Opts:  &adapter.RedisAdapterOptions{},
		})
	}

	server := socket.NewServer(nil, options)

	server.Use(func(client *socket.Socket, next func(*socket.ExtendedError)) {
		token, auth := client.Conn().Request().Query().Get("token")
		if !auth {
			next(socket.NewExtendedError("Missing or malformed JWT", nil))
			return
		}

		claims, err := utils.CheckAndExtractTokenMetadata(token, opts.JWTKey)
		if err != nil {
			next(socket.NewExtendedError("Invalid or expired JWT", nil))
			return
		}
		if claims.Otp {
			next(socket.NewExtendedError("2FA required", nil))
			return
		}

		client.Join(UserRoom(claims.ID))
		client.SetData(claims)
		next(nil)
	})

	return &Gateway{
		server:  server,
		options: options,
		log:     logger.Named("gateway"),
	}
}

// Mount serves the socket.io endpoint on app.
func (g *Gateway) Mount(app *fiber.App) {
	app.Get("/socket.io/", adaptor.HTTPHandler(g.server.ServeHandler(g.options)))
	app.Post("/socket.io/", adaptor.HTTPHandler(g.server.ServeHandler(g.options)))
}

func (g *Gateway) Server() *socket.Server {
	return g.server
}

// Notify pushes an event to every socket of userID. An offline user is a no-op.
func (g *Gateway) Notify(_ context.Context, userID uint, event string, payload any) {
	if err := g.server.To(UserRoom(userID)).Emit(event, payload); err != nil {
		g.log.Debug("emit failed",
			zap.String("event", event),
			zap.Uint("user_id", userID),
			zap.Error(err),
		)
	}
}

func (g *Gateway) Close() {
	g.server.Close(nil)
}
