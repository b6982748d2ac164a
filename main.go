package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"realty-messenger/config"
	"realty-messenger/controller"
	"realty-messenger/database"
	"realty-messenger/event"
	"realty-messenger/event/listener"
	"realty-messenger/jobs"
	"realty-messenger/media"
	"realty-messenger/ratelimit"
	"realty-messenger/router"
	"realty-messenger/service"
	"realty-messenger/socketio"
	"realty-messenger/store"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newLogger(mode string) (*zap.Logger, error) {
	if mode == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newNotifiers always pushes to the gateway; broker publishing needs a
// connected broker.
func newNotifiers(gateway service.Notifier, bus event.Emitter, brokerEnabled bool, logger *zap.Logger) service.Notifiers {
	notifiers := service.Notifiers{gateway}
	if brokerEnabled {
		notifiers = append(notifiers, event.NewPublisher(bus, logger))
	}
	return notifiers
}

func main() {
	log.SetPrefix("realty-messenger: ")

	settings, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(settings.LogMode)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(settings, logger); err != nil {
		logger.Fatal("messenger stopped", zap.Error(err))
	}
}

func run(settings *config.Settings, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Open(settings)
	if err != nil {
		return err
	}

	enforcer, err := database.Casbin(db)
	if err != nil {
		return err
	}

	var redisClients map[int]*redis.Client
	if settings.RedisEnabled {
		redisClients, err = database.RedisConnect(ctx, settings)
		if err != nil {
			return err
		}
		defer func() {
			for _, c := range redisClients {
				c.Close()
			}
		}()
	}

	scheduler := jobs.NewScheduler(logger)
	if _, err := scheduler.SchedulePolicyReload(enforcer); err != nil {
		return fmt.Errorf("scheduling policy reload: %w", err)
	}

	var limiter ratelimit.Limiter
	switch settings.RateLimitBackend {
	case "redis":
		limiter = ratelimit.NewRedis(redisClients[database.RedisRateLimit], "ratelimit:send:", settings.RateLimitMax, settings.RateLimitWindow)
	default:
		memory := ratelimit.NewMemory(settings.RateLimitMax, settings.RateLimitWindow)
		if _, err := scheduler.ScheduleEviction(memory, settings.RateLimitIdle); err != nil {
			return fmt.Errorf("scheduling rate limit eviction: %w", err)
		}
		limiter = memory
	}

	var thumbs service.Thumbnailer
	if settings.CloudinaryURL != "" {
		cld, err := media.NewCloudinary(settings.CloudinaryURL, settings.ThumbnailTransformation, logger)
		if err != nil {
			return err
		}
		thumbs = cld
	}

	bus, err := event.NewBus(settings.EventMode, settings.EventLogDir, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	if settings.RabbitMQEnabled {
		url := fmt.Sprintf("amqp://%s:%s@%s:%s/",
			settings.RabbitMQUser,
			settings.RabbitMQPassword,
			settings.RabbitMQHost,
			settings.RabbitMQPort,
		)
		if err := bus.Connect(url, []string{
			event.MessengerQueue,
			listener.ListingQueue,
		}); err != nil {
			return err
		}
	}

	gateway := socketio.New(socketio.Options{
		JWTKey: settings.JWTAccessKey,
		Redis:  redisClients[database.RedisSocketAdapter],
		Debug:  settings.LogMode == "development",
	}, logger)
	defer gateway.Close()

	notifiers := newNotifiers(gateway, bus, settings.RabbitMQEnabled, logger)
	messenger := service.NewMessenger(store.NewGormStore(db), notifiers, thumbs, logger)

	// Listing events
	listing := listener.NewListing(messenger, logger)
	go listing.Run(ctx)

	if err := bus.Subscribe([]event.RabbitMQSubscribeListener{
		{
			Queue:   listener.ListingQueue,
			Channel: listing.Channel,
		},
	}); err != nil {
		return err
	}

	if err := bus.Replay(ctx); err != nil {
		return fmt.Errorf("replaying event log: %w", err)
	}

	app := router.App("realty-messenger")
	gateway.Mount(app)
	router.Socket(gateway.Server(), router.MessengerAuthorizer{Messenger: messenger}, logger)
	router.Rest(app, router.RestDeps{
		Messenger: controller.NewMessenger(messenger),
		JWTKey:    settings.JWTAccessKey,
		Enforcer:  enforcer,
		Limiter:   limiter,
		Log:       logger,
		AccessLog: settings.LogMode == "development",
	})

	scheduler.Start()

	go func() {
		if err := app.Listen(fmt.Sprintf(":%s", settings.ServerPort)); err != nil {
			logger.Error("http server stopped", zap.Error(err))
			cancel()
		}
	}()
	logger.Info("messenger listening", zap.String("port", settings.ServerPort))

	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case s := <-signalC:
		logger.Info("shutting down", zap.String("signal", s.String()))
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()

	scheduler.Stop(shutdownCtx)
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return nil
}
