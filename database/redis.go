package database

import (
	"context"
	"fmt"
	"log"

	"realty-messenger/config"

	"github.com/redis/go-redis/v9"
)

// Redis database slots.
const (
	RedisRateLimit = iota
	RedisSocketAdapter
)

// RedisConnect opens one client per configured database number.
// Slot order follows REDIS_DB: first the rate limiter, then the socket.io adapter.
func RedisConnect(ctx context.Context, s *config.Settings) (map[int]*redis.Client, error) {
	clients := make(map[int]*redis.Client, len(s.RedisDB))

	for slot, dbNumber := range s.RedisDB {
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", s.RedisHost, s.RedisPort),
			Password: s.RedisPassword,
			DB:       dbNumber,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, fmt.Errorf("pinging redis db %d: %w", dbNumber, err)
		}

		clients[slot] = client
	}

	log.Printf("Connections opened to Redis")
	return clients, nil
}
