package config

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

//go:embed restful_rbac_model.conf
var RBACModel string

var dotenv sync.Once

// Settings is the typed view of the process environment.
type Settings struct {
	ServerPort string `env:"SERVER_PORT" envDefault:"3000"`
	LogMode    string `env:"LOG_MODE" envDefault:"production"`

	DBDriver         string `env:"DB_DRIVER" envDefault:"postgres"`
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresDB       string `env:"POSTGRES_DB"`
	SQLitePath       string `env:"SQLITE_PATH" envDefault:"messenger.db"`

	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       []int  `env:"REDIS_DB" envSeparator:"," envDefault:"0,1"`

	RabbitMQEnabled  bool   `env:"RABBITMQ_ENABLED" envDefault:"false"`
	RabbitMQUser     string `env:"RABBITMQ_USER" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQHost     string `env:"RABBITMQ_HOST" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	EventMode        string `env:"EVENT_MODE" envDefault:"DISABLE"`
	EventLogDir      string `env:"EVENT_LOG_DIR" envDefault:"log"`

	JWTAccessKey    string `env:"JWT_ACCESS_KEY,required"`
	JWTAccessExpire int    `env:"JWT_ACCESS_EXPIRE" envDefault:"15"`

	RateLimitBackend string        `env:"RATE_LIMIT_BACKEND" envDefault:"memory"`
	RateLimitMax     int           `env:"RATE_LIMIT_MAX" envDefault:"20"`
	RateLimitWindow  time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"10s"`
	RateLimitIdle    time.Duration `env:"RATE_LIMIT_IDLE" envDefault:"5m"`

	CloudinaryURL           string `env:"CLOUDINARY_URL"`
	ThumbnailTransformation string `env:"THUMBNAIL_TRANSFORMATION" envDefault:"c_fill,w_320,h_240"`
}

func loadDotenv() {
	dotenv.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("Warning: .env file not found, reading from system environment variables")
		}
	})
}

// Load reads .env (once) and parses the environment into Settings.
func Load() (*Settings, error) {
	loadDotenv()

	s := new(Settings)
	if err := env.Parse(s); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return s, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (s *Settings) Validate() error {
	switch s.DBDriver {
	case "postgres":
		if s.PostgresDB == "" || s.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_DB and POSTGRES_USER are required for the postgres driver")
		}
	case "sqlite":
		if s.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", s.DBDriver)
	}

	switch s.RateLimitBackend {
	case "memory":
	case "redis":
		if !s.RedisEnabled {
			return fmt.Errorf("RATE_LIMIT_BACKEND=redis requires REDIS_ENABLED")
		}
	default:
		return fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", s.RateLimitBackend)
	}

	if s.RateLimitMax <= 0 || s.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit max and window must be positive")
	}

	switch s.EventMode {
	case "DISABLE", "IN", "IN_SEND", "IN_SEND_LOG", "OUT":
	default:
		return fmt.Errorf("unknown EVENT_MODE %q", s.EventMode)
	}

	if s.RedisEnabled && len(s.RedisDB) < 2 {
		return fmt.Errorf("REDIS_DB needs two databases (rate limiter, socket.io adapter)")
	}

	return nil
}

// Config returns a single raw environment value.
func Config(key string) string {
	loadDotenv()
	return os.Getenv(key)
}
