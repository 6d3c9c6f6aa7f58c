package bootstrap

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Lock backends.
const (
	LockDatabase = "database"
	LockRedis    = "redis"
	LockLocal    = "local"
)

// Event bus backends.
const (
	BusRedis  = "redis"
	BusMemory = "memory"
)

// Config is read from the environment, optionally seeded from a .env file.
type Config struct {
	AppEnv   string `env:"APP_ENV"   envDefault:"development"`
	AppName  string `env:"APP_NAME"  envDefault:"Turns"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`

	DBDriver   string `env:"DB_DRIVER"   envDefault:"mysql"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBHost     string `env:"DB_HOST"     envDefault:"localhost"`
	DBPort     string `env:"DB_PORT"`
	DBName     string `env:"DB_NAME"     envDefault:"turns"`

	RedisAddr     string `env:"REDIS_ADDR,required,notEmpty"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"         envDefault:"0"`
	KeyPrefix     string `env:"REDIS_KEY_PREFIX" envDefault:"tc:"`

	JWTSecret      string `env:"JWT_SECRET,required,notEmpty"`
	JWTExpiryHours int    `env:"JWT_EXPIRY_HOURS" envDefault:"24"`

	RateLimitMax      int           `env:"RATE_LIMIT_MAX"      envDefault:"100"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW"   envDefault:"1s"`
	CORSAllowedOrigin string        `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`

	LockBackend string        `env:"LOCK_BACKEND" envDefault:"database"`
	LockTTL     time.Duration `env:"LOCK_TTL"     envDefault:"10s"`
	EventBus    string        `env:"EVENT_BUS"    envDefault:"redis"`

	PresenceWindow time.Duration `env:"PRESENCE_WINDOW" envDefault:"60s"`
	NotifyThrottle time.Duration `env:"NOTIFY_THROTTLE" envDefault:"60s"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT"     envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM"     envDefault:"turns@localhost"`

	QueueConcurrency int `env:"QUEUE_CONCURRENCY" envDefault:"10"`
}

// LoadConfig reads .env when present, then the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	switch c.DBDriver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("invalid DB_DRIVER %q, want mysql or postgres", c.DBDriver)
	}
	switch c.LockBackend {
	case LockDatabase, LockRedis, LockLocal:
	default:
		return fmt.Errorf("invalid LOCK_BACKEND %q, want database, redis or local", c.LockBackend)
	}
	switch c.EventBus {
	case BusRedis, BusMemory:
	default:
		return fmt.Errorf("invalid EVENT_BUS %q, want redis or memory", c.EventBus)
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive")
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
		if c.DBDriver == "postgres" {
			c.DBPort = "5432"
		}
	}
	return nil
}

// Production reports whether APP_ENV is production.
func (c *Config) Production() bool { return c.AppEnv == "production" }
