package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config is the identity API configuration.
type Config struct {
	Port         string `env:"PORT,          default=8080"`
	Env          string `env:"ENV,           default=development"`
	LogLevel     string `env:"LOG_LEVEL,     default=info"`
	AuditWorkers int    `env:"AUDIT_WORKERS, default=4"`

	Auth  AuthConfig
	Mongo MongoConfig
	Redis RedisConfig
}

type AuthConfig struct {
	JWTSecret     string        `env:"JWT_SECRET, required"`
	TokenTTL      time.Duration `env:"TOKEN_TTL,       default=24h"`
	ResetTokenTTL time.Duration `env:"RESET_TOKEN_TTL, default=30m"`
	AdminName     string        `env:"ADMIN_NAME,      default=Admin User"`
	AdminEmail    string        `env:"ADMIN_EMAIL"`
	AdminPassword string        `env:"ADMIN_PASSWORD"`
}

type MongoConfig struct {
	URI         string `env:"MONGO_URI,           default=mongodb://localhost:27017"`
	Database    string `env:"MONGO_DB,            default=ecr_portal"`
	MaxPoolSize uint64 `env:"MONGO_MAX_POOL_SIZE, default=50"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,      default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,        default=0"`
	PoolSize int    `env:"REDIS_POOL_SIZE, default=20"`
}

// ClientConfig configures the portal command-line client.
type ClientConfig struct {
	APIURL          string        `env:"PORTAL_API_URL,          default=http://localhost:8080"`
	SessionFile     string        `env:"PORTAL_SESSION_FILE"`
	RequestTimeout  time.Duration `env:"PORTAL_REQUEST_TIMEOUT,  default=15s"`
	MonitorInterval time.Duration `env:"PORTAL_MONITOR_INTERVAL, default=1m"`
	LogLevel        string        `env:"LOG_LEVEL,               default=warn"`
}

// Development reports whether the service runs in a local environment.
func (c *Config) Development() bool {
	return c.Env == "development" || c.Env == "local"
}

// Load reads the API configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// LoadClient reads the client configuration.
func LoadClient(ctx context.Context) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
