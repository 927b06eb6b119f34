// Package config loads process configuration from environment variables.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Storage backends for the client session.
const (
	StorageFile   = "file"
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Persistence backends for the reference API.
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
)

// ClientConfig configures cmd/authctl.
type ClientConfig struct {
	APIURL      string        `env:"AUTH_API_URL,      default=http://localhost:8080"`
	HTTPTimeout time.Duration `env:"AUTH_HTTP_TIMEOUT, default=10s"`

	Storage        string `env:"AUTH_STORAGE,         default=file"`
	StoragePath    string `env:"AUTH_STORAGE_PATH"`
	StorageProfile string `env:"AUTH_STORAGE_PROFILE, default=default"`

	RedirectOnForcedLogout bool `env:"AUTH_REDIRECT_ON_FORCED_LOGOUT, default=true"`

	LogLevel  string `env:"LOG_LEVEL,  default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=true"`

	Redis RedisConfig
}

// ServerConfig configures cmd/authapi.
type ServerConfig struct {
	Port            string        `env:"PORT,              default=8080"`
	Env             string        `env:"ENV,               default=development"`
	JWTSecret       string        `env:"JWT_SECRET,        required"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL,  default=15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL, default=720h"`
	LogLevel        string        `env:"LOG_LEVEL,         default=info"`
	Backend         string        `env:"BACKEND,           default=memory"`

	Mongo MongoConfig
	Redis RedisConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=bugwars"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

// LoadClient reads ClientConfig from the environment.
func LoadClient(ctx context.Context) (*ClientConfig, error) {
	return LoadClientFrom(ctx, envconfig.OsLookuper())
}

// LoadClientFrom reads ClientConfig through l.
func LoadClientFrom(ctx context.Context, l envconfig.Lookuper) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: load client configuration: %w", err)
	}
	switch cfg.Storage {
	case StorageFile, StorageMemory, StorageRedis:
	default:
		return nil, fmt.Errorf("config: unknown AUTH_STORAGE %q", cfg.Storage)
	}
	return &cfg, nil
}

// LoadServer reads ServerConfig from the environment.
func LoadServer(ctx context.Context) (*ServerConfig, error) {
	return LoadServerFrom(ctx, envconfig.OsLookuper())
}

// LoadServerFrom reads ServerConfig through l.
func LoadServerFrom(ctx context.Context, l envconfig.Lookuper) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: load server configuration: %w", err)
	}
	switch cfg.Backend {
	case BackendMemory, BackendMongo:
	default:
		return nil, fmt.Errorf("config: unknown BACKEND %q", cfg.Backend)
	}
	return &cfg, nil
}
