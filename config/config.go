package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Auth        AuthConfig
	Store       StoreConfig
	Redis       RedisConfig
	NATS        NATSConfig
	Monuments   MonumentConfig
}

type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	// AdminUserIDs may create and edit monuments.
	AdminUserIDs []string
}

type StoreConfig struct {
	Driver   string // "mongo" or "memory"
	MongoURI string
	Database string
}

// RedisConfig is optional; an empty Addr falls back to in-process cache and locks.
type RedisConfig struct {
	Addr     string
	DB       int
	Password string
	CacheTTL time.Duration
	LockTTL  time.Duration
}

// NATSConfig is optional; an empty URL disables event publishing.
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

type MonumentConfig struct {
	SeedFile    string
	DefaultTopK int
}

// Load reads configuration from the environment, after loading .env if present.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	cfg := Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Addr:            getEnv("SERVER_ADDR", ":8080"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		},
		Auth: AuthConfig{
			JWTSecret:    getEnv("JWT_SECRET", ""),
			TokenTTL:     getEnvAsDuration("JWT_TTL", 24*time.Hour),
			AdminUserIDs: getEnvAsSlice("ADMIN_USER_IDS", nil),
		},
		Store: StoreConfig{
			Driver:   getEnv("STORE_DRIVER", "mongo"),
			MongoURI: getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "campus_db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Password: getEnv("REDIS_PASSWORD", ""),
			CacheTTL: getEnvAsDuration("CACHE_TTL", 24*time.Hour),
			LockTTL:  getEnvAsDuration("LOCK_TTL", 5*time.Second),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", ""),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
		},
		Monuments: MonumentConfig{
			SeedFile:    getEnv("SEED_FILE", "./data/monuments.json"),
			DefaultTopK: getEnvAsInt("DEFAULT_TOP_K", 3),
		},
	}
	return cfg, validate(cfg)
}

func validate(cfg Config) error {
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is not set")
	}
	switch cfg.Store.Driver {
	case "mongo", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "memory" && cfg.Environment == "production" {
		return fmt.Errorf("STORE_DRIVER=memory is not allowed in production")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
