package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int

	StoreDriver string // "mongo" or "sqlite"
	MongoURI    string
	MongoDB     string
	SQLitePath  string

	JWTSecret          string
	AccessTokenMinutes int

	CORSOrigins []string
	LogLevel    string

	MaxMessageChars  int
	MaxPageSize      int
	MaxGroupMembers  int
	InviteCodeLength int
}

func Load() (*Config, error) {
	// Best-effort .env load for local development.
	_ = godotenv.Load()

	cfg := &Config{
		AppName: getEnv("APP_NAME", "Ripple API"),
		Env:     getEnv("APP_ENV", "development"),
		Host:    getEnv("HTTP_HOST", "0.0.0.0"),
		Port:    getEnvAsInt("HTTP_PORT", 8000),

		StoreDriver: getEnv("STORE_DRIVER", "sqlite"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:     getEnv("MONGO_DB", "ripple"),
		SQLitePath:  getEnv("SQLITE_PATH", "ripple.db"),

		JWTSecret:          os.Getenv("JWT_SECRET"),
		AccessTokenMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60*24),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		MaxMessageChars:  getEnvAsInt("MAX_MESSAGE_CHARS", 1000),
		MaxPageSize:      getEnvAsInt("MAX_PAGE_SIZE", 100),
		MaxGroupMembers:  getEnvAsInt("MAX_GROUP_MEMBERS", 256),
		InviteCodeLength: getEnvAsInt("INVITE_CODE_LENGTH", 8),
	}

	cors := getEnv("CORS_ORIGINS", "")
	if cors != "" {
		parts := strings.Split(cors, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.StoreDriver != "mongo" && cfg.StoreDriver != "sqlite" {
		return nil, fmt.Errorf("STORE_DRIVER must be 'mongo' or 'sqlite', got %q", cfg.StoreDriver)
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
