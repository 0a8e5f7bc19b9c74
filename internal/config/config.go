// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL used for links and CORS.
	BaseURL string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings (sessions + task queue).
	Redis RedisConfig

	// Auth holds authentication-related settings.
	Auth AuthConfig

	// Upload holds file upload and thumbnail settings.
	Upload UploadConfig

	// AI holds settings for the vision/ranking model endpoints.
	AI AIConfig

	// Geocode holds reverse-geocoding settings.
	Geocode GeocodeConfig

	// Worker holds background task worker settings.
	Worker WorkerConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields are
// read from separate env vars so container orchestrators can manage each
// independently. If DATABASE_URL is set, it takes precedence.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the MariaDB username (default: "viewfinder").
	User string

	// Password is the MariaDB password (default: "viewfinder").
	Password string

	// Name is the database name (default: "viewfinder").
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// fields using the driver's Config.FormatDSN() to safely handle special
// characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// SessionTTL is how long sessions last before expiring.
	SessionTTL time.Duration
}

// UploadConfig holds file upload settings.
type UploadConfig struct {
	// MaxSize is the maximum upload file size in bytes.
	MaxSize int64

	// UploadPath is the root directory for original image storage.
	UploadPath string

	// ThumbnailPath is the root directory for generated thumbnails.
	ThumbnailPath string

	// ThumbnailMaxDim is the pixel ceiling for a thumbnail's longest side.
	ThumbnailMaxDim int
}

// AIConfig holds settings for the OpenAI-compatible model endpoints used for
// image tagging, descriptions, and search relevance ranking.
type AIConfig struct {
	// APIKey authenticates against the model endpoint. When empty, the
	// adapters still run but every call degrades to its fallback value.
	APIKey string

	// BaseURL overrides the API endpoint (for proxies or compatible servers).
	// Empty means the provider default.
	BaseURL string

	// VisionModel is the model used for tag generation and descriptions.
	VisionModel string

	// RankModel is the model used for search relevance scoring.
	RankModel string

	// RequestTimeout bounds each model call.
	RequestTimeout time.Duration
}

// GeocodeConfig holds reverse-geocoding settings.
type GeocodeConfig struct {
	// BaseURL is the Nominatim-compatible endpoint.
	BaseURL string

	// UserAgent identifies this deployment; Nominatim's usage policy
	// requires a meaningful value.
	UserAgent string

	// Timeout bounds each reverse-geocoding call.
	Timeout time.Duration
}

// WorkerConfig holds background task worker settings.
type WorkerConfig struct {
	// Concurrency is the number of concurrent tagging tasks.
	Concurrency int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Env:     getEnv("ENV", "development"),
		Port:    getEnvInt("PORT", 8080),
		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "viewfinder"),
			Password:        getEnv("DB_PASSWORD", "viewfinder"),
			Name:            getEnv("DB_NAME", "viewfinder"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Auth: AuthConfig{
			SessionTTL: getEnvDuration("SESSION_TTL", 720*time.Hour),
		},

		Upload: UploadConfig{
			MaxSize:         getEnvInt64("MAX_UPLOAD_SIZE", 20*1024*1024), // 20MB
			UploadPath:      getEnv("UPLOAD_PATH", "./static/uploads"),
			ThumbnailPath:   getEnv("THUMBNAIL_PATH", "./static/thumbnails"),
			ThumbnailMaxDim: getEnvInt("THUMBNAIL_MAX_DIM", 400),
		},

		AI: AIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			BaseURL:        getEnv("OPENAI_BASE_URL", ""),
			VisionModel:    getEnv("AI_VISION_MODEL", "gpt-4o-mini"),
			RankModel:      getEnv("AI_RANK_MODEL", "gpt-4o-mini"),
			RequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 30*time.Second),
		},

		Geocode: GeocodeConfig{
			BaseURL:   getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
			UserAgent: getEnv("GEOCODER_USER_AGENT", "viewfinder/1.0"),
			Timeout:   getEnvDuration("GEOCODER_TIMEOUT", 10*time.Second),
		},

		Worker: WorkerConfig{
			Concurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		},
	}

	// Validate required fields in production. Case-insensitive check catches
	// common variants like "Production", "prod", etc.
	envLower := strings.ToLower(cfg.Env)
	if envLower == "production" || envLower == "prod" {
		if cfg.Database.dsnOverride == "" && cfg.Database.Password == "viewfinder" {
			return nil, fmt.Errorf("DB_PASSWORD must be changed from the default in production")
		}
		if cfg.AI.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required in production")
		}
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvInt64 reads an int64 env var or returns the default.
func getEnvInt64(key string, defaultVal int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "30s") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
