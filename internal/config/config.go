package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3Config holds settings for the AWS S3 driver.
// Endpoint is optional and only needed for S3-compatible providers.
type S3Config struct {
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// StorageConfig selects the storage driver and the photo bucket layout.
type StorageConfig struct {
	Driver       string // "minio" or "s3"
	PhotoBucket  string
	UploadMethod string // "PUT" or "POST_MULTIPART"
	UploadTTLSec int
	SignedURLTTL int
	CacheSize    int
	EnsureBucket bool
	MinIO        MinIOConfig
	S3           S3Config
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Port     string
	Timezone string
	Database DatabaseConfig
	Storage  StorageConfig
	Auth     AuthConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
func Load() *AppConfig {
	return &AppConfig{
		Port:     getEnv("PORT", "8080"),
		Timezone: getEnv("APP_TZ", "UTC"),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Storage: StorageConfig{
			Driver:       strings.ToLower(getEnv("STORAGE_DRIVER", "minio")),
			PhotoBucket:  getEnv("PHOTO_BUCKET", "fortune-photos"),
			UploadMethod: strings.ToUpper(getEnv("UPLOAD_METHOD", "PUT")),
			UploadTTLSec: getEnvInt("UPLOAD_TICKET_TTL_SEC", 120),
			SignedURLTTL: getEnvInt("SIGNED_URL_TTL_SEC", 300),
			CacheSize:    getEnvInt("SIGNED_URL_CACHE_SIZE", 1024),
			EnsureBucket: getEnvBool("STORAGE_ENSURE_BUCKET", true),
			MinIO: MinIOConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			S3: S3Config{
				Region:       getEnv("S3_REGION", "us-east-1"),
				Endpoint:     getEnv("S3_ENDPOINT", ""),
				AccessKey:    getEnv("S3_ACCESS_KEY", ""),
				SecretKey:    getEnv("S3_SECRET_KEY", ""),
				UsePathStyle: getEnvBool("S3_USE_PATH_STYLE", false),
			},
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
	}
}

// ClientConfig configures the photo upload client.
type ClientConfig struct {
	APIBaseURL     string
	AuthToken      string
	PhotoBucket    string
	MaxUploadBytes int64
	Timezone       string
}

// LoadClient reads the upload client configuration from environment variables.
func LoadClient() *ClientConfig {
	return &ClientConfig{
		APIBaseURL:     getEnv("PHOTO_API_URL", "http://localhost:8080"),
		AuthToken:      getEnv("PHOTO_API_TOKEN", ""),
		PhotoBucket:    getEnv("PHOTO_BUCKET", "fortune-photos"),
		MaxUploadBytes: int64(getEnvInt("PHOTO_MAX_UPLOAD_BYTES", 15<<20)),
		Timezone:       getEnv("APP_TZ", "UTC"),
	}
}

// UploadTTL returns the upload ticket lifetime.
func (s StorageConfig) UploadTTL() time.Duration {
	return time.Duration(s.UploadTTLSec) * time.Second
}

// ReadTTL returns the default lifetime of signed read URLs.
func (s StorageConfig) ReadTTL() time.Duration {
	return time.Duration(s.SignedURLTTL) * time.Second
}

// Location resolves the configured timezone, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
