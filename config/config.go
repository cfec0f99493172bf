package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	AWS          AWSConfig
	Heartbeat    HeartbeatConfig
	PingThrottle PingThrottleConfig
	ICP          ICPConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/qikhub?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the avatar bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	AvatarBucket         string
	PresignExpireMinutes int
}

// HeartbeatConfig controls device liveness: a device whose last ping is older than
// OfflineThreshold is marked offline by the sweep, which runs once per SweepInterval.
type HeartbeatConfig struct {
	OfflineThreshold time.Duration
	SweepInterval    time.Duration
}

// PingThrottleConfig limits how often a single device may ping.
type PingThrottleConfig struct {
	Limit  int
	Window time.Duration
}

// ICPConfig holds the ICP gateway host and canister IDs for the chain bindings.
type ICPConfig struct {
	Host                string
	AuthCanisterID      string
	EventCanisterID     string
	AnalyticsCanisterID string
	NFTCanisterID       string
	WalletCanisterID    string
	Mock                bool
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/qikhub?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "qikhub"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			AvatarBucket:         getEnv("AWS_S3_AVATAR_BUCKET", "qikhub-avatars"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Heartbeat: HeartbeatConfig{
			OfflineThreshold: time.Duration(getEnvInt("DEVICE_OFFLINE_THRESHOLD_MINUTES", 5)) * time.Minute,
			SweepInterval:    time.Duration(getEnvInt("DEVICE_SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
		},
		PingThrottle: PingThrottleConfig{
			Limit:  getEnvInt("DEVICE_PING_LIMIT", 10),
			Window: time.Duration(getEnvInt("DEVICE_PING_WINDOW_SECONDS", 60)) * time.Second,
		},
		ICP: ICPConfig{
			Host:                getEnv("ICP_HOST", "http://127.0.0.1:4943"),
			AuthCanisterID:      getEnv("AUTH_CANISTER_ID", ""),
			EventCanisterID:     getEnv("EVENT_CANISTER_ID", ""),
			AnalyticsCanisterID: getEnv("ANALYTICS_CANISTER_ID", ""),
			NFTCanisterID:       getEnv("NFT_CANISTER_ID", ""),
			WalletCanisterID:    getEnv("WALLET_CANISTER_ID", ""),
			Mock:                getEnv("ICP_MOCK", "true") == "true",
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
