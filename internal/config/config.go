package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Logging    LoggingConfig
	Monitoring MonitoringConfig
	CORS       CORSConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	AWS        AWSConfig
	Tables     TablesConfig
	Buckets    BucketsConfig
	Geocoder   GeocoderConfig
	Auth       AuthConfig
}

type ServerConfig struct {
	Port         int
	Env          string
	Name         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type MonitoringConfig struct {
	PrometheusEnabled bool
	PrometheusPort    int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type DatabaseConfig struct {
	// URL of the Postgres secondary store. Empty means the secondary store
	// is not configured and publish stops before any live writes.
	URL string
}

type RedisConfig struct {
	URL string
}

type AWSConfig struct {
	Region   string
	Endpoint string // optional, for local DynamoDB/MinIO
}

// TablesConfig names the DynamoDB tables the review workflow touches.
type TablesConfig struct {
	PendingReview     string
	Rejected          string
	Accepted          string
	ScheduledAccepted string
	ReleaseHistory    string
	ShopContact       string
	BusinessInfo      string
	CardDesign        string
	CustomerDetails   string
	StampData         string
	DailyUniques      string
}

type BucketsConfig struct {
	Upload string // private per-environment upload bucket
	Public string // fixed public "live" bucket
}

type GeocoderConfig struct {
	BaseURL string
	Timeout time.Duration
	Retries int
}

type AuthConfig struct {
	// JWTSecret guards the /api routes when set. Empty disables the guard,
	// which is only acceptable outside production.
	JWTSecret string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvInt("API_PORT", 8080),
			Env:          getEnv("APP_ENV", "development"),
			Name:         getEnv("APP_NAME", "shop-review-api"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Monitoring: MonitoringConfig{
			PrometheusEnabled: getEnvBool("PROMETHEUS_ENABLED", true),
			PrometheusPort:    getEnvInt("PROMETHEUS_PORT", 9090),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		AWS: AWSConfig{
			Region:   getEnv("AWS_REGION", "ap-southeast-1"),
			Endpoint: getEnv("AWS_ENDPOINT", ""),
		},
		Tables: TablesConfig{
			PendingReview:     getEnv("TABLE_PENDING_REVIEW", "review_customer_release"),
			Rejected:          getEnv("TABLE_REJECTED", "Rejected_Customer_Review"),
			Accepted:          getEnv("TABLE_ACCEPTED", "Accepted_Customer_Review"),
			ScheduledAccepted: getEnv("TABLE_SCHEDULED_ACCEPTED", "Scheduled_Accepted_Customer_Review"),
			ReleaseHistory:    getEnv("TABLE_RELEASE_HISTORY", "ReleaseHistory"),
			ShopContact:       getEnv("TABLE_SHOP_CONTACT", "shop_release_contact"),
			BusinessInfo:      getEnv("TABLE_BUSINESS_INFO", "businessinformations"),
			CardDesign:        getEnv("TABLE_CARD_DESIGN", "Card_Design"),
			CustomerDetails:   getEnv("TABLE_CUSTOMER_DETAILS", "CustomerFacingDetails"),
			StampData:         getEnv("TABLE_STAMP_DATA", "StampData"),
			DailyUniques:      getEnv("TABLE_DAILY_UNIQUES", "shop_daily_unique_customers"),
		},
		Buckets: BucketsConfig{
			Upload: getEnv("UPLOAD_BUCKET", "shop-review-uploads-dev"),
			Public: getEnv("PUBLIC_BUCKET", "tapstamp-live"),
		},
		Geocoder: GeocoderConfig{
			BaseURL: getEnv("GEOCODER_BASE_URL", "https://www.onemap.gov.sg"),
			Timeout: getEnvDuration("GEOCODER_TIMEOUT", 10*time.Second),
			Retries: getEnvInt("GEOCODER_RETRIES", 3),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present
func (c *Config) Validate() error {
	if c.Server.Env == "production" {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("ADMIN_JWT_SECRET is required in production")
		}
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
	}
	if c.Geocoder.Retries < 1 {
		return fmt.Errorf("GEOCODER_RETRIES must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
