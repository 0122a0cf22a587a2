package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Token transport profiles. One is picked per deployment and enforced
// uniformly at the request gate.
const (
	TransportHeader = "header"
	TransportCookie = "cookie"
)

type Config struct {
	Port        string
	Environment string
	FrontendURL string

	DatabaseURL          string
	DBMaxOpenConns       int
	DBMaxIdleConns       int
	DBConnMaxLifetimeMin int

	RedisURL      string
	RedisPassword string

	AccessTokenSecret  string
	SessionTokenSecret string
	AccessTokenTTL     time.Duration
	SessionTTL         time.Duration
	SessionExtension   time.Duration
	OTPExpiry          time.Duration

	DeviceResponseTimeout time.Duration

	TokenTransport string
	AllowedOrigins []string

	SMTPAddr string
	SMTPFrom string
}

var AppConfig *Config

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func LoadConfig() *Config {
	environment := GetEnv("ENVIRONMENT", "development")

	frontendURL := GetEnv("FRONTEND_URL", "http://localhost:5173")
	allowedOrigins := []string{frontendURL}
	if extra := GetEnv("ALLOWED_ORIGINS", ""); extra != "" {
		for _, origin := range strings.Split(extra, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				allowedOrigins = append(allowedOrigins, trimmed)
			}
		}
	}

	accessSecret := GetEnv("ACCESS_TOKEN_SECRET", "")
	sessionSecret := GetEnv("SESSION_TOKEN_SECRET", "")
	if environment == "production" {
		// Missing key material is a startup failure, never a runtime fallback.
		if accessSecret == "" {
			log.Fatal("ACCESS_TOKEN_SECRET is required in production")
		}
		if sessionSecret == "" {
			log.Fatal("SESSION_TOKEN_SECRET is required in production")
		}
	} else {
		if accessSecret == "" {
			accessSecret = "dev-access-token-secret"
		}
		if sessionSecret == "" {
			sessionSecret = "dev-session-token-secret"
		}
	}

	transport := GetEnv("TOKEN_TRANSPORT", TransportHeader)
	if transport != TransportHeader && transport != TransportCookie {
		log.Fatalf("TOKEN_TRANSPORT must be %q or %q, got %q", TransportHeader, TransportCookie, transport)
	}

	AppConfig = &Config{
		Port:        GetEnv("PORT", "8080"),
		Environment: environment,
		FrontendURL: frontendURL,

		DatabaseURL:          GetEnv("DATABASE_URL", ""),
		DBMaxOpenConns:       GetEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:       GetEnvAsInt("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifetimeMin: GetEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 5),

		RedisURL:      GetEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),

		AccessTokenSecret:  accessSecret,
		SessionTokenSecret: sessionSecret,
		AccessTokenTTL:     time.Duration(GetEnvAsInt("ACCESS_TOKEN_TTL_MINUTES", 15)) * time.Minute,
		SessionTTL:         time.Duration(GetEnvAsInt("SESSION_TTL_HOURS", 1)) * time.Hour,
		SessionExtension:   time.Duration(GetEnvAsInt("SESSION_EXTENSION_HOURS", 1)) * time.Hour,
		OTPExpiry:          time.Duration(GetEnvAsInt("OTP_EXPIRY_MINUTES", 10)) * time.Minute,

		DeviceResponseTimeout: time.Duration(GetEnvAsInt("DEVICE_RESPONSE_TIMEOUT_MS", 10000)) * time.Millisecond,

		TokenTransport: transport,
		AllowedOrigins: allowedOrigins,

		SMTPAddr: GetEnv("SMTP_ADDR", ""),
		SMTPFrom: GetEnv("SMTP_FROM", "no-reply@rentiva.io"),
	}

	return AppConfig
}

func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}
