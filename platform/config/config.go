// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetFollowUpRunInterval() time.Duration
}

// WhatsAppConfig provides settings for the WhatsApp gateway client.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// SMTPConfig provides settings for the SMTP email channel.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	IsSMTPEnabled() bool
}

// EngineConfig provides thresholds for the action rules engine.
type EngineConfig interface {
	GetReplySLA() time.Duration
	GetExpiryWindowDays() int
	GetHighProbabilityThreshold() int
	GetRevenueValueCapCents() int64
}

// DispatchConfig provides settings for the outbound dispatcher and guard.
type DispatchConfig interface {
	GetSendTimeout() time.Duration
	GetStaleLockTimeout() time.Duration
	GetSendRatePerSecond() float64
}

// FollowUpConfig provides settings for the follow-up engine runner.
type FollowUpConfig interface {
	GetFollowUpWindowDays() int
	GetCandidateTimeout() time.Duration
	GetRunnerConcurrency() int
}

// CacheConfig provides settings for the recommendation cache.
type CacheConfig interface {
	GetRedisURL() string
	GetRecommendationTTL() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env             string
	HTTPAddr        string
	DatabaseURL     string
	JWTAccessSecret string
	CORSAllowAll    bool
	CORSOrigins     []string
	CORSAllowCreds  bool

	RedisURL            string
	RedisTLSInsecure    bool
	AsynqQueueName      string
	AsynqConcurrency    int
	FollowUpRunInterval time.Duration

	WhatsAppURL      string
	WhatsAppKey      string
	WhatsAppDeviceID string

	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string

	ReplySLA                 time.Duration
	ExpiryWindowDays         int
	HighProbabilityThreshold int
	RevenueValueCapCents     int64

	SendTimeout       time.Duration
	StaleLockTimeout  time.Duration
	SendRatePerSecond float64

	FollowUpWindowDays int
	CandidateTimeout   time.Duration
	RunnerConcurrency  int

	RecommendationTTL time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                   { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool             { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string             { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int              { return c.AsynqConcurrency }
func (c *Config) GetFollowUpRunInterval() time.Duration { return c.FollowUpRunInterval }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) IsSMTPEnabled() bool         { return c.SMTPHost != "" && c.EmailFromAddress != "" }

// EngineConfig implementation
func (c *Config) GetReplySLA() time.Duration       { return c.ReplySLA }
func (c *Config) GetExpiryWindowDays() int         { return c.ExpiryWindowDays }
func (c *Config) GetHighProbabilityThreshold() int { return c.HighProbabilityThreshold }
func (c *Config) GetRevenueValueCapCents() int64   { return c.RevenueValueCapCents }

// DispatchConfig implementation
func (c *Config) GetSendTimeout() time.Duration      { return c.SendTimeout }
func (c *Config) GetStaleLockTimeout() time.Duration { return c.StaleLockTimeout }
func (c *Config) GetSendRatePerSecond() float64      { return c.SendRatePerSecond }

// FollowUpConfig implementation
func (c *Config) GetFollowUpWindowDays() int         { return c.FollowUpWindowDays }
func (c *Config) GetCandidateTimeout() time.Duration { return c.CandidateTimeout }
func (c *Config) GetRunnerConcurrency() int          { return c.RunnerConcurrency }

// CacheConfig implementation
func (c *Config) GetRecommendationTTL() time.Duration { return c.RecommendationTTL }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:    corsAllowAll,
		CORSOrigins:     corsOrigins,
		CORSAllowCreds:  strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),

		RedisURL:            getEnv("REDIS_URL", ""),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:      getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:    mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		FollowUpRunInterval: mustDuration(getEnv("FOLLOW_UP_RUN_INTERVAL", "1h")),

		WhatsAppURL:      getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:      getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID: getEnv("WHATSAPP_DEVICE_ID", ""),

		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Engagement"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),

		ReplySLA:                 mustDuration(getEnv("ENGINE_REPLY_SLA", "24h")),
		ExpiryWindowDays:         mustInt(getEnv("ENGINE_EXPIRY_WINDOW_DAYS", "14")),
		HighProbabilityThreshold: mustInt(getEnv("ENGINE_HIGH_PROBABILITY", "70")),
		RevenueValueCapCents:     mustInt64(getEnv("ENGINE_REVENUE_VALUE_CAP_CENTS", "5000000")),

		SendTimeout:       mustDuration(getEnv("DISPATCH_SEND_TIMEOUT", "15s")),
		StaleLockTimeout:  mustDuration(getEnv("DISPATCH_STALE_LOCK_TIMEOUT", "5m")),
		SendRatePerSecond: mustFloat(getEnv("DISPATCH_SEND_RATE", "5")),

		FollowUpWindowDays: mustInt(getEnv("FOLLOW_UP_WINDOW_DAYS", "14")),
		CandidateTimeout:   mustDuration(getEnv("FOLLOW_UP_CANDIDATE_TIMEOUT", "30s")),
		RunnerConcurrency:  mustInt(getEnv("FOLLOW_UP_CONCURRENCY", "4")),

		RecommendationTTL: mustDuration(getEnv("RECOMMENDATION_CACHE_TTL", "60s")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.ReplySLA <= 0 {
		return nil, fmt.Errorf("ENGINE_REPLY_SLA must be a positive duration")
	}
	if cfg.StaleLockTimeout <= 0 {
		return nil, fmt.Errorf("DISPATCH_STALE_LOCK_TIMEOUT must be a positive duration")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
