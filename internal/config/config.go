// Package config loads application settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Settings holds all recognized configuration keys.
type Settings struct {
	// Credentials. Optional keys disable their channel.
	GeminiAPIKey    string
	NewsAPIKey      string
	SendgridAPIKey  string
	SlackWebhookURL string

	// Persistence target.
	MongoURI    string
	MongoDBName string

	// Stream bus + dedup index backend.
	RedisURL string

	// Ingestion.
	NewsFetchIntervalMinutes int
	NewsRelevanceThreshold   float64

	// Scoring thresholds.
	AlertThresholdScore    float64
	CriticalThresholdScore float64
	HighThresholdScore     float64
	MediumThresholdScore   float64

	// Notifications.
	NotificationEmailFrom string
	NotificationEmailTo   string

	// Tenant.
	CompanyID string

	// API server.
	APIHost string
	APIPort int

	Environment string
	LogLevel    string
}

// Load reads settings from the environment. A .env file in the working
// directory is merged in first when present.
func Load() Settings {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env file")
	}

	return Settings{
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		NewsAPIKey:      os.Getenv("NEWSAPI_KEY"),
		SendgridAPIKey:  os.Getenv("SENDGRID_API_KEY"),
		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),

		MongoURI:    envStr("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName: envStr("MONGO_DB_NAME", "supply_risk_db"),
		RedisURL:    envStr("REDIS_URL", "redis://localhost:6379/0"),

		NewsFetchIntervalMinutes: envInt("NEWS_FETCH_INTERVAL_MINUTES", 15),
		NewsRelevanceThreshold:   envFloat("NEWS_RELEVANCE_THRESHOLD", 0.3),

		AlertThresholdScore:    envFloat("ALERT_THRESHOLD_SCORE", 3.0),
		CriticalThresholdScore: envFloat("CRITICAL_THRESHOLD_SCORE", 10.0),
		HighThresholdScore:     envFloat("HIGH_THRESHOLD_SCORE", 6.0),
		MediumThresholdScore:   envFloat("MEDIUM_THRESHOLD_SCORE", 3.0),

		NotificationEmailFrom: envStr("NOTIFICATION_EMAIL_FROM", "alerts@company.com"),
		NotificationEmailTo:   envStr("NOTIFICATION_EMAIL_TO", "supplychain@company.com"),

		CompanyID: envStr("COMPANY_ID", "company_nayara_energy"),

		APIHost: envStr("API_HOST", "0.0.0.0"),
		APIPort: envInt("API_PORT", 8000),

		Environment: envStr("ENVIRONMENT", "development"),
		LogLevel:    envStr("LOG_LEVEL", "info"),
	}
}

// Validate fails fast on missing keys the core cannot run without.
// Notification keys are optional and only disable their channel.
func (s Settings) Validate() error {
	if s.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if s.NewsAPIKey == "" {
		return fmt.Errorf("NEWSAPI_KEY is required")
	}
	if s.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if s.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if s.NewsFetchIntervalMinutes <= 0 {
		return fmt.Errorf("NEWS_FETCH_INTERVAL_MINUTES must be positive, got %d", s.NewsFetchIntervalMinutes)
	}
	return nil
}

// FetchInterval returns the news polling interval.
func (s Settings) FetchInterval() time.Duration {
	return time.Duration(s.NewsFetchIntervalMinutes) * time.Minute
}

// Production reports whether the deployment runs in production mode.
// Invariant violations clamp-and-log in production, panic elsewhere.
func (s Settings) Production() bool {
	return s.Environment == "production"
}

// ZerologLevel maps the log_level key to a zerolog level.
func (s Settings) ZerologLevel() zerolog.Level {
	switch s.LogLevel {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid integer in environment, using default")
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid float in environment, using default")
		return def
	}
	return f
}
