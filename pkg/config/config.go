package config

import (
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for zoho-bulk.
type Config struct {
	ServiceName string
	Env         string
	LogLevel    string

	// Zoho OAuth2 credentials (refresh-token grant). When SecretID is set
	// these are resolved from AWS Secrets Manager instead.
	// See internal/secrets/resolver.go.
	ClientID     string
	ClientSecret string
	RefreshToken string
	SecretID     string

	BaseURL     string
	APIDomain   string // host for bulk result downloads, defaults to BaseURL
	AccountsURL string
	OrgID       string

	TokenCacheFile string
	TokenSkew      time.Duration
	JobHistoryFile string

	PollInterval     time.Duration
	HTTPTimeout      time.Duration
	TokenHTTPTimeout time.Duration

	RateRPS   int
	RateBurst int

	// Optional backends. Empty RedisAddr keeps the token cache on disk,
	// empty DatabaseURL/NATSURL disable the history sink and event stream.
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	DatabaseURL string
	NATSURL     string

	MetricsPort int

	AWSRegion   string
	CacheTTL    time.Duration
	CleanupFreq time.Duration
}

// Load loads configuration from environment variables and optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	baseURL := GetEnv("ZOHO_BASE_URL", "https://www.zohoapis.com")

	return &Config{
		ServiceName:      GetEnv("SERVICE_NAME", "zoho-bulk"),
		Env:              GetEnv("ENV", "dev"),
		LogLevel:         GetEnv("LOG_LEVEL", "info"),
		ClientID:         GetEnv("ZOHO_CLIENT_ID", ""),
		ClientSecret:     GetEnv("ZOHO_CLIENT_SECRET", ""),
		RefreshToken:     GetEnv("ZOHO_REFRESH_TOKEN", ""),
		SecretID:         GetEnv("ZOHO_SECRET_ID", ""),
		BaseURL:          baseURL,
		APIDomain:        GetEnv("ZOHO_API_DOMAIN", baseURL),
		AccountsURL:      GetEnv("ZOHO_ACCOUNTS_URL", "https://accounts.zoho.com"),
		OrgID:            GetEnv("ZOHO_ORG_ID", "648703833"),
		TokenCacheFile:   GetEnv("TOKEN_CACHE_FILE", "zoho-bulk.tokencache.json"),
		TokenSkew:        GetEnvDuration("TOKEN_SKEW", 30*time.Second),
		JobHistoryFile:   GetEnv("JOB_HISTORY_FILE", "zoho-bulk.jobshistory.json"),
		PollInterval:     GetEnvDuration("POLL_INTERVAL", 5*time.Second),
		HTTPTimeout:      GetEnvDuration("HTTP_TIMEOUT", 60*time.Second),
		TokenHTTPTimeout: GetEnvDuration("TOKEN_HTTP_TIMEOUT", 30*time.Second),
		RateRPS:          GetEnvInt("RATE_RPS", 10),
		RateBurst:        GetEnvInt("RATE_BURST", 20),
		RedisAddr:        GetEnv("REDIS_ADDR", ""),
		RedisDB:          GetEnvInt("REDIS_DB", 0),
		RedisPass:        GetEnv("REDIS_PASS", ""),
		DatabaseURL:      GetEnv("DATABASE_URL", ""),
		NATSURL:          GetEnv("NATS_URL", ""),
		MetricsPort:      GetEnvInt("METRICS_PORT", 0),
		AWSRegion:        GetEnv("AWS_REGION", "us-east-2"),
		CacheTTL:         GetEnvDuration("CACHE_TTL", 55*time.Minute),
		CleanupFreq:      GetEnvDuration("CACHE_CLEANUP_FREQ", 10*time.Minute),
	}
}
