package config

import (
	"time"

	"github.com/joho/godotenv"

	"github.com/Checker-Finance/nextgen-api/pkg/nextgen"
)

// Config holds the gateway and client settings read from the environment.
type Config struct {
	ServiceName string
	Env         string
	LogLevel    string

	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	RedisAddr string
	RedisDB   int
	RedisPass string

	CacheTTL               time.Duration
	CacheCleanupFreq       time.Duration
	CatalogRefreshInterval time.Duration

	AWSRegion  string
	SecretName string

	NextGen nextgen.Config
}

// Load reads .env (if present) and the process environment. The NextGen
// block is not validated here; nextgen.New does that.
func Load() Config {
	_ = godotenv.Load()

	ng := nextgen.Config{
		Credentials: nextgen.Credentials{
			ClientID:     GetEnv("NEXTGEN_CLIENT_ID", ""),
			ClientSecret: GetEnv("NEXTGEN_CLIENT_SECRET", ""),
			SiteID:       GetEnv("NEXTGEN_SITE_ID", ""),
			GrantType:    nextgen.GrantType(GetEnv("NEXTGEN_GRANT_TYPE", string(nextgen.GrantClientCredentials))),
			Username:     GetEnv("NEXTGEN_USERNAME", ""),
			Password:     GetEnv("NEXTGEN_PASSWORD", ""),
		},
		BaseURL:            GetEnv("NEXTGEN_BASE_URL", nextgen.DefaultBaseURL),
		TokenURL:           GetEnv("NEXTGEN_TOKEN_URL", nextgen.DefaultTokenURL),
		SessionID:          GetEnv("NEXTGEN_X_NG_SESSION_ID", ""),
		Timeout:            GetEnvDuration("NEXTGEN_TIMEOUT", nextgen.DefaultTimeout),
		InsecureSkipVerify: !GetEnvBool("NEXTGEN_VERIFY_SSL", true),
		DisableRedirects:   !GetEnvBool("NEXTGEN_FOLLOW_REDIRECTS", true),
		UserAgent:          GetEnv("NEXTGEN_USER_AGENT", nextgen.DefaultUserAgent),
		Accept:             nextgen.DefaultAccept,
		AcceptEncoding:     nextgen.DefaultAcceptEncoding,
		Connection:         nextgen.DefaultConnection,
		RateLimitRequests:  GetEnvInt("NEXTGEN_RATE_LIMIT_REQUESTS", 100),
		RateLimitPeriod:    GetEnvDuration("NEXTGEN_RATE_LIMIT_PERIOD", time.Minute),
	}

	return Config{
		ServiceName: GetEnv("SERVICE_NAME", "nextgen-gateway"),
		Env:         GetEnv("ENV", "dev"),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),

		Port:         GetEnv("NEXTGEN_GATEWAY_PORT", "8080"),
		ReadTimeout:  GetEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		WriteTimeout: GetEnvDuration("HTTP_WRITE_TIMEOUT", 35*time.Second),
		IdleTimeout:  GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),

		RedisAddr: GetEnv("REDIS_ADDR", ""),
		RedisDB:   GetEnvInt("REDIS_DB", 0),
		RedisPass: GetEnv("REDIS_PASS", ""),

		CacheTTL:               GetEnvDuration("CACHE_TTL", 15*time.Minute),
		CacheCleanupFreq:       GetEnvDuration("CACHE_CLEANUP_FREQ", 5*time.Minute),
		CatalogRefreshInterval: GetEnvDuration("CATALOG_REFRESH_INTERVAL", 10*time.Minute),

		AWSRegion:  GetEnv("AWS_REGION", "us-east-1"),
		SecretName: GetEnv("NEXTGEN_SECRET_NAME", ""),

		NextGen: ng,
	}
}
