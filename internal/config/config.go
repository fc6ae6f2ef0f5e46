package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPlatformConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	RootDomain  string

	DBType            string
	DBURL             string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Telemetry TelemetryConfig
	Stripe    StripeConfig
	Session   SessionConfig
	GitHubApp GitHubAppConfig
	Redis     RedisConfig
}

// TelemetryConfig follows the standard OTEL_* variable names.
type TelemetryConfig struct {
	LogLevel       string
	LogFormat      string
	OtelEnabled    bool
	OtlpEndpoint   string
	OtlpProtocol   string
	SamplingRatio  float64
	MetricsEnabled bool
}

type StripeConfig struct {
	SecretKey             string
	ConnectWebhookSecret  string
	PlatformWebhookSecret string
}

type SessionConfig struct {
	JWTSecret    string
	CookieName   string
	CookieSecure bool
	RailsOrigin  string
	TTLMinutes   int
}

type GitHubAppConfig struct {
	WebhookSecret string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	VerifyRate  float64
	VerifyBurst int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	cookieSecure := environment == "production"
	if !cookieSecure {
		cookieSecure = getenvBool("SESSION_COOKIE_SECURE", false)
	}

	return Config{
		AppName:     getenv("APP_SERVICE", "market"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		RootDomain:  strings.ToLower(strings.TrimSpace(getenv("ROOT_DOMAIN", "market.dev"))),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBURL:             strings.TrimSpace(getenv("DATABASE_URL", "")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "market"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Telemetry: TelemetryConfig{
			LogLevel:       strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:      strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:    getenvBool("OTEL_ENABLED", false),
			OtlpEndpoint:   strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OtlpProtocol:   otlpProtocol(),
			SamplingRatio:  getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
			MetricsEnabled: getenvBool("OTEL_METRICS_ENABLED", true),
		},
		Stripe: StripeConfig{
			SecretKey:             strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			ConnectWebhookSecret:  strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			PlatformWebhookSecret: strings.TrimSpace(getenv("STRIPE_PLATFORM_WEBHOOK_SECRET", "")),
		},
		Session: SessionConfig{
			JWTSecret:    strings.TrimSpace(getenv("SESSION_JWT_SECRET", "")),
			CookieName:   getenv("SESSION_COOKIE_NAME", "market_session"),
			CookieSecure: cookieSecure,
			RailsOrigin:  strings.TrimRight(strings.TrimSpace(getenv("RAILS_ORIGIN", "")), "/"),
			TTLMinutes:   getenvInt("SESSION_TTL_MINUTES", 60*24*30),
		},
		GitHubApp: GitHubAppConfig{
			WebhookSecret: strings.TrimSpace(getenv("GITHUB_APP_WEBHOOK_SECRET", "")),
		},
		Redis: RedisConfig{
			Addr:        strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password:    strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:          getenvInt("REDIS_DB", 0),
			VerifyRate:  getenvFloat("AUTH_VERIFY_RATE", 5),
			VerifyBurst: getenvInt("AUTH_VERIFY_BURST", 20),
		},
	}
}

// Traces may override the shared exporter protocol.
func otlpProtocol() string {
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}
	return strings.ToLower(strings.TrimSpace(protocol))
}

// IsDevelopment covers the environments where debug logging is on by default.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
