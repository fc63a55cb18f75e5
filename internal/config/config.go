// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSAllowedOrigins []string

	// NATS settings
	NATSEnabled  bool
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Auth settings
	JWTSecret      string
	AllowAnonymous bool

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GeminiAPIKey    string
	DefaultLLM      string
	LLMModel        string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration
	TurnRateLimit     int

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool

	// Sessions
	SessionStore      string
	RedisURL          string
	SessionTTL        time.Duration
	PendingBookingTTL time.Duration

	// Discovery
	DiscoveryURL     string
	DiscoveryTimeout time.Duration
	StaticEventsFile string
	DiscoveryRPS     float64

	// Minting and payment
	MintServiceURL string
	MintAPIKey     string
	MintCluster    string
	MintTimeout    time.Duration
	VenueWallet    string
	CustodyWallet  string

	// Email
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS"),

		// NATS
		NATSEnabled:  getBoolEnv("NATS_ENABLED", false),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Auth
		JWTSecret:      getEnv("JWT_SECRET", "development-secret-change-in-production"),
		AllowAnonymous: getBoolEnv("ALLOW_ANONYMOUS", true),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),
		LLMModel:        getEnv("LLM_MODEL", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		TurnRateLimit:     getIntEnv("TURN_RATE_LIMIT", 20),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),

		// Sessions
		SessionStore:      getEnv("SESSION_STORE", "memory"),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		SessionTTL:        getDurationEnv("SESSION_TTL", 24*time.Hour),
		PendingBookingTTL: getDurationEnv("PENDING_BOOKING_TTL", 15*time.Minute),

		// Discovery
		DiscoveryURL:     getEnv("DISCOVERY_URL", ""),
		DiscoveryTimeout: getDurationEnv("DISCOVERY_TIMEOUT", 10*time.Second),
		StaticEventsFile: getEnv("STATIC_EVENTS_FILE", ""),
		DiscoveryRPS:     getFloatEnv("DISCOVERY_RPS", 1),

		// Minting and payment
		MintServiceURL: getEnv("MINT_SERVICE_URL", ""),
		MintAPIKey:     getEnv("MINT_API_KEY", ""),
		MintCluster:    getEnv("MINT_CLUSTER", "devnet"),
		MintTimeout:    getDurationEnv("MINT_TIMEOUT", 30*time.Second),
		VenueWallet:    getEnv("VENUE_WALLET", ""),
		CustodyWallet:  getEnv("CUSTODY_WALLET", ""),

		// Email
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getIntEnv("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
	}
}

// APIKey returns the key for the configured default provider, falling
// back to whichever provider has a key.
func (c *Config) APIKey() (provider, key string) {
	keys := map[string]string{
		"anthropic": c.AnthropicAPIKey,
		"openai":    c.OpenAIAPIKey,
		"gemini":    c.GeminiAPIKey,
	}
	if k := keys[c.DefaultLLM]; k != "" {
		return c.DefaultLLM, k
	}
	for _, p := range []string{"anthropic", "openai", "gemini"} {
		if keys[p] != "" {
			return p, keys[p]
		}
	}
	return "", ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil && f > 0 {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
