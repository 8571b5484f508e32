package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderHeuristic = "heuristic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderStub      = "stub"
)

// Config holds all configuration for the report intake service
type Config struct {
	// Server configuration
	Port               string
	CORSAllowedOrigins []string

	// Database configuration
	DBEnabled  bool
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// RabbitMQ configuration
	RabbitMQEnabled          bool
	AMQPHost                 string
	AMQPPort                 string
	AMQPUser                 string
	AMQPPassword             string
	RabbitExchange           string
	RabbitDecisionRoutingKey string

	// Vision model configuration
	VisionProvider   string
	OpenAIAPIKey     string
	OpenAIModel      string
	GeminiAPIKey     string
	GeminiModel      string
	VisionTimeout    time.Duration
	VisionRatePerSec float64

	// Image handling
	ImageFetchTimeout  time.Duration
	ImageMaxBytes      int64
	ImageFailurePolicy string

	// Duplicate detection
	ImageHashThreshold      int
	LocationThresholdMeters float64
	DedupExactText          bool

	// Decision rules
	PriorityMode string
	RulesFile    string

	// Persistence
	PersistWorkers   int
	PersistQueueSize int
	PersistTimeout   time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		CORSAllowedOrigins: getStringSliceEnv("CORS_ALLOWED_ORIGINS", "*"),

		DBEnabled:  getBoolEnv("DB_ENABLED", false),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "cleanapp"),

		RabbitMQEnabled:          getBoolEnv("RABBITMQ_ENABLED", false),
		AMQPHost:                 getEnv("AMQP_HOST", "localhost"),
		AMQPPort:                 getEnv("AMQP_PORT", "5672"),
		AMQPUser:                 getEnv("AMQP_USER", "guest"),
		AMQPPassword:             getEnv("AMQP_PASSWORD", "guest"),
		RabbitExchange:           getEnv("RABBITMQ_EXCHANGE", "cleanapp-exchange"),
		RabbitDecisionRoutingKey: getEnv("RABBITMQ_DECISION_ROUTING_KEY", "report.decided"),

		VisionProvider:   strings.ToLower(getEnv("VISION_PROVIDER", ProviderHeuristic)),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o"),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		VisionTimeout:    getDurationEnv("VISION_TIMEOUT", 5*time.Second),
		VisionRatePerSec: getFloatEnv("VISION_RATE_PER_SEC", 5),

		ImageFetchTimeout:  getDurationEnv("IMAGE_FETCH_TIMEOUT", 10*time.Second),
		ImageMaxBytes:      int64(getIntEnv("IMAGE_MAX_BYTES", 10<<20)),
		ImageFailurePolicy: strings.ToLower(getEnv("IMAGE_FAILURE_POLICY", "strict")),

		ImageHashThreshold:      getIntEnv("IMAGE_HASH_THRESHOLD", 3),
		LocationThresholdMeters: getFloatEnv("LOCATION_THRESHOLD_METERS", 2.0),
		DedupExactText:          getBoolEnv("DEDUP_EXACT_TEXT", false),

		PriorityMode: strings.ToLower(getEnv("PRIORITY_MODE", "three_tier")),
		RulesFile:    getEnv("RULES_FILE", ""),

		PersistWorkers:   getIntEnv("PERSIST_WORKERS", 4),
		PersistQueueSize: getIntEnv("PERSIST_QUEUE_SIZE", 256),
		PersistTimeout:   getDurationEnv("PERSIST_TIMEOUT", 10*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.VisionProvider {
	case ProviderHeuristic, ProviderStub:
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai vision provider"))
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini vision provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown VISION_PROVIDER %q", c.VisionProvider))
	}

	if c.ImageFailurePolicy != "strict" && c.ImageFailurePolicy != "permissive" {
		errs = append(errs, fmt.Errorf("unknown IMAGE_FAILURE_POLICY %q", c.ImageFailurePolicy))
	}
	if c.PriorityMode != "three_tier" && c.PriorityMode != "two_tier" {
		errs = append(errs, fmt.Errorf("unknown PRIORITY_MODE %q", c.PriorityMode))
	}
	if c.ImageHashThreshold < 0 || c.ImageHashThreshold > 64 {
		errs = append(errs, fmt.Errorf("IMAGE_HASH_THRESHOLD must be within 0..64, got %d", c.ImageHashThreshold))
	}
	if c.LocationThresholdMeters < 0 {
		errs = append(errs, fmt.Errorf("LOCATION_THRESHOLD_METERS must not be negative, got %v", c.LocationThresholdMeters))
	}
	if c.ImageMaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("IMAGE_MAX_BYTES must be positive, got %d", c.ImageMaxBytes))
	}
	if c.PersistWorkers < 1 {
		errs = append(errs, fmt.Errorf("PERSIST_WORKERS must be at least 1, got %d", c.PersistWorkers))
	}
	if c.PersistQueueSize < 0 {
		errs = append(errs, fmt.Errorf("PERSIST_QUEUE_SIZE must not be negative, got %d", c.PersistQueueSize))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getStringSliceEnv gets a comma-separated environment variable as a slice
func getStringSliceEnv(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
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
