package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the skill dashboard service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	WSReadTimeout            time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	LogLevel  string
	LogFormat string

	RateLimitWindow      time.Duration
	RateLimitMaxRequests int
	RateLimitStore       string
	RedisURL             string

	CompletionProvider string
	CompletionModel    string
	CompletionBaseURL  string
	OpenAIAPIKey       string
	AnthropicAPIKey    string
	OllamaHost         string
	CompletionHTTPURL  string
	CompletionTimeout  time.Duration

	ModelMaxAttempts    int
	ModelRetryBaseDelay time.Duration

	DatabaseURL string
}

// LoadDotEnv loads KEY=value files into the environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "skilldash"),
		AllowAnyOrigin:           false,
		LogLevel:                 envOrDefault("LOG_LEVEL", "info"),
		LogFormat:                envOrDefault("LOG_FORMAT", "text"),
		RateLimitStore:           strings.ToLower(envOrDefault("RATE_LIMIT_STORE", "memory")),
		RedisURL:                 stringsTrimSpace("REDIS_URL"),
		CompletionProvider:       strings.ToLower(envOrDefault("COMPLETION_PROVIDER", "auto")),
		CompletionModel:          stringsTrimSpace("COMPLETION_MODEL"),
		CompletionBaseURL:        stringsTrimSpace("COMPLETION_BASE_URL"),
		OpenAIAPIKey:             stringsTrimSpace("OPENAI_API_KEY"),
		AnthropicAPIKey:          stringsTrimSpace("ANTHROPIC_API_KEY"),
		OllamaHost:               stringsTrimSpace("OLLAMA_HOST"),
		CompletionHTTPURL:        stringsTrimSpace("COMPLETION_HTTP_URL"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 10 * time.Minute,
		WSReadTimeout:            10 * time.Minute,
		RateLimitWindow:          60 * time.Second,
		RateLimitMaxRequests:     10,
		CompletionTimeout:        30 * time.Second,
		ModelMaxAttempts:         3,
		ModelRetryBaseDelay:      1000 * time.Millisecond,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.WSReadTimeout, err = durationFromEnv("APP_WS_READ_TIMEOUT", cfg.WSReadTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitWindow, err = durationFromEnv("RATE_LIMIT_WINDOW", cfg.RateLimitWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitMaxRequests, err = intFromEnv("RATE_LIMIT_MAX_REQUESTS", cfg.RateLimitMaxRequests)
	if err != nil {
		return Config{}, err
	}
	cfg.CompletionTimeout, err = durationFromEnv("COMPLETION_TIMEOUT", cfg.CompletionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ModelMaxAttempts, err = intFromEnv("MODEL_MAX_ATTEMPTS", cfg.ModelMaxAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.ModelRetryBaseDelay, err = durationFromEnv("MODEL_RETRY_BASE_DELAY", cfg.ModelRetryBaseDelay)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.WSReadTimeout < time.Second {
		return Config{}, fmt.Errorf("APP_WS_READ_TIMEOUT must be at least 1s")
	}
	if cfg.RateLimitWindow < time.Second {
		return Config{}, fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s")
	}
	if cfg.RateLimitMaxRequests <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must be positive")
	}
	switch cfg.RateLimitStore {
	case "memory":
	case "redis":
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL is required when RATE_LIMIT_STORE=redis")
		}
	default:
		return Config{}, fmt.Errorf("RATE_LIMIT_STORE must be memory or redis")
	}
	if cfg.ModelMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("MODEL_MAX_ATTEMPTS must be positive")
	}
	if cfg.ModelRetryBaseDelay < 0 {
		return Config{}, fmt.Errorf("MODEL_RETRY_BASE_DELAY must be >= 0")
	}
	if cfg.CompletionTimeout < 0 {
		return Config{}, fmt.Errorf("COMPLETION_TIMEOUT must be >= 0")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
