package config // package config loads application configuration from environment variables

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Required variables are collected by Load and
// reported together; optional ones fall back to defaults.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	StoreDriver    string // "mysql" or "memory"
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	MigrateOnStart bool   // apply embedded migrations before serving
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing
	FrontendURL    string // allowed CORS origin; empty allows any

	LogLevel  string // zerolog level name
	LogFormat string // "json" or "console"

	Inference InferenceConfig

	OTPTTL         time.Duration // lifetime of an email one-time code
	GoogleClientID string        // expected audience of Google ID tokens; empty disables Google sign-in
	RabbitURL      string        // AMQP broker; empty disables event publishing
}

// InferenceConfig groups the settings of the model gateways.
type InferenceConfig struct {
	OllamaURL     string        // base URL of the Ollama server
	Temperature   float64       // sampling temperature forwarded to models
	OpenAIBaseURL string        // OpenAI-compatible endpoint; empty means api.openai.com
	OpenAIKey     string        // enables hosted models when set
	Timeout       time.Duration // upper bound on a single generate call
	ContextLength int           // history messages forwarded when the plan sets none
	SystemPrompt  string        // prepended to every prompt
}

const defaultSystemPrompt = "You are a helpful and knowledgeable AI assistant. " +
	"Provide clear, accurate, and well-structured responses. " +
	"If you're unsure about something, admit it."

// Load reads configuration values from environment variables and returns a
// Config.  Missing required variables are reported in a single error.
func Load() (Config, error) {
	var missing []string
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		Env:            envStr("APP_ENV", "dev"),
		Port:           must("APP_PORT"),
		StoreDriver:    strings.ToLower(envStr("STORE_DRIVER", "mysql")),
		DBPass:         os.Getenv("DB_PASS"),
		MigrateOnStart: envBool("MIGRATE_ON_START", true),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   envInt("ACCESS_TOKEN_TTL_MIN", 30),
		RefreshTTLDays: envInt("REFRESH_TOKEN_TTL_DAYS", 7),
		BcryptCost:     envInt("BCRYPT_COST", 10),
		FrontendURL:    os.Getenv("FRONTEND_URL"),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		LogFormat:      envStr("LOG_FORMAT", "json"),
		Inference: InferenceConfig{
			OllamaURL:     strings.TrimRight(envStr("OLLAMA_URL", "http://localhost:11434"), "/"),
			Temperature:   envFloat("OLLAMA_TEMPERATURE", 0.7),
			OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
			OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
			Timeout:       envDur("INFERENCE_TIMEOUT", 120*time.Second),
			ContextLength: envInt("CONTEXT_LENGTH", 20),
			SystemPrompt:  envStr("SYSTEM_PROMPT", defaultSystemPrompt),
		},
		OTPTTL:         envDur("OTP_TTL", 10*time.Minute),
		GoogleClientID: os.Getenv("GOOGLE_CLIENT_ID"),
		RabbitURL:      envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
	}
	if cfg.StoreDriver != "memory" {
		cfg.DBUser = must("DB_USER")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if cfg.StoreDriver != "mysql" && cfg.StoreDriver != "memory" {
		return Config{}, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.Inference.ContextLength < 1 {
		cfg.Inference.ContextLength = 1
	}
	return cfg, nil
}

func envFloat(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return d
}
