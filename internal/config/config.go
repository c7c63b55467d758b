package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Backend names accepted by VERIFAI_BACKEND.
const (
	BackendStatic     = "static"
	BackendTable      = "table"
	BackendClassifier = "classifier"
	BackendGemini     = "gemini"
	BackendOpenAI     = "openai"
	BackendGRPC       = "grpc"
)

// Config holds process configuration read from the environment.
type Config struct {
	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"omitempty,oneof=debug info warn error"`

	Backend     string `validate:"oneof=static table classifier gemini openai grpc"`
	ArtifactDir string `validate:"required_if=Backend classifier"`

	GeminiAPIKey string `validate:"required_if=Backend gemini"`
	GeminiModel  string
	OpenAIAPIKey string `validate:"required_if=Backend openai"`
	OpenAIModel  string
	OpenAIURL    string `validate:"omitempty,url"`

	ImageProcessorAddr string `validate:"required_if=Backend grpc"`

	DatabaseDSN string
	RedisAddr   string

	JWTSecret   string
	JWTAudience string

	CORSAllowedOrigins []string      `validate:"min=1"`
	RequestTimeout     time.Duration `validate:"gte=0"`
	ShutdownTimeout    time.Duration `validate:"gt=0"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds and validates a Config from the current environment.
func FromEnv() (*Config, error) {
	requestTimeout, err := durationEnv("VERIFAI_REQUEST_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := durationEnv("SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: strings.ToLower(os.Getenv("LOG_LEVEL")),

		Backend:     strings.ToLower(getEnv("VERIFAI_BACKEND", BackendTable)),
		ArtifactDir: getEnv("VERIFAI_ARTIFACT_DIR", "artifacts"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIURL:    os.Getenv("OPENAI_BASE_URL"),

		ImageProcessorAddr: os.Getenv("IMAGE_PROCESSOR_ADDR"),

		DatabaseDSN: os.Getenv("DATABASE_DSN"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTAudience: os.Getenv("JWT_AUDIENCE"),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		RequestTimeout:     requestTimeout,
		ShutdownTimeout:    shutdownTimeout,
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
