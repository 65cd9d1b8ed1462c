package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	// History persistence. DatabaseURL is optional; when empty the JSON file
	// log at HistoryPath is used instead.
	DatabaseURL string
	HistoryPath string

	// Prompt enhancement backend (Gemini).
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	// Ranking and image evaluation backend (OpenAI). Optional; ranking falls
	// back to the deterministic heuristic and evaluation is disabled when the
	// key is absent.
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Image generation backends.
	ImageBackend     string
	ImagenModel      string
	GeminiImageModel string

	// Pipeline defaults; each request reads these once and treats them as
	// immutable for the run.
	VariantCount      int
	ImageCount        int
	EvalEnabled       bool
	TargetScore       float64
	MaxIterations     int
	NoImprovementStop bool

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		HistoryPath:       getEnv("HISTORY_PATH", "generation_history.json"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-pro"),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ImageBackend:      getEnv("IMAGE_BACKEND", "imagen"),
		ImagenModel:       getEnv("IMAGEN_MODEL", "imagen-4.0-generate-preview-06-06"),
		GeminiImageModel:  getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		VariantCount:      getEnvInt("VARIANT_COUNT", 3),
		ImageCount:        getEnvInt("IMAGE_COUNT", 2),
		EvalEnabled:       getEnvBool("EVAL_ENABLED", false),
		TargetScore:       getEnvFloat("EVAL_TARGET_SCORE", 8.5),
		MaxIterations:     getEnvInt("EVAL_MAX_ITERATIONS", 3),
		NoImprovementStop: getEnvBool("EVAL_NO_IMPROVEMENT_STOP", true),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	if cfg.VariantCount < 1 {
		return nil, fmt.Errorf("VARIANT_COUNT must be >= 1")
	}

	switch cfg.ImageBackend {
	case "imagen", "gemini":
	default:
		return nil, fmt.Errorf("IMAGE_BACKEND must be imagen or gemini, got %q", cfg.ImageBackend)
	}

	if cfg.EvalEnabled && cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("EVAL_ENABLED requires OPENAI_API_KEY")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}
