package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration.
type Config struct {
	// Server settings
	HTTPPort string

	// Database
	DatabaseDSN string

	// Tactical evaluator settings
	Evaluator EvaluatorConfig

	// Human-move model settings
	HumanModel HumanModelConfig

	// Opponent-move controller settings
	CalibrationEnabled bool

	LogLevel  string
	LogFormat string
}

// EvaluatorConfig holds the UCI tactical evaluator subprocess settings.
type EvaluatorConfig struct {
	BinaryPath string
	Threads    int
	Hash       int // MB
	Depth      int
}

// HumanModelConfig holds the remote human-likeness move provider
// settings.
type HumanModelConfig struct {
	BaseURL string
	Timeout time.Duration
	TopK    int
	MinProb float64
}

// Load loads configuration from environment.
func Load() (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	return &Config{
		HTTPPort: getEnv("HTTP_PORT", "8081"),

		DatabaseDSN: getEnv("DATABASE_DSN", "postgres://localhost:5432/ghostreplay"),

		Evaluator: EvaluatorConfig{
			BinaryPath: getEnv("EVALUATOR_PATH", "/usr/local/bin/stockfish"),
			Threads:    getEnvInt("EVALUATOR_THREADS", 2),
			Hash:       getEnvInt("EVALUATOR_HASH", 256),
			Depth:      getEnvInt("EVALUATOR_DEPTH", 14),
		},

		HumanModel: HumanModelConfig{
			BaseURL: getEnv("HUMAN_MODEL_BASE_URL", "http://localhost:8000"),
			Timeout: time.Duration(getEnvInt("HUMAN_MODEL_TIMEOUT_SECONDS", 5)) * time.Second,
			TopK:    getEnvInt("HUMAN_MODEL_TOP_K", 8),
			MinProb: getEnvFloat("HUMAN_MODEL_MIN_PROB", 0.01),
		},

		CalibrationEnabled: getEnvBool("CALIBRATION_ENABLED", true),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
