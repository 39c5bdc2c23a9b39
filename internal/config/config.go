package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL    string
	HTTPPort       string
	LogLevel       string
	JWTSecret      string
	SessionTTL     time.Duration
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	OpenAIModel    string
	GeminiAPIKey   string
	GeminiModel    string
	AskRatePerMin  int
	MaxRequestBody int64
}

// Load reads .env (if present) and the environment. The returned Config is
// passed explicitly to every component; nothing reads the environment after
// startup.
func Load() Config {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := Config{
		DatabaseURL:    getEnv("DATABASE_URL", "clickpe.db"),
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		SessionTTL:     7 * 24 * time.Hour,
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		AskRatePerMin:  getEnvAsInt("ASK_RATE_PER_MIN", 20),
		MaxRequestBody: int64(getEnvAsInt("MAX_REQUEST_BODY", 1<<20)),
	}

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	if cfg.OpenAIAPIKey == "" && cfg.GeminiAPIKey == "" {
		log.Println("No AI provider configured, chat answers will use the local fallback")
	}

	return cfg
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
