package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port              string
	DatabaseURL       string
	NotifyChannel     string
	RedisAddr         string
	RedisPassword     string
	SessionTTL        time.Duration
	OpenAIKey         string
	OpenAIBaseURL     string
	StoryModel        string
	StoryMaxTokens    int
	GenerationTimeout time.Duration
	CatalogFile       string
	LogLevel          string
	LogFormat         string
}

// Load reads .env (if present) and then the environment. Variables already
// set in the environment win over .env.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	return Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		NotifyChannel:     getEnv("POSTGRES_NOTIFY_CHANNEL", "story_ready"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		SessionTTL:        getDuration("SESSION_TTL", 2*time.Hour),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		StoryModel:        getEnv("OPENAI_MODEL_STORY", "gpt-4o-mini"),
		StoryMaxTokens:    getInt("OPENAI_MAX_TOKENS", 2000),
		GenerationTimeout: getDuration("GENERATION_TIMEOUT", 60*time.Second),
		CatalogFile:       os.Getenv("CATALOG_FILE"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}
