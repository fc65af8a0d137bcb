package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Storefront StorefrontConfig
	Suggestion SuggestionConfig
	Engine     EngineConfig
	Sweep      SweepConfig
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
}

type JWTConfig struct {
	SecretKey string
}

// StorefrontConfig points at the storefront publisher API that makes a
// variant's text live and serves current product attributes.
type StorefrontConfig struct {
	BaseURL           string
	BasicAuthUsername string
	BasicAuthPassword string
}

// SuggestionConfig points at the generative suggestion service used by
// the auto-optimization loop to produce challenger variants.
type SuggestionConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// EngineConfig holds the experimentation engine tuning knobs.
type EngineConfig struct {
	ExplorationBudget        int
	SegmentExplorationBudget int
	MinImpressions           int
	MinConversions           int
	SegmentMinImpressions    int
	Alpha                    float64
	Beta                     float64
	MinEffect                float64
	ChallengerCount          int
	AssignmentRetries        int
}

// SweepConfig holds the periodic sweep intervals.
type SweepConfig struct {
	FlushInterval    time.Duration
	ScheduleInterval time.Duration
	OptimizeInterval time.Duration
	LockTTL          time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, errors.New("invalid redis database")
	}

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Content Experimentation API"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "content_lab"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			RedisHost:     getEnv("REDIS_HOST", "localhost"),
			RedisPort:     getEnv("REDIS_PORT", "6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       redisDB,
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", ""),
		},
		Storefront: StorefrontConfig{
			BaseURL:           getEnv("STOREFRONT_BASE_URL", ""),
			BasicAuthUsername: getEnv("STOREFRONT_BASIC_AUTH_USERNAME", ""),
			BasicAuthPassword: getEnv("STOREFRONT_BASIC_AUTH_PASSWORD", ""),
		},
		Suggestion: SuggestionConfig{
			BaseURL: getEnv("SUGGESTION_BASE_URL", ""),
			APIKey:  getEnv("SUGGESTION_API_KEY", ""),
			Model:   getEnv("SUGGESTION_MODEL", "content-suggest-v2"),
		},
		Engine: EngineConfig{
			ExplorationBudget:        getEnvInt("ENGINE_EXPLORATION_BUDGET", 100),
			SegmentExplorationBudget: getEnvInt("ENGINE_SEGMENT_EXPLORATION_BUDGET", 50),
			MinImpressions:           getEnvInt("ENGINE_MIN_IMPRESSIONS", 30),
			MinConversions:           getEnvInt("ENGINE_MIN_CONVERSIONS", 5),
			SegmentMinImpressions:    getEnvInt("ENGINE_SEGMENT_MIN_IMPRESSIONS", 100),
			Alpha:                    getEnvFloat("ENGINE_ALPHA", 0.05),
			Beta:                     getEnvFloat("ENGINE_BETA", 0.2),
			MinEffect:                getEnvFloat("ENGINE_MIN_EFFECT", 0.01),
			ChallengerCount:          getEnvInt("ENGINE_CHALLENGER_COUNT", 2),
			AssignmentRetries:        getEnvInt("ENGINE_ASSIGNMENT_RETRIES", 3),
		},
		Sweep: SweepConfig{
			FlushInterval:    getEnvDuration("SWEEP_FLUSH_INTERVAL", time.Minute),
			ScheduleInterval: getEnvDuration("SWEEP_SCHEDULE_INTERVAL", time.Minute),
			OptimizeInterval: getEnvDuration("SWEEP_OPTIMIZE_INTERVAL", time.Hour),
			LockTTL:          getEnvDuration("SWEEP_LOCK_TTL", 10*time.Minute),
		},
	}

	if cfg.JWT.SecretKey == "" {
		return nil, errors.New("missing jwt secret")
	}

	if cfg.Database.Password == "" {
		return nil, errors.New("missing database password")
	}

	if cfg.Storefront.BaseURL == "" {
		return nil, errors.New("missing storefront base url")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
