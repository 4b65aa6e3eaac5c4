package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"mathtutor_go_backend/internal/auth"
	"mathtutor_go_backend/internal/services"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string

	DatabaseURL string
	DBHost      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBPort      string

	TokenSecret string
	TokenTTL    time.Duration

	LLMProvider    string
	LLMAPIKeys     []string
	LLMBaseURL     string
	LLMTextModel   string
	LLMVisionModel string

	StripeSecretKey     string
	StripeWebhookSecret string
	BasicPriceID        string
	GoldPriceID         string
	PremiumPriceID      string
	SiteURL             string
	FrontendURL         string

	RedisAddr               string
	RedisPassword           string
	RateLimitCapacity       int
	RateLimitRefillInterval time.Duration

	RabbitMQURL            string
	RequirePositiveBalance bool
}

// Load reads the environment, after an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found")
	}

	cfg := &Config{
		Port:           getEnv("PORT", "3000"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBUser:      os.Getenv("DB_USER"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBName:      os.Getenv("DB_NAME"),
		DBPort:      getEnv("DB_PORT", "5432"),

		TokenSecret: os.Getenv("JWT_TOKEN_SECRET"),

		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", ProviderGroq)),
		LLMAPIKeys:     splitList(os.Getenv("LLM_API_KEYS")),
		LLMBaseURL:     os.Getenv("LLM_BASE_URL"),
		LLMTextModel:   getEnv("LLM_TEXT_MODEL", "llama-3.3-70b-versatile"),
		LLMVisionModel: getEnv("LLM_VISION_MODEL", "llama-3.2-11b-vision-preview"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		BasicPriceID:        os.Getenv("BASIC_PRICE_ID"),
		GoldPriceID:         os.Getenv("GOLD_PRICE_ID"),
		PremiumPriceID:      os.Getenv("PREMIUM_PRICE_ID"),
		SiteURL:             strings.TrimRight(os.Getenv("NEXT_PUBLIC_SITE_URL"), "/"),
		FrontendURL:         strings.TrimRight(os.Getenv("NEXT_PUBLIC_FRONTEND_DOMAIN"), "/"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RabbitMQURL:   os.Getenv("RABBITMQ_URL"),
	}

	var err error
	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", auth.DefaultTokenTTL); err != nil {
		return nil, err
	}
	if cfg.RateLimitCapacity, err = getInt("RATE_LIMIT_CAPACITY", 20); err != nil {
		return nil, err
	}
	if cfg.RateLimitRefillInterval, err = getDuration("RATE_LIMIT_REFILL_INTERVAL", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.RequirePositiveBalance, err = getBool("REQUIRE_POSITIVE_BALANCE", true); err != nil {
		return nil, err
	}

	if cfg.TokenSecret == "" {
		return nil, errors.New("JWT_TOKEN_SECRET is not set in the environment")
	}
	if len(cfg.LLMAPIKeys) == 0 {
		return nil, errors.New("LLM_API_KEYS is not set in the environment")
	}
	switch cfg.LLMProvider {
	case ProviderGroq:
		if cfg.LLMBaseURL == "" {
			cfg.LLMBaseURL = services.DefaultGroqBaseURL
		}
	case ProviderOpenAI, ProviderGemini:
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = cfg.SiteURL
	}
	return cfg, nil
}

// DSN prefers DATABASE_URL over the individual DB_* variables.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func (c *Config) Prices() services.PriceTable {
	return services.PriceTable{
		Basic:   c.BasicPriceID,
		Gold:    c.GoldPriceID,
		Premium: c.PremiumPriceID,
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
