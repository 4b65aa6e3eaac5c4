package main

import (
	"context"
	"os"
	"time"

	"mathtutor_go_backend/cmd/api/config"
	"mathtutor_go_backend/internal/api"
	"mathtutor_go_backend/internal/auth"
	"mathtutor_go_backend/internal/database"
	"mathtutor_go_backend/internal/mail"
	"mathtutor_go_backend/internal/ratelimit"
	"mathtutor_go_backend/internal/services"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var storageModule = fx.Options(
	fx.Provide(
		provideDB,
		provideRedis,
		provideLimiter,
		providePublisher,
	),
)

var generatorModule = fx.Provide(provideGenerator)

var servicesModule = fx.Options(
	fx.Provide(
		fx.Annotate(services.NewCreditLedger, fx.As(new(services.CreditLedger))),
		fx.Annotate(services.NewUserService, fx.As(new(services.UserService))),
		fx.Annotate(services.NewChatServiceDB, fx.As(new(services.ChatServiceDB))),
		provideBillingProvider,
		provideMeteredService,
		provideBillingService,
		provideTokenManager,
		provideAPIDeps,
		provideAuthDeps,
	),
)

func provideLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	logger = logger.With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	return logger
}

func provideDB(lc fx.Lifecycle, cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg.DSN(), log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db, nil
}

// provideRedis yields a nil client when REDIS_ADDR is unset or unreachable.
func provideRedis(lc fx.Lifecycle, cfg *config.Config, log zerolog.Logger) *redis.Client {
	client := ratelimit.NewRedisClient(context.Background(), cfg.RedisAddr, cfg.RedisPassword, log)
	if client != nil {
		lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return client.Close() }})
	}
	return client
}

func provideLimiter(cfg *config.Config, client *redis.Client) ratelimit.Limiter {
	if client == nil {
		return nil
	}
	return ratelimit.NewRedisLimiter(client, ratelimit.Config{
		Capacity:       cfg.RateLimitCapacity,
		RefillTokens:   1,
		RefillInterval: cfg.RateLimitRefillInterval,
		Prefix:         "rl:metered",
	})
}

func providePublisher(lc fx.Lifecycle, cfg *config.Config, log zerolog.Logger) mail.Publisher {
	if cfg.RabbitMQURL == "" {
		log.Warn().Msg("RABBITMQ_URL not set, verification links are only logged")
		return mail.LogPublisher{Logger: log}
	}
	publisher := mail.NewAMQPPublisher(cfg.RabbitMQURL, log)
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return publisher.Close() }})
	return publisher
}

func provideGenerator(lc fx.Lifecycle, cfg *config.Config, log zerolog.Logger) (services.Generator, error) {
	pool, err := services.NewKeyPool(cfg.LLMAPIKeys)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("provider", cfg.LLMProvider).
		Int("keys", pool.Len()).
		Str("textModel", cfg.LLMTextModel).
		Msg("Generative service configured")

	if cfg.LLMProvider == config.ProviderGemini {
		gen, err := services.NewGeminiGenerator(context.Background(), pool, cfg.LLMTextModel, cfg.LLMVisionModel)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return gen.Close() }})
		return gen, nil
	}
	return services.NewOpenAIGenerator(pool, cfg.LLMBaseURL, cfg.LLMTextModel, cfg.LLMVisionModel), nil
}

func provideBillingProvider(cfg *config.Config, log zerolog.Logger) services.BillingProvider {
	if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
		log.Warn().Msg("Stripe keys not set, checkout and webhooks will fail")
	}
	return services.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.SiteURL)
}

func provideMeteredService(cfg *config.Config, ledger services.CreditLedger, chats services.ChatServiceDB, users services.UserService, generator services.Generator) *services.MeteredService {
	return services.NewMeteredService(ledger, chats, users, generator, services.MeteredServiceConfig{
		RequirePositiveBalance: cfg.RequirePositiveBalance,
	})
}

func provideBillingService(cfg *config.Config, provider services.BillingProvider, ledger services.CreditLedger, users services.UserService) *services.BillingService {
	return services.NewBillingService(provider, ledger, users, cfg.Prices())
}

func provideTokenManager(cfg *config.Config) *auth.TokenManager {
	return auth.NewTokenManager(cfg.TokenSecret, cfg.TokenTTL)
}

// deps carries everything the route tables need, resolved by fx.
type deps struct {
	fx.In

	Config  *config.Config
	Tokens  *auth.TokenManager
	Ledger  services.CreditLedger
	Users   services.UserService
	Chats   services.ChatServiceDB
	Metered *services.MeteredService
	Billing *services.BillingService
	Limiter ratelimit.Limiter
	Mailer  mail.Publisher
}

func provideAPIDeps(d deps) api.Deps {
	return api.Deps{
		Tokens:       d.Tokens,
		Ledger:       d.Ledger,
		Users:        d.Users,
		Chats:        d.Chats,
		Metered:      d.Metered,
		Billing:      d.Billing,
		Limiter:      d.Limiter,
		RateCapacity: d.Config.RateLimitCapacity,
	}
}

func provideAuthDeps(d deps) auth.Deps {
	return auth.Deps{
		Users:       d.Users,
		Tokens:      d.Tokens,
		Mailer:      d.Mailer,
		FrontendURL: d.Config.FrontendURL,
	}
}
