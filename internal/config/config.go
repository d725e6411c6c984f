// Package config содержит логику чтения конфигурации сервиса kycgate.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mmeshcher/kycgate/internal/model"
)

// KYC содержит настройки провайдера проверки личности. Передаётся в
// компоненты при создании и не читается из глобального состояния.
type KYC struct {
	ProviderAddress string `env:"KYC_PROVIDER_ADDRESS"`
	APIKey          string `env:"KYC_PROVIDER_API_KEY"`
	WebhookSecret   string `env:"KYC_WEBHOOK_SECRET"`
	TemplateID      string `env:"KYC_TEMPLATE_ID"`
	Environment     string `env:"KYC_ENVIRONMENT" envDefault:"sandbox"`
	// TemplateTiers сопоставляет шаблон проверки у провайдера уровню, который
	// пользователь получает после её прохождения, например "itmpl_basic:TIER_1".
	TemplateTiers map[string]string `env:"KYC_TEMPLATE_TIERS"`
}

// Tiers возвращает уровни, присваиваемые по шаблонам проверки.
func (k KYC) Tiers() (map[string]model.Tier, error) {
	res := make(map[string]model.Tier, len(k.TemplateTiers))
	for template, v := range k.TemplateTiers {
		t, err := model.ParseTier(v)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", template, err)
		}
		if t == model.Tier0 {
			return nil, fmt.Errorf("template %s: %s is not an upgrade", template, t)
		}
		res[template] = t
	}
	return res, nil
}

// Config содержит параметры конфигурации сервиса kycgate.
type Config struct {
	RunAddress        string        `env:"RUN_ADDRESS"`
	DatabaseURI       string        `env:"DATABASE_URI"`
	RedisAddress      string        `env:"REDIS_ADDRESS"`
	AuthSecret        string        `env:"AUTH_SECRET"`
	AdminToken        string        `env:"ADMIN_TOKEN"`
	SecureCookie      bool          `env:"SECURE_COOKIE" envDefault:"false"`
	StoreTimeout      time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`
	VolumeFailClosed  bool          `env:"VOLUME_FAIL_CLOSED" envDefault:"false"`
	WaitlistRateLimit int64         `env:"WAITLIST_RATE_LIMIT" envDefault:"5"`
	KYC               KYC
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и
// переменных окружения. Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRedisAddress := cfg.RedisAddress
	envProviderAddress := cfg.KYC.ProviderAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for rate limiting")
	flag.StringVar(&cfg.KYC.ProviderAddress, "k", "", "KYC provider address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}
	if envProviderAddress != "" {
		cfg.KYC.ProviderAddress = envProviderAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if cfg.StoreTimeout <= 0 {
		return nil, fmt.Errorf("store timeout must be positive, got %s", cfg.StoreTimeout)
	}
	if cfg.WaitlistRateLimit <= 0 {
		return nil, fmt.Errorf("waitlist rate limit must be positive, got %d", cfg.WaitlistRateLimit)
	}

	if _, err := cfg.KYC.Tiers(); err != nil {
		return nil, fmt.Errorf("kyc template tiers: %w", err)
	}

	return cfg, nil
}
