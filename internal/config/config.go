package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN         string `env:"DATABASE_DSN,required=true"`
	RedisURL            string `env:"REDIS_URL,required=true"`
	SevdeskAPIKey       string `env:"SEVDESK_API_KEY,required=true"`
	SevdeskBaseURL      string `env:"SEVDESK_BASE_URL,default=https://my.sevdesk.de/api/v1"`
	ShopifyShopURL      string `env:"SHOPIFY_SHOP_URL,required=true"`
	ShopifyClientID     string `env:"SHOPIFY_CLIENT_ID,required=true"`
	ShopifyClientSecret string `env:"SHOPIFY_CLIENT_SECRET,required=true"`
	ShopifyRatePerSec   int    `env:"SHOPIFY_RATE_LIMIT_PER_SEC,default=2"`
	PollIntervalSec     int    `env:"POLL_INTERVAL_SEC,default=60"`
	PollEnabled         bool   `env:"POLL_ENABLED,default=true"`
	DryRun              bool   `env:"DRY_RUN,default=false"`
	APIPort             int    `env:"API_PORT,default=8080"`
	LogLevel            string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
