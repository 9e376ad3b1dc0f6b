package main

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type config struct {
	Port        string `default:"8080"`
	MetricsPort string `split_words:"true" default:"9090"`
	LogFormat   string `split_words:"true" default:"text"`

	Redis     redisConfig
	Postgres  postgresConfig
	Explorer  explorerConfig
	FeeSource feeSourceConfig
	Pricing   pricingConfig
	Deposit   depositConfig
}

type redisConfig struct {
	URI string `default:"redis://localhost:6379"`
}

type postgresConfig struct {
	DSN string `required:"true"`
}

type explorerConfig struct {
	URL string `default:"https://blockstream.info/api"`
}

type feeSourceConfig struct {
	URL string `default:"https://mempool.space/api/v1"`
}

type pricingConfig struct {
	RPCURL      string `envconfig:"RPC_URL" required:"true"`
	PoolAddress string `split_words:"true" required:"true"`
}

type depositConfig struct {
	MinSats            uint64 `split_words:"true" default:"10000"`
	MaxSats            uint64 `split_words:"true" default:"100000000"`
	DefaultSlippageBps uint64 `split_words:"true" default:"400"`
}

func newConfig() (config, error) {
	var cfg config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return config{}, fmt.Errorf("failed to process env var: %w", err)
	}
	return cfg, nil
}
