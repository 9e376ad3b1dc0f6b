package main

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type config struct {
	HealthPort  string `split_words:"true" default:"8081"`
	MetricsPort string `split_words:"true" default:"9091"`
	LogFormat   string `split_words:"true" default:"text"`
	Network     string `default:"mainnet"`
	Concurrency int    `default:"10"`

	Redis     redisConfig
	Postgres  postgresConfig
	Explorer  explorerConfig
	FeeSource feeSourceConfig
	Pricing   pricingConfig
	Push      pushConfig
	Prep      prepConfig
	Wallet    walletConfig
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

type pushConfig struct {
	WsURL string `envconfig:"WS_URL" required:"true"`
}

type prepConfig struct {
	URL string `required:"true"`
}

// walletConfig declares the wallet RPC integrations. Exactly one URL should
// be set; the registry treats an empty URL as "not present".
type walletConfig struct {
	DeferredURL string `envconfig:"DEFERRED_URL"`
	IndexedURL  string `envconfig:"INDEXED_URL"`
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
