package main

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	ecommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/daobridge/deposit/internal/broadcast"
	"github.com/daobridge/deposit/internal/deposit"
	"github.com/daobridge/deposit/internal/fees"
	"github.com/daobridge/deposit/internal/graceful"
	"github.com/daobridge/deposit/internal/health"
	"github.com/daobridge/deposit/internal/logging"
	"github.com/daobridge/deposit/internal/metrics"
	"github.com/daobridge/deposit/internal/monitor"
	"github.com/daobridge/deposit/internal/orchestrator"
	"github.com/daobridge/deposit/internal/quote"
	"github.com/daobridge/deposit/internal/redeem"
	"github.com/daobridge/deposit/internal/txprep"
	"github.com/daobridge/deposit/internal/wallet"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = godotenv.Load()

	cfg, err := newConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	logger := logging.NewLogger(cfg.LogFormat)

	params, err := networkParams(cfg.Network)
	if err != nil {
		logger.Fatalf("failed to resolve network: %v", err)
	}

	metrics.RegisterMetrics([]string{metrics.ServiceWorker, metrics.ServiceMonitor}, logger)
	metricsServer := metrics.StartMetricsServer(cfg.MetricsPort, logger)
	defer func() {
		if err := metricsServer.Stop(ctx); err != nil {
			logger.Errorf("failed to stop metrics server: %v", err)
		}
	}()

	healthServer := health.StartServer(cfg.HealthPort, logger)
	defer func() {
		if err := healthServer.Stop(ctx); err != nil {
			logger.Errorf("failed to stop health server: %v", err)
		}
	}()

	pgPool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("failed to initialize Postgres pool: %v", err)
	}
	defer pgPool.Close()

	store, err := deposit.NewPostgresStore(ctx, pgPool)
	if err != nil {
		logger.Fatalf("failed to initialize deposit store: %v", err)
	}

	rpc, err := ethclient.Dial(cfg.Pricing.RPCURL)
	if err != nil {
		logger.Fatalf("failed to dial pricing rpc: %v", err)
	}
	quotes := quote.NewEngine(rpc, ecommon.HexToAddress(cfg.Pricing.PoolAddress), logger)

	workerMetrics := metrics.NewWorkerMetrics()
	feeManager := fees.NewManager(cfg.FeeSource.URL, logger)
	feeManager.SetFetchErrorHook(workerMetrics.RecordFeeSourceFailure)
	go feeManager.Run(ctx)

	var deferred *wallet.DeferredSigner
	if cfg.Wallet.DeferredURL != "" {
		deferred = wallet.NewDeferredSigner(cfg.Wallet.DeferredURL, cfg.Network, logger)
	}
	var indexed *wallet.IndexedSigner
	if cfg.Wallet.IndexedURL != "" {
		indexed = wallet.NewIndexedSigner(cfg.Wallet.IndexedURL, logger)
	}

	explorer := broadcast.NewClient(cfg.Explorer.URL)

	orch := orchestrator.New(
		logger,
		quotes,
		feeManager,
		txprep.NewClient(cfg.Prep.URL, logger),
		wallet.NewRegistry(deferred, indexed),
		redeem.NewResolver(params, logger),
		deposit.NewLifecycle(store, logger),
		explorer,
		monitor.New(cfg.Push.WsURL, explorer, logger),
		params,
		orchestrator.Config{
			MinDepositSats:     cfg.Deposit.MinSats,
			MaxDepositSats:     cfg.Deposit.MaxSats,
			DefaultSlippageBps: cfg.Deposit.DefaultSlippageBps,
		},
	)

	asynqOpt, err := asynq.ParseRedisURI(cfg.Redis.URI)
	if err != nil {
		logger.Fatalf("failed to parse redis URI: %v", err)
	}

	consumer := asynq.NewServer(
		asynqOpt,
		asynq.Config{
			Logger:      logger,
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				orchestrator.QueueName: 10,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(orchestrator.TypeDepositExecute, orch.HandleDepositTask)

	go func() {
		if er := consumer.Run(mux); er != nil {
			logger.Fatalf("worker failed: %v", er)
		}
	}()
	logger.Info("deposit worker started")

	<-graceful.MakeSigintChan()
	logger.Info("shutting down")
	consumer.Shutdown()
}

func networkParams(name string) (*chaincfg.Params, error) {
	switch name {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	}
	return nil, fmt.Errorf("unknown network %q", name)
}
