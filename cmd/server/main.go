package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	ecommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/daobridge/deposit/internal/api"
	"github.com/daobridge/deposit/internal/deposit"
	"github.com/daobridge/deposit/internal/fees"
	"github.com/daobridge/deposit/internal/graceful"
	"github.com/daobridge/deposit/internal/logging"
	"github.com/daobridge/deposit/internal/metrics"
	"github.com/daobridge/deposit/internal/orchestrator"
	"github.com/daobridge/deposit/internal/quote"
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

	metrics.RegisterMetrics([]string{metrics.ServiceHTTP}, logger)
	metricsServer := metrics.StartMetricsServer(cfg.MetricsPort, logger)
	defer func() {
		if err := metricsServer.Stop(ctx); err != nil {
			logger.Errorf("failed to stop metrics server: %v", err)
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

	asynqOpt, err := asynq.ParseRedisURI(cfg.Redis.URI)
	if err != nil {
		logger.Fatalf("failed to parse redis URI: %v", err)
	}
	asynqClient := asynq.NewClient(asynqOpt)
	defer asynqClient.Close()

	rpc, err := ethclient.Dial(cfg.Pricing.RPCURL)
	if err != nil {
		logger.Fatalf("failed to dial pricing rpc: %v", err)
	}

	quotes := quote.NewEngine(rpc, ecommon.HexToAddress(cfg.Pricing.PoolAddress), logger)

	feeManager := fees.NewManager(cfg.FeeSource.URL, logger)
	go feeManager.Run(ctx)

	srv := api.NewServer(logger, quotes, feeManager, store, asynqClient, orchestrator.Config{
		MinDepositSats:     cfg.Deposit.MinSats,
		MaxDepositSats:     cfg.Deposit.MaxSats,
		DefaultSlippageBps: cfg.Deposit.DefaultSlippageBps,
	})

	go func() {
		if er := srv.Start(cfg.Port); er != nil && !errors.Is(er, http.ErrServerClosed) {
			logger.Fatalf("api server failed: %v", er)
		}
	}()
	logger.Infof("api server listening on :%s", cfg.Port)

	<-graceful.MakeSigintChan()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Errorf("failed to stop api server: %v", err)
	}
}
