package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/daobridge/deposit/internal/deposit"
	"github.com/daobridge/deposit/internal/fees"
	"github.com/daobridge/deposit/internal/metrics"
	"github.com/daobridge/deposit/internal/orchestrator"
	"github.com/daobridge/deposit/internal/quote"
	"github.com/daobridge/deposit/internal/util"
)

// Server is the public HTTP API: quote and fee display, deposit initiation,
// and deposit status.
type Server struct {
	echo   *echo.Echo
	logger *logrus.Logger
	quotes *quote.Engine
	fees   *fees.Manager
	store  deposit.Store
	queue  *asynq.Client
	cfg    orchestrator.Config
}

func NewServer(
	logger *logrus.Logger,
	quotes *quote.Engine,
	feeManager *fees.Manager,
	store deposit.Store,
	queue *asynq.Client,
	cfg orchestrator.Config,
) *Server {
	s := &Server{
		echo:   echo.New(),
		logger: logger.WithField("pkg", "api.Server").Logger,
		quotes: quotes,
		fees:   feeManager,
		store:  store,
		queue:  queue,
		cfg:    cfg,
	}

	s.echo.HideBanner = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(metrics.HTTPMiddleware())

	s.echo.GET("/health", s.health)
	s.echo.GET("/fees", s.feeSchedule)
	s.echo.GET("/quote", s.quoteHandler)
	s.echo.POST("/deposits", s.createDeposit)
	s.echo.GET("/deposits/:id", s.getDeposit)

	return s
}

func (s *Server) Start(port string) error {
	return s.echo.Start(":" + port)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) feeSchedule(c echo.Context) error {
	return c.JSON(http.StatusOK, s.fees.Current())
}

func (s *Server) quoteHandler(c echo.Context) error {
	amountSats, err := amountFromQuery(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	slippageBps := s.cfg.DefaultSlippageBps
	if raw := c.QueryParam("slippageBps"); raw != "" {
		slippageBps, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, "invalid slippageBps")
		}
	}

	q, err := s.quotes.GetQuote(c.Request().Context(), amountSats, slippageBps)
	if errors.Is(err, quote.ErrNoQuote) {
		return errorJSON(c, http.StatusNotFound, "no quote available for this amount")
	}
	if err != nil {
		s.logger.WithError(err).Error("quote lookup failed")
		return errorJSON(c, http.StatusBadGateway, "quote lookup failed")
	}
	return c.JSON(http.StatusOK, q)
}

// depositRequest is the deposit initiation body. The amount is accepted
// either as a BTC decimal string or directly in sats.
type depositRequest struct {
	AmountBtc                string `json:"amountBtc"`
	AmountSats               uint64 `json:"amountSats"`
	SlippageBps              uint64 `json:"slippageBps"`
	FeeTier                  string `json:"feeTier"`
	SenderAddress            string `json:"senderAddress"`
	ReceiverAddress          string `json:"receiverAddress"`
	SecondaryReceiverAddress string `json:"secondaryReceiverAddress"`
	SwapType                 string `json:"swapType"`
	PoolID                   string `json:"poolId"`
	DexID                    string `json:"dexId"`
}

func (s *Server) createDeposit(c echo.Context) error {
	var req depositRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	amountSats := req.AmountSats
	if amountSats == 0 && req.AmountBtc != "" {
		var err error
		amountSats, err = util.BtcToSats(req.AmountBtc)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, err.Error())
		}
	}
	if amountSats < s.cfg.MinDepositSats || amountSats > s.cfg.MaxDepositSats {
		return errorJSON(c, http.StatusBadRequest, "deposit amount out of bounds")
	}
	if req.SenderAddress == "" || req.ReceiverAddress == "" {
		return errorJSON(c, http.StatusBadRequest, "senderAddress and receiverAddress are required")
	}
	if req.PoolID == "" || req.DexID == "" {
		return errorJSON(c, http.StatusBadRequest, "poolId and dexId are required")
	}

	task, err := orchestrator.NewDepositTask(orchestrator.Request{
		AmountSats:               amountSats,
		SlippageBps:              req.SlippageBps,
		FeeTier:                  fees.Tier(util.IfEmptyElse(req.FeeTier, string(fees.TierMedium))),
		SenderAddress:            req.SenderAddress,
		ReceiverAddress:          req.ReceiverAddress,
		SecondaryReceiverAddress: req.SecondaryReceiverAddress,
		SwapType:                 util.IfEmptyElse(req.SwapType, "buy"),
		PoolID:                   req.PoolID,
		DexID:                    req.DexID,
	})
	if err != nil {
		s.logger.WithError(err).Error("failed to build deposit task")
		return errorJSON(c, http.StatusInternalServerError, "failed to queue deposit")
	}

	info, err := s.queue.EnqueueContext(c.Request().Context(), task)
	if err != nil {
		s.logger.WithError(err).Error("failed to enqueue deposit task")
		return errorJSON(c, http.StatusInternalServerError, "failed to queue deposit")
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"taskId": info.ID,
		"state":  info.State.String(),
	})
}

func (s *Server) getDeposit(c echo.Context) error {
	rec, err := s.store.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, deposit.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "deposit not found")
	}
	if err != nil {
		s.logger.WithError(err).Error("failed to load deposit")
		return errorJSON(c, http.StatusInternalServerError, "failed to load deposit")
	}
	return c.JSON(http.StatusOK, rec)
}

func amountFromQuery(c echo.Context) (uint64, error) {
	if raw := c.QueryParam("amountSats"); raw != "" {
		sats, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || sats == 0 {
			return 0, errors.New("invalid amountSats")
		}
		return sats, nil
	}
	if raw := c.QueryParam("amount"); raw != "" {
		return util.BtcToSats(raw)
	}
	return 0, errors.New("amount is required")
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}
