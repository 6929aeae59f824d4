package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/blocchat/chainledger/internal/chain"
	"github.com/blocchat/chainledger/internal/chain/evm/rpc"
	"github.com/blocchat/chainledger/internal/circuitbreaker"
	"github.com/blocchat/chainledger/internal/metrics"
)

// Adapter exposes one EVM chain as a chain.Reader. All RPC calls pass
// through a token-bucket rate limiter and a circuit breaker.
type Adapter struct {
	chainID int64
	client  *rpc.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

type Config struct {
	ChainID        int64
	RPCURL         string
	RequestsPerSec float64
	Burst          int
}

func NewAdapter(cfg Config, logger *slog.Logger) *Adapter {
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 40
	}
	log := logger.With("component", "evm_adapter", "chain_id", cfg.ChainID)
	return &Adapter{
		chainID: cfg.ChainID,
		client:  rpc.NewClient(cfg.RPCURL, log),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		breaker: circuitbreaker.New(circuitbreaker.Config{}),
		logger:  log,
	}
}

func (a *Adapter) ChainID() int64 {
	return a.chainID
}

func (a *Adapter) GetReceipt(ctx context.Context, txHash string) (*chain.Receipt, error) {
	var raw *rpc.TransactionReceipt
	err := a.do(ctx, "eth_getTransactionReceipt", func() error {
		var err error
		raw, err = a.client.GetTransactionReceipt(ctx, txHash)
		return err
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	blockNumber, err := rpc.ParseHexInt64(raw.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("parse receipt block number: %w", err)
	}

	status := chain.ReceiptStatusReverted
	if raw.Status == "0x1" {
		status = chain.ReceiptStatusSuccess
	}
	return &chain.Receipt{
		TxHash:      raw.TransactionHash,
		Status:      status,
		BlockNumber: blockNumber,
	}, nil
}

func (a *Adapter) GetBalance(ctx context.Context, wallet, tokenAddress string) (*big.Int, error) {
	var balance *big.Int
	method := "eth_getBalance"
	if tokenAddress != "" {
		method = "eth_call"
	}
	err := a.do(ctx, method, func() error {
		var err error
		if tokenAddress == "" {
			balance, err = a.client.GetBalance(ctx, wallet)
		} else {
			balance, err = a.client.GetTokenBalance(ctx, tokenAddress, wallet)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

func (a *Adapter) BlockNumber(ctx context.Context) (int64, error) {
	var blockNumber int64
	err := a.do(ctx, "eth_blockNumber", func() error {
		var err error
		blockNumber, err = a.client.GetBlockNumber(ctx)
		return err
	})
	return blockNumber, err
}

func (a *Adapter) do(ctx context.Context, method string, fn func() error) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	chainLabel := strconv.FormatInt(a.chainID, 10)
	start := time.Now()
	err := a.breaker.Do(fn)
	metrics.RPCLatency.WithLabelValues(chainLabel, method).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RPCRequests.WithLabelValues(chainLabel, method, "error").Inc()
		return err
	}
	metrics.RPCRequests.WithLabelValues(chainLabel, method, "ok").Inc()
	return nil
}
