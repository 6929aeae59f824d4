package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/blocchat/chainledger/internal/alert"
	"github.com/blocchat/chainledger/internal/chain"
	"github.com/blocchat/chainledger/internal/domain/model"
	"github.com/blocchat/chainledger/internal/metrics"
	"github.com/blocchat/chainledger/internal/retry"
	"github.com/blocchat/chainledger/internal/store"
)

var (
	ErrDuplicateTransaction = errors.New("ledger: transaction already recorded")
	ErrTransactionNotFound  = errors.New("ledger: transaction not found")
	ErrInvalidTransaction   = errors.New("ledger: invalid transaction")
)

var (
	txHashPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// RecordInput is a client-reported transfer to track until settlement.
type RecordInput struct {
	TxHash         string
	FromAddress    string
	ToAddress      string
	Amount         string
	TokenAddress   *string
	ChainID        int64
	ConversationID string
	MessageID      *string
}

// ReconcileStats summarizes one reconciliation sweep.
type ReconcileStats struct {
	Checked      int64
	Confirmed    int64
	Failed       int64
	StillPending int64
	Errors       int64
}

type Service struct {
	transactions store.TransactionRepository
	chains       *chain.Registry
	alerter      alert.Alerter
	logger       *slog.Logger
	workers      int
	maxRetries   uint64
}

type Option func(*Service)

func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithMaxRetries(n uint64) Option {
	return func(s *Service) { s.maxRetries = n }
}

func NewService(transactions store.TransactionRepository, chains *chain.Registry, alerter alert.Alerter, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		transactions: transactions,
		chains:       chains,
		alerter:      alerter,
		logger:       logger.With("component", "ledger"),
		workers:      8,
		maxRetries:   3,
	}
	if s.alerter == nil {
		s.alerter = &alert.NoopAlerter{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record stores a transfer as pending. The same hash can only be recorded
// once; replays return ErrDuplicateTransaction.
func (s *Service) Record(ctx context.Context, in RecordInput) (*model.Transaction, error) {
	t, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	if err := s.transactions.Insert(ctx, t); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrDuplicateTransaction
		}
		return nil, fmt.Errorf("record transaction: %w", err)
	}

	metrics.TransactionsRecorded.WithLabelValues(strconv.FormatInt(t.ChainID, 10)).Inc()
	s.logger.Info("transaction recorded",
		"tx_hash", t.TxHash,
		"chain_id", t.ChainID,
		"conversation_id", t.ConversationID,
	)
	return t, nil
}

func (s *Service) Get(ctx context.Context, txHash string) (*model.Transaction, error) {
	t, err := s.transactions.FindByHash(ctx, strings.ToLower(txHash))
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if t == nil {
		return nil, ErrTransactionNotFound
	}
	return t, nil
}

func (s *Service) ListByConversation(ctx context.Context, conversationID string) ([]model.Transaction, error) {
	return s.transactions.ListByConversation(ctx, conversationID)
}

// ReconcilePending sweeps every pending transaction and settles those with a
// receipt on chain. Transient chain errors leave the row pending for the
// next sweep.
func (s *Service) ReconcilePending(ctx context.Context) (ReconcileStats, error) {
	start := time.Now()
	metrics.ReconcileRuns.Inc()

	pending, err := s.transactions.ListPending(ctx)
	if err != nil {
		metrics.ReconcileErrors.Inc()
		return ReconcileStats{}, fmt.Errorf("list pending: %w", err)
	}
	metrics.PendingTransactions.Set(float64(len(pending)))

	var stats ReconcileStats
	stats.Checked = int64(len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	var confirmed, failed, stillPending, errCount atomic.Int64
	for i := range pending {
		t := pending[i]
		g.Go(func() error {
			outcome, err := s.reconcileOne(gctx, &t)
			if err != nil {
				errCount.Add(1)
				s.logger.Warn("reconcile failed",
					"tx_hash", t.TxHash,
					"chain_id", t.ChainID,
					"error", err,
				)
				return nil
			}
			switch outcome {
			case model.TxStatusConfirmed:
				confirmed.Add(1)
			case model.TxStatusFailed:
				failed.Add(1)
			default:
				stillPending.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.ReconcileErrors.Inc()
		return stats, err
	}

	stats.Confirmed = confirmed.Load()
	stats.Failed = failed.Load()
	stats.StillPending = stillPending.Load()
	stats.Errors = errCount.Load()

	metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	if stats.Checked > 0 {
		s.logger.Info("reconcile sweep done",
			"checked", stats.Checked,
			"confirmed", stats.Confirmed,
			"failed", stats.Failed,
			"still_pending", stats.StillPending,
			"errors", stats.Errors,
			"elapsed", time.Since(start).String(),
		)
	}
	return stats, nil
}

// reconcileOne fetches the receipt with retries and applies the settled
// status. Returns the resulting status, with pending meaning not yet mined.
func (s *Service) reconcileOne(ctx context.Context, t *model.Transaction) (model.TxStatus, error) {
	reader, err := s.chains.Reader(t.ChainID)
	if err != nil {
		return t.Status, err
	}

	var receipt *chain.Receipt
	operation := func() error {
		var err error
		receipt, err = reader.GetReceipt(ctx, t.TxHash)
		if err != nil {
			if retry.Classify(err).IsTransient() {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}
	err = backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxRetries), ctx))
	if err != nil {
		return t.Status, fmt.Errorf("get receipt: %w", err)
	}

	if receipt == nil {
		return model.TxStatusPending, nil
	}

	chainLabel := strconv.FormatInt(t.ChainID, 10)
	status := model.TxStatusConfirmed
	if receipt.Status == chain.ReceiptStatusReverted {
		status = model.TxStatusFailed
	}

	updated, err := s.transactions.UpdateStatusIfPending(ctx, t.TxHash, status, receipt.BlockNumber)
	if err != nil {
		return t.Status, fmt.Errorf("update status: %w", err)
	}
	if !updated {
		// Another sweep settled it first.
		return t.Status, nil
	}

	if status == model.TxStatusFailed {
		metrics.TransactionsFailed.WithLabelValues(chainLabel).Inc()
		s.logger.Warn("transaction reverted on chain",
			"tx_hash", t.TxHash,
			"chain_id", t.ChainID,
			"block_number", receipt.BlockNumber,
		)
		_ = s.alerter.Send(ctx, alert.Alert{
			Type:    alert.AlertTypeTxReverted,
			Chain:   chainLabel,
			Title:   "transaction reverted",
			Message: "a tracked transfer reverted on chain",
			Fields: map[string]string{
				"tx_hash":         t.TxHash,
				"conversation_id": t.ConversationID,
				"block_number":    strconv.FormatInt(receipt.BlockNumber, 10),
			},
		})
	} else {
		metrics.TransactionsConfirmed.WithLabelValues(chainLabel).Inc()
		s.logger.Info("transaction confirmed",
			"tx_hash", t.TxHash,
			"chain_id", t.ChainID,
			"block_number", receipt.BlockNumber,
		)
	}
	return status, nil
}

// RunPeriodic reconciles on a fixed interval until ctx is cancelled.
func (s *Service) RunPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("periodic reconciliation started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("periodic reconciliation stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.ReconcilePending(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				s.logger.Error("reconcile sweep error", "error", err)
				_ = s.alerter.Send(ctx, alert.Alert{
					Type:    alert.AlertTypeReconcileErr,
					Title:   "reconcile sweep error",
					Message: err.Error(),
				})
			}
		}
	}
}

func (s *Service) validate(in RecordInput) (*model.Transaction, error) {
	if !txHashPattern.MatchString(in.TxHash) {
		return nil, fmt.Errorf("%w: malformed tx hash %q", ErrInvalidTransaction, in.TxHash)
	}
	if !addressPattern.MatchString(in.FromAddress) {
		return nil, fmt.Errorf("%w: malformed from address", ErrInvalidTransaction)
	}
	if !addressPattern.MatchString(in.ToAddress) {
		return nil, fmt.Errorf("%w: malformed to address", ErrInvalidTransaction)
	}
	if in.ConversationID == "" {
		return nil, fmt.Errorf("%w: missing conversation id", ErrInvalidTransaction)
	}

	amount, ok := new(big.Int).SetString(in.Amount, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: amount must be a non-negative integer in base units", ErrInvalidTransaction)
	}

	if _, err := s.chains.Reader(in.ChainID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	var tokenAddress *string
	if in.TokenAddress != nil {
		if !addressPattern.MatchString(*in.TokenAddress) {
			return nil, fmt.Errorf("%w: malformed token address", ErrInvalidTransaction)
		}
		lowered := strings.ToLower(*in.TokenAddress)
		tokenAddress = &lowered
	}

	return &model.Transaction{
		TxHash:         strings.ToLower(in.TxHash),
		FromAddress:    strings.ToLower(in.FromAddress),
		ToAddress:      strings.ToLower(in.ToAddress),
		Amount:         amount.String(),
		TokenAddress:   tokenAddress,
		ChainID:        in.ChainID,
		ConversationID: in.ConversationID,
		MessageID:      in.MessageID,
		Status:         model.TxStatusPending,
	}, nil
}
