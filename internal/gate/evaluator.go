package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/blocchat/chainledger/internal/chain"
	"github.com/blocchat/chainledger/internal/domain/model"
	"github.com/blocchat/chainledger/internal/metrics"
	"github.com/blocchat/chainledger/internal/store"
)

var (
	ErrInvalidGate  = errors.New("gate: invalid gate definition")
	ErrGateNotFound = errors.New("gate: no gate for conversation")

	// ErrEvaluationUnavailable means a balance could not be read, so no
	// access decision can be made. Callers must not treat it as a denial.
	ErrEvaluationUnavailable = errors.New("gate: evaluation unavailable")
)

const maxRequirements = 10

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// DefinitionCache stores gate definitions keyed by conversation. A cached
// nil gate marks a conversation known to be ungated.
type DefinitionCache interface {
	Get(ctx context.Context, conversationID string) (*model.TokenGate, bool, error)
	Set(ctx context.Context, conversationID string, gate *model.TokenGate) error
	Invalidate(ctx context.Context, conversationID string) error
}

// RequirementResult is one requirement's outcome within a Decision.
type RequirementResult struct {
	TokenSymbol  string `json:"token_symbol"`
	TokenAddress string `json:"token_address,omitempty"`
	Required     string `json:"required"`
	Balance      string `json:"balance"`
	Met          bool   `json:"met"`
}

// Decision is a full gate evaluation: the aggregate verdict plus the
// per-requirement breakdown it was derived from.
type Decision struct {
	Passed    bool                `json:"passed"`
	Operator  model.GateOperator  `json:"operator,omitempty"`
	Breakdown []RequirementResult `json:"breakdown,omitempty"`
}

type DefineInput struct {
	ConversationID string
	Operator       model.GateOperator
	Requirements   []RequirementInput
}

type RequirementInput struct {
	TokenAddress *string
	TokenSymbol  string
	MinAmount    string
}

type Evaluator struct {
	gates  store.GateRepository
	reader chain.Reader
	cache  DefinitionCache
	logger *slog.Logger
}

func NewEvaluator(gates store.GateRepository, reader chain.Reader, cache DefinitionCache, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		gates:  gates,
		reader: reader,
		cache:  cache,
		logger: logger.With("component", "gate"),
	}
}

// Define replaces the conversation's gate definition atomically.
func (e *Evaluator) Define(ctx context.Context, in DefineInput) (*model.TokenGate, error) {
	gate, err := e.validate(in)
	if err != nil {
		return nil, err
	}

	stored, err := e.gates.Replace(ctx, gate)
	if err != nil {
		return nil, fmt.Errorf("define gate: %w", err)
	}

	if err := e.cache.Invalidate(ctx, in.ConversationID); err != nil {
		e.logger.Warn("gate cache invalidation failed", "conversation_id", in.ConversationID, "error", err)
	}

	e.logger.Info("gate defined",
		"conversation_id", stored.ConversationID,
		"operator", stored.Operator,
		"requirements", len(stored.Requirements),
	)
	return stored, nil
}

func (e *Evaluator) Get(ctx context.Context, conversationID string) (*model.TokenGate, error) {
	gate, err := e.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if gate == nil {
		return nil, ErrGateNotFound
	}
	return gate, nil
}

func (e *Evaluator) Delete(ctx context.Context, conversationID string) error {
	if err := e.gates.DeleteByConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("delete gate: %w", err)
	}
	if err := e.cache.Invalidate(ctx, conversationID); err != nil {
		e.logger.Warn("gate cache invalidation failed", "conversation_id", conversationID, "error", err)
	}
	e.logger.Info("gate deleted", "conversation_id", conversationID)
	return nil
}

// Evaluate checks the wallet against the conversation's gate. Conversations
// without a gate pass trivially. Every requirement is evaluated so the
// breakdown is complete even when the verdict is already determined.
func (e *Evaluator) Evaluate(ctx context.Context, conversationID, wallet string) (*Decision, error) {
	if !addressPattern.MatchString(wallet) {
		return nil, fmt.Errorf("%w: malformed wallet address", ErrInvalidGate)
	}
	wallet = strings.ToLower(wallet)

	start := time.Now()
	gate, err := e.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if gate == nil {
		metrics.GateEvaluations.WithLabelValues("ungated").Inc()
		return &Decision{Passed: true}, nil
	}

	breakdown := make([]RequirementResult, 0, len(gate.Requirements))
	metCount := 0
	for _, req := range gate.Requirements {
		tokenAddress := ""
		if req.TokenAddress != nil {
			tokenAddress = *req.TokenAddress
		}

		balance, err := e.reader.GetBalance(ctx, wallet, tokenAddress)
		if err != nil {
			metrics.GateEvaluations.WithLabelValues("unavailable").Inc()
			e.logger.Warn("balance query failed",
				"conversation_id", conversationID,
				"token", req.TokenSymbol,
				"error", err,
			)
			return nil, fmt.Errorf("%w: %s balance: %v", ErrEvaluationUnavailable, req.TokenSymbol, err)
		}

		required, ok := new(big.Int).SetString(req.MinAmount, 10)
		if !ok {
			return nil, fmt.Errorf("%w: stored min amount %q", ErrInvalidGate, req.MinAmount)
		}

		met := balance.Cmp(required) >= 0
		if met {
			metCount++
		}
		breakdown = append(breakdown, RequirementResult{
			TokenSymbol:  req.TokenSymbol,
			TokenAddress: tokenAddress,
			Required:     required.String(),
			Balance:      balance.String(),
			Met:          met,
		})
	}

	passed := metCount == len(gate.Requirements)
	if gate.Operator == model.GateOperatorOr {
		passed = metCount > 0
	}

	metrics.GateEvaluationDuration.Observe(time.Since(start).Seconds())
	if passed {
		metrics.GateEvaluations.WithLabelValues("passed").Inc()
	} else {
		metrics.GateEvaluations.WithLabelValues("denied").Inc()
	}

	return &Decision{
		Passed:    passed,
		Operator:  gate.Operator,
		Breakdown: breakdown,
	}, nil
}

// load reads the gate through the cache, falling back to the repository and
// caching the result, including the no-gate case.
func (e *Evaluator) load(ctx context.Context, conversationID string) (*model.TokenGate, error) {
	gate, ok, err := e.cache.Get(ctx, conversationID)
	if err != nil {
		e.logger.Warn("gate cache read failed", "conversation_id", conversationID, "error", err)
	} else if ok {
		metrics.GateCacheHits.WithLabelValues("hit").Inc()
		return gate, nil
	}
	metrics.GateCacheHits.WithLabelValues("miss").Inc()

	gate, err = e.gates.GetByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load gate: %w", err)
	}
	if err := e.cache.Set(ctx, conversationID, gate); err != nil {
		e.logger.Warn("gate cache write failed", "conversation_id", conversationID, "error", err)
	}
	return gate, nil
}

func (e *Evaluator) validate(in DefineInput) (*model.TokenGate, error) {
	if in.ConversationID == "" {
		return nil, fmt.Errorf("%w: missing conversation id", ErrInvalidGate)
	}
	if !in.Operator.Valid() {
		return nil, fmt.Errorf("%w: operator must be AND or OR", ErrInvalidGate)
	}
	if len(in.Requirements) == 0 {
		return nil, fmt.Errorf("%w: at least one requirement", ErrInvalidGate)
	}
	if len(in.Requirements) > maxRequirements {
		return nil, fmt.Errorf("%w: at most %d requirements", ErrInvalidGate, maxRequirements)
	}

	gate := &model.TokenGate{
		ConversationID: in.ConversationID,
		Operator:       in.Operator,
	}
	for _, req := range in.Requirements {
		if req.TokenSymbol == "" {
			return nil, fmt.Errorf("%w: missing token symbol", ErrInvalidGate)
		}
		amount, ok := new(big.Int).SetString(req.MinAmount, 10)
		if !ok || amount.Sign() < 0 {
			return nil, fmt.Errorf("%w: min amount must be a non-negative integer in base units", ErrInvalidGate)
		}

		var tokenAddress *string
		if req.TokenAddress != nil {
			if !addressPattern.MatchString(*req.TokenAddress) {
				return nil, fmt.Errorf("%w: malformed token address", ErrInvalidGate)
			}
			lowered := strings.ToLower(*req.TokenAddress)
			tokenAddress = &lowered
		}

		gate.Requirements = append(gate.Requirements, model.Requirement{
			TokenAddress: tokenAddress,
			TokenSymbol:  req.TokenSymbol,
			MinAmount:    amount.String(),
		})
	}
	return gate, nil
}
