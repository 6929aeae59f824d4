package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/blocchat/chainledger/internal/domain/model"
)

type GateRepo struct {
	db *DB
}

func NewGateRepo(db *DB) *GateRepo {
	return &GateRepo{db: db}
}

// Replace swaps the conversation's gate in one transaction: delete the old
// definition (requirements cascade) and insert the new one.
func (r *GateRepo) Replace(ctx context.Context, gate *model.TokenGate) (*model.TokenGate, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin gate replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM token_gates WHERE conversation_id = $1`, gate.ConversationID); err != nil {
		return nil, fmt.Errorf("delete old gate: %w", err)
	}

	stored := &model.TokenGate{
		ConversationID: gate.ConversationID,
		Operator:       gate.Operator,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO token_gates (conversation_id, operator)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`, gate.ConversationID, gate.Operator).Scan(&stored.ID, &stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert gate: %w", err)
	}

	for i, req := range gate.Requirements {
		stored.Requirements = append(stored.Requirements, model.Requirement{
			TokenAddress: req.TokenAddress,
			TokenSymbol:  req.TokenSymbol,
			MinAmount:    req.MinAmount,
		})
		err := tx.QueryRowContext(ctx, `
			INSERT INTO token_gate_requirements (gate_id, token_address, token_symbol, min_amount, position)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, stored.ID, req.TokenAddress, req.TokenSymbol, req.MinAmount, i,
		).Scan(&stored.Requirements[i].ID)
		if err != nil {
			return nil, fmt.Errorf("insert gate requirement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit gate replace: %w", err)
	}
	return stored, nil
}

func (r *GateRepo) GetByConversation(ctx context.Context, conversationID string) (*model.TokenGate, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var gate model.TokenGate
	err := r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, operator, created_at, updated_at
		FROM token_gates
		WHERE conversation_id = $1
	`, conversationID).Scan(&gate.ID, &gate.ConversationID, &gate.Operator, &gate.CreatedAt, &gate.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find gate: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, token_address, token_symbol, min_amount
		FROM token_gate_requirements
		WHERE gate_id = $1
		ORDER BY position ASC
	`, gate.ID)
	if err != nil {
		return nil, fmt.Errorf("list gate requirements: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var req model.Requirement
		if err := rows.Scan(&req.ID, &req.TokenAddress, &req.TokenSymbol, &req.MinAmount); err != nil {
			return nil, fmt.Errorf("scan gate requirement: %w", err)
		}
		gate.Requirements = append(gate.Requirements, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gate requirements: %w", err)
	}
	return &gate, nil
}

func (r *GateRepo) DeleteByConversation(ctx context.Context, conversationID string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM token_gates WHERE conversation_id = $1`, conversationID); err != nil {
		return fmt.Errorf("delete gate: %w", err)
	}
	return nil
}
