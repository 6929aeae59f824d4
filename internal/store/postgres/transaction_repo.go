package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/blocchat/chainledger/internal/domain/model"
	"github.com/blocchat/chainledger/internal/store"
)

const txColumns = `id, tx_hash, from_address, to_address, amount, token_address,
	chain_id, conversation_id, message_id, status, block_number, created_at, confirmed_at`

type TransactionRepo struct {
	db *DB
}

func NewTransactionRepo(db *DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

// Insert persists a pending transaction. The tx_hash unique constraint is the
// duplicate guard; violations surface as store.ErrDuplicate.
func (r *TransactionRepo) Insert(ctx context.Context, t *model.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO transactions (tx_hash, from_address, to_address, amount, token_address,
			chain_id, conversation_id, message_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, status, created_at
	`, t.TxHash, t.FromAddress, t.ToAddress, t.Amount, t.TokenAddress,
		t.ChainID, t.ConversationID, t.MessageID, model.TxStatusPending,
	).Scan(&t.ID, &t.Status, &t.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return store.ErrDuplicate
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepo) FindByHash(ctx context.Context, txHash string) (*model.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE tx_hash = $1`, txHash)

	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction %s: %w", txHash, err)
	}
	return t, nil
}

func (r *TransactionRepo) ListByConversation(ctx context.Context, conversationID string) ([]model.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+txColumns+`
		FROM transactions
		WHERE conversation_id = $1
		ORDER BY created_at DESC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list conversation transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (r *TransactionRepo) ListPending(ctx context.Context) ([]model.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+txColumns+`
		FROM transactions
		WHERE status = $1
		ORDER BY created_at ASC
	`, model.TxStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// UpdateStatusIfPending is the single concurrency guard for the transaction
// lifecycle: the WHERE clause only matches rows still pending, so concurrent
// reconciliations of the same hash cannot double-transition it.
func (r *TransactionRepo) UpdateStatusIfPending(ctx context.Context, txHash string, status model.TxStatus, blockNumber int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1,
		    block_number = $2,
		    confirmed_at = CASE WHEN $1 = 'confirmed' THEN now() ELSE confirmed_at END
		WHERE tx_hash = $3 AND status = 'pending'
	`, status, blockNumber, txHash)
	if err != nil {
		return false, fmt.Errorf("update transaction status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(&t.ID, &t.TxHash, &t.FromAddress, &t.ToAddress, &t.Amount,
		&t.TokenAddress, &t.ChainID, &t.ConversationID, &t.MessageID,
		&t.Status, &t.BlockNumber, &t.CreatedAt, &t.ConfirmedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}
