package model

import (
	"time"

	"github.com/google/uuid"
)

// TxStatus is the lifecycle state of a recorded transfer. Transitions are
// monotonic: a row never leaves confirmed or failed.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s TxStatus) IsTerminal() bool {
	return s == TxStatusConfirmed || s == TxStatusFailed
}

// Transaction is a locally recorded intent to pay, reconciled against chain
// receipts. Amount is base units as decimal text (NUMERIC-safe, never float).
type Transaction struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	TxHash         string     `db:"tx_hash" json:"tx_hash"`
	FromAddress    string     `db:"from_address" json:"from_address"`
	ToAddress      string     `db:"to_address" json:"to_address"`
	Amount         string     `db:"amount" json:"amount"`
	TokenAddress   *string    `db:"token_address" json:"token_address"` // nil for the native asset
	ChainID        int64      `db:"chain_id" json:"chain_id"`
	ConversationID string     `db:"conversation_id" json:"conversation_id"`
	MessageID      *string    `db:"message_id" json:"message_id,omitempty"`
	Status         TxStatus   `db:"status" json:"status"`
	BlockNumber    *int64     `db:"block_number" json:"block_number,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	ConfirmedAt    *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
}

// IsNative reports whether the transfer moves the chain's native asset.
func (t *Transaction) IsNative() bool {
	return t.TokenAddress == nil
}
