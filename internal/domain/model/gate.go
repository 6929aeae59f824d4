package model

import (
	"time"

	"github.com/google/uuid"
)

// GateOperator aggregates requirement outcomes into a single decision.
type GateOperator string

const (
	GateOperatorAnd GateOperator = "AND"
	GateOperatorOr  GateOperator = "OR"
)

// Valid reports whether the operator is one of the closed set.
func (op GateOperator) Valid() bool {
	return op == GateOperatorAnd || op == GateOperatorOr
}

// Requirement is a single token holding threshold. A nil TokenAddress means
// the native asset. MinAmount is base units as decimal text.
type Requirement struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TokenAddress *string   `db:"token_address" json:"token_address"`
	TokenSymbol  string    `db:"token_symbol" json:"token_symbol"`
	MinAmount    string    `db:"min_amount" json:"min_amount"`
}

// TokenGate is a conversation's access rule set. Invariant: at least one
// requirement.
type TokenGate struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	ConversationID string        `db:"conversation_id" json:"conversation_id"`
	Operator       GateOperator  `db:"operator" json:"operator"`
	Requirements   []Requirement `db:"-" json:"requirements"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}
