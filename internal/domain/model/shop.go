package model

import (
	"time"

	"github.com/google/uuid"
)

// Shop is a conversation-owned catalog. Items cascade-delete with the shop.
type Shop struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Name           string    `db:"name" json:"name"`
	OwnerAddress   string    `db:"owner_address" json:"owner_address"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ShopItem is a purchasable listing. Price is base units as decimal text,
// same convention as transaction amounts.
type ShopItem struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ShopID       uuid.UUID `db:"shop_id" json:"shop_id"`
	Name         string    `db:"name" json:"name"`
	Description  *string   `db:"description" json:"description"`
	Price        string    `db:"price" json:"price"`
	TokenAddress *string   `db:"token_address" json:"token_address"`
	TokenSymbol  string    `db:"token_symbol" json:"token_symbol"`
	ImageURL     *string   `db:"image_url" json:"image_url"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
