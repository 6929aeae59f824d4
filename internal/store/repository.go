package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/blocchat/chainledger/internal/domain/model"
)

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("store: duplicate key")

// TransactionRepository provides access to recorded transfers.
// Finders return (nil, nil) when no row matches.
type TransactionRepository interface {
	// Insert persists a new pending transaction and fills its generated
	// fields. Returns ErrDuplicate when the tx hash already exists.
	Insert(ctx context.Context, t *model.Transaction) error

	FindByHash(ctx context.Context, txHash string) (*model.Transaction, error)
	ListByConversation(ctx context.Context, conversationID string) ([]model.Transaction, error)
	ListPending(ctx context.Context) ([]model.Transaction, error)

	// UpdateStatusIfPending atomically transitions a row out of pending.
	// Returns false when the row was already in a terminal state (benign:
	// a concurrent reconciliation won the race).
	UpdateStatusIfPending(ctx context.Context, txHash string, status model.TxStatus, blockNumber int64) (bool, error)
}

// GateRepository provides access to conversation token gates.
type GateRepository interface {
	// Replace atomically swaps the conversation's gate definition for the
	// given one and returns the stored gate.
	Replace(ctx context.Context, gate *model.TokenGate) (*model.TokenGate, error)

	GetByConversation(ctx context.Context, conversationID string) (*model.TokenGate, error)
	DeleteByConversation(ctx context.Context, conversationID string) error
}

// ProfileRepository provides access to user profiles.
type ProfileRepository interface {
	// Upsert creates the profile for a wallet or refreshes its inbox id.
	Upsert(ctx context.Context, walletAddress, inboxID string) (*model.UserProfile, error)

	FindByWallet(ctx context.Context, walletAddress string) (*model.UserProfile, error)
	FindByUsername(ctx context.Context, username string) (*model.UserProfile, error)
	FindByInboxID(ctx context.Context, inboxID string) (*model.UserProfile, error)

	// UsernameAvailable reports whether username is unused, case-insensitively,
	// by any wallet other than excludeWallet.
	UsernameAvailable(ctx context.Context, username, excludeWallet string) (bool, error)

	// SetUsername updates the username and stamps last_username_change.
	SetUsername(ctx context.Context, walletAddress, username string) (*model.UserProfile, error)

	// UpdateFields applies COALESCE semantics: nil fields keep their value.
	UpdateFields(ctx context.Context, walletAddress string, username, displayName, avatarURL, bio *string) (*model.UserProfile, error)

	Search(ctx context.Context, query string, limit int) ([]model.UserProfile, error)
}

// ShopRepository provides access to shops and their items.
type ShopRepository interface {
	CreateShop(ctx context.Context, shop *model.Shop) error
	FindShop(ctx context.Context, id uuid.UUID) (*model.Shop, error)
	ListShopsByConversation(ctx context.Context, conversationID string) ([]model.Shop, error)
	RenameShop(ctx context.Context, id uuid.UUID, name string) (*model.Shop, error)
	DeleteShop(ctx context.Context, id uuid.UUID) error

	CreateItem(ctx context.Context, item *model.ShopItem) error
	FindItem(ctx context.Context, id uuid.UUID) (*model.ShopItem, error)
	ListItems(ctx context.Context, shopID uuid.UUID) ([]model.ShopItem, error)
	UpdateItem(ctx context.Context, item *model.ShopItem) (*model.ShopItem, error)
	DeleteItem(ctx context.Context, id uuid.UUID) error
}
