//go:build integration

package postgres_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocchat/chainledger/internal/domain/model"
	"github.com/blocchat/chainledger/internal/store"
	"github.com/blocchat/chainledger/internal/store/postgres"
)

// testDB connects to TEST_DB_URL when set, otherwise falls back to a
// Docker-based ephemeral PostgreSQL via testcontainers.
func testDB(t *testing.T) *postgres.DB {
	t.Helper()
	url := os.Getenv("TEST_DB_URL")
	if url != "" {
		db, err := postgres.New(postgres.Config{
			URL:             url,
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Minute,
		})
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return db
	}
	return setupTestContainer(t)
}

func testHash() string {
	return "0x" + strings.Repeat(uuid.NewString()[:8], 8)
}

func pendingTx(conversationID string) *model.Transaction {
	return &model.Transaction{
		TxHash:         testHash(),
		FromAddress:    "0x1111111111111111111111111111111111111111",
		ToAddress:      "0x2222222222222222222222222222222222222222",
		Amount:         "1000000000000000000",
		ChainID:        8453,
		ConversationID: conversationID,
		Status:         model.TxStatusPending,
	}
}

// ---------- TransactionRepo ----------

func TestTransactionRepo_InsertAndFind(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewTransactionRepo(db)
	ctx := context.Background()

	tx := pendingTx("conv-" + uuid.NewString()[:8])
	require.NoError(t, repo.Insert(ctx, tx))
	assert.NotEqual(t, uuid.Nil, tx.ID)

	found, err := repo.FindByHash(ctx, tx.TxHash)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, tx.TxHash, found.TxHash)
	assert.Equal(t, model.TxStatusPending, found.Status)
	assert.Nil(t, found.BlockNumber)

	missing, err := repo.FindByHash(ctx, testHash())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTransactionRepo_DuplicateHash(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewTransactionRepo(db)
	ctx := context.Background()

	tx := pendingTx("conv-" + uuid.NewString()[:8])
	require.NoError(t, repo.Insert(ctx, tx))

	dup := pendingTx(tx.ConversationID)
	dup.TxHash = tx.TxHash
	err := repo.Insert(ctx, dup)
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestTransactionRepo_UpdateStatusIfPending(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewTransactionRepo(db)
	ctx := context.Background()

	tx := pendingTx("conv-" + uuid.NewString()[:8])
	require.NoError(t, repo.Insert(ctx, tx))

	updated, err := repo.UpdateStatusIfPending(ctx, tx.TxHash, model.TxStatusConfirmed, 123)
	require.NoError(t, err)
	assert.True(t, updated)

	found, err := repo.FindByHash(ctx, tx.TxHash)
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusConfirmed, found.Status)
	require.NotNil(t, found.BlockNumber)
	assert.Equal(t, int64(123), *found.BlockNumber)
	assert.NotNil(t, found.ConfirmedAt)

	// Terminal rows never transition again.
	updated, err = repo.UpdateStatusIfPending(ctx, tx.TxHash, model.TxStatusFailed, 456)
	require.NoError(t, err)
	assert.False(t, updated)

	found, err = repo.FindByHash(ctx, tx.TxHash)
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusConfirmed, found.Status)
}

func TestTransactionRepo_ListPendingAndByConversation(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewTransactionRepo(db)
	ctx := context.Background()
	conv := "conv-" + uuid.NewString()[:8]

	first := pendingTx(conv)
	second := pendingTx(conv)
	require.NoError(t, repo.Insert(ctx, first))
	require.NoError(t, repo.Insert(ctx, second))

	_, err := repo.UpdateStatusIfPending(ctx, first.TxHash, model.TxStatusConfirmed, 1)
	require.NoError(t, err)

	byConv, err := repo.ListByConversation(ctx, conv)
	require.NoError(t, err)
	assert.Len(t, byConv, 2)

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	hashes := make(map[string]bool, len(pending))
	for _, p := range pending {
		hashes[p.TxHash] = true
	}
	assert.False(t, hashes[first.TxHash])
	assert.True(t, hashes[second.TxHash])
}

// ---------- GateRepo ----------

func TestGateRepo_ReplaceGetDelete(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewGateRepo(db)
	ctx := context.Background()
	conv := "conv-" + uuid.NewString()[:8]

	tokenAddr := "0x3333333333333333333333333333333333333333"
	stored, err := repo.Replace(ctx, &model.TokenGate{
		ConversationID: conv,
		Operator:       model.GateOperatorAnd,
		Requirements: []model.Requirement{
			{TokenSymbol: "ETH", MinAmount: "1000000000000000000"},
			{TokenAddress: &tokenAddr, TokenSymbol: "USDC", MinAmount: "5000000"},
		},
	})
	require.NoError(t, err)
	require.Len(t, stored.Requirements, 2)

	// Replace swaps the whole definition.
	stored, err = repo.Replace(ctx, &model.TokenGate{
		ConversationID: conv,
		Operator:       model.GateOperatorOr,
		Requirements: []model.Requirement{
			{TokenSymbol: "ETH", MinAmount: "1"},
		},
	})
	require.NoError(t, err)

	found, err := repo.GetByConversation(ctx, conv)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, model.GateOperatorOr, found.Operator)
	require.Len(t, found.Requirements, 1)
	assert.Equal(t, "ETH", found.Requirements[0].TokenSymbol)

	require.NoError(t, repo.DeleteByConversation(ctx, conv))
	found, err = repo.GetByConversation(ctx, conv)
	require.NoError(t, err)
	assert.Nil(t, found)
}

// ---------- ProfileRepo ----------

func TestProfileRepo_UpsertAndUsername(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewProfileRepo(db)
	ctx := context.Background()

	wallet := "0x" + uuid.NewString()[:8] + "00000000000000000000000000000000"
	p, err := repo.Upsert(ctx, wallet, "inbox-1")
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(wallet), p.WalletAddress)

	// Re-upsert rebinds the inbox only.
	p2, err := repo.Upsert(ctx, wallet, "inbox-2")
	require.NoError(t, err)
	assert.Equal(t, p.ID, p2.ID)
	assert.Equal(t, "inbox-2", p2.InboxID)

	username := "user" + uuid.NewString()[:8]
	updated, err := repo.SetUsername(ctx, wallet, username)
	require.NoError(t, err)
	require.NotNil(t, updated.Username)
	assert.Equal(t, username, *updated.Username)
	assert.NotNil(t, updated.LastUsernameChange)

	// Lookup is case-insensitive.
	found, err := repo.FindByUsername(ctx, strings.ToUpper(username))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, p.ID, found.ID)

	available, err := repo.UsernameAvailable(ctx, strings.ToUpper(username), "0x9999999999999999999999999999999999999999")
	require.NoError(t, err)
	assert.False(t, available)

	// The holder can keep its own name.
	available, err = repo.UsernameAvailable(ctx, username, wallet)
	require.NoError(t, err)
	assert.True(t, available)
}

func TestProfileRepo_UpdateFieldsCoalesce(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewProfileRepo(db)
	ctx := context.Background()

	wallet := "0x" + uuid.NewString()[:8] + "11111111111111111111111111111111"
	_, err := repo.Upsert(ctx, wallet, "inbox-1")
	require.NoError(t, err)

	display := "Alice"
	bio := "gm"
	p, err := repo.UpdateFields(ctx, wallet, nil, &display, nil, &bio)
	require.NoError(t, err)
	assert.Equal(t, "Alice", *p.DisplayName)

	avatar := "https://example.com/a.png"
	p, err = repo.UpdateFields(ctx, wallet, nil, nil, &avatar, nil)
	require.NoError(t, err)
	assert.Equal(t, "Alice", *p.DisplayName)
	assert.Equal(t, "gm", *p.Bio)
	assert.Equal(t, avatar, *p.AvatarURL)
}

// ---------- ShopRepo ----------

func TestShopRepo_CascadeDelete(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewShopRepo(db)
	ctx := context.Background()
	conv := "conv-" + uuid.NewString()[:8]

	shop := &model.Shop{
		ConversationID: conv,
		Name:           "Sticker Store",
		OwnerAddress:   "0x1111111111111111111111111111111111111111",
	}
	require.NoError(t, repo.CreateShop(ctx, shop))

	item := &model.ShopItem{
		ShopID:      shop.ID,
		Name:        "Sticker Pack",
		Price:       "1000000",
		TokenSymbol: "USDC",
	}
	require.NoError(t, repo.CreateItem(ctx, item))

	items, err := repo.ListItems(ctx, shop.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, repo.DeleteShop(ctx, shop.ID))

	foundShop, err := repo.FindShop(ctx, shop.ID)
	require.NoError(t, err)
	assert.Nil(t, foundShop)

	foundItem, err := repo.FindItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Nil(t, foundItem)
}
