package shop

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocchat/chainledger/internal/domain/model"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockShopRepo implements store.ShopRepository in memory.
type mockShopRepo struct {
	shops map[uuid.UUID]*model.Shop
	items map[uuid.UUID]*model.ShopItem
}

func newMockShopRepo() *mockShopRepo {
	return &mockShopRepo{
		shops: make(map[uuid.UUID]*model.Shop),
		items: make(map[uuid.UUID]*model.ShopItem),
	}
}

func (m *mockShopRepo) CreateShop(_ context.Context, shop *model.Shop) error {
	shop.ID = uuid.New()
	cp := *shop
	m.shops[shop.ID] = &cp
	return nil
}

func (m *mockShopRepo) FindShop(_ context.Context, id uuid.UUID) (*model.Shop, error) {
	s, ok := m.shops[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *mockShopRepo) ListShopsByConversation(_ context.Context, conversationID string) ([]model.Shop, error) {
	var out []model.Shop
	for _, s := range m.shops {
		if s.ConversationID == conversationID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockShopRepo) RenameShop(_ context.Context, id uuid.UUID, name string) (*model.Shop, error) {
	s, ok := m.shops[id]
	if !ok {
		return nil, nil
	}
	s.Name = name
	cp := *s
	return &cp, nil
}

func (m *mockShopRepo) DeleteShop(_ context.Context, id uuid.UUID) error {
	delete(m.shops, id)
	for itemID, item := range m.items {
		if item.ShopID == id {
			delete(m.items, itemID)
		}
	}
	return nil
}

func (m *mockShopRepo) CreateItem(_ context.Context, item *model.ShopItem) error {
	item.ID = uuid.New()
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *mockShopRepo) FindItem(_ context.Context, id uuid.UUID) (*model.ShopItem, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (m *mockShopRepo) ListItems(_ context.Context, shopID uuid.UUID) ([]model.ShopItem, error) {
	var out []model.ShopItem
	for _, it := range m.items {
		if it.ShopID == shopID {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (m *mockShopRepo) UpdateItem(_ context.Context, item *model.ShopItem) (*model.ShopItem, error) {
	existing, ok := m.items[item.ID]
	if !ok {
		return nil, nil
	}
	item.ShopID = existing.ShopID
	cp := *item
	m.items[item.ID] = &cp
	return &cp, nil
}

func (m *mockShopRepo) DeleteItem(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

const (
	testOwner  = "0x1111111111111111111111111111111111111111"
	testCaller = "0x2222222222222222222222222222222222222222"
	testConv   = "conv-1"
)

func newTestService(repo *mockShopRepo) *Service {
	return NewService(repo, testLogger())
}

func createShop(t *testing.T, svc *Service) *model.Shop {
	t.Helper()
	shop, err := svc.Create(context.Background(), testConv, "Sticker Store", testOwner)
	require.NoError(t, err)
	return shop
}

func validItem() ItemInput {
	return ItemInput{Name: "Sticker Pack", Price: "1000000", TokenSymbol: "USDC"}
}

// ---------------------------------------------------------------------------
// Shops
// ---------------------------------------------------------------------------

func TestCreate(t *testing.T) {
	svc := newTestService(newMockShopRepo())

	shop := createShop(t, svc)
	assert.NotEqual(t, uuid.Nil, shop.ID)
	assert.Equal(t, testOwner, shop.OwnerAddress)

	got, err := svc.Get(context.Background(), shop.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sticker Store", got.Name)
}

func TestCreate_Invalid(t *testing.T) {
	svc := newTestService(newMockShopRepo())

	_, err := svc.Create(context.Background(), "", "Store", testOwner)
	assert.ErrorIs(t, err, ErrInvalidShop)

	_, err = svc.Create(context.Background(), testConv, "   ", testOwner)
	assert.ErrorIs(t, err, ErrInvalidShop)

	_, err = svc.Create(context.Background(), testConv, "Store", "0xnope")
	assert.ErrorIs(t, err, ErrInvalidShop)
}

func TestGet_NotFound(t *testing.T) {
	svc := newTestService(newMockShopRepo())

	_, err := svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrShopNotFound)
}

func TestRename_OwnerOnly(t *testing.T) {
	svc := newTestService(newMockShopRepo())
	shop := createShop(t, svc)

	_, err := svc.Rename(context.Background(), shop.ID, testCaller, "Hijacked")
	assert.ErrorIs(t, err, ErrNotOwner)

	// Owner match is case-insensitive.
	renamed, err := svc.Rename(context.Background(), shop.ID, "0x1111111111111111111111111111111111111111", "New Name")
	require.NoError(t, err)
	assert.Equal(t, "New Name", renamed.Name)
}

func TestDelete_RemovesItems(t *testing.T) {
	repo := newMockShopRepo()
	svc := newTestService(repo)
	shop := createShop(t, svc)

	_, err := svc.AddItem(context.Background(), shop.ID, testOwner, validItem())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), shop.ID, testOwner))
	assert.Empty(t, repo.items)

	_, err = svc.Get(context.Background(), shop.ID)
	assert.ErrorIs(t, err, ErrShopNotFound)
}

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

func TestAddItem(t *testing.T) {
	svc := newTestService(newMockShopRepo())
	shop := createShop(t, svc)

	item, err := svc.AddItem(context.Background(), shop.ID, testOwner, validItem())
	require.NoError(t, err)
	assert.Equal(t, shop.ID, item.ShopID)
	assert.Equal(t, "1000000", item.Price)
}

func TestAddItem_Invalid(t *testing.T) {
	svc := newTestService(newMockShopRepo())
	shop := createShop(t, svc)

	cases := []struct {
		name string
		in   ItemInput
	}{
		{"missing name", ItemInput{Price: "1", TokenSymbol: "USDC"}},
		{"missing symbol", ItemInput{Name: "x", Price: "1"}},
		{"negative price", ItemInput{Name: "x", Price: "-1", TokenSymbol: "USDC"}},
		{"decimal price", ItemInput{Name: "x", Price: "1.5", TokenSymbol: "USDC"}},
		{"bad token address", func() ItemInput {
			in := validItem()
			bad := "0x12"
			in.TokenAddress = &bad
			return in
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AddItem(context.Background(), shop.ID, testOwner, tc.in)
			assert.ErrorIs(t, err, ErrInvalidShop)
		})
	}
}

func TestAddItem_OwnerOnly(t *testing.T) {
	svc := newTestService(newMockShopRepo())
	shop := createShop(t, svc)

	_, err := svc.AddItem(context.Background(), shop.ID, testCaller, validItem())
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestUpdateItem(t *testing.T) {
	svc := newTestService(newMockShopRepo())
	shop := createShop(t, svc)
	item, err := svc.AddItem(context.Background(), shop.ID, testOwner, validItem())
	require.NoError(t, err)

	in := validItem()
	in.Name = "Deluxe Pack"
	in.Price = "2000000"
	updated, err := svc.UpdateItem(context.Background(), item.ID, testOwner, in)
	require.NoError(t, err)
	assert.Equal(t, "Deluxe Pack", updated.Name)
	assert.Equal(t, "2000000", updated.Price)

	_, err = svc.UpdateItem(context.Background(), item.ID, testCaller, in)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestDeleteItem(t *testing.T) {
	svc := newTestService(newMockShopRepo())
	shop := createShop(t, svc)
	item, err := svc.AddItem(context.Background(), shop.ID, testOwner, validItem())
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteItem(context.Background(), item.ID, testCaller), ErrNotOwner)
	require.NoError(t, svc.DeleteItem(context.Background(), item.ID, testOwner))

	_, err = svc.GetItem(context.Background(), item.ID)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestListItems_ShopMustExist(t *testing.T) {
	svc := newTestService(newMockShopRepo())

	_, err := svc.ListItems(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrShopNotFound)
}
