package shop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/blocchat/chainledger/internal/domain/model"
	"github.com/blocchat/chainledger/internal/store"
)

var (
	ErrShopNotFound = errors.New("shop: not found")
	ErrItemNotFound = errors.New("shop: item not found")
	ErrInvalidShop  = errors.New("shop: invalid input")
	ErrNotOwner     = errors.New("shop: caller does not own this shop")
)

const maxNameLen = 100

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

type Service struct {
	shops  store.ShopRepository
	logger *slog.Logger
}

func NewService(shops store.ShopRepository, logger *slog.Logger) *Service {
	return &Service{
		shops:  shops,
		logger: logger.With("component", "shop"),
	}
}

func (s *Service) Create(ctx context.Context, conversationID, name, ownerAddress string) (*model.Shop, error) {
	name = strings.TrimSpace(name)
	if conversationID == "" || name == "" || len(name) > maxNameLen {
		return nil, fmt.Errorf("%w: conversation id and name required", ErrInvalidShop)
	}
	if !addressPattern.MatchString(ownerAddress) {
		return nil, fmt.Errorf("%w: malformed owner address", ErrInvalidShop)
	}

	shop := &model.Shop{
		ConversationID: conversationID,
		Name:           name,
		OwnerAddress:   strings.ToLower(ownerAddress),
	}
	if err := s.shops.CreateShop(ctx, shop); err != nil {
		return nil, fmt.Errorf("create shop: %w", err)
	}
	s.logger.Info("shop created", "shop_id", shop.ID, "conversation_id", conversationID)
	return shop, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Shop, error) {
	shop, err := s.shops.FindShop(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get shop: %w", err)
	}
	if shop == nil {
		return nil, ErrShopNotFound
	}
	return shop, nil
}

func (s *Service) ListByConversation(ctx context.Context, conversationID string) ([]model.Shop, error) {
	return s.shops.ListShopsByConversation(ctx, conversationID)
}

func (s *Service) Rename(ctx context.Context, id uuid.UUID, caller, name string) (*model.Shop, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLen {
		return nil, fmt.Errorf("%w: name required", ErrInvalidShop)
	}
	if _, err := s.requireOwner(ctx, id, caller); err != nil {
		return nil, err
	}

	updated, err := s.shops.RenameShop(ctx, id, name)
	if err != nil {
		return nil, fmt.Errorf("rename shop: %w", err)
	}
	if updated == nil {
		return nil, ErrShopNotFound
	}
	return updated, nil
}

// Delete removes the shop and, through the schema, all of its items.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, caller string) error {
	if _, err := s.requireOwner(ctx, id, caller); err != nil {
		return err
	}
	if err := s.shops.DeleteShop(ctx, id); err != nil {
		return fmt.Errorf("delete shop: %w", err)
	}
	s.logger.Info("shop deleted", "shop_id", id)
	return nil
}

type ItemInput struct {
	Name         string
	Description  *string
	Price        string
	TokenAddress *string
	TokenSymbol  string
	ImageURL     *string
}

func (s *Service) AddItem(ctx context.Context, shopID uuid.UUID, caller string, in ItemInput) (*model.ShopItem, error) {
	if _, err := s.requireOwner(ctx, shopID, caller); err != nil {
		return nil, err
	}
	item, err := s.validateItem(in)
	if err != nil {
		return nil, err
	}
	item.ShopID = shopID

	if err := s.shops.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("add shop item: %w", err)
	}
	return item, nil
}

func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*model.ShopItem, error) {
	item, err := s.shops.FindItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get shop item: %w", err)
	}
	if item == nil {
		return nil, ErrItemNotFound
	}
	return item, nil
}

func (s *Service) ListItems(ctx context.Context, shopID uuid.UUID) ([]model.ShopItem, error) {
	if _, err := s.Get(ctx, shopID); err != nil {
		return nil, err
	}
	return s.shops.ListItems(ctx, shopID)
}

func (s *Service) UpdateItem(ctx context.Context, itemID uuid.UUID, caller string, in ItemInput) (*model.ShopItem, error) {
	existing, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireOwner(ctx, existing.ShopID, caller); err != nil {
		return nil, err
	}

	item, err := s.validateItem(in)
	if err != nil {
		return nil, err
	}
	item.ID = itemID

	updated, err := s.shops.UpdateItem(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("update shop item: %w", err)
	}
	if updated == nil {
		return nil, ErrItemNotFound
	}
	return updated, nil
}

func (s *Service) DeleteItem(ctx context.Context, itemID uuid.UUID, caller string) error {
	existing, err := s.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if _, err := s.requireOwner(ctx, existing.ShopID, caller); err != nil {
		return err
	}
	if err := s.shops.DeleteItem(ctx, itemID); err != nil {
		return fmt.Errorf("delete shop item: %w", err)
	}
	return nil
}

func (s *Service) requireOwner(ctx context.Context, shopID uuid.UUID, caller string) (*model.Shop, error) {
	shop, err := s.Get(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(shop.OwnerAddress, caller) {
		return nil, ErrNotOwner
	}
	return shop, nil
}

func (s *Service) validateItem(in ItemInput) (*model.ShopItem, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > maxNameLen {
		return nil, fmt.Errorf("%w: item name required", ErrInvalidShop)
	}
	if in.TokenSymbol == "" {
		return nil, fmt.Errorf("%w: token symbol required", ErrInvalidShop)
	}

	price, ok := new(big.Int).SetString(in.Price, 10)
	if !ok || price.Sign() < 0 {
		return nil, fmt.Errorf("%w: price must be a non-negative integer in base units", ErrInvalidShop)
	}

	var tokenAddress *string
	if in.TokenAddress != nil {
		if !addressPattern.MatchString(*in.TokenAddress) {
			return nil, fmt.Errorf("%w: malformed token address", ErrInvalidShop)
		}
		lowered := strings.ToLower(*in.TokenAddress)
		tokenAddress = &lowered
	}

	return &model.ShopItem{
		Name:         name,
		Description:  in.Description,
		Price:        price.String(),
		TokenAddress: tokenAddress,
		TokenSymbol:  in.TokenSymbol,
		ImageURL:     in.ImageURL,
	}, nil
}
