package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/blocchat/chainledger/internal/domain/model"
)

const itemColumns = `id, shop_id, name, description, price, token_address,
	token_symbol, image_url, created_at, updated_at`

type ShopRepo struct {
	db *DB
}

func NewShopRepo(db *DB) *ShopRepo {
	return &ShopRepo{db: db}
}

func (r *ShopRepo) CreateShop(ctx context.Context, shop *model.Shop) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO shops (conversation_id, name, owner_address)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, shop.ConversationID, shop.Name, shop.OwnerAddress,
	).Scan(&shop.ID, &shop.CreatedAt, &shop.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create shop: %w", err)
	}
	return nil
}

func (r *ShopRepo) FindShop(ctx context.Context, id uuid.UUID) (*model.Shop, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var s model.Shop
	err := r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, name, owner_address, created_at, updated_at
		FROM shops WHERE id = $1
	`, id).Scan(&s.ID, &s.ConversationID, &s.Name, &s.OwnerAddress, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find shop: %w", err)
	}
	return &s, nil
}

func (r *ShopRepo) ListShopsByConversation(ctx context.Context, conversationID string) ([]model.Shop, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, name, owner_address, created_at, updated_at
		FROM shops
		WHERE conversation_id = $1
		ORDER BY created_at DESC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}
	defer rows.Close()

	var out []model.Shop
	for rows.Next() {
		var s model.Shop
		if err := rows.Scan(&s.ID, &s.ConversationID, &s.Name, &s.OwnerAddress, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan shop: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shops: %w", err)
	}
	return out, nil
}

func (r *ShopRepo) RenameShop(ctx context.Context, id uuid.UUID, name string) (*model.Shop, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var s model.Shop
	err := r.db.QueryRowContext(ctx, `
		UPDATE shops SET name = $1, updated_at = now()
		WHERE id = $2
		RETURNING id, conversation_id, name, owner_address, created_at, updated_at
	`, name, id).Scan(&s.ID, &s.ConversationID, &s.Name, &s.OwnerAddress, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rename shop: %w", err)
	}
	return &s, nil
}

func (r *ShopRepo) DeleteShop(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM shops WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete shop: %w", err)
	}
	return nil
}

func (r *ShopRepo) CreateItem(ctx context.Context, item *model.ShopItem) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO shop_items (shop_id, name, description, price, token_address, token_symbol, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, item.ShopID, item.Name, item.Description, item.Price, item.TokenAddress,
		item.TokenSymbol, item.ImageURL,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create shop item: %w", err)
	}
	return nil
}

func (r *ShopRepo) FindItem(ctx context.Context, id uuid.UUID) (*model.ShopItem, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	i, err := scanItem(r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM shop_items WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find shop item: %w", err)
	}
	return i, nil
}

func (r *ShopRepo) ListItems(ctx context.Context, shopID uuid.UUID) ([]model.ShopItem, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM shop_items WHERE shop_id = $1 ORDER BY created_at ASC`, shopID)
	if err != nil {
		return nil, fmt.Errorf("list shop items: %w", err)
	}
	defer rows.Close()

	var out []model.ShopItem
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shop item: %w", err)
		}
		out = append(out, *i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shop items: %w", err)
	}
	return out, nil
}

func (r *ShopRepo) UpdateItem(ctx context.Context, item *model.ShopItem) (*model.ShopItem, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	updated, err := scanItem(r.db.QueryRowContext(ctx, `
		UPDATE shop_items
		SET name = $1, description = $2, price = $3, token_address = $4,
		    token_symbol = $5, image_url = $6, updated_at = now()
		WHERE id = $7
		RETURNING `+itemColumns,
		item.Name, item.Description, item.Price, item.TokenAddress,
		item.TokenSymbol, item.ImageURL, item.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update shop item: %w", err)
	}
	return updated, nil
}

func (r *ShopRepo) DeleteItem(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM shop_items WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete shop item: %w", err)
	}
	return nil
}

func scanItem(row rowScanner) (*model.ShopItem, error) {
	var i model.ShopItem
	err := row.Scan(&i.ID, &i.ShopID, &i.Name, &i.Description, &i.Price,
		&i.TokenAddress, &i.TokenSymbol, &i.ImageURL, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}
