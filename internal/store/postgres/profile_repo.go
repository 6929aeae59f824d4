package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/blocchat/chainledger/internal/domain/model"
	"github.com/blocchat/chainledger/internal/store"
)

const profileColumns = `id, wallet_address, inbox_id, username, display_name,
	avatar_url, bio, last_username_change, created_at, updated_at`

type ProfileRepo struct {
	db *DB
}

func NewProfileRepo(db *DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

func (r *ProfileRepo) Upsert(ctx context.Context, walletAddress, inboxID string) (*model.UserProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO user_profiles (wallet_address, inbox_id)
		VALUES ($1, $2)
		ON CONFLICT (wallet_address) DO UPDATE SET inbox_id = $2, updated_at = now()
		RETURNING `+profileColumns,
		strings.ToLower(walletAddress), inboxID)

	p, err := scanProfile(row)
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return p, nil
}

func (r *ProfileRepo) FindByWallet(ctx context.Context, walletAddress string) (*model.UserProfile, error) {
	return r.findOne(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE wallet_address = $1`,
		strings.ToLower(walletAddress))
}

func (r *ProfileRepo) FindByUsername(ctx context.Context, username string) (*model.UserProfile, error) {
	return r.findOne(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE LOWER(username) = LOWER($1)`,
		username)
}

func (r *ProfileRepo) FindByInboxID(ctx context.Context, inboxID string) (*model.UserProfile, error) {
	return r.findOne(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE inbox_id = $1`,
		inboxID)
}

func (r *ProfileRepo) UsernameAvailable(ctx context.Context, username, excludeWallet string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var taken bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM user_profiles
			WHERE LOWER(username) = LOWER($1) AND wallet_address != $2
		)
	`, username, strings.ToLower(excludeWallet)).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check username availability: %w", err)
	}
	return !taken, nil
}

func (r *ProfileRepo) SetUsername(ctx context.Context, walletAddress, username string) (*model.UserProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		UPDATE user_profiles
		SET username = $1, last_username_change = now(), updated_at = now()
		WHERE wallet_address = $2
		RETURNING `+profileColumns,
		username, strings.ToLower(walletAddress))

	p, err := scanProfile(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, store.ErrDuplicate
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("set username: %w", err)
	}
	return p, nil
}

func (r *ProfileRepo) UpdateFields(ctx context.Context, walletAddress string, username, displayName, avatarURL, bio *string) (*model.UserProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		UPDATE user_profiles
		SET username = COALESCE($1, username),
		    display_name = COALESCE($2, display_name),
		    avatar_url = COALESCE($3, avatar_url),
		    bio = COALESCE($4, bio),
		    last_username_change = CASE
		        WHEN $1 IS NOT NULL AND ($1 != username OR username IS NULL) THEN now()
		        ELSE last_username_change
		    END,
		    updated_at = now()
		WHERE wallet_address = $5
		RETURNING `+profileColumns,
		username, displayName, avatarURL, bio, strings.ToLower(walletAddress))

	p, err := scanProfile(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, store.ErrDuplicate
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

// Search matches username, display name and wallet by substring and inbox id
// exactly, ranking inbox matches first, then exact usernames, then recency.
func (r *ProfileRepo) Search(ctx context.Context, query string, limit int) ([]model.UserProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	pattern := "%" + strings.ToLower(query) + "%"
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+profileColumns+`
		FROM user_profiles
		WHERE LOWER(username) LIKE $1
		   OR LOWER(display_name) LIKE $1
		   OR LOWER(wallet_address) LIKE $1
		   OR inbox_id = $2
		ORDER BY
			CASE
				WHEN inbox_id = $2 THEN 0
				WHEN LOWER(username) = $3 THEN 1
				ELSE 2
			END,
			created_at DESC
		LIMIT $4
	`, pattern, query, strings.ToLower(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	defer rows.Close()

	var out []model.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}

func (r *ProfileRepo) findOne(ctx context.Context, query string, arg any) (*model.UserProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	p, err := scanProfile(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return p, nil
}

func scanProfile(row rowScanner) (*model.UserProfile, error) {
	var p model.UserProfile
	err := row.Scan(&p.ID, &p.WalletAddress, &p.InboxID, &p.Username, &p.DisplayName,
		&p.AvatarURL, &p.Bio, &p.LastUsernameChange, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
