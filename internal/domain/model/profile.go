package model

import (
	"time"

	"github.com/google/uuid"
)

// UserProfile maps a wallet and messaging inbox to an optional public
// identity. Wallet addresses are stored lowercased.
type UserProfile struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	WalletAddress      string     `db:"wallet_address" json:"wallet_address"`
	InboxID            string     `db:"inbox_id" json:"inbox_id"`
	Username           *string    `db:"username" json:"username"`
	DisplayName        *string    `db:"display_name" json:"display_name"`
	AvatarURL          *string    `db:"avatar_url" json:"avatar_url"`
	Bio                *string    `db:"bio" json:"bio"`
	LastUsernameChange *time.Time `db:"last_username_change" json:"last_username_change,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}
