package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/blocchat/chainledger/internal/domain/model"
	"github.com/blocchat/chainledger/internal/store"
)

var (
	ErrProfileNotFound  = errors.New("profile: not found")
	ErrInvalidUsername  = errors.New("profile: invalid username")
	ErrUsernameTaken    = errors.New("profile: username taken")
	ErrUsernameCooldown = errors.New("profile: username recently changed")
	ErrInvalidAddress   = errors.New("profile: malformed wallet address")
)

// UsernameCooldown is how long a wallet must wait between username changes.
const UsernameCooldown = 30 * 24 * time.Hour

const maxSearchResults = 20

var (
	addressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]{2,29}$`)
)

type Service struct {
	profiles store.ProfileRepository
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(profiles store.ProfileRepository, logger *slog.Logger) *Service {
	return &Service{
		profiles: profiles,
		logger:   logger.With("component", "profile"),
		now:      time.Now,
	}
}

// GetOrCreate resolves the profile for a wallet, creating a bare one on
// first sight and refreshing the inbox binding on every call.
func (s *Service) GetOrCreate(ctx context.Context, walletAddress, inboxID string) (*model.UserProfile, error) {
	if !addressPattern.MatchString(walletAddress) {
		return nil, ErrInvalidAddress
	}
	if inboxID == "" {
		return nil, fmt.Errorf("profile: missing inbox id")
	}

	p, err := s.profiles.Upsert(ctx, walletAddress, inboxID)
	if err != nil {
		return nil, fmt.Errorf("get or create profile: %w", err)
	}
	return p, nil
}

func (s *Service) GetByWallet(ctx context.Context, walletAddress string) (*model.UserProfile, error) {
	if !addressPattern.MatchString(walletAddress) {
		return nil, ErrInvalidAddress
	}
	p, err := s.profiles.FindByWallet(ctx, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

func (s *Service) GetByUsername(ctx context.Context, username string) (*model.UserProfile, error) {
	p, err := s.profiles.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("get profile by username: %w", err)
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

func (s *Service) GetByInboxID(ctx context.Context, inboxID string) (*model.UserProfile, error) {
	p, err := s.profiles.FindByInboxID(ctx, inboxID)
	if err != nil {
		return nil, fmt.Errorf("get profile by inbox: %w", err)
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

// ClaimUsername assigns a username to the wallet. Usernames are unique
// case-insensitively and changes are throttled by UsernameCooldown.
// Reclaiming the name already held is a no-op and does not reset the clock.
func (s *Service) ClaimUsername(ctx context.Context, walletAddress, username string) (*model.UserProfile, error) {
	if !addressPattern.MatchString(walletAddress) {
		return nil, ErrInvalidAddress
	}
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}

	current, err := s.profiles.FindByWallet(ctx, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("claim username: %w", err)
	}
	if current == nil {
		return nil, ErrProfileNotFound
	}

	if current.Username != nil && strings.EqualFold(*current.Username, username) {
		return current, nil
	}

	if current.LastUsernameChange != nil {
		if since := s.now().Sub(*current.LastUsernameChange); since < UsernameCooldown {
			return nil, fmt.Errorf("%w: %s remaining", ErrUsernameCooldown, (UsernameCooldown - since).Round(time.Hour))
		}
	}

	available, err := s.profiles.UsernameAvailable(ctx, username, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("claim username: %w", err)
	}
	if !available {
		return nil, ErrUsernameTaken
	}

	updated, err := s.profiles.SetUsername(ctx, walletAddress, username)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("claim username: %w", err)
	}
	if updated == nil {
		return nil, ErrProfileNotFound
	}

	s.logger.Info("username claimed", "wallet", strings.ToLower(walletAddress), "username", username)
	return updated, nil
}

// UpdateInput carries optional profile fields. Nil means leave unchanged.
type UpdateInput struct {
	Username    *string
	DisplayName *string
	AvatarURL   *string
	Bio         *string
}

func (s *Service) Update(ctx context.Context, walletAddress string, in UpdateInput) (*model.UserProfile, error) {
	if !addressPattern.MatchString(walletAddress) {
		return nil, ErrInvalidAddress
	}

	if in.Username != nil {
		// Username changes go through the claim path so cooldown and
		// uniqueness rules hold.
		if _, err := s.ClaimUsername(ctx, walletAddress, *in.Username); err != nil {
			return nil, err
		}
		in.Username = nil
	}

	updated, err := s.profiles.UpdateFields(ctx, walletAddress, in.Username, in.DisplayName, in.AvatarURL, in.Bio)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if updated == nil {
		return nil, ErrProfileNotFound
	}
	return updated, nil
}

func (s *Service) Search(ctx context.Context, query string, limit int) ([]model.UserProfile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 || limit > maxSearchResults {
		limit = maxSearchResults
	}
	return s.profiles.Search(ctx, query, limit)
}

// ValidateUsername enforces the username shape: 3 to 30 characters from
// [A-Za-z0-9_], not starting with an underscore.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("%w: 3-30 chars, letters, digits and underscore, no leading underscore", ErrInvalidUsername)
	}
	return nil
}
