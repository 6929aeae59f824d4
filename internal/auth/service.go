package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotAllowed       = errors.New("auth: address not allowlisted")
	ErrInvalidNonce     = errors.New("auth: unknown or expired nonce")
	ErrInvalidSignature = errors.New("auth: signature does not match address")
	ErrInvalidSession   = errors.New("auth: unknown or expired session")
)

const (
	nonceTTL   = 5 * time.Minute
	sessionTTL = 24 * time.Hour
)

type nonceEntry struct {
	address   string
	expiresAt time.Time
}

type sessionEntry struct {
	address   string
	expiresAt time.Time
}

// Service issues one-time login nonces and exchanges valid signatures over
// them for bearer session tokens. Only allowlisted addresses may log in.
type Service struct {
	allowlist map[string]struct{}
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	nonces   map[string]nonceEntry
	sessions map[string]sessionEntry
}

func NewService(adminAddresses []string, logger *slog.Logger) *Service {
	allowlist := make(map[string]struct{}, len(adminAddresses))
	for _, addr := range adminAddresses {
		allowlist[strings.ToLower(addr)] = struct{}{}
	}
	return &Service{
		allowlist: allowlist,
		logger:    logger.With("component", "auth"),
		now:       time.Now,
		nonces:    make(map[string]nonceEntry),
		sessions:  make(map[string]sessionEntry),
	}
}

// IssueNonce creates a one-time nonce the address must sign to log in.
func (s *Service) IssueNonce(address string) (string, error) {
	address = strings.ToLower(address)
	if _, ok := s.allowlist[address]; !ok {
		return "", ErrNotAllowed
	}

	nonce, err := randomHex(16)
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	s.mu.Lock()
	s.nonces[nonce] = nonceEntry{address: address, expiresAt: s.now().Add(nonceTTL)}
	s.mu.Unlock()

	return nonce, nil
}

// Verify burns the nonce, checks the signature recovers to the claimed
// address, and returns a session token.
func (s *Service) Verify(address, nonce, signature string) (string, error) {
	address = strings.ToLower(address)
	if _, ok := s.allowlist[address]; !ok {
		return "", ErrNotAllowed
	}

	s.mu.Lock()
	entry, ok := s.nonces[nonce]
	delete(s.nonces, nonce)
	s.mu.Unlock()
	if !ok || entry.address != address || s.now().After(entry.expiresAt) {
		return "", ErrInvalidNonce
	}

	recovered, err := RecoverAddress(nonce, signature)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if recovered != address {
		return "", ErrInvalidSignature
	}

	token, err := randomHex(32)
	if err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}

	s.mu.Lock()
	s.sessions[token] = sessionEntry{address: address, expiresAt: s.now().Add(sessionTTL)}
	s.mu.Unlock()

	s.logger.Info("admin session created", "address", address)
	return token, nil
}

// Authenticate resolves a session token to its admin address.
func (s *Service) Authenticate(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[token]
	if !ok {
		return "", ErrInvalidSession
	}
	if s.now().After(entry.expiresAt) {
		delete(s.sessions, token)
		return "", ErrInvalidSession
	}
	return entry.address, nil
}

func (s *Service) Revoke(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// RunCleanup drops expired nonces and sessions until ctx is cancelled.
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Service) cleanup() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for nonce, entry := range s.nonces {
		if now.After(entry.expiresAt) {
			delete(s.nonces, nonce)
		}
	}
	for token, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			delete(s.sessions, token)
		}
	}
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
