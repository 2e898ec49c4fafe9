package tracker

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/wftracker/wftracker/internal/config"
	"github.com/wftracker/wftracker/internal/store"
	"github.com/wftracker/wftracker/internal/types"
	"github.com/wftracker/wftracker/internal/validation"
)

const tokenBytes = 32

// dummyHash is compared against when the username is unknown so that both
// failure paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("wftracker-dummy-password"), bcrypt.DefaultCost)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// HashToken returns the hex SHA-256 of a bearer token, the form in which
// sessions are stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Login checks credentials and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (*types.LoginResponse, error) {
	creds, err := s.store.GetCredentials(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := types.Session{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		TokenHash: HashToken(token),
		UserID:    creds.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.sessions.Add(sess.TokenHash, Principal{User: creds.User, Session: sess})

	s.logger.Info("login", "action", "login", "user", creds.Username)

	return &types.LoginResponse{
		Success:      true,
		SessionToken: token,
		ExpiresAt:    sess.ExpiresAt,
		User:         creds.User,
	}, nil
}

// Authenticate resolves a bearer token to its user. Expired sessions are
// deleted and rejected.
func (s *Service) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	hash := HashToken(token)
	now := s.now()

	if p, ok := s.sessions.Get(hash); ok {
		if !p.Session.Expired(now) {
			return &p, nil
		}
		s.sessions.Remove(hash)
	}

	sess, err := s.store.GetSession(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Expired(now) {
		if err := s.store.DeleteSession(ctx, hash); err != nil {
			s.logger.Warn("failed to delete expired session", "error", err)
		}
		return nil, ErrUnauthorized
	}

	user, err := s.store.GetUser(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}

	p := Principal{User: *user, Session: *sess}
	s.sessions.Add(hash, p)
	return &p, nil
}

// Logout ends the session for token. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	hash := HashToken(token)
	s.sessions.Remove(hash)
	if err := s.store.DeleteSession(ctx, hash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SweepSessions deletes sessions that have expired.
func (s *Service) SweepSessions(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return n, nil
}

// CreateUser hashes password and creates the account.
func (s *Service) CreateUser(ctx context.Context, username, fullName, password string, admin bool) (*types.User, error) {
	if password == "" || len(password) > validation.MaxPasswordLength {
		return nil, fmt.Errorf("%w: password must be 1-%d bytes", ErrInvalidUser, validation.MaxPasswordLength)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	nu := types.NewUser{
		Username:     username,
		FullName:     fullName,
		PasswordHash: hash,
		IsAdmin:      admin,
	}
	if errs := validation.ValidateNewUser(nu); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrInvalidUser, errs[0].Field, errs[0].Message)
	}
	return s.store.CreateUser(ctx, nu)
}

// SeedUsers creates configured accounts that do not exist yet. Existing
// accounts are left untouched.
func (s *Service) SeedUsers(ctx context.Context, users []config.SeedUser) error {
	for _, u := range users {
		_, err := s.store.CreateUser(ctx, types.NewUser{
			Username:     u.Username,
			FullName:     u.FullName,
			PasswordHash: u.PasswordHash,
			IsAdmin:      u.IsAdmin,
		})
		switch {
		case errors.Is(err, store.ErrUserExists):
			continue
		case err != nil:
			return fmt.Errorf("seed user %q: %w", u.Username, err)
		}
		s.logger.Info("seeded user", "action", "seed", "user", u.Username, "admin", u.IsAdmin)
	}
	return nil
}
