package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/wftracker/wftracker/internal/checklist"
	"github.com/wftracker/wftracker/internal/config"
	"github.com/wftracker/wftracker/internal/types"
)

// DefaultLocalSessionTTL is used when LocalOptions.SessionTTL is zero.
const DefaultLocalSessionTTL = 24 * time.Hour

// LocalOptions configures a LocalBackend.
type LocalOptions struct {
	// Users are the accounts allowed to log in. Passwords are checked
	// against their bcrypt hashes.
	Users []config.SeedUser

	SessionTTL time.Duration
}

// LocalBackend keeps progress and sessions in a JSON file on this device,
// one progress entry per username.
type LocalBackend struct {
	path  string
	users map[string]config.SeedUser
	order []string
	ttl   time.Duration
	now   func() time.Time

	mu sync.Mutex
}

type localFile struct {
	Users    map[string]localEntry   `json:"users"`
	Sessions map[string]localSession `json:"sessions,omitempty"`
}

type localEntry struct {
	FullName    string           `json:"fullName,omitempty"`
	Tasks       []checklist.Task `json:"tasks"`
	LastUpdated time.Time        `json:"lastUpdated"`
}

type localSession struct {
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewLocalBackend creates a backend that stores progress at path.
// A leading "~/" is expanded to the user's home directory.
func NewLocalBackend(path string, opts LocalOptions) (*LocalBackend, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	if path == "" {
		return nil, errors.New("local progress path is required")
	}
	b := &LocalBackend{
		path:  path,
		users: make(map[string]config.SeedUser, len(opts.Users)),
		ttl:   opts.SessionTTL,
		now:   time.Now,
	}
	if b.ttl <= 0 {
		b.ttl = DefaultLocalSessionTTL
	}
	for _, u := range opts.Users {
		if _, dup := b.users[u.Username]; !dup {
			b.order = append(b.order, u.Username)
		}
		b.users[u.Username] = u
	}
	return b, nil
}

// Path returns the resolved file path.
func (b *LocalBackend) Path() string { return b.path }

// Login checks the password against the configured users and opens a
// local session that expires after the session TTL.
func (b *LocalBackend) Login(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}
	u, ok := b.users[username]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := b.now()
	sess := &Session{
		Token:     "local-" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		User:      localUser(u),
		LoginTime: now,
		ExpiresAt: now.Add(b.ttl),
		Local:     true,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	f, err := b.read()
	if err != nil {
		return nil, err
	}
	b.pruneSessions(f)
	f.Sessions[sess.Token] = localSession{Username: username, ExpiresAt: sess.ExpiresAt.UTC()}
	if err := b.write(f); err != nil {
		return nil, err
	}
	return sess, nil
}

// Logout removes the local session.
func (b *LocalBackend) Logout(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.read()
	if err != nil {
		return err
	}
	if _, ok := f.Sessions[sess.Token]; !ok {
		return nil
	}
	delete(f.Sessions, sess.Token)
	return b.write(f)
}

// Profile returns the session's user.
func (b *LocalBackend) Profile(ctx context.Context, sess *Session) (*types.ProfileResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.read()
	if err != nil {
		return nil, err
	}
	u, err := b.authorize(f, sess)
	if err != nil {
		return nil, err
	}
	return &types.ProfileResponse{User: localUser(u), LoginTime: sess.LoginTime}, nil
}

// LoadProgress returns the saved task list, or nil when none exists.
func (b *LocalBackend) LoadProgress(ctx context.Context, sess *Session) (*Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.read()
	if err != nil {
		return nil, err
	}
	u, err := b.authorize(f, sess)
	if err != nil {
		return nil, err
	}
	entry, ok := f.Users[u.Username]
	if !ok || entry.Tasks == nil {
		return nil, nil
	}
	return &Snapshot{Tasks: entry.Tasks, LastUpdated: entry.LastUpdated}, nil
}

// SaveProgress replaces the saved task list.
func (b *LocalBackend) SaveProgress(ctx context.Context, sess *Session, tasks []checklist.Task) (time.Time, error) {
	if tasks == nil {
		tasks = []checklist.Task{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.read()
	if err != nil {
		return time.Time{}, err
	}
	u, err := b.authorize(f, sess)
	if err != nil {
		return time.Time{}, err
	}
	now := b.now().UTC()
	f.Users[u.Username] = localEntry{
		FullName:    u.FullName,
		Tasks:       tasks,
		LastUpdated: now,
	}
	if err := b.write(f); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// ResetProgress deletes the saved task list.
func (b *LocalBackend) ResetProgress(ctx context.Context, sess *Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.read()
	if err != nil {
		return err
	}
	u, err := b.authorize(f, sess)
	if err != nil {
		return err
	}
	if _, ok := f.Users[u.Username]; !ok {
		return nil
	}
	delete(f.Users, u.Username)
	return b.write(f)
}

// AllProgress lists every configured non-admin user with their saved
// progress. Users who have not saved anything get zero stats.
func (b *LocalBackend) AllProgress(ctx context.Context, sess *Session) (*types.AllProgressResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.read()
	if err != nil {
		return nil, err
	}
	u, err := b.authorize(f, sess)
	if err != nil {
		return nil, err
	}
	if !u.IsAdmin {
		return nil, ErrForbidden
	}

	resp := &types.AllProgressResponse{Users: []types.UserProgress{}}
	for _, name := range b.order {
		cu := b.users[name]
		if cu.IsAdmin {
			continue
		}
		up := types.UserProgress{
			UserID:   cu.Username,
			Username: cu.Username,
			FullName: cu.FullName,
			Tasks:    []checklist.Task{},
		}
		if entry, ok := f.Users[name]; ok && entry.Tasks != nil {
			last := entry.LastUpdated
			up.LastUpdated = &last
			up.Tasks = entry.Tasks
		}
		up.Stats = checklist.Summarize(up.Tasks)
		resp.Users = append(resp.Users, up)
	}
	return resp, nil
}

// authorize resolves sess to a configured user. Unknown and expired
// sessions return ErrUnauthorized; an expired one is dropped from f, and
// the caller's next write persists that.
func (b *LocalBackend) authorize(f *localFile, sess *Session) (config.SeedUser, error) {
	if sess == nil {
		return config.SeedUser{}, ErrNoSession
	}
	ls, ok := f.Sessions[sess.Token]
	if !ok {
		return config.SeedUser{}, ErrUnauthorized
	}
	if !b.now().Before(ls.ExpiresAt) {
		delete(f.Sessions, sess.Token)
		return config.SeedUser{}, ErrUnauthorized
	}
	u, ok := b.users[ls.Username]
	if !ok {
		return config.SeedUser{}, ErrUnauthorized
	}
	return u, nil
}

func (b *LocalBackend) pruneSessions(f *localFile) {
	now := b.now()
	for token, ls := range f.Sessions {
		if !now.Before(ls.ExpiresAt) {
			delete(f.Sessions, token)
		}
	}
}

func localUser(u config.SeedUser) types.User {
	return types.User{
		ID:       u.Username,
		Username: u.Username,
		FullName: u.FullName,
		IsAdmin:  u.IsAdmin,
	}
}

func (b *LocalBackend) read() (*localFile, error) {
	f := &localFile{}
	data, err := os.ReadFile(b.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read local progress: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("parse local progress %s: %w", b.path, err)
		}
	}
	if f.Users == nil {
		f.Users = map[string]localEntry{}
	}
	if f.Sessions == nil {
		f.Sessions = map[string]localSession{}
	}
	return f, nil
}

// write replaces the file atomically via a temp file and rename.
func (b *LocalBackend) write(f *localFile) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("create local progress directory: %w", err)
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode local progress: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".progress-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write local progress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close local progress: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("replace local progress: %w", err)
	}
	return nil
}
